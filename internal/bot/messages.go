package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keywarden/keywarden/internal/service"
	"go.uber.org/zap"
)

var errGetkeyCooldown = errors.New("getkey cooldown active")

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	content := strings.TrimSpace(m.Content)

	// A pending prompt consumes the next message from that user
	// regardless of content.
	b.mu.Lock()
	wait, waiting := b.keyEntryWaits[m.Author.ID]
	if waiting {
		delete(b.keyEntryWaits, m.Author.ID)
	}
	b.mu.Unlock()
	if waiting {
		select {
		case wait <- content:
		default:
		}
		return
	}

	switch {
	case content == "!panel":
		b.sendPanel(s, m.ChannelID)
	case content == "!getkey":
		b.handleGetKeyMessage(s, m)
	case content == "!redeem":
		b.handleRedeemMessage(s, m)
	}
}

func (b *Bot) sendPanel(s *discordgo.Session, channelID string) {
	_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embed: &discordgo.MessageEmbed{
			Title:       "Key management",
			Description: "Use the buttons below or the slash commands.",
		},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Stats", Style: discordgo.PrimaryButton, CustomID: componentPanelStats},
				discordgo.Button{Label: "Get key", Style: discordgo.SuccessButton, CustomID: componentPanelGetKey},
				discordgo.Button{Label: "Reset hwid", Style: discordgo.SecondaryButton, CustomID: componentPanelReset},
			}},
		},
	})
	if err != nil {
		b.logger.Error("Failed to send panel", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// mintTrialKey rate-limits per user, then mints a single short-lived
// key attributed to that user.
func (b *Bot) mintTrialKey(ctx context.Context, userID string) (string, error) {
	now := time.Now()
	b.mu.Lock()
	if last, ok := b.lastGetkey[userID]; ok && now.Sub(last) < getkeyCooldown {
		b.mu.Unlock()
		return "", errGetkeyCooldown
	}
	b.lastGetkey[userID] = now
	b.mu.Unlock()

	keys, err := b.service.CreateKeys(ctx, 1, getkeyDurationDays, userID)
	if err != nil {
		return "", err
	}
	return keys[0].Key, nil
}

func (b *Bot) handleGetKeyMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	token, err := b.mintTrialKey(context.Background(), m.Author.ID)
	if err != nil {
		if errors.Is(err, errGetkeyCooldown) {
			b.reply(s, m, "Slow down, you can only request a key once a minute.")
			return
		}
		b.logger.Error("Failed to mint trial key", zap.String("user_id", m.Author.ID), zap.Error(err))
		b.reply(s, m, "Something went wrong minting your key.")
		return
	}
	b.reply(s, m, fmt.Sprintf("Your key (valid %d day):\n```%s```", getkeyDurationDays, token))
}

// handleRedeemMessage prompts for the key and waits for the user's next
// message, aborting after keyEntryTimeout.
func (b *Bot) handleRedeemMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	wait := make(chan string, 1)
	b.mu.Lock()
	if _, busy := b.keyEntryWaits[m.Author.ID]; busy {
		b.mu.Unlock()
		b.reply(s, m, "I'm already waiting for a key from you.")
		return
	}
	b.keyEntryWaits[m.Author.ID] = wait
	b.mu.Unlock()

	b.reply(s, m, "Send the key you want to redeem.")

	go func() {
		var token string
		select {
		case token = <-wait:
		case <-time.After(keyEntryTimeout):
			b.mu.Lock()
			delete(b.keyEntryWaits, m.Author.ID)
			b.mu.Unlock()
			b.reply(s, m, "Timed out waiting for your key.")
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			b.reply(s, m, "That did not look like a key.")
			return
		}

		_, err := b.service.RedeemKey(context.Background(), token, m.Author.ID)
		switch {
		case err == nil:
			b.grantPremiumRole(m.Author.ID)
			b.reply(s, m, "Key redeemed. Welcome aboard!")
		case errors.Is(err, service.ErrKeyNotFound):
			b.reply(s, m, "That key does not exist.")
		case errors.Is(err, service.ErrKeyBlacklisted):
			b.reply(s, m, "That key has been blacklisted.")
		case errors.Is(err, service.ErrKeyAlreadyRedeemed):
			b.reply(s, m, "That key has already been redeemed.")
		case errors.Is(err, service.ErrKeyExpired):
			b.reply(s, m, "That key has expired.")
		default:
			b.logger.Error("Failed to redeem key", zap.String("user_id", m.Author.ID), zap.Error(err))
			b.reply(s, m, "Something went wrong redeeming that key.")
		}
	}()
}

func (b *Bot) reply(s *discordgo.Session, m *discordgo.MessageCreate, content string) {
	_, err := s.ChannelMessageSendReply(m.ChannelID, content, m.Reference())
	if err != nil {
		b.logger.Error("Failed to send reply", zap.String("channel_id", m.ChannelID), zap.Error(err))
	}
}
