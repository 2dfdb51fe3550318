package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keywarden/keywarden/internal/ierr"
	"github.com/keywarden/keywarden/internal/service"
	"go.uber.org/zap"
)

const (
	componentResetSelect  = "resethwid:select"
	componentResetConfirm = "resethwid:confirm"
	componentResetCancel  = "resethwid:cancel"
	componentPanelStats   = "panel:stats"
	componentPanelGetKey  = "panel:getkey"
	componentPanelReset   = "panel:resethwid"
)

func (b *Bot) onComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.MessageComponentData().CustomID {
	case componentResetSelect:
		b.handleResetSelect(s, i)
	case componentResetConfirm:
		b.handleResetConfirm(s, i)
	case componentResetCancel:
		b.handleResetCancel(s, i)
	case componentPanelStats:
		b.handleStats(s, i)
	case componentPanelGetKey:
		b.handlePanelGetKey(s, i)
	case componentPanelReset:
		b.handleResetHwidStart(s, i)
	}
}

// handleResetHwidStart is phase one of the two-phase reset: offer the
// requester a menu of their hwid-bound keys.
func (b *Bot) handleResetHwidStart(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	userID := interactionUserID(i)

	owned, err := b.service.OwnedKeys(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to list owned keys", zap.String("user_id", userID), zap.Error(err))
		b.respond(s, i, "Something went wrong looking up your keys.", true)
		return
	}

	options := make([]discordgo.SelectMenuOption, 0, len(owned))
	for _, k := range owned {
		if !k.Active || !k.Hwid.Valid {
			continue
		}
		options = append(options, discordgo.SelectMenuOption{
			Label:       k.Key,
			Value:       k.Key,
			Description: "bound to " + truncate(k.Hwid.String, 40),
		})
	}
	if len(options) == 0 {
		b.respond(s, i, "None of your keys currently have a hwid bound.", true)
		return
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Pick the key whose hwid you want to reset:",
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.SelectMenu{
						CustomID:    componentResetSelect,
						Placeholder: "Select a key",
						Options:     options,
					},
				}},
			},
		},
	})
	if err != nil {
		b.logger.Error("Failed to respond with key selection", zap.Error(err))
	}
}

// handleResetSelect is the bridge between the two phases: remember the
// selection server-side and show the confirmation. The stored entry
// expires after the configured window whether or not the user ever
// clicks.
func (b *Bot) handleResetSelect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	userID := interactionUserID(i)
	values := i.MessageComponentData().Values
	if len(values) != 1 {
		b.respond(s, i, "Nothing selected.", true)
		return
	}
	selected := values[0]

	err := b.pending.Put(ctx, userID, service.PendingReset{
		SelectedKey: selected,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error("Failed to store pending reset", zap.String("user_id", userID), zap.Error(err))
		b.respond(s, i, "Something went wrong, try again.", true)
		return
	}

	k, err := b.service.CheckKey(ctx, selected)
	if err != nil {
		b.logger.Error("Failed to load selected key", zap.String("key", selected), zap.Error(err))
		b.respond(s, i, "Something went wrong, try again.", true)
		return
	}

	hwid := "none"
	if k.Hwid.Valid {
		hwid = truncate(k.Hwid.String, 60)
	}
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("Reset hwid on `%s`?\nCurrent hwid: `%s`\nThis starts your reset cooldown.", selected, hwid),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Confirm", Style: discordgo.DangerButton, CustomID: componentResetConfirm},
					discordgo.Button{Label: "Cancel", Style: discordgo.SecondaryButton, CustomID: componentResetCancel},
				}},
			},
		},
	})
	if err != nil {
		b.logger.Error("Failed to respond with confirmation", zap.Error(err))
	}
}

// handleResetConfirm is phase two: commit the reset. The pending entry
// is consumed exactly once and a stale confirm finds nothing to act on.
func (b *Bot) handleResetConfirm(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	userID := interactionUserID(i)

	pending, ok, err := b.pending.Take(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to take pending reset", zap.String("user_id", userID), zap.Error(err))
		b.updateMessage(s, i, "Something went wrong, start over.")
		return
	}
	if !ok {
		b.updateMessage(s, i, "Your selection expired. Run the reset again.")
		return
	}

	var tiers []service.Tier
	if i.Member != nil {
		tiers = b.Tiers(i.Member.Roles)
	}

	err = b.service.ResetHwid(ctx, pending.SelectedKey, userID, tiers)
	var cooldownErr *service.CooldownActiveError
	switch {
	case err == nil:
		b.updateMessage(s, i, fmt.Sprintf("Hwid on `%s` has been reset.", pending.SelectedKey))
	case errors.Is(err, ierr.ErrInsufficientPrivilege):
		b.updateMessage(s, i, "You do not have a role that allows hwid resets.")
	case errors.As(err, &cooldownErr):
		b.updateMessage(s, i, fmt.Sprintf("Cooldown active: wait %s before the next reset.", cooldownErr.Remaining.Round(time.Second)))
	case errors.Is(err, service.ErrNoHwid):
		b.updateMessage(s, i, "That key no longer has a hwid bound.")
	case errors.Is(err, service.ErrNotKeyOwner):
		b.updateMessage(s, i, "You do not own that key.")
	case errors.Is(err, service.ErrKeyBlacklisted):
		b.updateMessage(s, i, "That key has been blacklisted.")
	case errors.Is(err, service.ErrKeyNotFound):
		b.updateMessage(s, i, "That key no longer exists.")
	default:
		b.logger.Error("Failed to reset hwid", zap.String("key", pending.SelectedKey), zap.Error(err))
		b.updateMessage(s, i, "Something went wrong resetting the hwid.")
	}
}

func (b *Bot) handleResetCancel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	userID := interactionUserID(i)

	if err := b.pending.Delete(ctx, userID); err != nil {
		b.logger.Error("Failed to delete pending reset", zap.String("user_id", userID), zap.Error(err))
	}
	b.updateMessage(s, i, "Reset cancelled.")
}

func (b *Bot) updateMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	})
	if err != nil {
		b.logger.Error("Failed to update interaction message", zap.Error(err))
	}
}

func (b *Bot) handlePanelGetKey(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)

	token, err := b.mintTrialKey(context.Background(), userID)
	if err != nil {
		if errors.Is(err, errGetkeyCooldown) {
			b.respond(s, i, "Slow down, you can only request a key once a minute.", true)
			return
		}
		b.logger.Error("Failed to mint trial key", zap.String("user_id", userID), zap.Error(err))
		b.respond(s, i, "Something went wrong minting your key.", true)
		return
	}
	b.respond(s, i, fmt.Sprintf("Your key (valid %d day):\n```%s```", getkeyDurationDays, token), true)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
