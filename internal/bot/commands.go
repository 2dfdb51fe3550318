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

func slashCommands() []*discordgo.ApplicationCommand {
	adminPerm := int64(discordgo.PermissionAdministrator)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "stats",
			Description: "Show key and user totals",
		},
		{
			Name:                     "addkey",
			Description:              "Mint a batch of license keys",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "quantity",
					Description: "Number of keys to mint",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "duration",
					Description: "Validity in days (0 = lifetime)",
					Required:    false,
				},
			},
		},
		{
			Name:                     "blacklist",
			Description:              "Terminally deactivate a key",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "key",
					Description: "The key to blacklist",
					Required:    true,
				},
			},
		},
		{
			Name:        "redeem",
			Description: "Redeem a license key",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "key",
					Description: "The key to redeem",
					Required:    true,
				},
			},
		},
		{
			Name:        "resethwid",
			Description: "Reset the hwid bound to one of your keys",
		},
		{
			Name:                     "managekey",
			Description:              "Inspect a key record",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "key",
					Description: "The key to inspect",
					Required:    true,
				},
			},
		},
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case "stats":
			b.handleStats(s, i)
		case "addkey":
			b.handleAddKey(s, i)
		case "blacklist":
			b.handleBlacklist(s, i)
		case "redeem":
			b.handleRedeem(s, i)
		case "resethwid":
			b.handleResetHwidStart(s, i)
		case "managekey":
			b.handleManageKey(s, i)
		}
	case discordgo.InteractionMessageComponent:
		b.onComponent(s, i)
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logger.Error("Failed to respond to interaction", zap.Error(err))
	}
}

func (b *Bot) handleStats(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	stats, err := b.service.Stats(ctx)
	if err != nil {
		b.logger.Error("Failed to compute stats", zap.Error(err))
		b.respond(s, i, "Something went wrong fetching stats.", true)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Key statistics",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Total keys", Value: fmt.Sprintf("%d", stats.TotalKeys), Inline: true},
			{Name: "Active keys", Value: fmt.Sprintf("%d", stats.ActiveKeys), Inline: true},
			{Name: "Users", Value: fmt.Sprintf("%d", stats.TotalUsers), Inline: true},
		},
	}
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
	if err != nil {
		b.logger.Error("Failed to respond with stats", zap.Error(err))
	}
}

func (b *Bot) handleAddKey(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	var quantity, duration int
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "quantity":
			quantity = int(opt.IntValue())
		case "duration":
			duration = int(opt.IntValue())
		}
	}

	if quantity < 1 || quantity > b.maxBatchChat {
		b.respond(s, i, fmt.Sprintf("Quantity must be between 1 and %d.", b.maxBatchChat), true)
		return
	}

	keys, err := b.service.CreateKeys(ctx, quantity, duration, interactionUserID(i))
	if err != nil {
		if errors.Is(err, ierr.ErrValidation) {
			b.respond(s, i, err.Error(), true)
			return
		}
		b.logger.Error("Failed to create key batch", zap.Error(err))
		b.respond(s, i, "Something went wrong minting keys.", true)
		return
	}

	lifetime := "lifetime"
	if duration > 0 {
		lifetime = fmt.Sprintf("%d day(s)", duration)
	}
	content := fmt.Sprintf("Minted %d key(s), valid %s:\n```", len(keys), lifetime)
	for _, k := range keys {
		content += "\n" + k.Key
	}
	content += "\n```"
	b.respond(s, i, content, true)
}

func (b *Bot) handleBlacklist(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	token := i.ApplicationCommandData().Options[0].StringValue()

	err := b.service.Blacklist(ctx, token, interactionUserID(i))
	switch {
	case err == nil:
		b.respond(s, i, fmt.Sprintf("Key `%s` has been blacklisted.", token), true)
	case errors.Is(err, service.ErrKeyNotFound):
		b.respond(s, i, "That key does not exist.", true)
	case errors.Is(err, service.ErrAlreadyInactive):
		b.respond(s, i, "That key is already blacklisted.", true)
	default:
		b.logger.Error("Failed to blacklist key", zap.String("key", token), zap.Error(err))
		b.respond(s, i, "Something went wrong blacklisting that key.", true)
	}
}

func (b *Bot) handleRedeem(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	token := i.ApplicationCommandData().Options[0].StringValue()
	userID := interactionUserID(i)

	_, err := b.service.RedeemKey(ctx, token, userID)
	switch {
	case err == nil:
		b.grantPremiumRole(userID)
		b.respond(s, i, "Key redeemed. Welcome aboard!", true)
	case errors.Is(err, service.ErrKeyNotFound):
		b.respond(s, i, "That key does not exist.", true)
	case errors.Is(err, service.ErrKeyBlacklisted):
		b.respond(s, i, "That key has been blacklisted.", true)
	case errors.Is(err, service.ErrKeyAlreadyRedeemed):
		b.respond(s, i, "That key has already been redeemed.", true)
	case errors.Is(err, service.ErrKeyExpired):
		b.respond(s, i, "That key has expired.", true)
	default:
		b.logger.Error("Failed to redeem key", zap.String("key", token), zap.Error(err))
		b.respond(s, i, "Something went wrong redeeming that key.", true)
	}
}

func (b *Bot) handleManageKey(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	token := i.ApplicationCommandData().Options[0].StringValue()

	k, err := b.service.CheckKey(ctx, token)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			b.respond(s, i, "That key does not exist.", true)
			return
		}
		b.logger.Error("Failed to load key", zap.String("key", token), zap.Error(err))
		b.respond(s, i, "Something went wrong loading that key.", true)
		return
	}

	owner := "unredeemed"
	if k.OwnerUserID.Valid {
		owner = "<@" + k.OwnerUserID.String + ">"
	}
	hwid := "none"
	if k.Hwid.Valid {
		hwid = "`" + k.Hwid.String + "`"
	}
	expires := "never"
	if k.ExpiresAt.Valid {
		expires = k.ExpiresAt.Time.UTC().Format(time.RFC1123)
	}
	state := "active"
	if !k.Active {
		state = "blacklisted"
	} else if k.IsExpired(b.service.Now()) {
		state = "expired"
	}

	embed := &discordgo.MessageEmbed{
		Title: "Key record",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Key", Value: "`" + k.Key + "`"},
			{Name: "State", Value: state, Inline: true},
			{Name: "Owner", Value: owner, Inline: true},
			{Name: "Hwid", Value: hwid, Inline: true},
			{Name: "Expires", Value: expires, Inline: true},
		},
	}
	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Error("Failed to respond with key record", zap.Error(err))
	}
}

func (b *Bot) grantPremiumRole(userID string) {
	if b.cfg.PremiumRoleID == "" {
		return
	}
	if err := b.session.GuildMemberRoleAdd(b.cfg.GuildID, userID, b.cfg.PremiumRoleID); err != nil {
		b.logger.Error("Failed to grant premium role", zap.String("user_id", userID), zap.Error(err))
	}
}
