package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/service"
	"go.uber.org/zap"
)

const (
	getkeyCooldown     = 60 * time.Second
	getkeyDurationDays = 1
	keyEntryTimeout    = 60 * time.Second
)

// Bot is the Discord front-end adapter. It resolves caller identity
// and privilege tiers from the guild, invokes the lifecycle engine,
// and presents results; it holds no lifecycle state of its own beyond
// the pending-reset register and the transient prompt channels.
type Bot struct {
	session *discordgo.Session
	service *service.KeyService
	pending service.PendingResetStore
	cfg     *config.DiscordConfig
	logger  *zap.Logger

	maxBatchChat int

	mu            sync.Mutex
	lastGetkey    map[string]time.Time
	keyEntryWaits map[string]chan string
}

func New(cfg *config.DiscordConfig, svc *service.KeyService, pending service.PendingResetStore, maxBatchChat int, logger *zap.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	b := &Bot{
		session:       session,
		service:       svc,
		pending:       pending,
		cfg:           cfg,
		logger:        logger.Named("DiscordBot"),
		maxBatchChat:  maxBatchChat,
		lastGetkey:    make(map[string]time.Time),
		keyEntryWaits: make(map[string]chan string),
	}

	session.AddHandler(b.onInteractionCreate)
	session.AddHandler(b.onMessageCreate)

	return b, nil
}

// Run opens the gateway connection, registers the slash commands and
// blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	defer b.session.Close()

	appID := b.session.State.User.ID
	if _, err := b.session.ApplicationCommandBulkOverwrite(appID, b.cfg.GuildID, slashCommands()); err != nil {
		return fmt.Errorf("failed to register slash commands: %w", err)
	}

	b.logger.Info("Discord bot connected",
		zap.String("user", b.session.State.User.Username),
		zap.String("guild_id", b.cfg.GuildID),
	)

	<-ctx.Done()
	b.logger.Info("Discord bot shutting down")
	return nil
}

// Tiers maps the member's guild roles onto abstract privilege tiers.
// The engine never sees role ids.
func (b *Bot) Tiers(roleIDs []string) []service.Tier {
	var tiers []service.Tier
	for _, id := range roleIDs {
		switch id {
		case b.cfg.FastTrackRoleID:
			tiers = append(tiers, service.TierFastTrack)
		case b.cfg.BoosterRoleID:
			tiers = append(tiers, service.TierBooster)
		case b.cfg.PremiumRoleID:
			tiers = append(tiers, service.TierPremium)
		}
	}
	return tiers
}

// RoleResolver adapts the bot's guild-member lookup to the engine's
// PrivilegeResolver contract for callers that only have a user id.
type RoleResolver struct {
	bot *Bot
}

func NewRoleResolver(b *Bot) *RoleResolver {
	return &RoleResolver{bot: b}
}

var _ service.PrivilegeResolver = (*RoleResolver)(nil)

func (r *RoleResolver) Resolve(ctx context.Context, userID string) ([]service.Tier, error) {
	member, err := r.bot.session.GuildMember(r.bot.cfg.GuildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch guild member %s: %w", userID, err)
	}
	return r.bot.Tiers(member.Roles), nil
}
