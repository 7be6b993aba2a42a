package bot

import (
	"context"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/pavelzar/content-maker/src/CMBot/components/commands"
	"github.com/pavelzar/content-maker/src/CMBot/components/ingest"
	"github.com/pavelzar/content-maker/src/CMBot/components/moderation"
	"github.com/pavelzar/content-maker/src/CMBot/components/publisher"
	"github.com/pavelzar/content-maker/src/CMBot/components/rewrite"
	"github.com/pavelzar/content-maker/src/CMBot/components/scheduler"
	"github.com/pavelzar/content-maker/src/CMBot/config"
	"github.com/pavelzar/content-maker/src/shared/store"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Bot struct {
	session   *discordgo.Session
	store     *store.Store
	config    config.Config
	scheduler *scheduler.Scheduler
	commands  *commands.Handler
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(cfg config.Config, db *gorm.DB, rdb *redis.Client) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bot{
		session: dg,
		store:   store.New(db),
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
	}

	b.initializeComponents(rdb)
	b.registerHandlers()

	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuilds

	return b, nil
}

func (b *Bot) initializeComponents(rdb *redis.Client) {
	scanner := ingest.NewScanner(b.store, ingest.NewWebSource(nil))

	gateway := rewrite.NewClient(b.config.RewriteURL, b.config.RewriteKey, b.config.RewriteTimeout)
	orchestrator := rewrite.NewOrchestrator(b.store, gateway)

	machine := moderation.NewMachine(b.store, b.config.PublishDelay)

	pub := publisher.NewDiscord(b.session)
	b.scheduler = scheduler.New(b.store, pub, rdb, b.config.TickInterval)

	b.commands = commands.NewHandler(commands.Config{
		Store:          b.store,
		Scanner:        scanner,
		Rewriter:       orchestrator,
		Moderation:     machine,
		Scheduler:      b.scheduler,
		GuildID:        b.config.GuildID,
		OperatorRoleID: b.config.OperatorRoleID,
		Styles:         b.config.Styles,
	})
}

func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleReady)
	b.session.AddHandler(b.commands.HandleMessage)
	b.session.AddHandler(b.commands.HandleInteraction)
}

func (b *Bot) Start() error {
	return b.session.Open()
}

func (b *Bot) Stop() {
	b.cancel()
	b.scheduler.Stop()
	b.session.Close()
}

func (b *Bot) handleReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("Content bot logged in as %s", event.User.Username)

	if err := b.scheduler.Start(b.ctx); err != nil {
		log.Printf("bot: start scheduler: %v", err)
	}
}
