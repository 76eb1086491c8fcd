package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	apiPkg "github.com/taborda-io/taborda/internal/api"
	"github.com/taborda-io/taborda/internal/config"
	"github.com/taborda-io/taborda/internal/connector"
	"github.com/taborda-io/taborda/internal/connector/slackconn"
	"github.com/taborda-io/taborda/internal/connector/telegram"
	"github.com/taborda-io/taborda/internal/connector/webhook"
	"github.com/taborda-io/taborda/internal/conversation"
	"github.com/taborda-io/taborda/internal/dialog"
	"github.com/taborda-io/taborda/internal/logring"
	"github.com/taborda-io/taborda/internal/processor"
	"github.com/taborda-io/taborda/internal/reaper"
	"github.com/taborda-io/taborda/internal/ticket"
	"github.com/taborda-io/taborda/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// .env is optional; real env vars win either way
	godotenv.Load()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	ring := logring.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logring.Wrap(jsonHandler, ring))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	logger.Info("tabordad starting", "data_dir", cfg.Bot.DataDir)

	// 1. Open stores
	if err := os.MkdirAll(cfg.Bot.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "path", cfg.Bot.DataDir, "error", err)
		os.Exit(1)
	}

	convStore, err := conversation.NewSQLiteStore(filepath.Join(cfg.Bot.DataDir, "conversations.db"))
	if err != nil {
		logger.Error("failed to open conversation store", "error", err)
		os.Exit(1)
	}
	ticketStore, err := ticket.NewSQLiteStore(filepath.Join(cfg.Bot.DataDir, "tickets.db"))
	if err != nil {
		logger.Error("failed to open ticket store", "error", err)
		os.Exit(1)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := convStore.Ping(pingCtx); err == nil {
		err = ticketStore.Ping(pingCtx)
	}
	pingCancel()
	if err != nil {
		logger.Error("storage self-test failed", "error", err)
		os.Exit(1)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Dialogue engine + turn processor
	engine := dialog.New(cfg.Bot.Categories)
	proc := processor.New(convStore, ticketStore, engine, logger.With("component", "processor"))
	proc.Pacing = processor.Pacing{
		Min: time.Duration(cfg.Bot.TypingDelayMinMS) * time.Millisecond,
		Max: time.Duration(cfg.Bot.TypingDelayMaxMS) * time.Millisecond,
	}

	// 3. Reaper
	rp := reaper.New(convStore, ticketStore, cfg.Bot.IdleTimeout(), logger.With("component", "reaper"))
	go safeGo(logger, "reaper", func() { rp.Start(ctx, cfg.Bot.ReapInterval()) })

	// 4. Connectors
	if cfg.Connectors.Telegram != nil {
		var tgConn *telegram.Connector
		tgConn, err = telegram.New(
			telegram.Config{
				Token:     cfg.Connectors.Telegram.Token,
				AllowFrom: cfg.Connectors.Telegram.AllowFrom,
			},
			func(ctx context.Context, msg connector.InboundMessage) error {
				return proc.Handle(ctx, tgConn, msg)
			},
			logger.With("connector", "telegram"),
		)
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "telegram", func() { tgConn.Start(ctx) })
	}

	if cfg.Connectors.Slack != nil {
		var slConn *slackconn.Connector
		slConn, err = slackconn.New(
			slackconn.Config{
				BotToken: cfg.Connectors.Slack.BotToken,
				AppToken: cfg.Connectors.Slack.AppToken,
			},
			func(ctx context.Context, msg connector.InboundMessage) error {
				return proc.Handle(ctx, slConn, msg)
			},
			logger.With("connector", "slack"),
		)
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "slack", func() { slConn.Start(ctx) })
	}

	// 5. Webhook transport. Shares the one processor so same-user turns
	// serialize across transports; its reply collector is an instant
	// sender, so pacing is skipped on this path.
	var webhookHandler *webhook.Handler
	if cfg.Connectors.Webhook != nil && len(cfg.Connectors.Webhook.Endpoints) > 0 {
		webhookHandler = webhook.New(
			cfg.Connectors.Webhook.Endpoints,
			proc.Handle,
			logger.With("connector", "webhook"),
		)
	}

	// 6. Admin API server
	apiSvc := &botServiceAdapter{convs: convStore, tickets: ticketStore, reaper: rp}
	apiSrv := apiPkg.NewServer(apiSvc, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), ring, handlerOrNil(webhookHandler))

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 7. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("tabordad stopped")
}

// handlerOrNil avoids handing the server a typed nil http.Handler.
func handlerOrNil(h *webhook.Handler) http.Handler {
	if h == nil {
		return nil
	}
	return h
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

// botServiceAdapter implements api.BotService over the stores and reaper.
type botServiceAdapter struct {
	convs   conversation.Store
	tickets ticket.Store
	reaper  *reaper.Reaper
}

func (b *botServiceAdapter) ListConversations(ctx context.Context) ([]*protocol.Conversation, error) {
	return b.convs.List(ctx)
}

func (b *botServiceAdapter) History(ctx context.Context, userID string, limit int) ([]*protocol.LogEntry, error) {
	return b.convs.History(ctx, userID, limit)
}

func (b *botServiceAdapter) ListTickets(ctx context.Context, filter ticket.Filter) ([]*protocol.Ticket, error) {
	return b.tickets.List(ctx, filter)
}

func (b *botServiceAdapter) GetTicket(ctx context.Context, number string) (*protocol.Ticket, error) {
	return b.tickets.Get(ctx, number)
}

func (b *botServiceAdapter) Stats(ctx context.Context) (*apiPkg.Stats, error) {
	total, err := b.tickets.Count(ctx, ticket.Filter{})
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := b.tickets.Count(ctx, ticket.Filter{CreatedAfter: midnight})
	if err != nil {
		return nil, err
	}
	incomplete, err := b.tickets.Count(ctx, ticket.Filter{Status: protocol.TicketIncomplete})
	if err != nil {
		return nil, err
	}
	active, err := b.convs.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	return &apiPkg.Stats{
		TotalTickets:        total,
		TicketsToday:        today,
		IncompleteTickets:   incomplete,
		ActiveConversations: active,
	}, nil
}

func (b *botServiceAdapter) Reap(ctx context.Context) error {
	_, err := b.reaper.Sweep(ctx)
	return err
}
