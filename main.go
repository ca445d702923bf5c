package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"

	"finance-tracker/internal/config"
	"finance-tracker/internal/handlers"
	"finance-tracker/internal/logging"
	"finance-tracker/internal/scheduler"
	"finance-tracker/internal/session"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if err := cfg.ValidateBot(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// Create Telegram bot
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		slog.Error("failed to create Telegram bot", "err", err)
		os.Exit(1)
	}
	bot.Debug = false
	slog.Info("bot started", "username", bot.Self.UserName)

	notifier := handlers.ChatNotifier{Bot: bot, ChatID: cfg.ChatID}
	sess, err := session.Open(cfg, notifier)
	if err != nil {
		slog.Error("failed to open session", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		notifier.Error("Cloud data could not be loaded, working on local defaults: " + err.Error())
	}
	if art, err := sess.Backups.MaybeCreateDailySnapshot(); err != nil {
		slog.Error("daily snapshot failed", "err", err)
	} else if art != nil {
		slog.Info("daily snapshot written", "path", art.Path)
	}

	// Scheduled jobs: daily backup check, safety sync, quota cooldown reset
	c := cron.New()
	if _, err := scheduler.Register(c, scheduler.Jobs{
		Backups:      sess.Backups,
		Sync:         sess.Sync,
		Quota:        sess.Insights.Limiter(),
		SyncInterval: cfg.PeriodicSyncFloor,
	}); err != nil {
		slog.Error("failed to register cron jobs", "err", err)
		os.Exit(1)
	}
	c.Start()

	eventHandler := handlers.NewEventHandler(handlers.Deps{
		Config:   cfg,
		State:    sess.State,
		Sync:     sess.Sync,
		Backups:  sess.Backups,
		Insights: sess.Insights,
		Local:    sess.Local,
	})

	// Start listening for updates
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	go func() {
		for update := range updates {
			switch {
			case update.Message != nil:
				eventHandler.HandleMessage(ctx, bot, update.Message)
			case update.EditedMessage != nil:
				eventHandler.HandleMessage(ctx, bot, update.EditedMessage)
			case update.CallbackQuery != nil:
				eventHandler.HandleCallbackQuery(ctx, bot, update.CallbackQuery)
			}
		}
	}()

	slog.Info("bot is running")
	<-ctx.Done()

	slog.Info("shutting down bot")
	bot.StopReceivingUpdates()
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sess.Close(shutdownCtx); err != nil {
		slog.Error("failed to close session", "err", err)
	}
}
