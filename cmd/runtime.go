package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tgflow/pkg/api"
	"tgflow/pkg/bot"
	"tgflow/pkg/bus"
	"tgflow/pkg/compose"
	"tgflow/pkg/config"
	"tgflow/pkg/logger"
	"tgflow/pkg/middleware"
	"tgflow/pkg/session"
)

func loadRuntimeConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)
	return cfg, appLogger, nil
}

func newAPIClient(cfg *config.Config, log *slog.Logger) (*api.Client, error) {
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot token is not configured (set bot.token or TGFLOW_BOT_TOKEN)")
	}
	return api.NewClient(cfg.Bot.Token, api.Options{
		BaseURL:        cfg.Bot.APIBaseURL,
		RequestTimeout: time.Duration(cfg.Bot.RequestTimeoutSeconds) * time.Second,
	}, log)
}

// newDemoBot builds a Bot running the demo chain: request logging, the
// sender allow list, a per-conversation counter, and an echo of text messages.
func newDemoBot(cfg *config.Config, client bot.Client, events *bus.Bus, store session.Store, log *slog.Logger) (*bot.Bot, error) {
	b, err := bot.New(client, bot.Options{
		WebhookReply: cfg.Bot.WebhookReplyEnabled(),
		Events:       events,
	}, log)
	if err != nil {
		return nil, err
	}

	b.Use(
		middleware.Logger(),
		middleware.AllowFrom(cfg.Bot.AllowFrom),
		session.Middleware(store, nil),
		bot.On([]string{"text"}, middleware.Typing(middleware.DefaultTypingInterval), echoText),
		bot.On([]string{"callback_query"}, acknowledgeCallback),
	)
	return b, nil
}

func echoText(c *bot.Context, next compose.Next) error {
	msg := c.Message()
	if msg == nil {
		return next()
	}

	count := 1
	if s := session.From(c); s != nil {
		if previous, ok := s["messages"].(int); ok {
			count = previous + 1
		}
		s["messages"] = count
	}

	if _, err := c.Reply(fmt.Sprintf("%s (#%d)", msg.Text, count), nil); err != nil {
		return fmt.Errorf("echo reply: %w", err)
	}
	return next()
}

func acknowledgeCallback(c *bot.Context, next compose.Next) error {
	if err := c.AnswerCallbackQuery("", nil); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return next()
}
