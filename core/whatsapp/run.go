package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/wabot/core/config"
	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp/api"
	"github.com/m3rciful/wabot/core/whatsapp/dispatch"
)

// Middleware describes a global middleware installed around the bot pipeline.
type Middleware struct {
	Name string
	Use  MiddlewareFunc
}

// Client is the provider surface RunWhatsApp needs.
type Client interface {
	api.Sender
	api.Receiver
	SetSettings(ctx context.Context, s api.Settings) error
	StateInstance(ctx context.Context) (string, error)
}

// RunOptions controls the behaviour of RunWhatsApp.
type RunOptions struct {
	Config *coreconfig.Config
	Bot    *Bot
	// Client defaults to an api.Client built from Config.
	Client Client
	// Poller defaults to BuildPoller(Config, Client).
	Poller Poller

	DispatchOptions dispatch.Options
	Middlewares     []Middleware

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *Bot
	Client     Client
	Dispatcher *dispatch.Dispatcher
}

// RunWhatsApp wires the bot to the provider and runs it until ctx is done.
func RunWhatsApp(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("whatsapp: nil config provided")
	}
	if opts.Bot == nil {
		return fmt.Errorf("whatsapp: nil bot provided")
	}
	cfg := opts.Config

	client := opts.Client
	if client == nil {
		c, err := api.NewClient(api.Options{
			BaseURL:    cfg.WhatsApp.APIURL,
			IDInstance: cfg.WhatsApp.IDInstance,
			APIToken:   cfg.WhatsApp.APIToken,
			HTTPClient: api.BuildHTTPClient(time.Duration(cfg.WhatsApp.RequestTimeoutSeconds) * time.Second),
		})
		if err != nil {
			return fmt.Errorf("whatsapp: client initialization failed: %w", err)
		}
		client = c
	}

	bot := opts.Bot
	if bot.Sender() == nil {
		bot.SetSender(client)
	}
	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Around(mw.Use)
	}
	names := make([]string, 0, len(opts.Middlewares))
	for _, mw := range opts.Middlewares {
		names = append(names, mw.Name)
	}
	preview, _ := logger.SummarizeStrings(names, 8)
	logger.Info(ctx, logger.CompWire, "wa.wire",
		slog.String("status", "ok"),
		slog.Int("commands", len(bot.Commands())),
		slog.String("middlewares", preview),
	)

	dispatchOpts := opts.DispatchOptions
	if dispatchOpts.Workers == 0 {
		dispatchOpts.Workers = cfg.Dispatch.Workers
	}
	if dispatchOpts.QueueSize == 0 {
		dispatchOpts.QueueSize = cfg.Dispatch.QueueSize
	}
	dispatcher := dispatch.New(bot, dispatchOpts)
	rt := Runtime{Bot: bot, Client: client, Dispatcher: dispatcher}

	poller := opts.Poller
	if poller == nil {
		poller = BuildPoller(cfg, client)
	}
	prepareInstance(ctx, cfg, client, poller, opts.DisableWebhookCleanup)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			dispatcher.Close()
			return err
		}
	}

	runErr := poller.Poll(ctx, dispatcher.Enqueue)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	dispatcher.Close()
	logger.Info(ctx, logger.CompWA, "wa.stopped",
		slog.Uint64("handled", dispatcher.Handled()),
		slog.Uint64("errors", dispatcher.ErrorCount()),
	)

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// prepareInstance logs the run mode and points the instance at the selected transport.
func prepareInstance(ctx context.Context, cfg *coreconfig.Config, client Client, poller Poller, skipCleanup bool) {
	start := time.Now()
	state, err := client.StateInstance(ctx)
	if err != nil {
		logger.Warn(ctx, logger.CompWA, "instance.state",
			slog.String("status", "fail"),
			slog.String("error_kind", api.Classify(err)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	} else if state != "authorized" {
		logger.Warn(ctx, logger.CompWA, "instance.state",
			slog.String("status", "skip"),
			slog.String("state", state),
		)
	}

	switch p := poller.(type) {
	case *Webhook:
		logger.Info(ctx, logger.CompWA, "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", fmt.Sprintf("%s:%d", p.Listen, p.Port)),
			slog.String("path", p.Path),
			slog.String("public_url", cfg.Webhook.URL),
			slog.Duration("duration", logger.Took(start)),
		)
		if !cfg.Webhook.Register {
			return
		}
		settings := api.Settings{
			WebhookURL:      strings.TrimRight(cfg.Webhook.URL, "/") + p.Path,
			WebhookURLToken: cfg.Webhook.Token,
			IncomingWebhook: "yes",
		}
		if err := client.SetSettings(ctx, settings); err != nil {
			logger.Warn(ctx, logger.CompWA, "register_webhook",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			return
		}
		logger.Info(ctx, logger.CompWA, "register_webhook", slog.String("status", "ok"))
	default:
		logger.Info(ctx, logger.CompWA, "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Int("poll_interval_ms", cfg.WhatsApp.PollIntervalMS),
			slog.Duration("duration", logger.Took(start)),
		)
		if skipCleanup {
			return
		}
		if err := client.SetSettings(ctx, api.Settings{WebhookURL: "", IncomingWebhook: "yes"}); err != nil {
			logger.Warn(ctx, logger.CompWA, "delete_webhook",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			return
		}
		logger.Info(ctx, logger.CompWA, "delete_webhook", slog.String("status", "ok"))
	}
}
