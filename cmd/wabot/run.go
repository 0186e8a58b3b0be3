package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/m3rciful/wabot/core/bootstrap"
	corecmd "github.com/m3rciful/wabot/core/cmd"
	coreconfig "github.com/m3rciful/wabot/core/config"
	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp"
	"github.com/m3rciful/wabot/core/whatsapp/middleware"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	Long:  "Loads the configuration, opens the session store and processes updates until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return corecmd.Run(corecmd.Options{
			ConfigPath:        cfgFile,
			ConfigEnvVar:      "WABOT_CONFIG",
			DefaultConfigPath: "config.yaml",
			Context:           cmd.Context(),
			LoadConfig:        loadConfig,
			Bootstrap:         bootstrapApp,
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

type appConfig struct {
	*coreconfig.Config
}

func (c appConfig) CoreConfig() *coreconfig.Config { return c.Config }

func loadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return appConfig{Config: cfg}, nil
}

type application struct {
	cfg   *coreconfig.Config
	infra *bootstrap.Result
}

func bootstrapApp(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.WhatsAppApp, error) {
	cfg := carrier.CoreConfig()
	infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	return &application{cfg: cfg, infra: infra}, nil
}

func (a *application) WhatsAppRunOptions() (whatsapp.RunOptions, error) {
	bot := newBot(a.cfg, a.infra.Store)
	onLimited := func(c *whatsapp.Context) error { return c.Reply("Slow down, please.") }
	return whatsapp.RunOptions{
		Config:      a.cfg,
		Bot:         bot,
		Middlewares: middleware.DefaultMiddlewares(a.cfg, onLimited),
		OnStop: func(ctx context.Context, _ whatsapp.Runtime) error {
			if err := a.infra.Close(); err != nil {
				logger.Warn(ctx, logger.CompDB, "db.close",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
				return err
			}
			return nil
		},
	}, nil
}
