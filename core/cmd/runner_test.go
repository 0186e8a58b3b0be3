package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/wabot/core/config"
	"github.com/m3rciful/wabot/core/whatsapp"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct {
	opts whatsapp.RunOptions
	err  error
}

func (a app) WhatsAppRunOptions() (whatsapp.RunOptions, error) { return a.opts, a.err }

func TestRunWiresLifecycleHooks(t *testing.T) {
	cfg := &coreconfig.Config{}
	var (
		loadedPath string
		trace      []string
		shutdown   bool
	)
	err := Run(Options{
		ConfigPath: "/etc/wabot.yaml",
		Context:    context.Background(),
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loadedPath = path
			return carrier{cfg: cfg}, nil
		},
		Bootstrap: func(context.Context, ConfigCarrier) (WhatsAppApp, error) {
			return app{opts: whatsapp.RunOptions{
				OnStart: func(context.Context, whatsapp.Runtime) error { trace = append(trace, "start"); return nil },
				OnStop:  func(context.Context, whatsapp.Runtime) error { trace = append(trace, "stop"); return nil },
			}}, nil
		},
		ShutdownLogger: func() error { shutdown = true; return nil },
		RunWhatsApp: func(ctx context.Context, opts whatsapp.RunOptions) error {
			assert.Same(t, cfg, opts.Config)
			require.NoError(t, opts.OnStart(ctx, whatsapp.Runtime{}))
			require.NoError(t, opts.OnStop(ctx, whatsapp.Runtime{}))
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "/etc/wabot.yaml", loadedPath)
	assert.Equal(t, []string{"start", "stop"}, trace)
	assert.True(t, shutdown)
}

func TestRunConfigPathResolution(t *testing.T) {
	t.Setenv("WABOT_CONFIG", "")
	_, err := resolveConfigPath(Options{ConfigEnvVar: "WABOT_CONFIG"})
	require.Error(t, err)

	p, err := resolveConfigPath(Options{ConfigEnvVar: "WABOT_CONFIG", DefaultConfigPath: "config.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", p)

	t.Setenv("WABOT_CONFIG", "/env.yaml")
	p, err = resolveConfigPath(Options{ConfigEnvVar: "WABOT_CONFIG", DefaultConfigPath: "config.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "/env.yaml", p)
}

func TestRunStopsOnBootstrapError(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	err := Run(Options{
		ConfigPath: "x",
		Context:    context.Background(),
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:  func(context.Context, ConfigCarrier) (WhatsAppApp, error) { return nil, boom },
		RunWhatsApp: func(context.Context, whatsapp.RunOptions) error {
			ran = true
			return nil
		},
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)

	err = Run(Options{ConfigPath: "x", LoadConfig: func(string) (ConfigCarrier, error) { return carrier{}, nil },
		Bootstrap: func(context.Context, ConfigCarrier) (WhatsAppApp, error) { return app{}, nil }})
	require.Error(t, err)
}
