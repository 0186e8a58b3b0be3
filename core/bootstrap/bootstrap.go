package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/wabot/core/config"
	coredatabase "github.com/m3rciful/wabot/core/database"
	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp/session"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, *sqlx.DB) error
	OpenSQLite func(context.Context, string) (*sqlx.DB, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store session.Store
	// DB is set for the sqlite and postgres session stores.
	DB *sqlx.DB
}

// Close releases the database handle, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger and opens the configured session store,
// connecting to and migrating the database when the store needs one.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	start := time.Now()
	res, err := openStore(ctx, opts)
	if err != nil {
		logger.Error(ctx, logger.CompStore, "store.open",
			slog.String("status", "fail"),
			slog.String("store", opts.Config.Session.Store),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return nil, err
	}
	logger.Info(ctx, logger.CompStore, "store.open",
		slog.String("status", "ok"),
		slog.String("store", opts.Config.Session.Store),
		slog.Duration("duration", logger.Took(start)),
	)
	return res, nil
}

func openStore(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	switch cfg.Session.Store {
	case coreconfig.StoreFile:
		store, err := session.NewFileStore(cfg.Session.FilePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: file store: %w", err)
		}
		return &Result{Store: store}, nil

	case coreconfig.StoreSQLite:
		open := opts.OpenSQLite
		if open == nil {
			open = coredatabase.OpenSQLite
		}
		db, err := open(ctx, cfg.Session.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		return &Result{Store: session.NewSQLStore(db), DB: db}, nil

	case coreconfig.StorePostgres:
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		return &Result{Store: session.NewSQLStore(db), DB: db}, nil

	case coreconfig.StoreMemory, "":
		return &Result{Store: session.NewMemoryStore()}, nil

	default:
		return nil, fmt.Errorf("bootstrap: unknown session store %q", cfg.Session.Store)
	}
}
