package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is the SDKWA gateway used when whatsapp.api_url is empty.
const DefaultAPIURL = "https://api.sdkwa.pro"

// WhatsAppConfig holds the SDKWA instance credentials and update acquisition settings.
type WhatsAppConfig struct {
	IDInstance string `yaml:"id_instance" envconfig:"ID_INSTANCE"`
	APIToken   string `yaml:"api_token_instance" envconfig:"API_TOKEN_INSTANCE"`
	APIURL     string `yaml:"api_url" envconfig:"API_URL"`
	// AdminID is the sender id (e.g. 79001234567@c.us) allowed to run admin commands.
	AdminID string `yaml:"admin_id" envconfig:"WHATSAPP_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"WHATSAPP_RUN_MODE"`

	PollIntervalMS        int `yaml:"poll_interval_ms" envconfig:"WHATSAPP_POLL_INTERVAL_MS"`
	RetryDelayMS          int `yaml:"retry_delay_ms" envconfig:"WHATSAPP_RETRY_DELAY_MS"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" envconfig:"WHATSAPP_REQUEST_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies the inbound webhook listener.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Path   string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	// Token is compared against the Authorization bearer sent by the provider.
	Token string `yaml:"token" envconfig:"WEBHOOK_TOKEN"`
	// Register pushes URL and Token to the instance settings on startup.
	Register bool `yaml:"register" envconfig:"WEBHOOK_REGISTER"`
}

// SessionConfig selects the session store backend.
type SessionConfig struct {
	Store       string `yaml:"store" envconfig:"SESSION_STORE"`
	FilePath    string `yaml:"file_path" envconfig:"SESSION_FILE_PATH"`
	SQLitePath  string `yaml:"sqlite_path" envconfig:"SESSION_SQLITE_PATH"`
	KeyBySender bool   `yaml:"key_by_sender" envconfig:"SESSION_KEY_BY_SENDER"`
}

// DatabaseConfig holds Postgres connection settings used by the postgres session store.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// DispatchConfig sizes the inbound update worker pool.
type DispatchConfig struct {
	Workers   int `yaml:"workers" envconfig:"DISPATCH_WORKERS"`
	QueueSize int `yaml:"queue_size" envconfig:"DISPATCH_QUEUE_SIZE"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook receives updates through the HTTP webhook listener.
	RunModeWebhook = "webhook"
	// RunModeLongpoll pulls updates from the instance notification queue.
	RunModeLongpoll = "longpoll"
)

const (
	// StoreMemory keeps sessions in process memory.
	StoreMemory = "memory"
	// StoreFile keeps sessions in a JSON file.
	StoreFile = "file"
	// StorePostgres keeps sessions in the sessions table of a Postgres database.
	StorePostgres = "postgres"
	// StoreSQLite keeps sessions in a local SQLite database.
	StoreSQLite = "sqlite"
)

const (
	// UpdateMessage identifies incoming and outgoing message webhooks.
	UpdateMessage = "message"
	// UpdateStatus identifies outgoing message status webhooks.
	UpdateStatus = "status"
	// UpdateState identifies instance state webhooks.
	UpdateState = "state"
)

// RateLimitConfig holds settings for per-sender rate limiting.
// ExcludeUpdates accepts update kinds that bypass limiting: message, status, state.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration of the bot core.
type Config struct {
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Session   SessionConfig   `yaml:"session"`
	Database  DatabaseConfig  `yaml:"database"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML (or JSON) file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults in place.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	cfg.WhatsApp.IDInstance = strings.TrimSpace(cfg.WhatsApp.IDInstance)
	cfg.WhatsApp.APIToken = strings.TrimSpace(cfg.WhatsApp.APIToken)
	if cfg.WhatsApp.IDInstance == "" {
		return fmt.Errorf("whatsapp.id_instance is required")
	}
	if cfg.WhatsApp.APIToken == "" {
		return fmt.Errorf("whatsapp.api_token_instance is required")
	}
	cfg.WhatsApp.APIURL = strings.TrimRight(strings.TrimSpace(cfg.WhatsApp.APIURL), "/")
	if cfg.WhatsApp.APIURL == "" {
		cfg.WhatsApp.APIURL = DefaultAPIURL
	}
	if cfg.WhatsApp.PollIntervalMS < 0 || cfg.WhatsApp.RetryDelayMS < 0 {
		return fmt.Errorf("whatsapp.poll_interval_ms and whatsapp.retry_delay_ms must be >= 0")
	}
	if cfg.WhatsApp.PollIntervalMS == 0 {
		cfg.WhatsApp.PollIntervalMS = 1000
	}
	if cfg.WhatsApp.RetryDelayMS == 0 {
		cfg.WhatsApp.RetryDelayMS = 5000
	}
	if cfg.WhatsApp.RequestTimeoutSeconds <= 0 {
		cfg.WhatsApp.RequestTimeoutSeconds = 30
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.WhatsApp.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when whatsapp.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when whatsapp.run_mode is 'webhook'")
		}
		if cfg.Webhook.Register && strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when webhook.register is set")
		}
	case RunModeLongpoll:
	default:
		return fmt.Errorf("invalid whatsapp.run_mode %q; allowed: webhook, longpoll", cfg.WhatsApp.RunMode)
	}
	cfg.WhatsApp.RunMode = rm

	path := strings.TrimSpace(cfg.Webhook.Path)
	if path == "" {
		path = "/webhook"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	cfg.Webhook.Path = path

	if err := normalizeSession(cfg); err != nil {
		return err
	}

	if cfg.Dispatch.Workers < 0 || cfg.Dispatch.QueueSize < 0 {
		return fmt.Errorf("dispatch.workers and dispatch.queue_size must be >= 0")
	}

	allowed := map[string]struct{}{
		UpdateMessage: {},
		UpdateStatus:  {},
		UpdateState:   {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: message, status, state", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeSession(cfg *Config) error {
	store := strings.ToLower(strings.TrimSpace(cfg.Session.Store))
	if store == "" {
		store = StoreMemory
	}
	switch store {
	case StoreMemory:
	case StoreFile:
		if strings.TrimSpace(cfg.Session.FilePath) == "" {
			cfg.Session.FilePath = "sessions.json"
		}
	case StoreSQLite:
		if strings.TrimSpace(cfg.Session.SQLitePath) == "" {
			cfg.Session.SQLitePath = "data/sessions.db"
		}
	case StorePostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required for session.store 'postgres'")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 5
		}
	default:
		return fmt.Errorf("invalid session.store %q; allowed: memory, file, sqlite, postgres", cfg.Session.Store)
	}
	cfg.Session.Store = store
	return nil
}
