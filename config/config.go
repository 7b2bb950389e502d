package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Broker    BrokerConfig    `yaml:"broker"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Series    SeriesConfig    `yaml:"series"`
	EventLog  EventLogConfig  `yaml:"event_log"`
	Commands  CommandsConfig  `yaml:"commands"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// BrokerConfig holds the pub/sub connection parameters. Credentials are
// usually supplied through BROKER_USER / BROKER_PASSWORD. Durable and
// AutoDelete apply to the subscribed queues, which must match how the
// producer side declares them.
type BrokerConfig struct {
	URL            string        `yaml:"url"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	QueuePrefix    string        `yaml:"queue_prefix"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	Prefetch       int           `yaml:"prefetch"`
	Durable        bool          `yaml:"durable"`
	AutoDelete     bool          `yaml:"auto_delete"`
}

type ChannelsConfig struct {
	InboundBuffer int `yaml:"inbound_buffer"`
}

type SeriesConfig struct {
	MaxBars int `yaml:"max_bars"`
}

// EventLogConfig caps the reply/audit log. Zero keeps every entry.
type EventLogConfig struct {
	Capacity int `yaml:"capacity"`
}

type CommandsConfig struct {
	SecClass        string  `yaml:"sec_class"`
	SecCode         string  `yaml:"sec_code"`
	RequirePositive bool    `yaml:"require_positive"`
	PublishRate     float64 `yaml:"publish_rate"`
	PublishBurst    int     `yaml:"publish_burst"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
}

// MetricsConfig toggles the optional metric emitters.
type MetricsConfig struct {
	ChannelSize bool             `yaml:"channel_size"`
	Interval    time.Duration    `yaml:"interval"`
	CloudWatch  CloudWatchConfig `yaml:"cloudwatch"`
}

// CloudWatchConfig mirrors component metrics into an AWS CloudWatch namespace.
type CloudWatchConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Region        string        `yaml:"region"`
	Namespace     string        `yaml:"namespace"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ArchiveConfig controls the periodic parquet export of the candle series
// to S3. AWS credentials fall back to the SDK default chain.
type ArchiveConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	Prefix          string        `yaml:"prefix"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	Compression     string        `yaml:"compression"`
}

type LoggingConfig struct {
	Level          string        `yaml:"level"`
	Format         string        `yaml:"format"`
	Output         string        `yaml:"output"`
	MaxAge         int           `yaml:"max_age"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// Default returns the configuration used when a key is absent from the file.
// Broker values mirror the RabbitMQ Web-STOMP defaults of the original
// dashboard (guest/guest, 200ms reconnect delay).
func Default() Config {
	return Config{
		App: AppConfig{Name: "tradeboard", Version: "dev"},
		Broker: BrokerConfig{
			URL:            "amqp://localhost:5672/",
			User:           "guest",
			Password:       "guest",
			QueuePrefix:    "pytrade.",
			ReconnectDelay: 200 * time.Millisecond,
			Prefetch:       16,
			Durable:        true,
		},
		Channels: ChannelsConfig{InboundBuffer: 1024},
		EventLog: EventLogConfig{Capacity: 1000},
		Commands: CommandsConfig{
			SecClass:     "QJSIM",
			SecCode:      "SBER",
			PublishRate:  5,
			PublishBurst: 5,
		},
		Dashboard: DashboardConfig{
			Enabled:         true,
			Address:         "0.0.0.0:8080",
			RefreshInterval: 5 * time.Second,
			LogHistory:      200,
			MetricsHistory:  200,
		},
		Metrics: MetricsConfig{
			ChannelSize: true,
			Interval:    5 * time.Second,
			CloudWatch:  CloudWatchConfig{Namespace: "TradeBoard", FlushInterval: time.Minute},
		},
		Archive: ArchiveConfig{
			Prefix:        "tradeboard",
			FlushInterval: 5 * time.Minute,
			Compression:   "snappy",
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout", ReportInterval: time.Minute},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BROKER_URL"); v != "" {
		cfg.Broker.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BROKER_USER"); v != "" {
		cfg.Broker.User = strings.TrimSpace(v)
	}
	if v := os.Getenv("BROKER_PASSWORD"); v != "" {
		cfg.Broker.Password = strings.TrimSpace(v)
	}
	if v := os.Getenv("DASHBOARD_ADDRESS"); v != "" {
		cfg.Dashboard.Address = strings.TrimSpace(v)
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		if cfg.Archive.Region == "" {
			cfg.Archive.Region = strings.TrimSpace(v)
		}
		if cfg.Metrics.CloudWatch.Region == "" {
			cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.Broker.URL == "" {
		return fmt.Errorf("broker.url is required")
	}
	u, err := url.Parse(cfg.Broker.URL)
	if err != nil {
		return fmt.Errorf("broker.url is invalid: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return fmt.Errorf("broker.url scheme must be amqp or amqps, got '%s'", u.Scheme)
	}
	if cfg.Broker.ReconnectDelay <= 0 {
		return fmt.Errorf("broker.reconnect_delay must be greater than 0")
	}

	if cfg.Channels.InboundBuffer <= 0 {
		return fmt.Errorf("channels.inbound_buffer must be greater than 0")
	}
	if cfg.Series.MaxBars < 0 {
		return fmt.Errorf("series.max_bars must not be negative")
	}
	if cfg.EventLog.Capacity < 0 {
		return fmt.Errorf("event_log.capacity must not be negative")
	}

	if cfg.Metrics.ChannelSize && cfg.Metrics.Interval <= 0 {
		return fmt.Errorf("metrics.interval must be greater than 0 when channel_size is enabled")
	}
	if cw := cfg.Metrics.CloudWatch; cw.Enabled {
		if cw.Namespace == "" {
			return fmt.Errorf("metrics.cloudwatch.namespace is required when cloudwatch is enabled")
		}
		if cw.FlushInterval <= 0 {
			return fmt.Errorf("metrics.cloudwatch.flush_interval must be greater than 0")
		}
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when archive is enabled")
		}
		if cfg.Archive.Region == "" {
			return fmt.Errorf("archive.region is required when archive is enabled")
		}
		if cfg.Archive.FlushInterval <= 0 {
			return fmt.Errorf("archive.flush_interval must be greater than 0")
		}
		switch cfg.Archive.Compression {
		case "", "snappy", "gzip", "none":
		default:
			return fmt.Errorf("archive.compression must be snappy, gzip or none, got '%s'", cfg.Archive.Compression)
		}
	}

	if cfg.Commands.PublishRate <= 0 {
		return fmt.Errorf("commands.publish_rate must be greater than 0")
	}
	if cfg.Commands.PublishBurst <= 0 {
		return fmt.Errorf("commands.publish_burst must be greater than 0")
	}

	return nil
}

// BrokerURL returns the broker URL with configured credentials applied when
// the URL itself carries none.
func (b BrokerConfig) BrokerURL() string {
	u, err := url.Parse(b.URL)
	if err != nil || u.User != nil || b.User == "" {
		return b.URL
	}
	u.User = url.UserPassword(b.User, b.Password)
	return u.String()
}
