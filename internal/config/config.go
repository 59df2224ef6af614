package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	StatsDriverMemory   = "memory"
	StatsDriverRedis    = "redis"
	StatsDriverPostgres = "postgres"
)

type Config struct {
	Environment string
	Telegram    TelegramConfig
	Admins      []int64
	Support     SupportConfig
	Pricing     PricingConfig
	Queue       QueueConfig
	Scratch     ScratchConfig
	Pending     PendingConfig
	Stats       StatsConfig
	Redis       RedisConfig
	Postgres    PostgresConfig
	Storage     StorageConfig
	HTTP        HTTPConfig
	Logging     LoggingConfig
}

type TelegramConfig struct {
	Token         string
	PollTimeout   time.Duration
	WebAppURL     string
	Currency      string
	ProviderToken string
}

type SupportConfig struct {
	Contact string
}

type PricingConfig struct {
	Base           int
	Extended       int
	LargeFile      int
	FreeCreations  int
	LargeFileBytes int64
}

type QueueConfig struct {
	Workers int
}

type ScratchConfig struct {
	Root string
}

type PendingConfig struct {
	TTL           time.Duration
	SweepSchedule string
}

type StatsConfig struct {
	Driver string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	BucketArchives string
	UseSSL         bool
	Region         string
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("storieswall")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("STORIESWALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that would keep the bot from starting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("config: telegram.token is required")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("config: queue.workers must be at least 1, got %d", c.Queue.Workers)
	}
	switch c.Stats.Driver {
	case StatsDriverMemory, StatsDriverRedis:
	case StatsDriverPostgres:
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			return errors.New("config: postgres.dsn is required for the postgres stats driver")
		}
	default:
		return fmt.Errorf("config: unknown stats.driver %q", c.Stats.Driver)
	}
	if c.Pending.TTL <= 0 {
		return errors.New("config: pending.ttl must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("logging.level", "info")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.polltimeout", "30s")
	v.SetDefault("telegram.webappurl", "https://stories-wall-app.vercel.app/webapp.html")
	v.SetDefault("telegram.currency", "XTR")
	v.SetDefault("telegram.providertoken", "")

	v.SetDefault("admins", []int64{})
	v.SetDefault("support.contact", "@AlliSighs")

	v.SetDefault("pricing.base", 10)
	v.SetDefault("pricing.extended", 15)
	v.SetDefault("pricing.largefile", 10)
	v.SetDefault("pricing.freecreations", 2)
	v.SetDefault("pricing.largefilebytes", 4*1024*1024)

	v.SetDefault("queue.workers", 1)

	v.SetDefault("scratch.root", "storieswall/temp_processing")

	v.SetDefault("pending.ttl", "24h")
	v.SetDefault("pending.sweepschedule", "@every 10m")

	v.SetDefault("stats.driver", StatsDriverMemory)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "storieswall")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 10)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketarchives", "storieswall-archives")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 10000)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
}
