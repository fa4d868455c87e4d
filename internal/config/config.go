// Package config loads application configuration from defaults, an optional YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys are separated by a double underscore: APP_SERVER__PORT sets server.port.
const EnvPrefix = "APP_"

// FileEnv names the environment variable with the optional YAML config path.
const FileEnv = "CONFIG_FILE"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	Cron          CronConfig          `koanf:"cron"`
	Operator      OperatorConfig      `koanf:"operator"`
	Alerting      AlertingConfig      `koanf:"alerting"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Redis         RedisConfig         `koanf:"redis"`
	Kafka         KafkaConfig         `koanf:"kafka"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
}

type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"gte=1"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// CronConfig holds the shared secret guarding the cron endpoints.
// SecretHash is a bcrypt hash and takes precedence over Secret.
type CronConfig struct {
	Secret     string `koanf:"secret"`
	SecretHash string `koanf:"secret_hash"`
}

// OperatorConfig enables the operator API when JWTSecret is set.
type OperatorConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
}

type AlertingConfig struct {
	LockKey string        `koanf:"lock_key"`
	LockTTL time.Duration `koanf:"lock_ttl" validate:"gt=0"`
}

type NotificationsConfig struct {
	BaseURL string       `koanf:"base_url"`
	Worker  WorkerConfig `koanf:"worker"`
	Discord SenderConfig `koanf:"discord"`
	Slack   SenderConfig `koanf:"slack"`
	Webhook SenderConfig `koanf:"webhook"`
}

type WorkerConfig struct {
	BatchSize           int             `koanf:"batch_size" validate:"gte=1,lte=1000"`
	MaxAttempts         int             `koanf:"max_attempts" validate:"gte=1"`
	BackoffSchedule     []time.Duration `koanf:"backoff_schedule" validate:"min=1"`
	RequestTimeout      time.Duration   `koanf:"request_timeout" validate:"gt=0"`
	StuckTimeout        time.Duration   `koanf:"stuck_timeout" validate:"gt=0"`
	FailFastOnMisconfig bool            `koanf:"fail_fast_on_misconfig"`
}

// SenderConfig configures one webhook sender. RateLimit is requests per second; zero disables pacing.
type SenderConfig struct {
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
}

type RedisConfig struct {
	URL string `koanf:"url"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type SchedulerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	EvaluateInterval time.Duration `koanf:"evaluate_interval" validate:"gt=0"`
	NotifyInterval   time.Duration `koanf:"notify_interval" validate:"gt=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectAttempts: 5,
			ConnectTimeout:  60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Alerting: AlertingConfig{
			LockKey: "alert-garden:evaluate-alerts",
			LockTTL: 2 * time.Minute,
		},
		Notifications: NotificationsConfig{
			BaseURL: "http://localhost:8080",
			Worker: WorkerConfig{
				BatchSize:   10,
				MaxAttempts: 5,
				BackoffSchedule: []time.Duration{
					1 * time.Minute,
					2 * time.Minute,
					5 * time.Minute,
					10 * time.Minute,
					30 * time.Minute,
				},
				RequestTimeout: 5 * time.Second,
				StuckTimeout:   10 * time.Minute,
			},
			Discord: SenderConfig{RateLimit: 5},
			Slack:   SenderConfig{RateLimit: 1},
			Webhook: SenderConfig{RateLimit: 10},
		},
		Kafka: KafkaConfig{
			Topic: "incident-events",
		},
		Scheduler: SchedulerConfig{
			EvaluateInterval: time.Minute,
			NotifyInterval:   time.Minute,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by CONFIG_FILE, then APP_* variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Cron.Secret == "" && c.Cron.SecretHash == "" {
		return fmt.Errorf("invalid config: cron.secret or cron.secret_hash is required")
	}
	return nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
