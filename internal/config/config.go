// Package config loads the service configuration from defaults, an optional
// YAML file and LIGHTNOTE_* environment variables, in that order of
// precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lightnote/admission"
)

const EnvPrefix = "LIGHTNOTE"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	AI      AIConfig      `mapstructure:"ai"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// LimitConfig is the admission policy of one action.
type LimitConfig struct {
	Quota   int           `mapstructure:"quota"`
	Window  time.Duration `mapstructure:"window"`
	Message string        `mapstructure:"message"`
}

type LimitsConfig struct {
	Analyze LimitConfig `mapstructure:"analyze"`
	Rewrite LimitConfig `mapstructure:"rewrite"`
}

// StoreConfig selects where admission windows live. "memory" keeps them per
// process; "redis" shares them between every instance.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
	JanitorGrace    time.Duration `mapstructure:"janitor_grace"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Brokers   []string      `mapstructure:"brokers"`
	Topic     string        `mapstructure:"topic"`
	Group     string        `mapstructure:"group"`
	Threshold int64         `mapstructure:"threshold"`
	Decay     time.Duration `mapstructure:"decay"`
}

type AIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v. Keys without a default are not
// picked up from the environment.
func SetDefaults(v *viper.Viper) {
	defaults := admission.DefaultPolicies()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.idle_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("limits.analyze.quota", defaults[admission.ActionAnalyze].Quota)
	v.SetDefault("limits.analyze.window", defaults[admission.ActionAnalyze].Window)
	v.SetDefault("limits.analyze.message", defaults[admission.ActionAnalyze].Message)
	v.SetDefault("limits.rewrite.quota", defaults[admission.ActionRewrite].Quota)
	v.SetDefault("limits.rewrite.window", defaults[admission.ActionRewrite].Window)
	v.SetDefault("limits.rewrite.message", defaults[admission.ActionRewrite].Message)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.janitor_interval", time.Minute)
	v.SetDefault("store.janitor_grace", 5*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "lightnote:admission")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "lightnote.admission")
	v.SetDefault("kafka.group", "lightnote-admission-monitor")
	v.SetDefault("kafka.threshold", 10)
	v.SetDefault("kafka.decay", 30*time.Minute)

	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.rps", 5.0)
	v.SetDefault("ai.burst", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads the configuration. An empty path looks for lightnote.yaml in
// the working directory and ./config, and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("lightnote")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Policies converts the configured limits into admission policies.
func (c *Config) Policies() map[admission.Action]admission.Policy {
	return map[admission.Action]admission.Policy{
		admission.ActionAnalyze: c.Limits.Analyze.policy(),
		admission.ActionRewrite: c.Limits.Rewrite.policy(),
	}
}

func (l LimitConfig) policy() admission.Policy {
	return admission.Policy{Quota: l.Quota, Window: l.Window, Message: l.Message}
}

func (c *Config) Validate() error {
	for action, p := range c.Policies() {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("limits.%s: %w", action, err)
		}
	}

	switch c.Store.Driver {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("redis.addr is required when store.driver=redis")
		}
	default:
		return fmt.Errorf("store.driver must be memory or redis, got %q", c.Store.Driver)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required when kafka.enabled=true")
		}
		if strings.TrimSpace(c.Kafka.Topic) == "" {
			return errors.New("kafka.topic is required when kafka.enabled=true")
		}
	}

	if c.AI.RPS <= 0 {
		return fmt.Errorf("ai.rps must be > 0, got %v", c.AI.RPS)
	}
	if c.AI.Burst <= 0 {
		return fmt.Errorf("ai.burst must be > 0, got %d", c.AI.Burst)
	}
	return nil
}
