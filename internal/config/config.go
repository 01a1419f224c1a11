package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`
}

// Addr is the listen address for the HTTP server.
func (c HTTPConfig) Addr() string { return ":" + strconv.Itoa(c.Port) }

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"` // json | console
}

type UpstreamConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 = no client timeout
}

type EnrichConfig struct {
	PhoneField     string `mapstructure:"phone_field"`     // phone | phoneNumber
	NormalizePhone bool   `mapstructure:"normalize_phone"` // strip leading +1
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type JournalConfig struct {
	RecordTimeout time.Duration      `mapstructure:"record_timeout"`
	Kafka         JournalKafkaConfig `mapstructure:"kafka"`
	Redis         JournalRedisConfig `mapstructure:"redis"`
	MySQL         JournalMySQLConfig `mapstructure:"mysql"`
}

type JournalKafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JournalRedisConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	RedisConfig `mapstructure:",squash"`
	Stream      string `mapstructure:"stream"`
	MaxLen      int64  `mapstructure:"max_len"`
}

type JournalMySQLConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	DatabaseConfig `mapstructure:",squash"`
}

type ArchiveConfig struct {
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	ClickHouse DatabaseConfig `mapstructure:"clickhouse"`
	BatchSize  int            `mapstructure:"batch_size"`
	BatchWait  time.Duration  `mapstructure:"batch_wait"`
}

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s=%q: %s", e.Key, e.Value, e.Reason)
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env
// overrides (MIDDLEMAN_*, plus a bare PORT for the listen port).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (MIDDLEMAN_*)
	v.SetEnvPrefix("MIDDLEMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("http.port", "PORT"); err != nil {
		return Config{}, err
	}

	port, err := parsePort(v.GetString("http.port"))
	if err != nil {
		return Config{}, err
	}
	v.Set("http.port", port)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parsePort(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 3000, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ValidationError{Key: "PORT", Value: raw, Reason: "not a number"}
	}
	if n < 1 || n > 65535 {
		return 0, &ValidationError{Key: "PORT", Value: raw, Reason: "out of range 1-65535"}
	}
	return n, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Upstream.URL) == "" {
		return &ValidationError{Key: "upstream.url", Value: c.Upstream.URL, Reason: "must not be empty"}
	}
	if c.Upstream.Timeout < 0 {
		return &ValidationError{Key: "upstream.timeout", Value: c.Upstream.Timeout.String(), Reason: "must not be negative"}
	}
	if strings.TrimSpace(c.Enrich.PhoneField) == "" {
		return &ValidationError{Key: "enrich.phone_field", Value: c.Enrich.PhoneField, Reason: "must not be empty"}
	}
	if c.Enrich.PhoneField == "response" {
		return &ValidationError{Key: "enrich.phone_field", Value: c.Enrich.PhoneField, Reason: "collides with extra.response"}
	}
	if !strings.HasPrefix(c.HTTP.Path, "/") {
		return &ValidationError{Key: "http.path", Value: c.HTTP.Path, Reason: "must start with /"}
	}
	return nil
}
