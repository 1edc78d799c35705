package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"signal_bridge/internal/domain"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when BRIDGE_CONFIG is unset.
	DefaultConfigPath = "configs/config.yaml"

	// insecureDefaultToken is the placeholder older deployments shipped with. It is refused.
	insecureDefaultToken = "default_token_if_not_set"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr               string `yaml:"addr"`
		ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
		Mode               string `yaml:"mode"`       // gin mode: debug, release, test
		PprofAddr          string `yaml:"pprof_addr"` // empty disables pprof
	} `yaml:"server"`

	Webhook struct {
		SecretToken   string `yaml:"secret_token"`
		StrictActions bool   `yaml:"strict_actions"`
		MaxBodyBytes  int64  `yaml:"max_body_bytes"`
	} `yaml:"webhook"`

	Gateway GatewayConfig `yaml:"gateway"`

	Order struct {
		SecType  string `yaml:"sec_type"`
		Exchange string `yaml:"exchange"`
		Currency string `yaml:"currency"`
	} `yaml:"order"`

	Storage struct {
		Path string `yaml:"path"` // empty disables the order journal
	} `yaml:"storage"`

	Events struct {
		InboxSize int `yaml:"inbox_size"`
		Kafka     struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
	} `yaml:"events"`

	Logging LoggingConfig `yaml:"logging"`
}

// GatewayConfig locates the broker gateway.
type GatewayConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ClientID            int    `yaml:"client_id"`
	Path                string `yaml:"path"`
	TLS                 bool   `yaml:"tls"`
	HandshakeTimeoutSec int    `yaml:"handshake_timeout_sec"`
	WriteTimeoutSec     int    `yaml:"write_timeout_sec"`
	ReadTimeoutSec      int    `yaml:"read_timeout_sec"`
	PingIntervalSec     int    `yaml:"ping_interval_sec"`
}

// LoggingConfig controls the activity log.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns a config with every optional field populated.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "signal-bridge"
	cfg.Server.Addr = "0.0.0.0:5000"
	cfg.Server.ShutdownTimeoutSec = 10
	cfg.Server.Mode = "release"
	cfg.Webhook.MaxBodyBytes = 64 << 10
	cfg.Gateway = GatewayConfig{
		Host:                "127.0.0.1",
		Port:                4002,
		ClientID:            1,
		Path:                "/v1/api/ws",
		HandshakeTimeoutSec: 10,
		WriteTimeoutSec:     10,
		ReadTimeoutSec:      60,
		PingIntervalSec:     20,
	}
	cfg.Order.SecType = domain.SecTypeStock
	cfg.Order.Exchange = domain.ExchangeSmart
	cfg.Order.Currency = domain.CurrencyDefault
	cfg.Storage.Path = "data/orders.db"
	cfg.Events.InboxSize = 1024
	cfg.Events.Kafka.Topic = "order-events"
	cfg.Logging = LoggingConfig{
		Level:      "info",
		Format:     "text",
		File:       "logs/trading_bot.log",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// A missing file is not fatal: defaults plus environment are used.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// env-only deployment
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// 보안 우선 - 환경 변수 오버라이드 지원
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ConfigPath resolves the config file location.
func ConfigPath() string {
	if p := os.Getenv("BRIDGE_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch c.Webhook.SecretToken {
	case "":
		return &domain.ConfigError{Field: "webhook.secret_token", Err: errors.New("must be set (SECRET_TOKEN)")}
	case insecureDefaultToken:
		return &domain.ConfigError{Field: "webhook.secret_token", Err: errors.New("placeholder token is not allowed")}
	}

	if c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: errors.New("must be set")}
	}

	g := c.Gateway
	if g.Host == "" {
		return &domain.ConfigError{Field: "gateway.host", Err: errors.New("must be set")}
	}
	if g.Port <= 0 || g.Port > 65535 {
		return &domain.ConfigError{Field: "gateway.port", Err: fmt.Errorf("out of range: %d", g.Port)}
	}
	if g.ClientID < 0 {
		return &domain.ConfigError{Field: "gateway.client_id", Err: fmt.Errorf("negative: %d", g.ClientID)}
	}
	if g.HandshakeTimeoutSec < 0 || g.WriteTimeoutSec < 0 || g.ReadTimeoutSec < 0 || g.PingIntervalSec < 0 {
		return &domain.ConfigError{Field: "gateway", Err: errors.New("timeouts must not be negative")}
	}

	if len(c.Events.Kafka.Brokers) > 0 && c.Events.Kafka.Topic == "" {
		return &domain.ConfigError{Field: "events.kafka.topic", Err: errors.New("required when brokers are set")}
	}

	return nil
}

// Seconds converts a config integer to a duration, 0 stays 0.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if token := os.Getenv("SECRET_TOKEN"); token != "" {
		cfg.Webhook.SecretToken = token
	}
	if addr := os.Getenv("BRIDGE_LISTEN_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if host := os.Getenv("BRIDGE_GATEWAY_HOST"); host != "" {
		cfg.Gateway.Host = host
	}
	if port := os.Getenv("BRIDGE_GATEWAY_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return &domain.ConfigError{Field: "BRIDGE_GATEWAY_PORT", Err: err}
		}
		cfg.Gateway.Port = n
	}
	if id := os.Getenv("BRIDGE_GATEWAY_CLIENT_ID"); id != "" {
		n, err := strconv.Atoi(id)
		if err != nil {
			return &domain.ConfigError{Field: "BRIDGE_GATEWAY_CLIENT_ID", Err: err}
		}
		cfg.Gateway.ClientID = n
	}
	return nil
}
