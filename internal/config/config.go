// Package config loads the YAML configuration file with environment
// variable overrides for everything secret or deploy-specific.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AMQPURL string `yaml:"amqpURL"`

	WalletBridgeURL  string `yaml:"walletBridgeURL"`
	RecipientAddress string `yaml:"recipientAddress"`

	TelegramBotToken string `yaml:"telegramBotToken"`
	MockAuth         bool   `yaml:"mockAuth"`

	AdminCodeHash string `yaml:"adminCodeHash"`

	JWTSecret     string `yaml:"jwtSecret"`
	SessionTTL    string `yaml:"sessionTTL"`
	sessionTTLDur time.Duration

	AuthRateLimitPerMin  int `yaml:"authRateLimitPerMin"`
	BuyRateLimitPerMin   int `yaml:"buyRateLimitPerMin"`
	WriteRateLimitPerMin int `yaml:"writeRateLimitPerMin"`

	MaxUploadBytes int64 `yaml:"maxUploadBytes"`
}

// SessionTTLDuration returns the parsed session lifetime, zero when
// unset (the session manager applies its default).
func (c FileConfig) SessionTTLDuration() time.Duration {
	return c.sessionTTLDur
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("WALLET_BRIDGE_URL"); v != "" {
		cfg.WalletBridgeURL = v
	}
	if v := os.Getenv("RECIPIENT_ADDRESS"); v != "" {
		cfg.RecipientAddress = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.TelegramBotToken = v
	}
	if v := os.Getenv("SPACEBOOKS_MOCK_AUTH"); v == "true" {
		cfg.MockAuth = true
	}
	if v := os.Getenv("ADMIN_CODE_HASH"); v != "" {
		cfg.AdminCodeHash = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("SPACEBOOKS_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if cfg.SessionTTL != "" {
		dur, err := time.ParseDuration(cfg.SessionTTL)
		if err != nil {
			return cfg, fmt.Errorf("parse sessionTTL: %w", err)
		}
		cfg.sessionTTLDur = dur
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml)")
	}
	if cfg.WalletBridgeURL == "" {
		return errors.New("config: walletBridgeURL is required (set in config.yaml or WALLET_BRIDGE_URL)")
	}
	if cfg.RecipientAddress == "" {
		return errors.New("config: recipientAddress is required (set in config.yaml or RECIPIENT_ADDRESS)")
	}
	if cfg.TelegramBotToken == "" && !cfg.MockAuth {
		return errors.New("config: telegramBotToken is required unless mockAuth is enabled")
	}
	if cfg.AdminCodeHash == "" {
		return errors.New("config: adminCodeHash is required (set in config.yaml or ADMIN_CODE_HASH)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	return nil
}
