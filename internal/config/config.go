package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Wave     WaveConfig     `mapstructure:"wave"`
	Email    EmailConfig    `mapstructure:"email"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// WaveConfig holds Wave API endpoint configuration. Client credentials are
// not kept here: the admin saves them through the settings store so they can
// be rotated without a redeploy.
type WaveConfig struct {
	AuthURL    string `mapstructure:"auth_url"`
	TokenURL   string `mapstructure:"token_url"`
	GraphQLURL string `mapstructure:"graphql_url"`
	Scopes     string `mapstructure:"scopes"`
}

// EmailConfig holds outbound mail configuration
type EmailConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
	PortalURL string `mapstructure:"portal_url"`
}

// SyncConfig holds reconciliation configuration
type SyncConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	SendWelcome bool          `mapstructure:"send_welcome"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetDefault("server.port", "8086")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "waveportal")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("wave.auth_url", "https://api.waveapps.com/oauth2/authorize")
	viper.SetDefault("wave.token_url", "https://api.waveapps.com/oauth2/token/")
	viper.SetDefault("wave.graphql_url", "https://gql.waveapps.com/graphql/public")
	viper.SetDefault("wave.scopes", "business:read customer:read invoice:read")
	viper.SetDefault("sync.interval", 24*time.Hour)
	viper.SetDefault("sync.send_welcome", false)
	viper.SetDefault("log.level", "info")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.AutomaticEnv()

	bindings := map[string]string{
		"server.port":       "SERVER_PORT",
		"server.host":       "SERVER_HOST",
		"database.host":     "DATABASE_HOST",
		"database.port":     "DATABASE_PORT",
		"database.name":     "DATABASE_NAME",
		"database.user":     "DATABASE_USER",
		"database.password": "DATABASE_PASSWORD",
		"wave.auth_url":     "WAVE_AUTH_URL",
		"wave.token_url":    "WAVE_TOKEN_URL",
		"wave.graphql_url":  "WAVE_GRAPHQL_URL",
		"email.host":        "EMAIL_HOST",
		"email.port":        "EMAIL_PORT",
		"email.username":    "EMAIL_USERNAME",
		"email.password":    "EMAIL_PASSWORD",
		"email.from_email":  "EMAIL_FROM",
		"email.portal_url":  "EMAIL_PORTAL_URL",
		"sync.interval":     "SYNC_INTERVAL",
		"sync.send_welcome": "SYNC_SEND_WELCOME",
		"log.level":         "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
