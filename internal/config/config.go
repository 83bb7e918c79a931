package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Medication MedicationConfig `mapstructure:"medication"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// OutboxConfig tunes the notification outbox drain loop.
type OutboxConfig struct {
	BatchSize            int `mapstructure:"batch_size"`
	PollIntervalSeconds  int `mapstructure:"poll_interval_seconds"`
	RetryAttempts        int `mapstructure:"retry_attempts"`
	RetryDelaySeconds    int `mapstructure:"retry_delay_seconds"`
	RetentionHours       int `mapstructure:"retention_hours"`
	CleanupIntervalHours int `mapstructure:"cleanup_interval_hours"`
}

// MedicationConfig tunes the daily medication log generation pass.
type MedicationConfig struct {
	GenerationIntervalMinutes int `mapstructure:"generation_interval_minutes"`
}

func (c OutboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c OutboxConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c OutboxConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

func (c OutboxConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

func (c MedicationConfig) GenerationInterval() time.Duration {
	return time.Duration(c.GenerationIntervalMinutes) * time.Minute
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeoutSeconds", 30)

	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)

	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.poll_interval_seconds", 5)
	viper.SetDefault("outbox.retry_attempts", 3)
	viper.SetDefault("outbox.retry_delay_seconds", 5)
	viper.SetDefault("outbox.retention_hours", 72)
	viper.SetDefault("outbox.cleanup_interval_hours", 6)

	viper.SetDefault("medication.generation_interval_minutes", 60)
}
