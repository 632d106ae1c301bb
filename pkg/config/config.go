package config

import (
	"fmt"
	"time"

	"telecare-backend/pkg/env"
)

// Config holds all configuration for a service instance
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	Provider  ProviderConfig
	JWT       JWTConfig
	Chat      ChatConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Environment string // development, staging, production
	ServiceName string
}

// DatabaseConfig holds Postgres configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// CassandraConfig holds Cassandra configuration for the message archive
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

// ProviderConfig holds the meeting/messaging control-plane endpoints
type ProviderConfig struct {
	MeetingBaseURL   string
	MessagingBaseURL string
	MediaRegion      string
	RequestTimeout   time.Duration
}

// JWTConfig holds token validation configuration
type JWTConfig struct {
	Secret          string
	AccessDuration  time.Duration
	RefreshDuration time.Duration
}

// ChatConfig holds message polling configuration
type ChatConfig struct {
	PollInterval time.Duration
}

// Load assembles configuration from environment variables
func Load(serviceName string) *Config {
	return &Config{
		Server: ServerConfig{
			Port:        env.GetInt("PORT", 8080),
			Environment: env.GetString("ENV", "development"),
			ServiceName: serviceName,
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 5432),
			User:     env.GetString("DB_USER", "telecare"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "telecare"),
			SSLMode:  env.GetString("DB_SSLMODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Cassandra: CassandraConfig{
			Hosts:    []string{env.GetString("CASSANDRA_HOST", "localhost")},
			Keyspace: env.GetString("CASSANDRA_KEYSPACE", "telecare"),
			Timeout:  env.GetDuration("CASSANDRA_TIMEOUT", 5*time.Second),
		},
		Provider: ProviderConfig{
			MeetingBaseURL:   env.GetString("MEETING_PROVIDER_URL", "http://localhost:9100"),
			MessagingBaseURL: env.GetString("MESSAGING_PROVIDER_URL", "http://localhost:9200"),
			MediaRegion:      env.GetString("MEDIA_REGION", "us-east-1"),
			RequestTimeout:   env.GetDuration("PROVIDER_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			Secret:          env.GetStringFromFile("JWT_SECRET", ""),
			AccessDuration:  env.GetDuration("JWT_ACCESS_DURATION", 15*time.Minute),
			RefreshDuration: env.GetDuration("JWT_REFRESH_DURATION", 30*24*time.Hour),
		},
		Chat: ChatConfig{
			PollInterval: env.GetDuration("CHAT_POLL_INTERVAL", 3*time.Second),
		},
	}
}

// DSN returns the Postgres connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
