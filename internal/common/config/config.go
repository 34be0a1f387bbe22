// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Dataset      DatasetConfig      `mapstructure:"dataset"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // seconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // seconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LLMConfig holds settings for the external text-generation service that
// performs parameter extraction and reply generation.
type LLMConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	ExtractTimeout int    `mapstructure:"extract_timeout"` // milliseconds
	ReplyTimeout   int    `mapstructure:"reply_timeout"`   // milliseconds
	MaxRetries     int    `mapstructure:"max_retries"`
}

func (l LLMConfig) ExtractTimeoutDuration() time.Duration {
	return time.Duration(l.ExtractTimeout) * time.Millisecond
}

func (l LLMConfig) ReplyTimeoutDuration() time.Duration {
	return time.Duration(l.ReplyTimeout) * time.Millisecond
}

// DatasetConfig controls the enrollment dataset snapshot cache.
type DatasetConfig struct {
	Table       string `mapstructure:"table"`
	CacheTTL    int    `mapstructure:"cache_ttl"`    // seconds
	LoadTimeout int    `mapstructure:"load_timeout"` // milliseconds
}

func (d DatasetConfig) CacheTTLDuration() time.Duration {
	return time.Duration(d.CacheTTL) * time.Second
}

// ConversationConfig controls conversation state storage.
type ConversationConfig struct {
	// StoreBackend selects the state store: "memory" or "redis".
	StoreBackend string `mapstructure:"store_backend"`
	// RetentionTTL is how long idle conversation state is kept, in seconds.
	// Zero means no expiry.
	RetentionTTL int `mapstructure:"retention_ttl"`
	// ExtraTerms appends terms beyond the built-in range to the value domain,
	// e.g. "Fall 2026" once new data lands.
	ExtraTerms []string `mapstructure:"extra_terms"`
}

func (c ConversationConfig) RetentionTTLDuration() time.Duration {
	return time.Duration(c.RetentionTTL) * time.Second
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
