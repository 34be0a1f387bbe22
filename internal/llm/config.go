// internal/llm/config.go
package llm

import "time"

type Config struct {
	BaseURL        string
	ExtractTimeout time.Duration
	ReplyTimeout   time.Duration
	MaxRetries     int
}

func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:        baseURL,
		ExtractTimeout: 10 * time.Second,
		ReplyTimeout:   15 * time.Second,
		MaxRetries:     2,
	}
}
