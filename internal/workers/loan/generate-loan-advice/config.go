// internal/workers/loan/generate-loan-advice/config.go
package generateloanadvice

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 5 * time.Second,
	}
}
