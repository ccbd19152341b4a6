// internal/workers/loan/predict-loan-eligibility/config.go
package predictloaneligibility

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
