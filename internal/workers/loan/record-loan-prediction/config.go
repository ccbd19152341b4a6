// internal/workers/loan/record-loan-prediction/config.go
package recordloanprediction

import "time"

type Config struct {
	Timeout time.Duration
	// IndexEnabled turns on the Elasticsearch copy of each record.
	IndexEnabled bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      10 * time.Second,
		IndexEnabled: true,
	}
}
