// internal/common/config/config.go
package config

import "fmt"

// Config is the service configuration, read from configs/config.yaml by Load.
// Durations are in milliseconds throughout; convert them with GetDuration.
type Config struct {
	App        AppConfig               `mapstructure:"app"`
	Camunda    CamundaConfig           `mapstructure:"camunda"`
	Database   DatabaseConfig          `mapstructure:"database"`
	Workers    map[string]WorkerConfig `mapstructure:"workers"` // keyed by task type
	Logging    LoggingConfig           `mapstructure:"logging"`
	Artifacts  ArtifactsConfig         `mapstructure:"artifacts"`
	Prediction PredictionConfig        `mapstructure:"prediction"`
	HTTP       HTTPConfig              `mapstructure:"http"`
	Training   TrainingConfig          `mapstructure:"training"`
	Registry   RegistryConfig          `mapstructure:"registry"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// CamundaConfig addresses the Zeebe gateway. With Enabled false the service
// runs the HTTP API alone.
type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`
	RequestTimeout int    `mapstructure:"request_timeout"`
}

// WorkerConfig tunes one job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`
	MaxRetries    int  `mapstructure:"max_retries"` // upper bound handed back to Zeebe on failure
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

// PostgresConfig holds the prediction record store connection.
type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the lib/pq keyword connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ElasticsearchConfig holds the prediction search index connection.
type ElasticsearchConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Addresses  []string `mapstructure:"addresses"`
	URL        string   `mapstructure:"url"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	Index      string   `mapstructure:"index"`
}

// GetURL prefers URL and falls back to the first address.
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// RedisConfig holds the prediction cache connection.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // json | console
	Output string `mapstructure:"output"` // stdout | stderr | file path
}

// ArtifactsConfig locates the trained model bundle and, for reference
// encoding, the processed training table.
type ArtifactsConfig struct {
	Dir            string `mapstructure:"dir"`
	ReferenceData  string `mapstructure:"reference_data"`
	DefaultVariant string `mapstructure:"default_variant"`
}

type PredictionConfig struct {
	EncodingMode string `mapstructure:"encoding_mode"` // domains | reference
	StrictSchema bool   `mapstructure:"strict_schema"`
	CacheTTL     int    `mapstructure:"cache_ttl"` // 0 disables caching
}

type HTTPConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TrainingConfig supplies the loanctl train defaults.
type TrainingConfig struct {
	RawData       string  `mapstructure:"raw_data"`
	ProcessedData string  `mapstructure:"processed_data"`
	TestSize      float64 `mapstructure:"test_size"`
	Seed          int64   `mapstructure:"seed"`
	Trees         int     `mapstructure:"trees"`
	MaxFeatures   int     `mapstructure:"max_features"`
	CVFolds       int     `mapstructure:"cv_folds"`
	Threshold     float64 `mapstructure:"threshold"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}
