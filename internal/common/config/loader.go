// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml
// over it when present, then applies env overrides and defaults.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range []string{"./configs", "../../configs", "."} {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName("config." + env)
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading %s config: %w", env, err)
		}
	}

	return finalize(v)
}

// LoadFromFile loads configuration from a single YAML file.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

// newViper returns an isolated viper. Every key can be overridden from the
// environment, e.g. PREDICTION_ENCODING_MODE or DATABASE_REDIS_ADDRESS.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Booleans whose zero value is not the default.
	v.SetDefault("prediction.strict_schema", true)
	v.SetDefault("prediction.encoding_mode", "domains")
	v.SetDefault("camunda.enabled", true)
	v.SetDefault("database.redis.enabled", true)
	v.SetDefault("database.redis.pool_size", 10)
	return v
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	applySecretFallbacks(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads the first .env found from the working directory upwards
// to the module root. Variables already set in the process win.
func loadEnvFile() {
	candidates := []string{".env", "../.env", "../../.env", "../../../.env"}
	if root := findProjectRoot(); root != "" {
		candidates = append(candidates, filepath.Join(root, ".env"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			fmt.Fprintf(os.Stderr, "loaded env file %s\n", path)
			return
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in strings and string lists. An
// unset variable expands to empty so validation reports the missing key.
// Empty list entries are dropped.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		switch val := v.Get(key).(type) {
		case string:
			if strings.Contains(val, "${") {
				v.Set(key, os.ExpandEnv(val))
			}
		case []interface{}:
			if expanded, changed := expandList(val); changed {
				v.Set(key, expanded)
			}
		}
	}
}

func expandList(items []interface{}) ([]string, bool) {
	out := make([]string, 0, len(items))
	changed := false
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		if strings.Contains(s, "${") {
			s = os.ExpandEnv(s)
			changed = true
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out, changed
}

// secretFallbacks names the conventional variables read when a credential is
// still empty after the config file and its placeholders are resolved.
var secretFallbacks = []struct {
	env   string
	field func(*Config) *string
}{
	{"DB_USER", func(c *Config) *string { return &c.Database.Postgres.User }},
	{"DB_PASSWORD", func(c *Config) *string { return &c.Database.Postgres.Password }},
	{"REDIS_PASSWORD", func(c *Config) *string { return &c.Database.Redis.Password }},
	{"LOAN_ARTIFACTS_DIR", func(c *Config) *string { return &c.Artifacts.Dir }},
}

func applySecretFallbacks(cfg *Config) {
	for _, fb := range secretFallbacks {
		field := fb.field(cfg)
		if *field != "" {
			continue
		}
		if val := os.Getenv(fb.env); val != "" {
			*field = val
		}
	}
}

func orDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

func applyDefaults(cfg *Config) {
	orDefault(&cfg.App.Name, "loan-eligibility")

	orDefault(&cfg.Camunda.MaxJobsActive, 10)
	orDefault(&cfg.Camunda.Timeout, 30000)
	orDefault(&cfg.Camunda.RequestTimeout, 30000)

	pg := &cfg.Database.Postgres
	orDefault(&pg.MaxConnections, 25)
	orDefault(&pg.MaxIdle, 5)
	orDefault(&pg.SSLMode, "disable")

	es := &cfg.Database.Elasticsearch
	if es.URL == "" && len(es.Addresses) > 0 {
		es.URL = es.Addresses[0]
	}
	orDefault(&es.Index, "loan-predictions")

	orDefault(&cfg.Logging.Level, "info")
	orDefault(&cfg.Logging.Format, "json")
	orDefault(&cfg.Logging.Output, "stdout")

	for taskType, w := range cfg.Workers {
		orDefault(&w.MaxJobsActive, 5)
		orDefault(&w.Timeout, 30000)
		orDefault(&w.MaxRetries, 3)
		cfg.Workers[taskType] = w
	}

	orDefault(&cfg.Artifacts.Dir, "models")
	orDefault(&cfg.Artifacts.DefaultVariant, "random_forest")

	orDefault(&cfg.HTTP.Port, 8080)
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}

	tr := &cfg.Training
	orDefault(&tr.TestSize, 0.2)
	orDefault(&tr.Seed, int64(42))
	orDefault(&tr.Trees, 100)
	orDefault(&tr.CVFolds, 5)
	orDefault(&tr.Threshold, 0.5)

	orDefault(&cfg.Registry.Path, "configs/activity-registry.json")
}

// validateConfig rejects settings the service cannot start with.
// Elasticsearch is not checked: indexing is best effort and an empty address
// only disables it.
func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if pg := cfg.Database.Postgres; pg.Enabled {
		switch {
		case pg.Host == "":
			return fmt.Errorf("database.postgres.host is required")
		case pg.Database == "":
			return fmt.Errorf("database.postgres.database is required")
		case pg.User == "":
			return fmt.Errorf("database.postgres.user is required")
		}
	}

	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	p := cfg.Prediction
	switch p.EncodingMode {
	case "domains":
	case "reference":
		if cfg.Artifacts.ReferenceData == "" {
			return fmt.Errorf("artifacts.reference_data is required for reference encoding")
		}
	default:
		return fmt.Errorf("prediction.encoding_mode must be domains or reference, got %q", p.EncodingMode)
	}
	if p.CacheTTL < 0 {
		return fmt.Errorf("prediction.cache_ttl must not be negative")
	}

	if cfg.Training.TestSize <= 0 || cfg.Training.TestSize >= 1 {
		return fmt.Errorf("training.test_size must be between 0 and 1")
	}
	return nil
}

// GetDuration converts a millisecond setting to a time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig returns the settings for taskType, or the worker defaults
// when the task type is not configured.
func GetWorkerConfig(cfg *Config, taskType string) WorkerConfig {
	if w, ok := cfg.Workers[taskType]; ok {
		return w
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled reports whether taskType should be started. Unconfigured
// task types are enabled.
func IsWorkerEnabled(cfg *Config, taskType string) bool {
	if w, ok := cfg.Workers[taskType]; ok {
		return w.Enabled
	}
	return true
}
