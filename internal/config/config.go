package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"sengol/internal/policy"
)

// ErrNoDatabase is returned by Load when DATABASE_URL is unset. The rest of
// the config is still usable, so callers decide whether it is fatal.
var ErrNoDatabase = errors.New("DATABASE_URL not set")

type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string

	EvalWorkers        int
	EvalPollInterval   time.Duration
	EvalMaxConcurrency int
	EvalBatchTimeout   time.Duration
	Interpretation     policy.Interpretation

	PolicySeedPath    string
	PolicySeedAccount string

	LogLevel  string
	LogFormat string
}

func defaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("EVAL_WORKERS", 0)
	v.SetDefault("EVAL_POLL_INTERVAL", 500*time.Millisecond)
	v.SetDefault("EVAL_MAX_CONCURRENCY", 16)
	v.SetDefault("EVAL_BATCH_TIMEOUT", 30*time.Second)
	v.SetDefault("POLICY_TREE_ENCODES", string(policy.InterpretViolation))
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load reads the environment, plus the YAML file named by CONFIG_FILE when set.
// Environment variables win over the file.
func Load() (Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	interp, err := policy.ParseInterpretation(v.GetString("POLICY_TREE_ENCODES"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Env:                v.GetString("APP_ENV"),
		ListenAddr:         v.GetString("LISTEN_ADDR"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		EvalWorkers:        v.GetInt("EVAL_WORKERS"),
		EvalPollInterval:   v.GetDuration("EVAL_POLL_INTERVAL"),
		EvalMaxConcurrency: v.GetInt("EVAL_MAX_CONCURRENCY"),
		EvalBatchTimeout:   v.GetDuration("EVAL_BATCH_TIMEOUT"),
		Interpretation:     interp,
		PolicySeedPath:     v.GetString("POLICY_SEED_PATH"),
		PolicySeedAccount:  v.GetString("POLICY_SEED_ACCOUNT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL == "" {
		return cfg, ErrNoDatabase
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.EvalWorkers < 0 {
		return fmt.Errorf("EVAL_WORKERS must not be negative, got %d", c.EvalWorkers)
	}
	if c.EvalWorkers > 0 && c.EvalPollInterval <= 0 {
		return fmt.Errorf("EVAL_POLL_INTERVAL must be positive, got %s", c.EvalPollInterval)
	}
	if c.EvalMaxConcurrency <= 0 {
		return fmt.Errorf("EVAL_MAX_CONCURRENCY must be positive, got %d", c.EvalMaxConcurrency)
	}
	if c.EvalBatchTimeout <= 0 {
		return fmt.Errorf("EVAL_BATCH_TIMEOUT must be positive, got %s", c.EvalBatchTimeout)
	}
	if c.PolicySeedPath != "" && c.PolicySeedAccount == "" {
		return errors.New("POLICY_SEED_ACCOUNT is required with POLICY_SEED_PATH")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}
