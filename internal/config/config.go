// Package config loads process configuration from an optional TOML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type GitLabConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// Limits bound the number of upstream calls per analysis pass.
type Limits struct {
	Projects            int `toml:"projects"`
	PipelinesPerProject int `toml:"pipelines_per_project"`
	MaxFailures         int `toml:"max_failures"`
	MaxBottlenecks      int `toml:"max_bottlenecks"`
	Concurrency         int `toml:"concurrency"`
}

type Config struct {
	Port        string        `toml:"port"`
	PostgresDSN string        `toml:"postgres_dsn"`
	RedisAddr   string        `toml:"redis_addr"`
	NATSURL     string        `toml:"nats_url"`
	NATSSubject string        `toml:"nats_subject"`
	WorkerID    string        `toml:"worker_id"`
	CacheTTL    time.Duration `toml:"cache_ttl"`
	GitLab      GitLabConfig  `toml:"gitlab"`
	Limits      Limits        `toml:"limits"`
}

func Default() Config {
	return Config{
		Port:        "8080",
		RedisAddr:   "localhost:6379",
		NATSURL:     "nats://localhost:4222",
		NATSSubject: "pipepulse.events",
		CacheTTL:    5 * time.Minute,
		Limits: Limits{
			Projects:            5,
			PipelinesPerProject: 3,
			MaxFailures:         50,
			MaxBottlenecks:      20,
			Concurrency:         4,
		},
	}
}

// Load reads configuration from path on top of the defaults. A missing file
// is not an error. Environment variables always take precedence:
//   - PORT, POSTGRES_DSN, REDIS_ADDR, NATS_URL, NATS_SUBJECT, WORKER_ID
//   - GITLAB_URL, GITLAB_TOKEN
//   - CACHE_TTL (Go duration syntax)
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to decode config %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	overrides := map[string]*string{
		"PORT":         &cfg.Port,
		"POSTGRES_DSN": &cfg.PostgresDSN,
		"REDIS_ADDR":   &cfg.RedisAddr,
		"NATS_URL":     &cfg.NATSURL,
		"NATS_SUBJECT": &cfg.NATSSubject,
		"WORKER_ID":    &cfg.WorkerID,
		"GITLAB_URL":   &cfg.GitLab.URL,
		"GITLAB_TOKEN": &cfg.GitLab.Token,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}

	if v := os.Getenv("CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL %q: %w", v, err)
		}
		cfg.CacheTTL = ttl
	}

	if v := os.Getenv("ANALYSIS_PROJECT_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ANALYSIS_PROJECT_LIMIT %q: %w", v, err)
		}
		cfg.Limits.Projects = n
	}

	return nil
}
