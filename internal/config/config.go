// Package config loads seer settings: defaults, then seer.toml, then .env,
// then SEER_* environment variables (env wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Memory   MemoryConfig   `toml:"memory"`
	Tools    ToolsConfig    `toml:"tools"`
	Workflow WorkflowConfig `toml:"workflow"`
	Server   ServerConfig   `toml:"server"`
	Observer ObserverConfig `toml:"observer"`
}

type LLMConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	RPM     int    `toml:"rpm"`
	TPM     int    `toml:"tpm"`

	Router    ModelConfig `toml:"router"`
	Tarot     ModelConfig `toml:"tarot"`
	Astro     ModelConfig `toml:"astro"`
	Extractor ModelConfig `toml:"extractor"`
}

// ModelConfig selects the model for one role.
type ModelConfig struct {
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
}

type MemoryConfig struct {
	Backend     string `toml:"backend"` // "zep", "postgres" or "sqlite"
	ZepAPIKey   string `toml:"zep_api_key"`
	ZepBaseURL  string `toml:"zep_base_url"`
	PostgresDSN string `toml:"postgres_dsn"`
	SQLitePath  string `toml:"sqlite_path"`
}

// ToolsConfig holds the MCP tool-server commands. An empty tarot command
// runs the built-in server in-process.
type ToolsConfig struct {
	Tarot ServerCommand `toml:"tarot"`
	Astro ServerCommand `toml:"astro"`
}

type ServerCommand struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Env     []string `toml:"env"`
}

type WorkflowConfig struct {
	MaxToolIterations      int      `toml:"max_tool_iterations"`
	ParallelTools          int      `toml:"parallel_tools"`
	TurnTimeout            Duration `toml:"turn_timeout"`
	UserSummaryTokens      int      `toml:"user_summary_tokens"`
	AssistantSummaryTokens int      `toml:"assistant_summary_tokens"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Duration is a time.Duration written as "3m" or "90s" in TOML.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			BaseURL:   "https://openrouter.ai/api/v1",
			Router:    ModelConfig{Model: "openai/gpt-5-nano", Temperature: 0},
			Tarot:     ModelConfig{Model: "openai/gpt-5-mini", Temperature: 0.2},
			Astro:     ModelConfig{Model: "openai/gpt-5-mini", Temperature: 0.7},
			Extractor: ModelConfig{Model: "openai/gpt-5-mini", Temperature: 0},
		},
		Memory: MemoryConfig{Backend: "sqlite", SQLitePath: "seer.db"},
		Workflow: WorkflowConfig{
			MaxToolIterations:      6,
			ParallelTools:          4,
			TurnTimeout:            Duration{3 * time.Minute},
			UserSummaryTokens:      50,
			AssistantSummaryTokens: 200,
		},
		Server: ServerConfig{Addr: ":8000"},
	}
}

// Load reads config: defaults, then the TOML file at path (default
// "seer.toml"; a missing file is fine), then the .env file at envPath
// (default ".env"), then SEER_* variables.
func Load(path, envPath string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "seer.toml"
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}

	if envPath == "" {
		envPath = ".env"
	}
	// godotenv never overrides variables already set in the process.
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("config: %s: %w", envPath, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"SEER_LLM_API_KEY":       &cfg.LLM.APIKey,
		"SEER_LLM_BASE_URL":      &cfg.LLM.BaseURL,
		"SEER_ROUTER_MODEL":      &cfg.LLM.Router.Model,
		"SEER_TAROT_MODEL":       &cfg.LLM.Tarot.Model,
		"SEER_ASTRO_MODEL":       &cfg.LLM.Astro.Model,
		"SEER_EXTRACTOR_MODEL":   &cfg.LLM.Extractor.Model,
		"SEER_MEMORY_BACKEND":    &cfg.Memory.Backend,
		"SEER_ZEP_API_KEY":       &cfg.Memory.ZepAPIKey,
		"SEER_ZEP_BASE_URL":      &cfg.Memory.ZepBaseURL,
		"SEER_POSTGRES_DSN":      &cfg.Memory.PostgresDSN,
		"SEER_SQLITE_PATH":       &cfg.Memory.SQLitePath,
		"SEER_TAROT_MCP_COMMAND": &cfg.Tools.Tarot.Command,
		"SEER_ASTRO_MCP_COMMAND": &cfg.Tools.Astro.Command,
		"SEER_SERVER_ADDR":       &cfg.Server.Addr,
	}
	for k, p := range str {
		if v := os.Getenv(k); v != "" {
			*p = v
		}
	}

	ints := map[string]*int{
		"SEER_LLM_RPM":             &cfg.LLM.RPM,
		"SEER_LLM_TPM":             &cfg.LLM.TPM,
		"SEER_MAX_TOOL_ITERATIONS": &cfg.Workflow.MaxToolIterations,
		"SEER_PARALLEL_TOOLS":      &cfg.Workflow.ParallelTools,
	}
	for k, p := range ints {
		if v := os.Getenv(k); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", k, err)
			}
			*p = n
		}
	}

	if v := os.Getenv("SEER_TURN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SEER_TURN_TIMEOUT: %w", err)
		}
		cfg.Workflow.TurnTimeout = Duration{d}
	}
	if v := os.Getenv("SEER_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks for the variable names used by existing deployments.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Memory.ZepAPIKey == "" {
		cfg.Memory.ZepAPIKey = os.Getenv("ZEP_API")
	}
	return nil
}

// Validate reports settings the selected backends cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is required"))
	}
	switch c.Memory.Backend {
	case "zep":
		if c.Memory.ZepAPIKey == "" {
			errs = append(errs, errors.New("memory.zep_api_key is required for the zep backend"))
		}
	case "postgres":
		if c.Memory.PostgresDSN == "" {
			errs = append(errs, errors.New("memory.postgres_dsn is required for the postgres backend"))
		}
	case "sqlite":
		if c.Memory.SQLitePath == "" {
			errs = append(errs, errors.New("memory.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("memory.backend %q is not one of zep, postgres, sqlite", c.Memory.Backend))
	}
	if c.Tools.Astro.Command == "" {
		errs = append(errs, errors.New("tools.astro.command is required"))
	}
	return errors.Join(errs...)
}
