// Package config loads vulnforge's workspace configuration from
// .vulnforge/config.json and target manifests from YAML.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LLMConfig selects and parameterizes the generation backend.
type LLMConfig struct {
	// Backend is "rest" (hand-rolled HTTP client) or "genai" (official SDK).
	Backend string `json:"backend"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	// TimeoutSeconds bounds one generation call.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// RefineConfig parameterizes sessions and the scheduler.
type RefineConfig struct {
	MaxCycles int `json:"max_cycles"`
	StaggerMS int `json:"stagger_ms"`
	// HarnessCommand runs one attempt; "{file}" is replaced by the
	// artifact path.
	HarnessCommand []string `json:"harness_command"`
	// WorkDir is the harness working directory (the hardhat project).
	WorkDir string `json:"work_dir"`
	// ExecTimeoutSeconds bounds one sandbox execution.
	ExecTimeoutSeconds int    `json:"exec_timeout_seconds"`
	AttemptsDir        string `json:"attempts_dir"`
	JournalPath        string `json:"journal_path"`
}

// LoggingConfig mirrors the shape internal/logging reads on its own;
// kept here so `vulnforge init` can write a complete config file.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
	JSONFormat bool            `json:"json_format,omitempty"`
}

// Config is the full workspace configuration.
type Config struct {
	LLM     LLMConfig     `json:"llm"`
	Refine  RefineConfig  `json:"refine"`
	Logging LoggingConfig `json:"logging"`
}

// Default returns the configuration used when no file exists, rooted at
// the given workspace.
func Default(workspace string) Config {
	return Config{
		LLM: LLMConfig{
			Backend:        "rest",
			Model:          "gemini-2.5-flash",
			TimeoutSeconds: 300,
		},
		Refine: RefineConfig{
			MaxCycles:          5,
			StaggerMS:          2000,
			HarnessCommand:     []string{"npx", "hardhat", "test", "{file}"},
			WorkDir:            workspace,
			ExecTimeoutSeconds: 60,
			AttemptsDir:        filepath.Join(workspace, ".vulnforge", "attempts"),
			JournalPath:        filepath.Join(workspace, ".vulnforge", "journal.db"),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads .vulnforge/config.json under the workspace, layering the
// file over defaults. A missing file yields pure defaults; a malformed
// file is an error. GEMINI_API_KEY in the environment overrides the
// file's key so secrets can stay out of the workspace.
func Load(workspace string) (Config, error) {
	cfg := Default(workspace)

	path := filepath.Join(workspace, ".vulnforge", "config.json")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}

	cfg.fillZeroes(workspace)
	return cfg, nil
}

// fillZeroes restores defaults for fields a partial config file left empty.
func (c *Config) fillZeroes(workspace string) {
	def := Default(workspace)
	if c.LLM.Backend == "" {
		c.LLM.Backend = def.LLM.Backend
	}
	if c.LLM.Model == "" {
		c.LLM.Model = def.LLM.Model
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = def.LLM.TimeoutSeconds
	}
	if c.Refine.MaxCycles <= 0 {
		c.Refine.MaxCycles = def.Refine.MaxCycles
	}
	if c.Refine.StaggerMS < 0 {
		c.Refine.StaggerMS = def.Refine.StaggerMS
	}
	if len(c.Refine.HarnessCommand) == 0 {
		c.Refine.HarnessCommand = def.Refine.HarnessCommand
	}
	if c.Refine.WorkDir == "" {
		c.Refine.WorkDir = def.Refine.WorkDir
	}
	if c.Refine.ExecTimeoutSeconds <= 0 {
		c.Refine.ExecTimeoutSeconds = def.Refine.ExecTimeoutSeconds
	}
	if c.Refine.AttemptsDir == "" {
		c.Refine.AttemptsDir = def.Refine.AttemptsDir
	}
	if c.Refine.JournalPath == "" {
		c.Refine.JournalPath = def.Refine.JournalPath
	}
}

// Save writes the configuration to .vulnforge/config.json.
func (c Config) Save(workspace string) error {
	dir := filepath.Join(workspace, ".vulnforge")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// LLMTimeout returns the generation timeout as a duration.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// ExecTimeout returns the sandbox timeout as a duration.
func (c Config) ExecTimeout() time.Duration {
	return time.Duration(c.Refine.ExecTimeoutSeconds) * time.Second
}

// Stagger returns the scheduler stagger interval as a duration.
func (c Config) Stagger() time.Duration {
	return time.Duration(c.Refine.StaggerMS) * time.Millisecond
}
