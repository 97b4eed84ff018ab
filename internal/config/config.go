// Package config holds all mend configuration.
// Configuration is loaded from an optional YAML file overlaid on defaults;
// the defaults describe a CMake project repaired through a local ollama
// endpoint, which is the zero-config case.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree.
type Config struct {
	// Toolchain settings: how to configure and build the project.
	Toolchain ToolchainConfig `yaml:"toolchain"`

	// LLM configures the reasoning service.
	LLM LLMConfig `yaml:"llm"`

	// Repair configures the loop and context gathering.
	Repair RepairConfig `yaml:"repair"`

	// Store configures attempt-history persistence.
	Store StoreConfig `yaml:"store"`
}

// ToolchainConfig describes the two external process invocations.
type ToolchainConfig struct {
	// ConfigureCommand is run once at the start of a run.
	ConfigureCommand []string `yaml:"configure_command"`

	// BuildCommand is run on every attempt.
	BuildCommand []string `yaml:"build_command"`

	// Timeout applies to each invocation separately.
	Timeout string `yaml:"timeout"`
}

// LLMConfig configures the reasoning-service client.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // ollama, openai-compatible
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Timeout     string  `yaml:"timeout"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// RepairConfig bounds the loop and the context sent to the service.
type RepairConfig struct {
	// MaxAttempts caps the number of repair transitions per run.
	MaxAttempts int `yaml:"max_attempts"`

	// ContextBudget caps the combined size in bytes of related excerpts
	// packed into one repair request.
	ContextBudget int `yaml:"context_budget"`

	// FallbackImplementationFile receives linker-error fixes when no
	// declaration site is found for the missing symbol.
	FallbackImplementationFile string `yaml:"fallback_implementation_file"`

	// BackupDir receives pre-patch file content, keyed by attempt index.
	BackupDir string `yaml:"backup_dir"`

	// SourceExtensions are the file suffixes scanned for symbols and
	// counted as patchable source.
	SourceExtensions []string `yaml:"source_extensions"`

	// ExcludeDirs are directory names skipped during project scans.
	ExcludeDirs []string `yaml:"exclude_dirs"`
}

// StoreConfig configures the SQLite attempt history.
type StoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Toolchain: ToolchainConfig{
			ConfigureCommand: []string{"cmake", "-S", ".", "-B", "build"},
			BuildCommand:     []string{"cmake", "--build", "build"},
			Timeout:          "300s",
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "qwen2.5-coder:14b",
			Timeout:     "120s",
			MaxTokens:   4096,
			Temperature: 0.0,
		},
		Repair: RepairConfig{
			MaxAttempts:                5,
			ContextBudget:              32768,
			FallbackImplementationFile: "src/utils.cpp",
			BackupDir:                  ".mend/backups",
			SourceExtensions:           []string{".cpp", ".c", ".cc", ".cxx", ".hpp", ".h"},
			ExcludeDirs:                []string{"build", ".git", ".mend"},
		},
		Store: StoreConfig{
			Enabled:      true,
			DatabasePath: ".mend/history.db",
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
// A missing path is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg.withEnvOverrides(), nil
			}
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	return cfg.withEnvOverrides(), nil
}

// withEnvOverrides applies environment overrides that should never live in a
// committed config file.
func (c *Config) withEnvOverrides() *Config {
	if key := os.Getenv("MEND_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if url := os.Getenv("MEND_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	return c
}

// Validate checks the invariants the loop depends on.
func (c *Config) Validate() error {
	if len(c.Toolchain.ConfigureCommand) == 0 {
		return fmt.Errorf("toolchain.configure_command must not be empty")
	}
	if len(c.Toolchain.BuildCommand) == 0 {
		return fmt.Errorf("toolchain.build_command must not be empty")
	}
	if c.Repair.MaxAttempts <= 0 {
		return fmt.Errorf("repair.max_attempts must be positive, got %d", c.Repair.MaxAttempts)
	}
	if c.Repair.ContextBudget <= 0 {
		return fmt.Errorf("repair.context_budget must be positive, got %d", c.Repair.ContextBudget)
	}
	if _, err := c.ToolchainTimeout(); err != nil {
		return fmt.Errorf("toolchain.timeout: %w", err)
	}
	if _, err := c.LLMTimeout(); err != nil {
		return fmt.Errorf("llm.timeout: %w", err)
	}
	return nil
}

// ToolchainTimeout parses the configure/build timeout.
func (c *Config) ToolchainTimeout() (time.Duration, error) {
	return parseTimeout(c.Toolchain.Timeout, 300*time.Second)
}

// LLMTimeout parses the reasoning-service timeout.
func (c *Config) LLMTimeout() (time.Duration, error) {
	return parseTimeout(c.LLM.Timeout, 120*time.Second)
}

func parseTimeout(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", s)
	}
	return d, nil
}
