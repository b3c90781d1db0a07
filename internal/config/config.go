// Package config loads and validates the pagesmith pipeline configuration.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration: one pipeline per file. A pipeline binds a
// repository to a trigger rule, an ordered step list, and a publish target.
type Config struct {
	Repository  RepositoryConfig  `yaml:"repository"`
	Trigger     TriggerConfig     `yaml:"trigger"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Steps       []StepConfig      `yaml:"steps,omitempty"`
	Output      OutputConfig      `yaml:"output"`
	Publish     PublishConfig     `yaml:"publish"`
	Retry       RetryConfig       `yaml:"retry,omitempty"`
	Verify      VerifyConfig      `yaml:"verify,omitempty"`
	Log         LogConfig         `yaml:"log,omitempty"`
	Daemon      *DaemonConfig     `yaml:"daemon,omitempty"`
}

// OutputConfig names the directory the steps produce, relative to the
// checked-out repository root. It is the publish source directory.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// Load reads, expands, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists. Existing process env wins.
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDefaults(&config); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// loadEnvFiles loads .env then .env.local without overriding process env.
// Missing files are fine.
func loadEnvFiles() {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			fmt.Fprintf(os.Stderr, "Note: %s could not be loaded: %v\n", envPath, err)
		}
	}
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	forceOrphan := true
	maxRetries := 2
	exampleConfig := Config{
		Repository: RepositoryConfig{
			URL:    "https://github.com/example/project.git",
			Name:   "example/project",
			Branch: "main",
			Auth: &AuthConfig{
				Type:  AuthTypeToken,
				Token: "${PAGES_TOKEN}",
			},
		},
		Trigger: TriggerConfig{
			Branches:   []string{"main"},
			Repository: "example/project",
		},
		Environment: map[string]string{
			"CARGO_NET_RETRY":   "10",
			"CARGO_INCREMENTAL": "0",
		},
		Steps: []StepConfig{
			{Name: "install dependencies", Command: "./scripts/install-deps.sh"},
			{Name: "build documentation", Command: "cargo doc --no-deps"},
		},
		Output: OutputConfig{
			Directory: "target/doc",
		},
		Publish: PublishConfig{
			Mode: PublishModeBranch,
			Branch: &BranchTarget{
				Name:        "gh-pages",
				ForceOrphan: &forceOrphan,
				TokenEnv:    "PAGES_TOKEN",
			},
		},
		Retry: RetryConfig{
			Backoff:      RetryBackoffLinear,
			InitialDelay: "1s",
			MaxDelay:     "30s",
			MaxRetries:   &maxRetries,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
