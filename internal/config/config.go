package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/coalesce/internal/core/model"
)

type LLMConfig struct {
	Provider          string  `toml:"provider"`
	Model             string  `toml:"model"`
	EmbeddingModel    string  `toml:"embedding_model"`
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type GraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type StagingConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Port string `toml:"port"`
	Mode string `toml:"mode"`
}

type Config struct {
	LLM      LLMConfig            `toml:"llm"`
	Graph    GraphConfig          `toml:"graph"`
	Workflow model.WorkflowConfig `toml:"workflow"`
	Staging  StagingConfig        `toml:"staging"`
	Server   ServerConfig         `toml:"server"`
}

// Load reads and validates a TOML config file, then applies environment
// overrides. Defaults fill anything the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := defaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Workflow.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults plus env
// overrides when no file exists at path.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()
		cfg.applyEnv()
		if err := cfg.Workflow.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

func defaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "ollama",
			BaseURL:           "http://localhost:11434",
			RequestsPerSecond: 1,
		},
		Graph: GraphConfig{
			URI: "bolt://localhost:7687",
		},
		Workflow: model.DefaultWorkflowConfig(),
		Staging: StagingConfig{
			Path: "coalesce-staging.db",
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

// applyEnv overrides file values with environment variables when present.
func (c *Config) applyEnv() {
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.EmbeddingModel, "LLM_EMBEDDING_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")

	setString(&c.Graph.URI, "GRAPH_URI")
	setString(&c.Graph.User, "GRAPH_USER")
	setString(&c.Graph.Password, "GRAPH_PASSWORD")

	setString(&c.Staging.Path, "STAGING_PATH")
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.Mode, "SERVER_MODE")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
