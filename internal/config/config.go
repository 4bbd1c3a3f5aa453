package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service. It is loaded once
// in main and passed by reference; nothing reads the process environment
// after startup.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	OpenAI      OpenAIConfig              `json:"openai"`
	Agent       AgentConfig               `json:"agent"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// OpenAIConfig configures the chat-completion upstream. An empty APIKey is
// tolerated at load time and rejected by the handlers that need it, so the
// rest of the API keeps working without a key.
type OpenAIConfig struct {
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key"`
	Temperature float32 `json:"temperature"`
}

// AgentConfig configures the Dify-style agent platform upstreams. Workflow
// runs and data-record chats are separate Dify apps, each with its own
// endpoint and key.
type AgentConfig struct {
	Endpoint       string `json:"endpoint"`
	APIKey         string `json:"api_key"`
	User           string `json:"user"`
	RecordEndpoint string `json:"record_endpoint"`
	RecordAPIKey   string `json:"record_api_key"`
}

const (
	defaultModel       = "gpt-3.5-turbo"
	defaultTemperature = 0.7
	defaultAgentUser   = "default-user"
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	for name, db := range cfg.Databases {
		if db.DSN != "" && !filepath.IsAbs(db.DSN) && db.DSN != ":memory:" {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaultModel
	}
	if c.OpenAI.Temperature == 0 {
		c.OpenAI.Temperature = defaultTemperature
	}
	if c.Agent.User == "" {
		c.Agent.User = defaultAgentUser
	}
}
