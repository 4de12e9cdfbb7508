package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the chat loop and the HTTP service.
// Load starts from Default(), so a file only needs the keys it changes.
type Config struct {
	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
	Model    ModelConfig    `json:"model" yaml:"model" toml:"model"`
	Chat     ChatConfig     `json:"chat" yaml:"chat" toml:"chat"`
	Server   ServerConfig   `json:"server" yaml:"server" toml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database" toml:"database"`
	Auth     AuthConfig     `json:"auth" yaml:"auth" toml:"auth"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"` // auto, console, json
}

// ModelConfig selects the inference backend and generation limits.
type ModelConfig struct {
	Backend               string  `json:"backend" yaml:"backend" toml:"backend"`
	ID                    string  `json:"id" yaml:"id" toml:"id"`
	BaseURL               string  `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey                string  `json:"api_key" yaml:"api_key" toml:"api_key"`
	TokenizerPath         string  `json:"tokenizer_path" yaml:"tokenizer_path" toml:"tokenizer_path"`
	ModelsDir             string  `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Device                string  `json:"device" yaml:"device" toml:"device"`
	MaxNewTokens          int     `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	Temperature           float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	ContextSize           int     `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads               int     `json:"threads" yaml:"threads" toml:"threads"`
	RequestTimeoutSeconds int     `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	ConnectTimeoutSeconds int     `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds" toml:"connect_timeout_seconds"`
}

// ChatConfig tunes the interactive loop. Zero timeouts mean none.
type ChatConfig struct {
	QuitCommand         string `json:"quit_command" yaml:"quit_command" toml:"quit_command"`
	ImageCommand        string `json:"image_command" yaml:"image_command" toml:"image_command"`
	TurnTimeoutSeconds  int    `json:"turn_timeout_seconds" yaml:"turn_timeout_seconds" toml:"turn_timeout_seconds"`
	FetchTimeoutSeconds int    `json:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds" toml:"fetch_timeout_seconds"`
	MaxImageBytes       int64  `json:"max_image_bytes" yaml:"max_image_bytes" toml:"max_image_bytes"`
	HistoryFile         string `json:"history_file" yaml:"history_file" toml:"history_file"`
}

type ServerConfig struct {
	Addr                string   `json:"addr" yaml:"addr" toml:"addr"`
	MaxQueueDepth       int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds      int      `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`
	MaxBodyBytes        int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	InferTimeoutSeconds int      `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`
	CORSEnabled         bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins  []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods  []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders  []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`
}

type DatabaseConfig struct {
	// Driver is sqlite, postgres, mysql or sqlserver. Empty means infer from DSN.
	Driver string `json:"driver" yaml:"driver" toml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn" toml:"dsn"`
	// Seed inserts the sample users on serve when the table is empty.
	Seed bool `json:"seed" yaml:"seed" toml:"seed"`
}

type AuthConfig struct {
	TokenStore      string `json:"token_store" yaml:"token_store" toml:"token_store"` // memory or redis
	RedisAddr       string `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword   string `json:"redis_password" yaml:"redis_password" toml:"redis_password"`
	RedisDB         int    `json:"redis_db" yaml:"redis_db" toml:"redis_db"`
	TokenTTLSeconds int    `json:"token_ttl_seconds" yaml:"token_ttl_seconds" toml:"token_ttl_seconds"`
	BcryptCost      int    `json:"bcrypt_cost" yaml:"bcrypt_cost" toml:"bcrypt_cost"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "auto"},
		Model: ModelConfig{
			Backend:               "llamaserver",
			ID:                    "meta-llama/Llama-3.2-11B-Vision-Instruct",
			BaseURL:               "http://127.0.0.1:8080",
			ModelsDir:             "~/models/llm",
			Device:                "auto",
			MaxNewTokens:          500,
			Temperature:           0.7,
			ContextSize:           4096,
			Threads:               4,
			RequestTimeoutSeconds: 300,
			ConnectTimeoutSeconds: 5,
		},
		Chat: ChatConfig{
			QuitCommand:         "quit",
			ImageCommand:        "/image",
			FetchTimeoutSeconds: 30,
			MaxImageBytes:       20 << 20,
		},
		Server: ServerConfig{
			Addr:                ":5000",
			MaxQueueDepth:       32,
			MaxWaitSeconds:      30,
			MaxBodyBytes:        32 << 20,
			InferTimeoutSeconds: 300,
			CORSEnabled:         true,
			CORSAllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "visionchat.db"},
		Auth: AuthConfig{
			TokenStore:      "memory",
			RedisAddr:       "127.0.0.1:6379",
			TokenTTLSeconds: 86400,
			BcryptCost:      10,
		},
	}
}

// Load reads a configuration file based on its extension on top of Default().
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
