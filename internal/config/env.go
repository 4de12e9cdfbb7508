package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VISIONCHAT_"

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

type envBinding struct {
	key string
	set func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error { *dst(c) = v; return nil }
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func csv(dst func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error { *dst(c) = SplitCSV(v); return nil }
}

var envBindings = []envBinding{
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Log.Format })},
	{"BACKEND", str(func(c *Config) *string { return &c.Model.Backend })},
	{"MODEL", str(func(c *Config) *string { return &c.Model.ID })},
	{"BASE_URL", str(func(c *Config) *string { return &c.Model.BaseURL })},
	{"API_KEY", str(func(c *Config) *string { return &c.Model.APIKey })},
	{"TOKENIZER_PATH", str(func(c *Config) *string { return &c.Model.TokenizerPath })},
	{"MODELS_DIR", str(func(c *Config) *string { return &c.Model.ModelsDir })},
	{"DEVICE", str(func(c *Config) *string { return &c.Model.Device })},
	{"MAX_NEW_TOKENS", integer(func(c *Config) *int { return &c.Model.MaxNewTokens })},
	{"THREADS", integer(func(c *Config) *int { return &c.Model.Threads })},
	{"TURN_TIMEOUT_SECONDS", integer(func(c *Config) *int { return &c.Chat.TurnTimeoutSeconds })},
	{"FETCH_TIMEOUT_SECONDS", integer(func(c *Config) *int { return &c.Chat.FetchTimeoutSeconds })},
	{"ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"MAX_QUEUE_DEPTH", integer(func(c *Config) *int { return &c.Server.MaxQueueDepth })},
	{"MAX_WAIT_SECONDS", integer(func(c *Config) *int { return &c.Server.MaxWaitSeconds })},
	{"CORS_ENABLED", boolean(func(c *Config) *bool { return &c.Server.CORSEnabled })},
	{"CORS_ALLOWED_ORIGINS", csv(func(c *Config) *[]string { return &c.Server.CORSAllowedOrigins })},
	{"DB_DRIVER", str(func(c *Config) *string { return &c.Database.Driver })},
	{"DB_DSN", str(func(c *Config) *string { return &c.Database.DSN })},
	{"DB_SEED", boolean(func(c *Config) *bool { return &c.Database.Seed })},
	{"TOKEN_STORE", str(func(c *Config) *string { return &c.Auth.TokenStore })},
	{"REDIS_ADDR", str(func(c *Config) *string { return &c.Auth.RedisAddr })},
	{"REDIS_PASSWORD", str(func(c *Config) *string { return &c.Auth.RedisPassword })},
	{"TOKEN_TTL_SECONDS", integer(func(c *Config) *int { return &c.Auth.TokenTTLSeconds })},
}

// ApplyEnv overlays environment variables onto cfg. DATABASE_URL is honoured
// as the DSN and clears the driver so it is inferred from the URL scheme.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.Database.DSN = v
		cfg.Database.Driver = ""
	}
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, b.key, err)
		}
	}
	return nil
}

// Resolve builds the effective configuration: defaults or the file at path,
// then .env, then the environment.
func Resolve(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	if err := LoadDotEnv(); err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SplitCSV splits a comma separated list, trimming blanks.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
