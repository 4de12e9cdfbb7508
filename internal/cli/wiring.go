package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"visionchat/internal/config"
	"visionchat/internal/device"
	"visionchat/internal/imageres"
	"visionchat/internal/inference"
	"visionchat/internal/logging"
	"visionchat/pkg/types"
)

// Indirections for tests.
var (
	fnSelectDevice = func(pref string) device.Device { return device.Select(pref, device.SystemProbe()) }
	fnOpenBackend  = inference.Open
)

// loadConfig resolves file, .env and environment settings, then applies flags.
func loadConfig(opts *Options) (config.Config, error) {
	cfg, err := config.Resolve(opts.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.Backend != "" {
		cfg.Model.Backend = opts.Backend
	}
	if opts.Model != "" {
		cfg.Model.ID = opts.Model
	}
	if opts.BaseURL != "" {
		cfg.Model.BaseURL = opts.BaseURL
	}
	if err := validate(cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func validate(cfg config.Config) error {
	known := false
	for _, b := range inference.KnownBackends() {
		if strings.EqualFold(cfg.Model.Backend, b) {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown backend %q (available: %s)", cfg.Model.Backend, strings.Join(inference.KnownBackends(), ", "))
	}
	if strings.TrimSpace(cfg.Model.ID) == "" {
		return fmt.Errorf("model id is required")
	}
	if cfg.Model.MaxNewTokens < 0 {
		return fmt.Errorf("max_new_tokens must not be negative")
	}
	switch strings.ToLower(cfg.Model.Device) {
	case "", "auto", "mps", "cuda", "rocm", "cpu":
	default:
		return fmt.Errorf("unknown device %q", cfg.Model.Device)
	}
	return nil
}

func newLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format, w).With().Str("component", "visionchat").Logger()
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func backendConfig(cfg config.Config) inference.Config {
	m := cfg.Model
	return inference.Config{
		Backend:        m.Backend,
		ModelID:        m.ID,
		BaseURL:        m.BaseURL,
		APIKey:         m.APIKey,
		TokenizerPath:  m.TokenizerPath,
		ModelsDir:      m.ModelsDir,
		MaxNewTokens:   m.MaxNewTokens,
		Temperature:    m.Temperature,
		ContextSize:    m.ContextSize,
		Threads:        m.Threads,
		RequestTimeout: seconds(m.RequestTimeoutSeconds),
		ConnectTimeout: seconds(m.ConnectTimeoutSeconds),
	}
}

// model is an opened backend plus what the rest of the process reports about it.
type model struct {
	gen    inference.Generator
	ping   func() error
	info   types.ModelInfo
	closer io.Closer
}

// openModel selects a device and loads the backend once.
func openModel(cfg config.Config, log zerolog.Logger) (*model, error) {
	dev := fnSelectDevice(cfg.Model.Device)
	backend := strings.ToLower(cfg.Model.Backend)
	log.Info().Str("backend", backend).Str("model", cfg.Model.ID).Str("device", dev.String()).Msg("loading model")
	gen, closer, err := fnOpenBackend(backendConfig(cfg), dev)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", cfg.Model.ID, err)
	}
	m := &model{
		gen:    inference.WithLogging(gen, backend, log),
		closer: closer,
		info: types.ModelInfo{
			ID:           cfg.Model.ID,
			Backend:      backend,
			Device:       dev.String(),
			MaxNewTokens: cfg.Model.MaxNewTokens,
		},
	}
	if p, ok := gen.(interface{ Ping(context.Context) error }); ok {
		timeout := seconds(cfg.Model.ConnectTimeoutSeconds)
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		m.ping = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			return p.Ping(ctx)
		}
	}
	return m, nil
}

func newImageResolver(cfg config.Config) *imageres.Resolver {
	return imageres.New(
		imageres.WithTimeout(seconds(cfg.Chat.FetchTimeoutSeconds)),
		imageres.WithMaxBytes(cfg.Chat.MaxImageBytes),
	)
}
