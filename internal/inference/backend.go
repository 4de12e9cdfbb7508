package inference

import (
	"fmt"
	"io"
	"strings"
	"time"

	"visionchat/internal/device"
	"visionchat/internal/registry"
)

// Backend names accepted by Open.
const (
	BackendLlamaServer = "llamaserver"
	BackendOpenAI      = "openai"
	BackendLlama       = "llama"
)

// Config selects and configures a backend.
type Config struct {
	Backend        string
	ModelID        string
	BaseURL        string
	APIKey         string
	TokenizerPath  string
	ModelsDir      string
	MaxNewTokens   int
	Temperature    float32
	ContextSize    int
	Threads        int
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// KnownBackends lists every backend name Open recognises, whether or not
// this build can run it.
func KnownBackends() []string {
	return []string{BackendLlamaServer, BackendOpenAI, BackendLlama}
}

// Backends lists the names usable in this build.
func Backends() []string {
	out := []string{BackendLlamaServer, BackendOpenAI}
	if llamaBuilt {
		out = append(out, BackendLlama)
	}
	return out
}

// Open loads the configured backend once. The returned closer releases
// model resources and is never nil.
func Open(cfg Config, dev device.Device) (Generator, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendLlamaServer:
		if cfg.BaseURL == "" {
			return nil, nopCloser{}, fmt.Errorf("%s backend requires a base url", BackendLlamaServer)
		}
		opts := LlamaServerOptions{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			Temperature:    cfg.Temperature,
			RequestTimeout: cfg.RequestTimeout,
			ConnectTimeout: cfg.ConnectTimeout,
		}
		if cfg.TokenizerPath != "" {
			tk, err := LoadTokenizer(cfg.TokenizerPath)
			if err != nil {
				return nil, nopCloser{}, err
			}
			opts.Codec = tk
		}
		proc := NewLlamaServer(opts)
		return NewClient(proc, Options{ModelID: cfg.ModelID, MaxNewTokens: cfg.MaxNewTokens, Device: dev}), nopCloser{}, nil
	case BackendOpenAI:
		return NewOpenAIChat(OpenAIOptions{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			Model:          cfg.ModelID,
			MaxNewTokens:   cfg.MaxNewTokens,
			Temperature:    cfg.Temperature,
			RequestTimeout: cfg.RequestTimeout,
		}), nopCloser{}, nil
	case BackendLlama:
		if !llamaBuilt {
			return nil, nopCloser{}, &Error{Op: "load", Err: fmt.Errorf("%w: llama support not built (missing 'llama' build tag)", ErrUnavailable)}
		}
		m, err := registry.Resolve(cfg.ModelsDir, cfg.ModelID)
		if err != nil {
			return nil, nopCloser{}, err
		}
		l, err := NewLlama(LlamaOptions{
			ModelPath:    m.Path,
			ContextSize:  cfg.ContextSize,
			Threads:      cfg.Threads,
			MaxNewTokens: cfg.MaxNewTokens,
			Temperature:  cfg.Temperature,
			Device:       dev,
		})
		if err != nil {
			return nil, nopCloser{}, err
		}
		return l, l, nil
	default:
		return nil, nopCloser{}, fmt.Errorf("unknown backend %q (available: %s)", cfg.Backend, strings.Join(Backends(), ", "))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
