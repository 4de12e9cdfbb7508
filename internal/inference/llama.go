//go:build llama

package inference

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"visionchat/internal/device"
	"visionchat/internal/imageres"
	"visionchat/internal/prompt"
)

// llamaBuilt indicates this binary was compiled with in-process llama support.
const llamaBuilt = true

// LlamaOptions configures the in-process backend.
type LlamaOptions struct {
	ModelPath    string
	ContextSize  int
	Threads      int
	MaxNewTokens int
	Temperature  float32
	Device       device.Device
}

// Llama runs a GGUF model in process. It is text only.
type Llama struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
	maxNew  int
	temp    float32
}

// NewLlama loads the model once; call Close to free it.
func NewLlama(opts LlamaOptions) (*Llama, error) {
	if strings.TrimSpace(opts.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{llama.SetContext(max(512, opts.ContextSize))}
	if opts.Device.Accelerated() {
		mo = append(mo, llama.SetGPULayers(999))
	}
	if opts.Device.Precision == device.FP16 {
		mo = append(mo, llama.EnableF16Memory)
	}
	m, err := llama.New(opts.ModelPath, mo...)
	if err != nil {
		return nil, err
	}
	maxNew := opts.MaxNewTokens
	if maxNew <= 0 {
		maxNew = DefaultMaxNewTokens
	}
	return &Llama{model: m, threads: max(1, opts.Threads), maxNew: maxNew, temp: opts.Temperature}, nil
}

// Generate implements Generator. Calls are serialized on the loaded model.
func (l *Llama) Generate(ctx context.Context, text string, img *imageres.Image) (string, error) {
	if img != nil {
		return "", &Error{Op: "encode", Err: errors.New("image input not supported by the llama backend")}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model == nil {
		return "", &Error{Op: "generate", Err: errors.New("llama model not initialized")}
	}
	l.model.SetTokenCallback(func(string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	po := []llama.PredictOption{
		llama.SetTokens(l.maxNew),
		llama.SetThreads(l.threads),
		llama.SetTopP(llama.DefaultOptions.TopP),
		llama.SetTopK(llama.DefaultOptions.TopK),
		llama.SetPenalty(llama.DefaultOptions.Penalty),
	}
	if l.temp > 0 {
		po = append(po, llama.SetTemperature(l.temp))
	}
	out, err := l.model.Predict(prompt.StripMarker(text), po...)
	if err != nil {
		if ctx.Err() != nil {
			return "", &Error{Op: "generate", Err: ctx.Err()}
		}
		return "", &Error{Op: "generate", Err: err}
	}
	if ctx.Err() != nil {
		return "", &Error{Op: "generate", Err: ctx.Err()}
	}
	return strings.TrimSpace(out), nil
}

// Close frees the model.
func (l *Llama) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		l.model.Free()
		l.model = nil
	}
	return nil
}
