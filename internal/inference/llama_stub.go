//go:build !llama

package inference

import (
	"context"
	"fmt"

	"visionchat/internal/device"
	"visionchat/internal/imageres"
)

const llamaBuilt = false

// LlamaOptions configures the in-process backend.
type LlamaOptions struct {
	ModelPath    string
	ContextSize  int
	Threads      int
	MaxNewTokens int
	Temperature  float32
	Device       device.Device
}

// Llama is unavailable without the 'llama' build tag.
type Llama struct{}

// NewLlama fails fast: llama.cpp is not linked into this build.
func NewLlama(LlamaOptions) (*Llama, error) {
	return nil, fmt.Errorf("%w: llama support not built (missing 'llama' build tag)", ErrUnavailable)
}

func (*Llama) Generate(ctx context.Context, _ string, _ *imageres.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Op: "generate", Err: err}
	}
	return "", &Error{Op: "generate", Err: fmt.Errorf("%w: llama support not built", ErrUnavailable)}
}

func (*Llama) Close() error { return nil }
