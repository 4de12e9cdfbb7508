package inference

import (
	"context"
	"fmt"
	"strings"

	"visionchat/internal/device"
	"visionchat/internal/imageres"
)

// DefaultMaxNewTokens bounds generated length when Options leaves it unset.
const DefaultMaxNewTokens = 500

// Options configures a Client.
type Options struct {
	ModelID      string
	MaxNewTokens int
	Device       device.Device
}

// Client owns a Processor for the lifetime of the process and returns only
// the newly generated text of each turn.
type Client struct {
	proc Processor
	opts Options
}

// NewClient wraps proc. A zero MaxNewTokens becomes DefaultMaxNewTokens.
func NewClient(proc Processor, opts Options) *Client {
	if opts.MaxNewTokens <= 0 {
		opts.MaxNewTokens = DefaultMaxNewTokens
	}
	return &Client{proc: proc, opts: opts}
}

// ModelID returns the configured model identifier.
func (c *Client) ModelID() string { return c.opts.ModelID }

// Device returns the device the client was built for.
func (c *Client) Device() device.Device { return c.opts.Device }

// Ping checks the processor's backend when it supports health checks.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.proc == nil {
		return &Error{Op: "ping", Err: ErrUnavailable}
	}
	if p, ok := c.proc.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Generate encodes text and img, generates, and decodes only the tokens past
// the prompt with special tokens skipped.
func (c *Client) Generate(ctx context.Context, text string, img *imageres.Image) (out string, err error) {
	if c == nil || c.proc == nil {
		return "", &Error{Op: "generate", Err: ErrUnavailable}
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = "", &Error{Op: "generate", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	in, err := c.proc.Encode(ctx, text, img)
	if err != nil {
		return "", wrap("encode", err)
	}
	if in == nil {
		return "", &Error{Op: "encode", Err: fmt.Errorf("processor returned no inputs")}
	}
	n := len(in.InputIDs)

	seq, err := c.proc.Generate(ctx, in, c.opts.MaxNewTokens)
	if err != nil {
		return "", wrap("generate", err)
	}
	if len(seq) < n {
		return "", &Error{Op: "generate", Err: fmt.Errorf("sequence shorter than prompt: %d < %d", len(seq), n)}
	}

	decoded, err := c.proc.Decode(ctx, seq[n:], true)
	if err != nil {
		return "", wrap("decode", err)
	}
	return strings.TrimSpace(decoded), nil
}
