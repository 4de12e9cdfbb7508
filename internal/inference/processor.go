// Package inference turns formatted prompt text plus an optional image into
// generated text. A Client drives a token-level Processor; the openai and
// llama backends implement Generator directly.
package inference

import (
	"context"

	"visionchat/internal/imageres"
)

// Generator is what the conversation loop and the describe manager consume.
type Generator interface {
	Generate(ctx context.Context, text string, img *imageres.Image) (string, error)
}

// ImageData is an image attached to a prompt, PNG-encoded.
type ImageData struct {
	ID  int
	PNG []byte
}

// Inputs is the model-ready encoding of one turn.
type Inputs struct {
	// Prompt is the formatted text the ids were computed from.
	Prompt   string
	InputIDs []int
	Images   []ImageData
}

// Processor is the token-level contract of a model/processor pair.
type Processor interface {
	// Encode tokenizes text and prepares the image for the model.
	Encode(ctx context.Context, text string, img *imageres.Image) (*Inputs, error)
	// Generate returns the full sequence: the prompt ids followed by up to
	// maxNewTokens generated ids.
	Generate(ctx context.Context, in *Inputs, maxNewTokens int) ([]int, error)
	Decode(ctx context.Context, tokens []int, skipSpecial bool) (string, error)
}
