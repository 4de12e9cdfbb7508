package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"visionchat/internal/imageres"
	"visionchat/internal/prompt"
)

// OpenAIOptions configures the chat completions backend.
type OpenAIOptions struct {
	BaseURL        string
	APIKey         string
	Model          string
	MaxNewTokens   int
	Temperature    float32
	RequestTimeout time.Duration
}

// OpenAIChat generates through an OpenAI compatible /v1/chat/completions
// endpoint. The image travels as a data URL content part, so the
// placeholder marker is removed from the text.
type OpenAIChat struct {
	client    *openai.Client
	model     string
	maxTokens int
	temp      float32
}

// NewOpenAIChat builds the backend. Retries are disabled.
func NewOpenAIChat(opts OpenAIOptions) *OpenAIChat {
	ro := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}
	if opts.APIKey != "" {
		ro = append(ro, option.WithAPIKey(opts.APIKey))
	}
	if opts.RequestTimeout > 0 {
		ro = append(ro, option.WithRequestTimeout(opts.RequestTimeout))
	}
	client := openai.NewClient(ro...)
	maxTokens := opts.MaxNewTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxNewTokens
	}
	return &OpenAIChat{client: &client, model: opts.Model, maxTokens: maxTokens, temp: opts.Temperature}
}

// Generate implements Generator.
func (o *OpenAIChat) Generate(ctx context.Context, text string, img *imageres.Image) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt.StripMarker(text)),
	}
	if img != nil {
		png, err := img.EncodePNG()
		if err != nil {
			return "", &Error{Op: "encode", Err: err}
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		}))
	}
	params := openai.ChatCompletionNewParams{
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		Model:     o.model,
		MaxTokens: openai.Int(int64(o.maxTokens)),
	}
	if o.temp > 0 {
		params.Temperature = openai.Float(float64(o.temp))
	}
	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &Error{Op: "generate", Err: err}
	}
	if len(completion.Choices) == 0 {
		return "", &Error{Op: "generate", Err: errors.New("no choices in completion")}
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
