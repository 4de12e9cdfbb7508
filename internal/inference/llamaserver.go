package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"visionchat/internal/imageres"
	"visionchat/internal/prompt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// specialMarker matches chat template control tokens such as <|eot_id|>.
var specialMarker = regexp.MustCompile(`<\|[^|<>]*\|>`)

// TokenCodec tokenizes locally instead of through the server.
type TokenCodec interface {
	Encode(text string) ([]int, error)
	Decode(ids []int, skipSpecial bool) string
}

// LlamaServerOptions configures a LlamaServer processor.
type LlamaServerOptions struct {
	BaseURL        string
	APIKey         string
	Temperature    float32
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	// Codec, when set, replaces the /tokenize and /detokenize round trips.
	Codec TokenCodec
	// Marker is the image placeholder in formatted prompts.
	Marker string
}

// LlamaServer implements Processor against a llama.cpp HTTP server.
type LlamaServer struct {
	baseURL    string
	apiKey     string
	temp       float32
	reqTimeout time.Duration
	codec      TokenCodec
	marker     string
	httpClient *http.Client
}

// NewLlamaServer builds a processor for the server at opts.BaseURL.
func NewLlamaServer(opts LlamaServerOptions) *LlamaServer {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	marker := opts.Marker
	if marker == "" {
		marker = prompt.ImageMarker
	}
	// Deadlines come from the request context only.
	return &LlamaServer{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		temp:       opts.Temperature,
		reqTimeout: opts.RequestTimeout,
		codec:      opts.Codec,
		marker:     marker,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
	}
}

type tokenizeRequest struct {
	Content    string `json:"content"`
	AddSpecial bool   `json:"add_special"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

type detokenizeRequest struct {
	Tokens []int `json:"tokens"`
}

type detokenizeResponse struct {
	Content string `json:"content"`
}

type imagePayload struct {
	Data string `json:"data"`
	ID   int    `json:"id"`
}

type completionRequest struct {
	Prompt       string         `json:"prompt"`
	NPredict     int            `json:"n_predict"`
	Temperature  float32        `json:"temperature"`
	CachePrompt  bool           `json:"cache_prompt"`
	ReturnTokens bool           `json:"return_tokens"`
	ImageData    []imagePayload `json:"image_data,omitempty"`
}

type completionResponse struct {
	Content string `json:"content"`
	Tokens  []int  `json:"tokens"`
	Stop    bool   `json:"stop"`
}

// Encode tokenizes the prompt with special tokens and attaches the image as
// RGB PNG. The server sees the placeholder rewritten to its [img-N] form.
func (s *LlamaServer) Encode(ctx context.Context, text string, img *imageres.Image) (*Inputs, error) {
	in := &Inputs{Prompt: text}
	if img != nil {
		png, err := img.EncodePNG()
		if err != nil {
			return nil, fmt.Errorf("encode image: %w", err)
		}
		in.Images = []ImageData{{ID: 1, PNG: png}}
		in.Prompt = s.withImageRefs(text, in.Images)
	}
	if s.codec != nil {
		ids, err := s.codec.Encode(in.Prompt)
		if err != nil {
			return nil, err
		}
		in.InputIDs = ids
		return in, nil
	}
	var out tokenizeResponse
	if err := s.post(ctx, "/tokenize", tokenizeRequest{Content: in.Prompt, AddSpecial: true}, &out); err != nil {
		return nil, err
	}
	in.InputIDs = out.Tokens
	return in, nil
}

func (s *LlamaServer) withImageRefs(text string, images []ImageData) string {
	ref := fmt.Sprintf("[img-%d]", images[0].ID)
	if strings.Contains(text, s.marker) {
		return strings.Replace(text, s.marker, ref, 1)
	}
	return ref + text
}

// Generate runs a completion and returns the prompt ids followed by the new ids.
func (s *LlamaServer) Generate(ctx context.Context, in *Inputs, maxNewTokens int) ([]int, error) {
	if in == nil {
		return nil, errors.New("nil inputs")
	}
	req := completionRequest{
		Prompt:       in.Prompt,
		NPredict:     maxNewTokens,
		Temperature:  s.temp,
		CachePrompt:  false,
		ReturnTokens: true,
	}
	for _, im := range in.Images {
		req.ImageData = append(req.ImageData, imagePayload{Data: base64.StdEncoding.EncodeToString(im.PNG), ID: im.ID})
	}
	var out completionResponse
	if err := s.post(ctx, "/completion", req, &out); err != nil {
		return nil, err
	}
	seq := make([]int, 0, len(in.InputIDs)+len(out.Tokens))
	seq = append(seq, in.InputIDs...)
	return append(seq, out.Tokens...), nil
}

// Decode turns ids back into text.
func (s *LlamaServer) Decode(ctx context.Context, tokens []int, skipSpecial bool) (string, error) {
	if len(tokens) == 0 {
		return "", nil
	}
	if s.codec != nil {
		return s.codec.Decode(tokens, skipSpecial), nil
	}
	var out detokenizeResponse
	if err := s.post(ctx, "/detokenize", detokenizeRequest{Tokens: tokens}, &out); err != nil {
		return "", err
	}
	if skipSpecial {
		return specialMarker.ReplaceAllString(out.Content, ""), nil
	}
	return out.Content, nil
}

// Ping checks that the server answers /health.
func (s *LlamaServer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health status %s", ErrUnavailable, resp.Status)
	}
	return nil
}

func (s *LlamaServer) post(ctx context.Context, path string, in, out any) error {
	if s.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.reqTimeout)
		defer cancel()
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("llama server %s: %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llama server %s: decode response: %w", path, err)
	}
	return nil
}
