package inference

import (
	"context"
	stdjson "encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"visionchat/internal/imageres"
)

func TestOpenAIChat_SendsImagePartAndStripsMarker(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		_ = stdjson.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"llava",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  a cat  "}}]}`))
	}))
	defer ts.Close()

	gen := NewOpenAIChat(OpenAIOptions{BaseURL: ts.URL + "/v1", APIKey: "sk-test", Model: "llava", MaxNewTokens: 12})
	img := &imageres.Image{Pixels: image.NewRGBA(image.Rect(0, 0, 2, 2))}
	out, err := gen.Generate(context.Background(), "<|image|>What is this?", img)
	require.NoError(t, err)
	require.Equal(t, "a cat", out)

	require.Equal(t, "llava", body["model"])
	require.EqualValues(t, 12, body["max_tokens"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	require.Equal(t, "What is this?", parts[0].(map[string]any)["text"])
	url := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
}

func TestOpenAIChat_ServerErrorIsInferenceError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	gen := NewOpenAIChat(OpenAIOptions{BaseURL: ts.URL, APIKey: "x", Model: "m"})
	_, err := gen.Generate(context.Background(), "hi", nil)
	require.True(t, IsInferenceError(err))
}

func TestOpenAIChat_NoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer ts.Close()

	_, err := NewOpenAIChat(OpenAIOptions{BaseURL: ts.URL, APIKey: "x", Model: "m"}).Generate(context.Background(), "hi", nil)
	require.True(t, IsInferenceError(err))
}
