package e2e

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"visionchat/internal/auth"
	"visionchat/internal/device"
	"visionchat/internal/httpapi"
	"visionchat/internal/imageres"
	"visionchat/internal/inference"
	"visionchat/internal/manager"
	"visionchat/internal/store"
	"visionchat/pkg/types"
)

// llamaStub speaks the llama.cpp server endpoints with a word level vocabulary.
type llamaStub struct {
	mu       sync.Mutex
	vocab    []string
	reply    string
	delay    time.Duration
	status   int
	prompts  []string
	imageCnt []int
}

func (l *llamaStub) id(word string) int {
	for i, w := range l.vocab {
		if w == word {
			return i
		}
	}
	l.vocab = append(l.vocab, word)
	return len(l.vocab) - 1
}

func (l *llamaStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tokenize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		l.mu.Lock()
		defer l.mu.Unlock()
		ids := []int{l.id("<|begin_of_text|>")}
		for _, f := range strings.Fields(req.Content) {
			ids = append(ids, l.id(f))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"tokens": ids})
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt    string            `json:"prompt"`
			ImageData []json.RawMessage `json:"image_data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		l.mu.Lock()
		delay, status := l.delay, l.status
		l.prompts = append(l.prompts, req.Prompt)
		l.imageCnt = append(l.imageCnt, len(req.ImageData))
		l.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"model crashed"}}`))
			return
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		ids := []int{}
		for _, f := range strings.Fields(l.reply) {
			ids = append(ids, l.id(f))
		}
		ids = append(ids, l.id("<|eot_id|>"))
		_ = json.NewEncoder(w).Encode(map[string]any{"content": l.reply, "tokens": ids, "stop": true})
	})
	mux.HandleFunc("/detokenize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tokens []int `json:"tokens"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		l.mu.Lock()
		defer l.mu.Unlock()
		words := make([]string, 0, len(req.Tokens))
		for _, id := range req.Tokens {
			words = append(words, l.vocab[id])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"content": " " + strings.Join(words, " ")})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (l *llamaStub) lastPrompt() (string, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.prompts) == 0 {
		return "", 0
	}
	return l.prompts[len(l.prompts)-1], l.imageCnt[len(l.imageCnt)-1]
}

func startLlama(t *testing.T, reply string) (*llamaStub, *httptest.Server) {
	t.Helper()
	l := &llamaStub{reply: reply}
	ts := httptest.NewServer(l.handler())
	t.Cleanup(ts.Close)
	return l, ts
}

// openGenerator loads the llamaserver backend the same way the CLI does.
func openGenerator(t *testing.T, baseURL string) inference.Generator {
	t.Helper()
	gen, closer, err := inference.Open(inference.Config{
		Backend:        inference.BackendLlamaServer,
		ModelID:        "meta-llama/Llama-3.2-11B-Vision-Instruct",
		BaseURL:        baseURL,
		MaxNewTokens:   64,
		RequestTimeout: 10 * time.Second,
		ConnectTimeout: time.Second,
	}, device.Device{Kind: device.KindCPU, Precision: device.FP32})
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	t.Cleanup(func() { _ = closer.Close() })
	return gen
}

// imageServer serves a PNG at /cat.png, junk at /junk.bin and 404 elsewhere.
func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(2, 2, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/cat.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/junk.bin", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not an image"))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

type stack struct {
	api *httptest.Server
	mgr *manager.Manager
}

// newStack wires store, auth, manager and router against gen.
func newStack(t *testing.T, gen inference.Generator, cfg manager.ManagerConfig) *stack {
	t.Helper()
	users, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "e2e.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = users.Close() })
	accounts := auth.NewService(users, auth.NewMemoryTokens(), 4, time.Hour)

	cfg.Generator = gen
	if cfg.Images == nil {
		cfg.Images = imageres.New(imageres.WithTimeout(5 * time.Second))
	}
	cfg.Model = types.ModelInfo{ID: "meta-llama/Llama-3.2-11B-Vision-Instruct", Backend: inference.BackendLlamaServer, Device: "cpu/fp32", MaxNewTokens: 64}
	mgr := manager.New(cfg)
	api := httptest.NewServer(httpapi.NewMux(mgr, accounts))
	t.Cleanup(api.Close)
	return &stack{api: api, mgr: mgr}
}

func (s *stack) post(t *testing.T, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, s.api.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func (s *stack) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(s.api.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

// login registers a fresh account and returns its token.
func (s *stack) login(t *testing.T, user string) string {
	t.Helper()
	creds := types.Credentials{Username: user, Password: "pw-" + user}
	if resp, body := s.post(t, "/auth/register", "", creds); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: %d %s", user, resp.StatusCode, body)
	}
	resp, body := s.post(t, "/auth/login", "", creds)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", user, resp.StatusCode, body)
	}
	var lr types.LoginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		t.Fatal(err)
	}
	return lr.Token
}
