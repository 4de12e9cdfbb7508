package manager

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"visionchat/internal/imageres"
	"visionchat/pkg/types"
)

// fakeGen is a lightweight in-memory generator used for tests.
type fakeGen struct {
	mu       sync.Mutex
	reply    string
	err      error
	prompts  []string
	images   []*imageres.Image
	gate     chan struct{} // when set, Generate blocks until closed or ctx done
	started  chan struct{}
	deadline bool
}

func (f *fakeGen) Generate(ctx context.Context, text string, img *imageres.Image) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, text)
	f.images = append(f.images, img)
	_, f.deadline = ctx.Deadline()
	gate, started := f.gate, f.started
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

// fakeImages resolves a fixed set of URLs and decodes any non-empty bytes.
type fakeImages struct {
	urls map[string]*imageres.Image
}

func (f fakeImages) Resolve(_ context.Context, src string) (*imageres.Image, error) {
	if img, ok := f.urls[src]; ok {
		return img, nil
	}
	return nil, &imageres.Error{Kind: imageres.KindFetch, Source: src, Err: errors.New("404 Not Found")}
}

func (f fakeImages) Decode(src string, data []byte) (*imageres.Image, error) {
	if string(data) == "garbage" {
		return nil, &imageres.Error{Kind: imageres.KindDecode, Source: src, Err: errors.New("unknown format")}
	}
	return &imageres.Image{Source: src, Pixels: image.NewRGBA(image.Rect(0, 0, 2, 2))}, nil
}

func newTestManager(gen *fakeGen, depth int, wait time.Duration) *Manager {
	return New(ManagerConfig{
		Generator:     gen,
		Images:        fakeImages{urls: map[string]*imageres.Image{"http://img/cat.png": {Source: "http://img/cat.png", Pixels: image.NewRGBA(image.Rect(0, 0, 3, 3))}}},
		Model:         types.ModelInfo{ID: "m", Backend: "fake"},
		MaxQueueDepth: depth,
		MaxWait:       wait,
	})
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
