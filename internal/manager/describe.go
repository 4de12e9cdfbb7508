package manager

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"visionchat/internal/imageres"
	"visionchat/pkg/types"
)

// Describe answers one HTTP turn: it resolves the optional image, waits for
// the model, and generates. Image failures come back as *imageres.Error.
func (m *Manager) Describe(ctx context.Context, req types.DescribeRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrBadRequest("prompt is required")
	}
	if req.ImageURL != "" && req.ImageBase64 != "" {
		return "", ErrBadRequest("image_url and image_base64 are mutually exclusive")
	}
	if m.cfg.Generator == nil {
		return "", ErrDependencyUnavailable("no inference backend configured")
	}
	atomic.AddUint64(&m.requests, 1)

	img, err := m.loadImage(ctx, req)
	if err != nil {
		atomic.AddUint64(&m.failures, 1)
		return "", err
	}

	release, err := m.beginGeneration(ctx)
	if err != nil {
		if IsTooBusy(err) {
			atomic.AddUint64(&m.rejected, 1)
			m.publish(Event{Name: "rejected", ModelID: m.cfg.Model.ID, Fields: map[string]any{"reason": err.Error()}})
		}
		return "", err
	}
	defer release()

	if m.cfg.InferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.InferTimeout)
		defer cancel()
	}
	start := time.Now()
	m.publish(Event{Name: "generate_start", ModelID: m.cfg.Model.ID, Fields: map[string]any{"image": img != nil}})
	out, err := m.cfg.Generator.Generate(ctx, m.formatter.Format(req.Prompt, img != nil), img)
	fields := map[string]any{"duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		atomic.AddUint64(&m.failures, 1)
		m.setErr(err)
		fields["error"] = err.Error()
		m.publish(Event{Name: "generate_error", ModelID: m.cfg.Model.ID, Fields: fields})
		return "", err
	}
	m.publish(Event{Name: "generate_done", ModelID: m.cfg.Model.ID, Fields: fields})
	return out, nil
}

func (m *Manager) loadImage(ctx context.Context, req types.DescribeRequest) (*imageres.Image, error) {
	switch {
	case req.ImageURL != "":
		if m.cfg.Images == nil {
			return nil, ErrBadRequest("image input is not enabled")
		}
		src := strings.TrimSpace(req.ImageURL)
		if !imageres.IsURL(src) {
			return nil, &imageres.Error{Kind: imageres.KindInvalidSource, Source: src, Err: errors.New("only http(s) URLs are accepted")}
		}
		return m.cfg.Images.Resolve(ctx, src)
	case req.ImageBase64 != "":
		if m.cfg.Images == nil {
			return nil, ErrBadRequest("image input is not enabled")
		}
		data, err := decodeBase64Image(req.ImageBase64)
		if err != nil {
			return nil, &imageres.Error{Kind: imageres.KindInvalidSource, Source: "image_base64", Err: err}
		}
		return m.cfg.Images.Decode("image_base64", data)
	default:
		return nil, nil
	}
}

// decodeBase64Image accepts raw base64 or a data: URL.
func decodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("malformed data URL")
		}
		s = s[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if b2, err2 := base64.RawStdEncoding.DecodeString(s); err2 == nil {
			return b2, nil
		}
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return b, nil
}
