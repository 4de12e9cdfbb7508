// Package imageres turns a user-supplied string (URL or local path) into a
// decoded image.
package imageres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viant/afs"

	"visionchat/internal/common/fsutil"
)

// DefaultMaxBytes caps the size of a fetched or read image.
const DefaultMaxBytes int64 = 20 << 20

// Resolver loads images from http(s) URLs or local files. It never caches:
// every call re-fetches or re-reads the source.
type Resolver struct {
	httpClient *http.Client
	fs         afs.Service
	maxBytes   int64
	timeout    time.Duration
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used for URL fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithMaxBytes caps the accepted image size (<=0 keeps the default).
func WithMaxBytes(n int64) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithTimeout bounds each resolution (0 disables).
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// New constructs a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Timeout: 0},
		fs:         afs.New(),
		maxBytes:   DefaultMaxBytes,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// IsURL reports whether source uses the http or https scheme.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Resolve fetches or reads source and decodes it.
func (r *Resolver) Resolve(ctx context.Context, source string) (*Image, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, invalidSource(source, errors.New("empty source"))
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if IsURL(source) {
		data, err := r.fetch(ctx, source)
		if err != nil {
			return nil, fetchError(source, err)
		}
		return r.Decode(source, data)
	}
	path, err := fsutil.LocalPath(source)
	if err != nil || !fsutil.IsFile(path) {
		return nil, invalidSource(source, errors.New("neither a URL nor an existing file"))
	}
	data, err := r.readLocal(ctx, "file://"+path)
	if err != nil {
		return nil, fetchError(source, err)
	}
	return r.Decode(source, data)
}

// readLocal checks the object size before opening it and reads through the
// same cap as fetch, so a file growing after the stat is still bounded.
func (r *Resolver) readLocal(ctx context.Context, url string) ([]byte, error) {
	obj, err := r.fs.Object(ctx, url)
	if err != nil {
		return nil, err
	}
	if obj.Size() > r.maxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", r.maxBytes)
	}
	rc, err := r.fs.OpenURL(ctx, url)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return r.readCapped(rc, "file")
}

func (r *Resolver) readCapped(rd io.Reader, what string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, r.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", what, r.maxBytes)
	}
	return data, nil
}

// Decode decodes in-memory image bytes; source is only used for reporting.
func (r *Resolver) Decode(source string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, decodeError(source, errors.New("empty image data"))
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, decodeError(source, err)
	}
	return &Image{Source: source, Format: format, Pixels: img}, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %s", resp.Status)
	}
	return r.readCapped(resp.Body, "response")
}
