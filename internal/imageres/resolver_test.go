package imageres

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cat.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/garbage.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not a png"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_URLSuccess(t *testing.T) {
	srv := imageServer(t, pngBytes(t, 4, 3))
	img, err := New().Resolve(context.Background(), srv.URL+"/cat.png")
	require.NoError(t, err)
	require.Equal(t, 4, img.Width())
	require.Equal(t, 3, img.Height())
	require.Equal(t, "png", img.Format)
	require.Equal(t, srv.URL+"/cat.png", img.Source)
}

func TestResolve_URLNotFoundIsFetchError(t *testing.T) {
	srv := imageServer(t, pngBytes(t, 1, 1))
	_, err := New().Resolve(context.Background(), srv.URL+"/missing.png")
	require.Error(t, err)
	require.Equal(t, KindFetch, KindOf(err))
	require.True(t, errors.Is(err, ErrFetch))
}

func TestResolve_TransportErrorIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/cat.png"
	srv.Close()
	_, err := New().Resolve(context.Background(), url)
	require.Equal(t, KindFetch, KindOf(err))
}

func TestResolve_MalformedURLBodyIsDecodeError(t *testing.T) {
	srv := imageServer(t, nil)
	_, err := New().Resolve(context.Background(), srv.URL+"/garbage.png")
	require.Equal(t, KindDecode, KindOf(err))
	require.True(t, errors.Is(err, ErrDecode))
}

func TestResolve_OversizedBodyIsFetchError(t *testing.T) {
	srv := imageServer(t, pngBytes(t, 32, 32))
	_, err := New(WithMaxBytes(16)).Resolve(context.Background(), srv.URL+"/cat.png")
	require.Equal(t, KindFetch, KindOf(err))
}

func TestResolve_TimeoutIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	_, err := New(WithTimeout(50*time.Millisecond)).Resolve(context.Background(), srv.URL+"/slow.png")
	require.Equal(t, KindFetch, KindOf(err))
}

func TestResolve_LocalFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "local.png")
	require.NoError(t, os.WriteFile(p, pngBytes(t, 2, 5), 0o644))
	img, err := New().Resolve(context.Background(), "  "+p+"  ")
	require.NoError(t, err)
	require.Equal(t, 2, img.Width())
	require.Equal(t, 5, img.Height())
	require.Equal(t, "RGBA", img.Mode())
}

func TestResolve_OversizedLocalFileIsFetchError(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.png")
	require.NoError(t, os.WriteFile(p, pngBytes(t, 32, 32), 0o644))
	_, err := New(WithMaxBytes(16)).Resolve(context.Background(), p)
	require.Equal(t, KindFetch, KindOf(err))
	require.ErrorContains(t, err, "exceeds 16 bytes")
}

type endlessReader struct{ n int64 }

func (e *endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'x'
	}
	e.n += int64(len(p))
	return len(p), nil
}

func TestReadCapped_StopsAtLimit(t *testing.T) {
	r := New(WithMaxBytes(1024))
	src := &endlessReader{}
	_, err := r.readCapped(src, "file")
	require.ErrorContains(t, err, "file exceeds 1024 bytes")
	require.LessOrEqual(t, src.n, int64(64<<10))
}

func TestResolve_CorruptLocalFileIsDecodeError(t *testing.T) {
	p := filepath.Join(t.TempDir(), "corrupt.jpg")
	require.NoError(t, os.WriteFile(p, []byte{0xff, 0xd8, 0x00, 0x01}, 0o644))
	_, err := New().Resolve(context.Background(), p)
	require.Equal(t, KindDecode, KindOf(err))
}

func TestResolve_InvalidSource(t *testing.T) {
	for _, src := range []string{"not_a_real_path.xyz", "", "   ", "ftp://example.com/a.png", t.TempDir()} {
		_, err := New().Resolve(context.Background(), src)
		require.Equal(t, KindInvalidSource, KindOf(err), "source %q", src)
		require.True(t, errors.Is(err, ErrInvalidSource))
	}
}

func TestDecode_EmptyData(t *testing.T) {
	_, err := New().Decode("upload", nil)
	require.Equal(t, KindDecode, KindOf(err))
}

func TestKindStringsAndNone(t *testing.T) {
	require.Equal(t, "invalid-source", KindInvalidSource.String())
	require.Equal(t, "fetch-error", KindFetch.String())
	require.Equal(t, "decode-error", KindDecode.String())
	require.Equal(t, KindNone, KindOf(errors.New("other")))
	require.Equal(t, KindNone, KindOf(nil))
}
