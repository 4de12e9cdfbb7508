package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"github.com/viant/afs"

	"visionchat/internal/common/fsutil"
)

// HFTokenizer is a TokenCodec backed by a HuggingFace tokenizer.json.
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
}

var tokenizerFS = afs.New()

// LoadTokenizer reads a tokenizer.json from a local path, a file:// URL or
// any other scheme afs serves.
func LoadTokenizer(path string) (*HFTokenizer, error) {
	url := path
	if !strings.Contains(path, "://") || strings.HasPrefix(path, "file://") {
		p, err := fsutil.LocalPath(path)
		if err != nil {
			return nil, err
		}
		url = "file://" + p
	}
	rc, err := tokenizerFS.OpenURL(context.Background(), url)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	return NewTokenizer(b)
}

// NewTokenizer parses tokenizer.json bytes.
func NewTokenizer(data []byte) (*HFTokenizer, error) {
	tk, err := pretrained.FromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &HFTokenizer{tk: tk}, nil
}

// Encode tokenizes text with special tokens added.
func (t *HFTokenizer) Encode(text string) ([]int, error) {
	enc, err := t.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, err
	}
	return enc.Ids, nil
}

// Decode converts ids back into text.
func (t *HFTokenizer) Decode(ids []int, skipSpecial bool) string {
	return t.tk.Decode(ids, skipSpecial)
}
