// ABOUTME: Upload and media types plus the media normalization step.
// ABOUTME: Raw uploads inside media items become attach:// references to extra multipart parts.

package botapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// InputFile is a raw upload. Name becomes the multipart file name.
type InputFile struct {
	Name   string
	Reader io.Reader
}

// FileFromBytes wraps data as an upload.
func FileFromBytes(name string, data []byte) *InputFile {
	return &InputFile{Name: name, Reader: bytes.NewReader(data)}
}

// InputMedia is one item of a media field (sendMediaGroup, editMessageMedia).
// Media and Thumbnail hold either a string reference or a raw upload.
// Extra carries any other field of the item and is kept in sync with the
// typed fields during normalization.
type InputMedia struct {
	Type      string
	Media     any
	Thumbnail any
	Caption   string
	ParseMode string
	Extra     map[string]any
}

// MarshalJSON merges Extra with the typed fields; typed fields win.
func (m InputMedia) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["type"] = m.Type
	out["media"] = m.Media
	if m.Thumbnail != nil {
		out["thumbnail"] = m.Thumbnail
	}
	if m.Caption != "" {
		out["caption"] = m.Caption
	}
	if m.ParseMode != "" {
		out["parse_mode"] = m.ParseMode
	}
	return json.Marshal(out)
}

// isUpload reports whether v must travel as a file part.
func isUpload(v any) bool {
	switch v := v.(type) {
	case InputFile:
		return true
	case *InputFile:
		return v != nil
	case []byte:
		return true
	case io.Reader:
		return v != nil
	}
	return false
}

// uploadReader returns the file name and reader for an upload value.
func uploadReader(field string, v any) (string, io.Reader, error) {
	switch v := v.(type) {
	case InputFile:
		return uploadReader(field, &v)
	case *InputFile:
		if v.Reader == nil {
			return "", nil, fmt.Errorf("upload %q has no reader", field)
		}
		name := v.Name
		if name == "" {
			name = field
		}
		return name, v.Reader, nil
	case []byte:
		return field, bytes.NewReader(v), nil
	case io.Reader:
		if named, ok := v.(interface{ Name() string }); ok {
			return filepath.Base(named.Name()), v, nil
		}
		return field, v, nil
	}
	return "", nil, fmt.Errorf("field %q is not an upload", field)
}

// mediaNormalizer rewrites uploads inside a media value and collects their parts.
type mediaNormalizer struct {
	parts []part
	found bool
}

// normalize returns the JSON text of value after every raw upload in a
// media item was replaced by an attach:// reference. Pointer items and
// slice elements are rewritten in place.
func (n *mediaNormalizer) normalize(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case string:
		// Already serialized by the caller
		if json.Valid([]byte(v)) {
			return json.RawMessage(v), nil
		}
		return json.Marshal(v)
	case json.RawMessage:
		return v, nil
	case *InputMedia:
		n.item(v)
	case InputMedia:
		n.item(&v)
		value = v
	case map[string]any:
		n.rawItem(v)
	case []*InputMedia:
		for _, it := range v {
			n.item(it)
		}
	case []InputMedia:
		for i := range v {
			n.item(&v[i])
		}
	case []map[string]any:
		for _, it := range v {
			n.rawItem(it)
		}
	case []any:
		for i, it := range v {
			switch it := it.(type) {
			case *InputMedia:
				n.item(it)
			case InputMedia:
				n.item(&it)
				v[i] = it
			case map[string]any:
				n.rawItem(it)
			}
		}
	}
	return json.Marshal(value)
}

func (n *mediaNormalizer) item(m *InputMedia) {
	if m == nil {
		return
	}
	m.Media = n.attach("media", m.Media)
	m.Thumbnail = n.attach("thumbnail", m.Thumbnail)
	for _, key := range []string{"media", "thumbnail"} {
		if _, ok := m.Extra[key]; !ok {
			continue
		}
		if key == "media" {
			m.Extra[key] = m.Media
		} else {
			m.Extra[key] = m.Thumbnail
		}
	}
}

func (n *mediaNormalizer) rawItem(m map[string]any) {
	for _, key := range []string{"media", "thumbnail"} {
		if v, ok := m[key]; ok {
			m[key] = n.attach(key, v)
		}
	}
}

// attach swaps an upload for an attach:// reference to a new part.
func (n *mediaNormalizer) attach(kind string, v any) any {
	if !isUpload(v) {
		return v
	}
	token := kind + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	n.parts = append(n.parts, part{name: token, value: v})
	n.found = true
	return "attach://" + token
}
