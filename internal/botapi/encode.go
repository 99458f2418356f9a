// ABOUTME: Chooses between a JSON body and a multipart body for one remote action.
// ABOUTME: Multipart is used as soon as any field or media item carries a raw upload.

package botapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"path/filepath"
	"slices"
	"strings"
)

// inputFileFields lists, per action, the fields that may carry file content.
var inputFileFields = map[string][]string{
	"setWebhook":             {"certificate"},
	"sendPhoto":              {"photo"},
	"sendAudio":              {"audio", "thumbnail"},
	"sendDocument":           {"document", "thumbnail"},
	"sendVideo":              {"video", "thumbnail"},
	"sendAnimation":          {"animation", "thumbnail"},
	"sendVoice":              {"voice"},
	"sendVideoNote":          {"video_note", "thumbnail"},
	"setChatPhoto":           {"photo"},
	"sendSticker":            {"sticker"},
	"uploadStickerFile":      {"sticker"},
	"setStickerSetThumbnail": {"thumbnail"},
}

// IsInputFileField reports whether field of action may carry file content.
func IsInputFileField(action, field string) bool {
	return slices.Contains(inputFileFields[action], field)
}

// part is one field of the outgoing body.
type part struct {
	name  string
	value any
}

type encodedRequest struct {
	contentType string
	body        []byte
}

func (r *encodedRequest) isMultipart() bool {
	return strings.HasPrefix(r.contentType, "multipart/")
}

// encode builds the body for action. The action is passed explicitly so the
// input-file lookup never depends on shared state.
func encode(action string, params *Params, logger *slog.Logger) (*encodedRequest, error) {
	var parts []part
	binary := false

	err := params.Each(func(key string, value any) error {
		if key == "media" {
			n := &mediaNormalizer{}
			raw, err := n.normalize(value)
			if err != nil {
				return fmt.Errorf("normalizing media: %w", err)
			}
			parts = append(parts, n.parts...)
			parts = append(parts, part{name: key, value: raw})
			binary = binary || n.found
			return nil
		}

		if IsInputFileField(action, key) {
			if s, ok := value.(string); ok && isLocalPath(s) {
				// Local files are not uploaded automatically
				logger.Debug("local path in input-file field sent as is", "action", action, "field", key)
			}
		}

		if isUpload(value) {
			binary = true
		}
		parts = append(parts, part{name: key, value: value})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if binary {
		return encodeMultipart(parts)
	}
	return encodeJSON(parts)
}

func encodeJSON(parts []part) (*encodedRequest, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.value)
		if err != nil {
			return nil, fmt.Errorf("encoding field %q: %w", p.name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')

	return &encodedRequest{contentType: "application/json", body: buf.Bytes()}, nil
}

func encodeMultipart(parts []part) (*encodedRequest, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range parts {
		if err := writePart(w, p); err != nil {
			return nil, fmt.Errorf("writing part %q: %w", p.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	return &encodedRequest{contentType: w.FormDataContentType(), body: buf.Bytes()}, nil
}

func writePart(w *multipart.Writer, p part) error {
	if isUpload(p.value) {
		name, r, err := uploadReader(p.name, p.value)
		if err != nil {
			return err
		}
		fw, err := w.CreateFormFile(p.name, name)
		if err != nil {
			return err
		}
		_, err = io.Copy(fw, r)
		return err
	}

	switch v := p.value.(type) {
	case string:
		return w.WriteField(p.name, v)
	case json.RawMessage:
		return w.WriteField(p.name, string(v))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return w.WriteField(p.name, string(b))
	}
}

func isLocalPath(s string) bool {
	if strings.Contains(s, "://") {
		return false
	}
	return filepath.IsAbs(s) || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}
