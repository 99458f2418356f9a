// ABOUTME: Tests for the Bot API client against an httptest server
// ABOUTME: Covers encoding choice, empty payloads, status classification and media uploads

package botapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:ABC-def_ghi"

// capturedRequest is what the fake API saw.
type capturedRequest struct {
	path        string
	contentType string
	body        []byte
	parts       []capturedPart
}

type capturedPart struct {
	name     string
	fileName string
	contents string
}

type fakeAPI struct {
	server *httptest.Server
	calls  atomic.Int32
	last   atomic.Pointer[capturedRequest]
}

func newFakeAPI(t *testing.T, status int, body string) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.last.Store(capture(t, r))
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func capture(t *testing.T, r *http.Request) *capturedRequest {
	t.Helper()
	req := &capturedRequest{path: r.URL.Path, contentType: r.Header.Get("Content-Type")}

	mediaType, params, err := mime.ParseMediaType(req.contentType)
	require.NoError(t, err)

	if mediaType != "multipart/form-data" {
		req.body, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		return req
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(p)
		require.NoError(t, err)
		req.parts = append(req.parts, capturedPart{name: p.FormName(), fileName: p.FileName(), contents: string(data)})
	}
	return req
}

func (c *capturedRequest) partNames() []string {
	names := make([]string, len(c.parts))
	for i, p := range c.parts {
		names[i] = p.name
	}
	return names
}

func (c *capturedRequest) part(name string) capturedPart {
	for _, p := range c.parts {
		if p.name == name {
			return p
		}
	}
	return capturedPart{}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c, err := New(api.server.URL, testToken, WithHTTPClient(api.server.Client()))
	require.NoError(t, err)
	return c
}

func TestNew_InvalidToken(t *testing.T) {
	_, err := New("https://api.telegram.org", "not-a-token")
	assert.Error(t, err)
}

func TestClient_BotID(t *testing.T) {
	c, err := New("https://api.telegram.org/", testToken)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), c.BotID())
	assert.Equal(t, "https://api.telegram.org/bot"+testToken+"/getMe", c.endpoint("getMe"))
}

func TestSend_EmptyPayload(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `{"ok":true}`)
	c := newTestClient(t, api)

	_, err := c.Send(t.Context(), "sendMessage", NewParams())
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = c.Send(t.Context(), "sendMessage", nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	assert.Equal(t, int32(0), api.calls.Load())
}

func TestSend_JSONEncoding(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `{"ok":true,"result":{"message_id":7}}`)
	c := newTestClient(t, api)

	params := NewParams(
		"chat_id", int64(-100123),
		"text", "*hola*",
		"parse_mode", "Markdown",
		"reply_markup", map[string]any{"remove_keyboard": true},
	)
	raw, err := c.Send(t.Context(), "sendMessage", params)
	require.NoError(t, err)
	assert.Equal(t, int64(7), Result(raw).Get("message_id").Int())

	req := api.last.Load()
	assert.Equal(t, "/bot"+testToken+"/sendMessage", req.path)
	assert.Equal(t, "application/json", req.contentType)
	assert.Equal(t,
		`{"chat_id":-100123,"text":"*hola*","parse_mode":"Markdown","reply_markup":{"remove_keyboard":true}}`,
		string(req.body))
}

func TestSend_MultipartEncoding(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `{"ok":true}`)
	c := newTestClient(t, api)

	params := NewParams(
		"chat_id", int64(42),
		"photo", FileFromBytes("chart.png", []byte("PNGDATA")),
		"caption", "Monthly",
		"disable_notification", true,
	)
	_, err := c.Send(t.Context(), "sendPhoto", params)
	require.NoError(t, err)

	req := api.last.Load()
	assert.True(t, strings.HasPrefix(req.contentType, "multipart/form-data"))
	assert.Equal(t, []string{"chat_id", "photo", "caption", "disable_notification"}, req.partNames())
	assert.Equal(t, "42", req.part("chat_id").contents)
	assert.Equal(t, "PNGDATA", req.part("photo").contents)
	assert.Equal(t, "chart.png", req.part("photo").fileName)
	assert.Equal(t, "Monthly", req.part("caption").contents)
	assert.Equal(t, "true", req.part("disable_notification").contents)
}

func TestSend_ReaderUpload(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `{"ok":true}`)
	c := newTestClient(t, api)

	_, err := c.Send(t.Context(), "sendDocument", NewParams(
		"chat_id", 1,
		"document", strings.NewReader("csv,data"),
	))
	require.NoError(t, err)

	req := api.last.Load()
	assert.Equal(t, "csv,data", req.part("document").contents)
	assert.Equal(t, "document", req.part("document").fileName)
}

func TestSend_MediaGroupUploads(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `{"ok":true,"result":[]}`)
	c := newTestClient(t, api)

	items := []*InputMedia{
		{Type: "photo", Media: []byte("first")},
		{Type: "photo", Media: FileFromBytes("b.png", []byte("second")), Caption: "two"},
		{Type: "photo", Media: "https://example.com/c.png"},
	}
	_, err := c.Send(t.Context(), "sendMediaGroup", NewParams("chat_id", 9, "media", items))
	require.NoError(t, err)

	req := api.last.Load()
	names := req.partNames()
	require.Len(t, names, 4, "one part per field plus one per upload")
	assert.Equal(t, "chat_id", names[0])
	assert.Equal(t, "media", names[3])

	first, second := names[1], names[2]
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "media_"))
	assert.True(t, strings.HasPrefix(second, "media_"))
	assert.Equal(t, "first", req.part(first).contents)
	assert.Equal(t, "second", req.part(second).contents)

	var media []map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.part("media").contents), &media))
	require.Len(t, media, 3)
	assert.Equal(t, "attach://"+first, media[0]["media"])
	assert.Equal(t, "attach://"+second, media[1]["media"])
	assert.Equal(t, "two", media[1]["caption"])
	assert.Equal(t, "https://example.com/c.png", media[2]["media"])

	// Items are rewritten in place
	assert.Equal(t, "attach://"+first, items[0].Media)
}

func TestSend_MediaWithoutUploadsStaysJSON(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `{"ok":true}`)
	c := newTestClient(t, api)

	_, err := c.Send(t.Context(), "sendMediaGroup", NewParams(
		"chat_id", 9,
		"media", []InputMedia{{Type: "photo", Media: "file-id-1"}},
	))
	require.NoError(t, err)

	req := api.last.Load()
	assert.Equal(t, "application/json", req.contentType)
	assert.JSONEq(t, `{"chat_id":9,"media":[{"type":"photo","media":"file-id-1"}]}`, string(req.body))
}

func TestSend_StatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "ok", status: http.StatusOK, body: `{"ok":true}`},
		{name: "created", status: http.StatusCreated, body: `[]`},
		{name: "bad request", status: http.StatusBadRequest, body: `{"ok":false}`, wantErr: ErrClient},
		{name: "forbidden", status: http.StatusForbidden, body: ``, wantErr: ErrClient},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: ErrServer},
		{name: "bad gateway", status: http.StatusBadGateway, body: ``, wantErr: ErrServer},
		{name: "not modified", status: http.StatusNotModified, body: ``, wantErr: ErrProtocol},
		{name: "not json", status: http.StatusOK, body: `not json`, wantErr: ErrInvalidResponse},
		{name: "empty body", status: http.StatusOK, body: ``, wantErr: ErrInvalidResponse},
		{name: "null body", status: http.StatusOK, body: `null`, wantErr: ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t, tt.status, tt.body)
			c := newTestClient(t, api)

			raw, err := c.Send(t.Context(), "getChat", NewParams("chat_id", 1))
			assert.Equal(t, int32(1), api.calls.Load(), "exactly one call, no retries")

			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.JSONEq(t, tt.body, string(raw))
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)

			var se *StatusError
			if errors.As(err, &se) {
				assert.Equal(t, tt.status, se.StatusCode)
				assert.Equal(t, "getChat", se.Action)
			}
		})
	}
}

func TestStatusError_Description(t *testing.T) {
	api := newFakeAPI(t, http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	c := newTestClient(t, api)

	_, err := c.Send(t.Context(), "sendMessage", NewParams("chat_id", 1, "text", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.Contains(t, err.Error(), "status 400")
}

func TestExecute_ReturnsRawBody(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `not json at all`)
	c := newTestClient(t, api)

	body, err := c.Execute(t.Context(), "getMe", NewParams("x", 1))
	require.NoError(t, err)
	assert.Equal(t, "not json at all", body)
}

func TestExecute_TransportErrorHidesToken(t *testing.T) {
	api := newFakeAPI(t, http.StatusOK, `{}`)
	c := newTestClient(t, api)
	api.server.Close()

	_, err := c.Send(t.Context(), "getMe", NewParams("x", 1))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testToken)
	assert.NotErrorIs(t, err, ErrServer)
}
