// ABOUTME: Tests for the dolarbot CLI
// ABOUTME: Covers config lookup, param parsing, logging and the one-shot commands

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/2389/dolarbot/internal/botapi"
	"github.com/2389/dolarbot/internal/config"
	"github.com/2389/dolarbot/internal/store"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestGetConfigPath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("DOLARBOT_CONFIG", "/env/config.yaml")
		o := &rootOptions{configPath: "/flag/config.yaml"}
		assert.Equal(t, "/flag/config.yaml", o.getConfigPath())
	})

	t.Run("env var", func(t *testing.T) {
		t.Setenv("DOLARBOT_CONFIG", "/env/config.yaml")
		assert.Equal(t, "/env/config.yaml", (&rootOptions{}).getConfigPath())
	})

	t.Run("xdg", func(t *testing.T) {
		t.Setenv("DOLARBOT_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		assert.Equal(t, filepath.Join("/xdg", "dolarbot", "config.yaml"), (&rootOptions{}).getConfigPath())
	})

	t.Run("home", func(t *testing.T) {
		t.Setenv("DOLARBOT_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/bot")
		assert.Equal(t, filepath.Join("/home/bot", ".config", "dolarbot", "config.yaml"), (&rootOptions{}).getConfigPath())
	})
}

func TestParseParams(t *testing.T) {
	photo := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(photo, []byte("png"), 0o600))

	params, err := parseParams([]string{
		"chat_id=-100",
		"text=a=b",
		`reply_markup={"inline_keyboard":[]}`,
		"photo=@" + photo,
		"caption={not json",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"chat_id", "text", "reply_markup", "photo", "caption"}, params.Keys())

	v, _ := params.Get("text")
	assert.Equal(t, "a=b", v)

	v, _ = params.Get("reply_markup")
	assert.IsType(t, json.RawMessage{}, v)

	v, _ = params.Get("photo")
	f, ok := v.(*botapi.InputFile)
	require.True(t, ok)
	assert.Equal(t, "chart.png", f.Name)

	v, _ = params.Get("caption")
	assert.Equal(t, "{not json", v)
}

func TestParseParams_Errors(t *testing.T) {
	_, err := parseParams([]string{"novalue"})
	assert.Error(t, err)

	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)

	_, err = parseParams([]string{"photo=@/does/not/exist"})
	assert.Error(t, err)
}

func TestLoadPhoto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pic.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o600))

	p, err := loadPhoto(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), p.Data)
	assert.Equal(t, "pic.jpg", p.FileName)
	assert.Empty(t, p.URL)

	p, err = loadPhoto("https://example.com/pic.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/pic.jpg", p.URL)
	assert.Nil(t, p.Data)
}

func TestResolveProfile(t *testing.T) {
	cfg := &config.Config{Scraper: config.ScraperConfig{Profile: "dolar_arg"}}

	p, err := resolveProfile("", cfg)
	require.NoError(t, err)
	assert.Equal(t, "dolar_arg", p.Name)

	p, err = resolveProfile("dolar", cfg)
	require.NoError(t, err)
	assert.Equal(t, "dolar", p.Name)

	_, err = resolveProfile("peso", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dolar_arg, dolar")
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.With("component", "test").WithGroup("req").Warn("shown", "id", 7)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN shown")
	assert.Contains(t, out, " component=test")
	assert.Contains(t, out, " req.id=7")
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("hello", "n", 1)

	line := gjson.Parse(buf.String())
	assert.Equal(t, "hello", line.Get("msg").String())
	assert.Equal(t, int64(1), line.Get("n").Int())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

// fakeAPI answers every Bot API call with ok and remembers the actions.
type fakeAPI struct {
	mu      sync.Mutex
	actions []string
	bodies  []gjson.Result
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.actions = append(f.actions, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
	f.bodies = append(f.bodies, gjson.ParseBytes(body))
	f.mu.Unlock()
	_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
}

func writeConfig(t *testing.T, apiURL string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "dolarbot.db")
	cfg := "server:\n  http_addr: 127.0.0.1:0\n  webhook_secret: s3cret\n" +
		"database:\n  path: " + dbPath + "\n" +
		"telegram:\n  api_url: " + apiURL + "\n  token: \"123456:test\"\n  owner_id: 42\n" +
		"logging:\n  level: error\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, dbPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCallCommand(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()
	cfgPath, _ := writeConfig(t, srv.URL)

	out, err := runCLI(t, "--config", cfgPath, "call", "sendMessage", "chat_id=-100", "text=hi")
	require.NoError(t, err)
	assert.Contains(t, out, `"ok": true`)

	_, err = runCLI(t, "--config", cfgPath, "call", "getMe")
	require.NoError(t, err)

	require.Equal(t, []string{"sendMessage", "getMe"}, api.actions)
	assert.Equal(t, "hi", api.bodies[0].Get("text").String())
}

func TestSetWebhookCommand_UsesConfiguredSecret(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()
	cfgPath, _ := writeConfig(t, srv.URL)

	_, err := runCLI(t, "--config", cfgPath, "set-webhook", "https://bot.example/webhook", "--drop-pending")
	require.NoError(t, err)

	require.Len(t, api.bodies, 1)
	body := api.bodies[0]
	assert.Equal(t, "https://bot.example/webhook", body.Get("url").String())
	assert.Equal(t, "s3cret", body.Get("secret_token").String())
	assert.True(t, body.Get("drop_pending_updates").Bool())
}

func TestChannelsCommand(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	defer srv.Close()
	cfgPath, dbPath := writeConfig(t, srv.URL)

	out, err := runCLI(t, "--config", cfgPath, "channels")
	require.NoError(t, err)
	assert.Contains(t, out, "no channels registered")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SaveChannel(context.Background(), &store.Channel{ID: -100, Name: "Quotes", ServiceTag: store.StringPtr("dolar_arg")}))
	require.NoError(t, s.SaveChannel(context.Background(), &store.Channel{ID: -200, Name: "Draft"}))
	require.NoError(t, s.Close())

	out, err = runCLI(t, "--config", cfgPath, "channels")
	require.NoError(t, err)
	assert.Contains(t, out, "Quotes")
	assert.Contains(t, out, "Draft")

	out, err = runCLI(t, "--config", cfgPath, "channels", "--service", "dolar_arg")
	require.NoError(t, err)
	assert.Contains(t, out, "Quotes")
	assert.NotContains(t, out, "Draft")
}

func TestMissingConfig(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "channels")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestCheckHealth(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ok.Close()
	var buf bytes.Buffer
	require.NoError(t, checkHealth(context.Background(), &buf, ok.URL))
	assert.Equal(t, "healthy\n", buf.String())

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.Error(t, checkHealth(context.Background(), io.Discard, down.URL))
}
