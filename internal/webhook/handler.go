// ABOUTME: HTTP endpoint receiving Telegram webhook deliveries
// ABOUTME: Validates the secret, drops redelivered updates and answers 400 or 200

package webhook

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"

	"github.com/2389/dolarbot/internal/dedupe"
	"github.com/2389/dolarbot/internal/metrics"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxBodySize bounds one update.
const maxBodySize = 1 << 20

// Handler serves the webhook endpoint.
type Handler struct {
	interpreter *Interpreter
	secret      string
	seen        *dedupe.Cache[int64]
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewHandler wraps an interpreter. An empty secret disables the header
// check; a nil seen cache disables de-duplication.
func NewHandler(in *Interpreter, secret string, seen *dedupe.Cache[int64], m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		interpreter: in,
		secret:      secret,
		seen:        seen,
		metrics:     m,
		logger:      logger.With("component", "webhook_http"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(h.secret)) != 1 {
		h.logger.Warn("rejected update with bad secret", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.logger.Warn("reading update body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	update, err := Parse(body)
	if err != nil {
		h.logger.Debug("malformed update", "size", len(body))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if id := update.Get("update_id"); id.Exists() && h.seen != nil && h.seen.CheckAndMark(id.Int()) {
		h.logger.Debug("duplicate update", "update_id", id.Int())
		w.WriteHeader(http.StatusOK)
		return
	}

	// Finish the command even if Telegram drops the connection
	ctx := context.WithoutCancel(r.Context())
	out := h.interpreter.HandleUpdate(ctx, update)
	h.metrics.ObserveUpdate(string(out.Kind), out.Handled)

	w.WriteHeader(http.StatusOK)
}
