// ABOUTME: Gateway orchestrator that wires the webhook server, publisher and scraper
// ABOUTME: Owns the store, Bot API client, listeners and health endpoints lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/dolarbot/internal/botapi"
	"github.com/2389/dolarbot/internal/config"
	"github.com/2389/dolarbot/internal/dedupe"
	"github.com/2389/dolarbot/internal/events"
	"github.com/2389/dolarbot/internal/metrics"
	"github.com/2389/dolarbot/internal/publisher"
	"github.com/2389/dolarbot/internal/scraper"
	"github.com/2389/dolarbot/internal/store"
	"github.com/2389/dolarbot/internal/webhook"
)

// Gateway owns every long-lived component of the bot.
type Gateway struct {
	config      *config.Config
	store       store.Store
	client      *botapi.Client
	dispatcher  *events.Dispatcher
	publisher   *publisher.Publisher
	scraper     *scraper.Scraper
	interpreter *webhook.Interpreter
	metrics     *metrics.Metrics
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// seen drops webhook updates Telegram delivers more than once
	seen *dedupe.Cache[int64]
}

// initStore opens the SQLite store named by config.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return s, nil
}

// New creates a gateway from config. Nothing listens until Run is called.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	client, err := botapi.New(cfg.Telegram.APIURL, cfg.Telegram.Token,
		botapi.WithHTTPClient(&http.Client{Timeout: cfg.Telegram.Timeout}),
		botapi.WithMetrics(m),
		botapi.WithLogger(logger),
	)
	if err != nil {
		_ = sqlStore.Close()
		return nil, fmt.Errorf("creating bot api client: %w", err)
	}

	botID := cfg.Telegram.BotID
	if botID == 0 {
		botID = client.BotID()
	}

	gw := &Gateway{
		config:     cfg,
		store:      sqlStore,
		client:     client,
		dispatcher: events.NewDispatcher(logger),
		metrics:    m,
		logger:     logger.With("component", "gateway"),
		seen:       dedupe.New[int64](dedupe.DefaultTTL, dedupe.DefaultSize),
	}

	gw.publisher = publisher.New(sqlStore, client, publisher.Config{
		Concurrency:   cfg.Publisher.Concurrency,
		RatePerSecond: cfg.Publisher.RatePerSecond,
	}, m, logger)
	gw.publisher.Attach(gw.dispatcher)

	gw.scraper = scraper.New(&http.Client{Timeout: cfg.Scraper.Timeout}, sqlStore, scraper.Config{
		Concurrency: cfg.Scraper.Concurrency,
	}, m, logger)

	gw.interpreter = webhook.NewInterpreter(sqlStore, client, webhook.Config{
		OwnerID: cfg.Telegram.OwnerID,
		BotID:   botID,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WebhookPath, webhook.NewHandler(gw.interpreter, cfg.Server.WebhookSecret, gw.seen, m, logger))
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)
	if m != nil {
		mux.Handle(cfg.Metrics.Path, m.Handler())
		logger.Info("metrics endpoint enabled", "path", cfg.Metrics.Path)
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Client returns the Bot API client.
func (g *Gateway) Client() *botapi.Client { return g.client }

// Store returns the backing store.
func (g *Gateway) Store() store.Store { return g.store }

// Handler returns the HTTP handler serving the webhook and health routes.
func (g *Gateway) Handler() http.Handler { return g.httpServer.Handler }

// Dispatch hands ev to every subscribed listener and returns how many ran.
func (g *Gateway) Dispatch(ctx context.Context, ev events.Event) int {
	return g.dispatcher.Dispatch(ctx, ev)
}

// ScrapeAndPublish runs one scrape cycle for p, persists it and broadcasts
// the formatted post to the channels tagged with the profile name. Nothing is
// broadcast when no source answered.
func (g *Gateway) ScrapeAndPublish(ctx context.Context, p scraper.Profile) (*scraper.Result, error) {
	res, err := g.scraper.Scrape(ctx, p)
	if err != nil {
		// The cycle is still worth announcing when only persistence failed
		g.logger.Error("scrape cycle not saved", "profile", p.Name, "error", err)
	}

	text := scraper.FormatPost(p, res)
	if text == "" {
		g.logger.Warn("no sources answered, nothing to publish", "profile", p.Name)
		return res, err
	}

	n := g.Dispatch(ctx, events.Event{
		Kind:   events.KindSendText,
		Source: p.Name,
		Text:   text,
	})
	g.logger.Info("scrape cycle published", "profile", p.Name, "entries", len(res.Entries), "listeners", n)
	return res, err
}

// PublishPhoto broadcasts a photo to the channels tagged with source.
func (g *Gateway) PublishPhoto(ctx context.Context, source string, photo events.Photo) int {
	return g.Dispatch(ctx, events.Event{
		Kind:   events.KindSendPhoto,
		Source: source,
		Photo:  &photo,
	})
}

// MonthlySummary aggregates the records of the month before now and
// broadcasts the summary for p. It returns the text it published, or "" when
// the month had no usable data.
func (g *Gateway) MonthlySummary(ctx context.Context, p scraper.Profile, now time.Time) (string, error) {
	start, end := scraper.PreviousMonth(now)
	records, err := g.store.ListRecords(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("listing records: %w", err)
	}

	var own []*store.ScrapedRecord
	for _, rec := range records {
		if rec.SourceType == p.Name {
			own = append(own, rec)
		}
	}

	text := scraper.FormatSummary(p, start, scraper.MonthlyAverages(own))
	if text == "" {
		g.logger.Warn("no data for monthly summary", "profile", p.Name, "month", start.Format("2006-01"))
		return "", nil
	}

	g.Dispatch(ctx, events.Event{
		Kind:   events.KindSendText,
		Source: p.Name,
		Text:   text,
	})
	return text, nil
}

// setupTCPListener creates the plain TCP listener for the webhook server.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer serves HTTP in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "webhook_path", g.config.Server.WebhookPath)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run serves the webhook until ctx is canceled, then shuts down.
// Returns nil on graceful shutdown, or the error that stopped the server.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "dolarbot", "tailscale"), nil
}

// setupTailscaleListener joins the tailnet and listens on :443 through
// Funnel, or on :80 inside the tailnet.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	if tsCfg.AuthKey == "" {
		return nil, errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   tsCfg.AuthKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	var ln net.Listener
	if tsCfg.Funnel {
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err = g.tsnetServer.ListenFunnel("tcp", ":443")
	} else {
		ln, err = g.tsnetServer.Listen("tcp", ":80")
	}
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs the node address and, with Funnel, the public
// webhook URL to hand to setWebhook.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
	if g.config.Tailscale.Funnel && dnsName != "" {
		g.logger.Info("public webhook url", "url", WebhookURL(dnsName, g.config.Server.WebhookPath))
	}
}

// WebhookURL builds the HTTPS URL Telegram should post updates to.
func WebhookURL(dnsName, path string) string {
	return "https://" + strings.TrimRight(dnsName, ".") + path
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Close releases everything except the HTTP server. One-shot commands that
// never call Run use it directly.
func (g *Gateway) Close() error {
	g.dispatcher.Close()
	g.seen.Close()
	return g.store.Close()
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
