// Package gateway wires the dolarbot components into one process.
//
// # Overview
//
// The Gateway owns the SQLite store, the Bot API client, the event
// dispatcher with the publisher attached to it, the scraper, and the HTTP
// server that receives Telegram webhook updates.
//
//	scraper ──► Gateway.ScrapeAndPublish ──► events.Dispatcher ──► publisher ──► Bot API
//	Telegram ──► POST /webhook ──► webhook.Handler ──► Interpreter ──► store / Bot API
//
// # HTTP Routes
//
//   - POST <server.webhook_path>: Telegram updates
//   - GET /health: liveness, always 200
//   - GET /health/ready: 200 when the store answers a ping
//   - GET <metrics.path>: Prometheus metrics when metrics.enabled is set
//
// # Listeners
//
// With tailscale.enabled the server joins the tailnet through tsnet and,
// with tailscale.funnel, listens on a public HTTPS name suitable for
// setWebhook. Otherwise it listens on server.http_addr.
//
// # Lifecycle
//
// Run blocks until its context is canceled, then calls Shutdown with a fresh
// five second deadline. One-shot commands that never call Run release
// resources with Close.
package gateway
