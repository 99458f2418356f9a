// Package config handles configuration loading for dolarbot.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion, then individual fields are overridden by DOLARBOT_* variables.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from DOLARBOT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/dolarbot/config.yaml (or ~/.config/dolarbot/config.yaml)
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	telegram:
//	  token: "${TELEGRAM_BOT_TOKEN}"
//
// Fields tagged with env also read their variable directly, for example
// DOLARBOT_TELEGRAM_OWNER_ID or DOLARBOT_DB_PATH. Overrides win over the file.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  webhook_path: "/webhook"
//	  webhook_secret: "${WEBHOOK_SECRET}"
//
//	database:
//	  path: "/var/lib/dolarbot/dolarbot.db"
//
//	telegram:
//	  api_url: "https://api.telegram.org"
//	  token: "${TELEGRAM_BOT_TOKEN}"
//	  owner_id: 123456789
//	  bot_id: 0          # derived from the token when omitted
//	  timeout: "30s"
//
//	publisher:
//	  concurrency: 4
//	  rate_per_second: 25
//
//	scraper:
//	  profile: "dolar_arg"
//	  concurrency: 4
//	  timeout: "15s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "dolarbot"
//	  funnel: true
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Validation
//
// Load() requires server.http_addr (unless tailscale is enabled),
// database.path, a well-formed telegram.token and telegram.owner_id.
package config
