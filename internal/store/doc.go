// Package store provides persistent storage for dolarbot using SQLite.
//
// # Architecture
//
// Two narrow interfaces describe what the rest of the bot needs:
//
//   - ChannelStore: the channel registry (get, list by service tag, list all,
//     upsert, delete)
//   - RecordStore: the append-only log of scrape cycles with a time-range query
//
// Store combines both. SQLiteStore implements Store in a single struct and
// MockStore is an in-memory implementation for unit tests.
//
// # Data Models
//
//   - Channel: a destination chat. The id is the Telegram chat id; the
//     service tag decides which producer may publish to it.
//   - ScrapedRecord: one scrape cycle, its data kept as the ordered JSON
//     object produced by the scraper.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go) in WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// # Error Handling
//
// ErrNotFound is returned for missing channels. All methods accept
// context.Context for cancellation.
//
// # Migrations
//
// The schema is created on start and older databases are migrated in place
// by idempotent column checks (see runMigrations).
package store
