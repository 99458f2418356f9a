// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides channel registry and scraped record persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each :memory: connection is its own database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS channels (
			id          INTEGER PRIMARY KEY,
			name        TEXT NOT NULL,
			service     TEXT,
			environment TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_channels_service ON channels(service);

		CREATE TABLE IF NOT EXISTS scraped_records (
			id          TEXT PRIMARY KEY,
			source_type TEXT NOT NULL,
			timestamp   TEXT NOT NULL,
			data        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_scraped_records_timestamp ON scraped_records(timestamp);
		CREATE INDEX IF NOT EXISTS idx_scraped_records_source ON scraped_records(source_type, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "channels",
			column: "environment",
			apply:  `ALTER TABLE channels ADD COLUMN environment TEXT`,
		},
		{
			table:  "channels",
			column: "updated_at",
			apply:  `ALTER TABLE channels ADD COLUMN updated_at TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

const channelColumns = `id, name, service, environment, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*Channel, error) {
	var ch Channel
	var service, environment sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&ch.ID, &ch.Name, &service, &environment, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if service.Valid {
		ch.ServiceTag = &service.String
	}
	if environment.Valid {
		ch.EnvironmentTag = &environment.String
	}
	// Rows migrated from older schemas may carry empty timestamps
	ch.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	ch.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &ch, nil
}

// GetChannel retrieves a channel by chat id.
// Returns ErrNotFound if the channel doesn't exist.
func (s *SQLiteStore) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)

	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel: %w", err)
	}
	return ch, nil
}

// ListChannelsByService returns the channels tagged with the given service, ordered by id.
func (s *SQLiteStore) ListChannelsByService(ctx context.Context, tag string) ([]*Channel, error) {
	return s.queryChannels(ctx, `SELECT `+channelColumns+` FROM channels WHERE service = ? ORDER BY id`, tag)
}

// ListChannels returns every registered channel, ordered by id.
func (s *SQLiteStore) ListChannels(ctx context.Context) ([]*Channel, error) {
	return s.queryChannels(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY id`)
}

func (s *SQLiteStore) queryChannels(ctx context.Context, query string, args ...any) ([]*Channel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning channel row: %w", err)
		}
		channels = append(channels, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channel rows: %w", err)
	}
	return channels, nil
}

// SaveChannel inserts the channel or replaces the row with the same id.
// CreatedAt is kept from the existing row when the channel was already registered.
func (s *SQLiteStore) SaveChannel(ctx context.Context, ch *Channel) error {
	now := time.Now().UTC()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.UpdatedAt = now

	query := `
		INSERT INTO channels (id, name, service, environment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			service = excluded.service,
			environment = excluded.environment,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		ch.ID,
		ch.Name,
		nullablePtr(ch.ServiceTag),
		nullablePtr(ch.EnvironmentTag),
		ch.CreatedAt.UTC().Format(time.RFC3339),
		ch.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving channel: %w", err)
	}

	s.logger.Debug("saved channel", "id", ch.ID, "name", ch.Name)
	return nil
}

// DeleteChannel removes a channel.
// Returns ErrNotFound if the channel doesn't exist.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted channel", "id", id)
	return nil
}

// nullablePtr maps nil to SQL NULL
func nullablePtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// AppendRecord persists one scrape cycle.
func (s *SQLiteStore) AppendRecord(ctx context.Context, rec *ScrapedRecord) error {
	data := rec.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scraped_records (id, source_type, timestamp, data)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.SourceType, rec.Timestamp.UTC().Format(time.RFC3339), string(data))
	if err != nil {
		return fmt.Errorf("inserting scraped record: %w", err)
	}

	s.logger.Debug("appended scraped record", "id", rec.ID, "source_type", rec.SourceType)
	return nil
}

// ListRecords returns the records whose timestamp falls in [start, end], oldest first.
func (s *SQLiteStore) ListRecords(ctx context.Context, start, end time.Time) ([]*ScrapedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_type, timestamp, data
		FROM scraped_records
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, rowid ASC
	`, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying scraped records: %w", err)
	}
	defer rows.Close()

	var records []*ScrapedRecord
	for rows.Next() {
		var rec ScrapedRecord
		var ts, data string

		if err := rows.Scan(&rec.ID, &rec.SourceType, &ts, &data); err != nil {
			return nil, fmt.Errorf("scanning scraped record row: %w", err)
		}

		rec.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		rec.Data = []byte(data)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scraped record rows: %w", err)
	}
	return records, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
