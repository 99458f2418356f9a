// ABOUTME: Store interfaces and data types for dolarbot persistence
// ABOUTME: Defines the Channel registry and the append-only ScrapedRecord log

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Channel is a registered delivery destination. ID is the Telegram chat id.
type Channel struct {
	ID             int64
	Name           string
	ServiceTag     *string // producer allowed to publish here; nil until configured
	EnvironmentTag *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// String renders the channel the way /list_channels shows it.
func (c *Channel) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (`%d`)", boldEscaper.Replace(c.Name), c.ID)
	fmt.Fprintf(&b, " service: %s", markdownEscaper.Replace(valueOr(c.ServiceTag, "-")))
	fmt.Fprintf(&b, " env: %s", markdownEscaper.Replace(valueOr(c.EnvironmentTag, "-")))
	return b.String()
}

// Legacy Markdown only allows escapes outside entities. Inside the bold
// name a literal asterisk closes the entity, escapes it and reopens it.
var (
	markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)
	boldEscaper     = strings.NewReplacer("*", `*\**`)
)

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

// ScrapedRecord is one persisted scrape cycle. Records are never updated.
type ScrapedRecord struct {
	ID         string
	SourceType string
	Timestamp  time.Time
	Data       json.RawMessage // ordered JSON object label -> upstream payload
}

// ChannelStore is the channel registry.
type ChannelStore interface {
	// GetChannel returns ErrNotFound when the id is not registered.
	GetChannel(ctx context.Context, id int64) (*Channel, error)
	// ListChannelsByService returns every channel whose service tag equals tag.
	ListChannelsByService(ctx context.Context, tag string) ([]*Channel, error)
	ListChannels(ctx context.Context) ([]*Channel, error)
	// SaveChannel inserts or replaces the channel keyed by ID.
	SaveChannel(ctx context.Context, ch *Channel) error
	// DeleteChannel returns ErrNotFound when nothing was deleted.
	DeleteChannel(ctx context.Context, id int64) error
}

// RecordStore is the scraped-record log.
type RecordStore interface {
	AppendRecord(ctx context.Context, rec *ScrapedRecord) error
	// ListRecords returns records with start <= timestamp <= end, oldest first.
	ListRecords(ctx context.Context, start, end time.Time) ([]*ScrapedRecord, error)
}

// Store combines both collaborators plus lifecycle.
type Store interface {
	ChannelStore
	RecordStore

	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// StringPtr returns nil for empty strings, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
