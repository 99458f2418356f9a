// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	channels map[int64]*Channel // keyed by chat id
	records  []*ScrapedRecord

	// SaveErr, DeleteErr and AppendErr are returned by the matching method when set
	SaveErr   error
	DeleteErr error
	AppendErr error

	// Saves counts SaveChannel calls, including failed ones
	Saves int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		channels: make(map[int64]*Channel),
	}
}

func copyChannel(ch *Channel) *Channel {
	c := *ch
	if ch.ServiceTag != nil {
		v := *ch.ServiceTag
		c.ServiceTag = &v
	}
	if ch.EnvironmentTag != nil {
		v := *ch.EnvironmentTag
		c.EnvironmentTag = &v
	}
	return &c
}

// GetChannel returns a copy of the channel.
func (m *MockStore) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyChannel(ch), nil
}

// ListChannelsByService returns copies of the matching channels ordered by id.
func (m *MockStore) ListChannelsByService(ctx context.Context, tag string) ([]*Channel, error) {
	return m.list(func(ch *Channel) bool {
		return ch.ServiceTag != nil && *ch.ServiceTag == tag
	}), nil
}

// ListChannels returns copies of all channels ordered by id.
func (m *MockStore) ListChannels(ctx context.Context) ([]*Channel, error) {
	return m.list(func(*Channel) bool { return true }), nil
}

func (m *MockStore) list(keep func(*Channel) bool) []*Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Channel
	for _, ch := range m.channels {
		if keep(ch) {
			out = append(out, copyChannel(ch))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SaveChannel upserts a copy of the channel.
func (m *MockStore) SaveChannel(ctx context.Context, ch *Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}

	now := time.Now().UTC()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.UpdatedAt = now
	m.channels[ch.ID] = copyChannel(ch)
	return nil
}

// DeleteChannel removes the channel.
func (m *MockStore) DeleteChannel(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if _, ok := m.channels[id]; !ok {
		return ErrNotFound
	}
	delete(m.channels, id)
	return nil
}

// AppendRecord stores a copy of the record.
func (m *MockStore) AppendRecord(ctx context.Context, rec *ScrapedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		return m.AppendErr
	}
	r := *rec
	r.Data = append([]byte(nil), rec.Data...)
	m.records = append(m.records, &r)
	return nil
}

// ListRecords returns records in [start, end], oldest first.
func (m *MockStore) ListRecords(ctx context.Context, start, end time.Time) ([]*ScrapedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ScrapedRecord
	for _, r := range m.records {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Records returns every appended record in insertion order.
func (m *MockStore) Records() []*ScrapedRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*ScrapedRecord(nil), m.records...)
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

var _ Store = (*MockStore)(nil)
