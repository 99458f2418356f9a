// ABOUTME: Scrape aggregator fetching every source of a profile and persisting one record
// ABOUTME: Individual source failures are skipped; only the record write can fail a cycle

package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/2389/dolarbot/internal/metrics"
	"github.com/2389/dolarbot/internal/store"
)

// maxSourceBody bounds one upstream answer.
const maxSourceBody = 1 << 20

const userAgent = "dolarbot/1.0"

// Entry is one source that answered with usable data.
type Entry struct {
	Label string
	Value gjson.Result
}

// Result is the outcome of one cycle. Entries follow the profile's source order.
type Result struct {
	Profile   string
	FetchedAt time.Time
	Entries   []Entry
}

// Labels returns the labels present in the result.
func (r *Result) Labels() []string {
	labels := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		labels[i] = e.Label
	}
	return labels
}

// Get returns the value of label.
func (r *Result) Get(label string) (gjson.Result, bool) {
	for _, e := range r.Entries {
		if e.Label == label {
			return e.Value, true
		}
	}
	return gjson.Result{}, false
}

// MarshalJSON encodes the entries as one object in source order.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:%s", e.Label, strings.TrimSpace(e.Value.Raw))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Config tunes the scraper.
type Config struct {
	// Concurrency bounds parallel fetches. Values below 1 mean serial.
	Concurrency int
}

// Scraper runs scrape cycles.
type Scraper struct {
	client  *http.Client
	records store.RecordStore
	limit   int
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a scraper. m may be nil.
func New(client *http.Client, records store.RecordStore, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Scraper {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	return &Scraper{
		client:  client,
		records: records,
		limit:   limit,
		metrics: m,
		logger:  logger.With("component", "scraper"),
		now:     time.Now,
	}
}

// Scrape fetches every source of p and persists the result, even when
// empty. The returned error is only set when the record could not be written;
// the result is returned either way.
func (s *Scraper) Scrape(ctx context.Context, p Profile) (*Result, error) {
	res := s.Fetch(ctx, p)

	data, err := res.MarshalJSON()
	if err != nil {
		return res, fmt.Errorf("encoding result: %w", err)
	}

	rec := &store.ScrapedRecord{
		ID:         uuid.New().String(),
		SourceType: p.Name,
		Timestamp:  res.FetchedAt,
		Data:       data,
	}
	if err := s.records.AppendRecord(ctx, rec); err != nil {
		return res, fmt.Errorf("saving scraped record: %w", err)
	}
	s.metrics.ObserveRecord()

	s.logger.Info("scrape cycle saved",
		"profile", p.Name,
		"record_id", rec.ID,
		"sources", len(p.Sources),
		"present", len(res.Entries))
	return res, nil
}

// Fetch queries every source and keeps the usable answers. It waits for all
// fetches before returning.
func (s *Scraper) Fetch(ctx context.Context, p Profile) *Result {
	values := make([]gjson.Result, len(p.Sources))

	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, src := range p.Sources {
		g.Go(func() error {
			v, outcome := s.fetchOne(ctx, src)
			s.metrics.ObserveSource(p.Name, outcome)
			if outcome != "ok" {
				s.logger.Warn("source skipped", "label", src.Label, "reason", outcome)
				return nil
			}
			values[i] = v
			return nil
		})
	}
	// Sources never fail the group
	_ = g.Wait()

	res := &Result{Profile: p.Name, FetchedAt: s.now().UTC()}
	for i, src := range p.Sources {
		if values[i].Exists() {
			res.Entries = append(res.Entries, Entry{Label: src.Label, Value: values[i]})
		}
	}
	return res
}

// fetchOne returns the decoded body and "ok", or the reason it was skipped.
func (s *Scraper) fetchOne(ctx context.Context, src Source) (gjson.Result, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return gjson.Result{}, "error"
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("source request failed", "label", src.Label, "error", err)
		return gjson.Result{}, "error"
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return gjson.Result{}, "status"
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBody))
	if err != nil {
		return gjson.Result{}, "error"
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, "invalid"
	}

	v := gjson.ParseBytes(body)
	if Falsy(v) {
		return gjson.Result{}, "empty"
	}
	return v, "ok"
}

// Falsy reports whether a decoded value carries nothing: null, false, 0,
// "", "0", an empty array or an empty object.
func Falsy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return true
	case gjson.False:
		return true
	case gjson.Number:
		return v.Float() == 0
	case gjson.String:
		return v.Str == "" || v.Str == "0"
	case gjson.JSON:
		empty := true
		v.ForEach(func(_, _ gjson.Result) bool {
			empty = false
			return false
		})
		return empty
	}
	return false
}
