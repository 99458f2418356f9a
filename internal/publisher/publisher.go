// ABOUTME: Fan-out publisher delivering one post to every channel of a service
// ABOUTME: Sends run bounded-parallel and a failed channel never stops the others

package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/2389/dolarbot/internal/botapi"
	"github.com/2389/dolarbot/internal/events"
	"github.com/2389/dolarbot/internal/metrics"
	"github.com/2389/dolarbot/internal/store"
)

// ParseMode used for every published post.
const ParseMode = "Markdown"

// ChannelLister selects the destinations of an event.
type ChannelLister interface {
	ListChannelsByService(ctx context.Context, tag string) ([]*store.Channel, error)
}

// Failure is one channel that could not be reached.
type Failure struct {
	ChannelID int64
	Err       error
}

// Report summarizes one fan-out.
type Report struct {
	Attempted int
	Delivered int
	Failures  []Failure
}

// Config tunes the fan-out.
type Config struct {
	// Concurrency bounds in-flight sends. Values below 1 mean serial.
	Concurrency int
	// RatePerSecond paces sends across the batch. Zero disables pacing.
	RatePerSecond float64
}

// Publisher turns one event into one send per matching channel.
type Publisher struct {
	channels ChannelLister
	sender   botapi.Sender
	limit    int
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a publisher. m may be nil.
func New(channels ChannelLister, sender botapi.Sender, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), limit)
	}
	return &Publisher{
		channels: channels,
		sender:   sender,
		limit:    limit,
		limiter:  limiter,
		metrics:  m,
		logger:   logger.With("component", "publisher"),
	}
}

// Attach subscribes the publisher to text and photo events.
func (p *Publisher) Attach(d *events.Dispatcher) {
	listener := func(ctx context.Context, ev events.Event) {
		if _, err := p.Publish(ctx, ev); err != nil {
			p.logger.Error("publish failed", "kind", ev.Kind, "source", ev.Source, "error", err)
		}
	}
	d.Subscribe(events.KindSendText, listener)
	d.Subscribe(events.KindSendPhoto, listener)
}

// Publish delivers ev to every channel whose service tag equals ev.Source.
// Empty events are ignored. The returned error is only set when the
// destinations could not be resolved; per-channel failures are in the Report.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) (Report, error) {
	if ev.Empty() {
		p.logger.Debug("skipping empty event", "kind", ev.Kind, "source", ev.Source)
		return Report{}, nil
	}

	targets, err := p.channels.ListChannelsByService(ctx, ev.Source)
	if err != nil {
		return Report{}, fmt.Errorf("listing channels for %s: %w", ev.Source, err)
	}

	report := Report{Attempted: len(targets)}
	if len(targets) == 0 {
		p.logger.Info("no channel subscribed", "source", ev.Source)
		return report, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.limit)

	for _, ch := range targets {
		g.Go(func() error {
			err := p.sendOne(ctx, ch.ID, ev)
			p.metrics.ObserveSend(string(ev.Kind), err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, Failure{ChannelID: ch.ID, Err: err})
				p.logger.Warn("send to channel failed",
					"channel_id", ch.ID,
					"channel", ch.Name,
					"kind", ev.Kind,
					"error", err)
				return nil
			}
			report.Delivered++
			return nil
		})
	}
	// Workers never return an error so one failure cannot cancel the rest
	_ = g.Wait()

	if len(report.Failures) > 0 {
		p.logger.Warn("fan-out finished with failures",
			"source", ev.Source,
			"attempted", report.Attempted,
			"failed", len(report.Failures))
	} else {
		p.logger.Info("fan-out finished", "source", ev.Source, "delivered", report.Delivered)
	}
	return report, nil
}

func (p *Publisher) sendOne(ctx context.Context, chatID int64, ev events.Event) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	switch ev.Kind {
	case events.KindSendText:
		_, err := p.sender.Send(ctx, "sendMessage", botapi.NewParams(
			"chat_id", chatID,
			"text", ev.Text,
			"parse_mode", ParseMode,
		))
		return err
	case events.KindSendPhoto:
		params := botapi.NewParams("chat_id", chatID, "photo", photoValue(ev.Photo))
		if ev.Photo.Caption != "" {
			params.Set("caption", ev.Photo.Caption).Set("parse_mode", ParseMode)
		}
		_, err := p.sender.Send(ctx, "sendPhoto", params)
		return err
	default:
		return fmt.Errorf("unsupported event kind %q", ev.Kind)
	}
}

// photoValue gives every channel its own reader over the same bytes.
func photoValue(ph *events.Photo) any {
	if len(ph.Data) == 0 {
		return ph.URL
	}
	name := ph.FileName
	if name == "" {
		name = "photo.png"
	}
	return botapi.FileFromBytes(name, ph.Data)
}
