// ABOUTME: Tests for the fan-out publisher
// ABOUTME: Covers target selection, independent failures, photos and empty events

package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dolarbot/internal/botapi"
	"github.com/2389/dolarbot/internal/events"
	"github.com/2389/dolarbot/internal/store"
)

type sentCall struct {
	action string
	chatID int64
	params *botapi.Params
}

// fakeSender records calls and fails for chat ids in failFor.
type fakeSender struct {
	mu      sync.Mutex
	calls   []sentCall
	failFor map[int64]error
}

func (f *fakeSender) Send(ctx context.Context, action string, params *botapi.Params) (json.RawMessage, error) {
	v, _ := params.Get("chat_id")
	chatID, _ := v.(int64)

	f.mu.Lock()
	f.calls = append(f.calls, sentCall{action: action, chatID: chatID, params: params})
	f.mu.Unlock()

	if err := f.failFor[chatID]; err != nil {
		return nil, err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeSender) chatIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, len(f.calls))
	for i, c := range f.calls {
		ids[i] = c.chatID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func seedChannels(t *testing.T, s *store.MockStore, channels ...*store.Channel) {
	t.Helper()
	for _, ch := range channels {
		require.NoError(t, s.SaveChannel(t.Context(), ch))
	}
}

func TestPublish_TextToMatchingChannels(t *testing.T) {
	s := store.NewMockStore()
	seedChannels(t, s,
		&store.Channel{ID: 1, Name: "a", ServiceTag: store.StringPtr("dolar_arg")},
		&store.Channel{ID: 2, Name: "b", ServiceTag: store.StringPtr("dolar_arg")},
		&store.Channel{ID: 3, Name: "c", ServiceTag: store.StringPtr("other")},
		&store.Channel{ID: 4, Name: "d"},
	)
	sender := &fakeSender{}
	p := New(s, sender, Config{Concurrency: 2}, nil, nil)

	report, err := p.Publish(t.Context(), events.Event{Kind: events.KindSendText, Source: "dolar_arg", Text: "#DolarBlue"})
	require.NoError(t, err)

	assert.Equal(t, Report{Attempted: 2, Delivered: 2}, report)
	assert.Equal(t, []int64{1, 2}, sender.chatIDs())
	for _, c := range sender.calls {
		assert.Equal(t, "sendMessage", c.action)
		text, _ := c.params.Get("text")
		assert.Equal(t, "#DolarBlue", text)
		mode, _ := c.params.Get("parse_mode")
		assert.Equal(t, "Markdown", mode)
	}
}

func TestPublish_FailureDoesNotStopSiblings(t *testing.T) {
	s := store.NewMockStore()
	seedChannels(t, s,
		&store.Channel{ID: 10, Name: "broken", ServiceTag: store.StringPtr("dolar_arg")},
		&store.Channel{ID: 20, Name: "fine", ServiceTag: store.StringPtr("dolar_arg")},
	)
	serverErr := &botapi.StatusError{Class: botapi.ClassServer, StatusCode: 502, Action: "sendMessage"}
	sender := &fakeSender{failFor: map[int64]error{10: serverErr}}

	// Serial so channel 10 is attempted first
	p := New(s, sender, Config{Concurrency: 1}, nil, nil)

	report, err := p.Publish(t.Context(), events.Event{Kind: events.KindSendText, Source: "dolar_arg", Text: "post"})
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 20}, sender.chatIDs(), "second channel still gets exactly one attempt")
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Delivered)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(10), report.Failures[0].ChannelID)
	assert.ErrorIs(t, report.Failures[0].Err, botapi.ErrServer)
}

func TestPublish_AllFail(t *testing.T) {
	s := store.NewMockStore()
	seedChannels(t, s,
		&store.Channel{ID: 1, Name: "a", ServiceTag: store.StringPtr("x")},
		&store.Channel{ID: 2, Name: "b", ServiceTag: store.StringPtr("x")},
		&store.Channel{ID: 3, Name: "c", ServiceTag: store.StringPtr("x")},
	)
	boom := errors.New("connection reset")
	sender := &fakeSender{failFor: map[int64]error{1: boom, 2: boom, 3: boom}}
	p := New(s, sender, Config{Concurrency: 3, RatePerSecond: 1000}, nil, nil)

	report, err := p.Publish(t.Context(), events.Event{Kind: events.KindSendText, Source: "x", Text: "post"})
	require.NoError(t, err)

	assert.Len(t, sender.calls, 3)
	assert.Len(t, report.Failures, 3)
	assert.Zero(t, report.Delivered)
}

func TestPublish_EmptyEventIsNoop(t *testing.T) {
	s := store.NewMockStore()
	seedChannels(t, s, &store.Channel{ID: 1, Name: "a", ServiceTag: store.StringPtr("dolar_arg")})
	sender := &fakeSender{}
	p := New(s, sender, Config{}, nil, nil)

	report, err := p.Publish(t.Context(), events.Event{Kind: events.KindSendText, Source: "dolar_arg"})
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)

	report, err = p.Publish(t.Context(), events.Event{Kind: events.KindSendPhoto, Source: "dolar_arg"})
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)

	assert.Empty(t, sender.calls)
}

func TestPublish_NoMatchingChannels(t *testing.T) {
	sender := &fakeSender{}
	p := New(store.NewMockStore(), sender, Config{}, nil, nil)

	report, err := p.Publish(t.Context(), events.Event{Kind: events.KindSendText, Source: "dolar_arg", Text: "x"})
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Empty(t, sender.calls)
}

type failingLister struct{}

func (failingLister) ListChannelsByService(context.Context, string) ([]*store.Channel, error) {
	return nil, errors.New("database is locked")
}

func TestPublish_ListFailure(t *testing.T) {
	p := New(failingLister{}, &fakeSender{}, Config{}, nil, nil)

	_, err := p.Publish(t.Context(), events.Event{Kind: events.KindSendText, Source: "dolar_arg", Text: "x"})
	assert.ErrorContains(t, err, "database is locked")
}

func TestPublish_PhotoUploadPerChannel(t *testing.T) {
	s := store.NewMockStore()
	seedChannels(t, s,
		&store.Channel{ID: 1, Name: "a", ServiceTag: store.StringPtr("charts")},
		&store.Channel{ID: 2, Name: "b", ServiceTag: store.StringPtr("charts")},
	)
	sender := &fakeSender{}
	p := New(s, sender, Config{Concurrency: 2}, nil, nil)

	_, err := p.Publish(t.Context(), events.Event{
		Kind:   events.KindSendPhoto,
		Source: "charts",
		Photo:  &events.Photo{Data: []byte("PNG"), FileName: "chart.png", Caption: "*Monthly*"},
	})
	require.NoError(t, err)
	require.Len(t, sender.calls, 2)

	var readers []*botapi.InputFile
	for _, c := range sender.calls {
		assert.Equal(t, "sendPhoto", c.action)
		v, _ := c.params.Get("photo")
		f, ok := v.(*botapi.InputFile)
		require.True(t, ok)
		assert.Equal(t, "chart.png", f.Name)
		data, err := io.ReadAll(f.Reader)
		require.NoError(t, err)
		assert.Equal(t, "PNG", string(data))
		readers = append(readers, f)

		caption, _ := c.params.Get("caption")
		assert.Equal(t, "*Monthly*", caption)
	}
	assert.NotSame(t, readers[0], readers[1])
}

func TestPublish_PhotoByURL(t *testing.T) {
	s := store.NewMockStore()
	seedChannels(t, s, &store.Channel{ID: 1, Name: "a", ServiceTag: store.StringPtr("charts")})
	sender := &fakeSender{}
	p := New(s, sender, Config{}, nil, nil)

	_, err := p.Publish(t.Context(), events.Event{
		Kind:   events.KindSendPhoto,
		Source: "charts",
		Photo:  &events.Photo{URL: "https://example.com/chart.png"},
	})
	require.NoError(t, err)

	require.Len(t, sender.calls, 1)
	photo, _ := sender.calls[0].params.Get("photo")
	assert.Equal(t, "https://example.com/chart.png", photo)
	_, hasCaption := sender.calls[0].params.Get("caption")
	assert.False(t, hasCaption)
}

func TestAttach_DispatchReachesPublisher(t *testing.T) {
	s := store.NewMockStore()
	seedChannels(t, s, &store.Channel{ID: 5, Name: "a", ServiceTag: store.StringPtr("dolar_arg")})
	sender := &fakeSender{}
	p := New(s, sender, Config{}, nil, nil)

	d := events.NewDispatcher(nil)
	defer d.Close()
	p.Attach(d)

	n := d.Dispatch(t.Context(), events.Event{Kind: events.KindSendText, Source: "dolar_arg", Text: "x"})
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{5}, sender.chatIDs())
}
