package diag

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAppendsEntryWithIncrementingID(t *testing.T) {
	b := NewBuffer(10)
	b.Add(slog.LevelInfo, "src", "first")
	b.Add(slog.LevelWarn, "src", "second")

	entries := b.Recent(0)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, int64(2), entries[1].ID)
	assert.Equal(t, slog.LevelWarn, entries[1].Level)
}

func TestAddCollapsesImmediateRepeats(t *testing.T) {
	b := NewBuffer(10)
	b.Add(slog.LevelInfo, "src", "flap")
	b.Add(slog.LevelInfo, "src", "flap")
	b.Add(slog.LevelInfo, "src", "flap")
	b.Add(slog.LevelInfo, "src", "different")

	entries := b.Recent(0)
	require.Len(t, entries, 3)
	assert.Equal(t, "flap", entries[0].Message)
	assert.Contains(t, entries[1].Message, "repeated 2 times")
	assert.Equal(t, "different", entries[2].Message)
}

func TestPushEvictsOldestWhenFull(t *testing.T) {
	b := NewBuffer(2)
	b.Add(slog.LevelInfo, "src", "one")
	b.Add(slog.LevelInfo, "src", "two")
	b.Add(slog.LevelInfo, "src", "three")

	entries := b.Recent(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Message)
	assert.Equal(t, "three", entries[1].Message)
}

func TestRecentLimitsToN(t *testing.T) {
	b := NewBuffer(10)
	for _, m := range []string{"a", "b", "c"} {
		b.Add(slog.LevelInfo, "src", m)
	}
	last := b.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, "c", last[0].Message)
}

func TestSinceReturnsOnlyNewerEntries(t *testing.T) {
	b := NewBuffer(10)
	b.Add(slog.LevelInfo, "src", "a")
	b.Add(slog.LevelInfo, "src", "b")
	b.Add(slog.LevelInfo, "src", "c")

	newer := b.Since(1)
	require.Len(t, newer, 2)
	assert.Equal(t, "b", newer[0].Message)
	assert.Equal(t, "c", newer[1].Message)
}

func TestSubscribeReceivesNewEntries(t *testing.T) {
	b := NewBuffer(10)
	ch := b.Subscribe()

	b.Add(slog.LevelInfo, "src", "hello")

	select {
	case e := <-ch:
		assert.Equal(t, "hello", e.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed entry")
	}

	b.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok, "channel must be closed after Unsubscribe")
}

func TestHandlerFeedsBufferAndForwardsToNext(t *testing.T) {
	b := NewBuffer(10)
	var forwarded []string
	next := &recordingHandler{onHandle: func(r slog.Record) { forwarded = append(forwarded, r.Message) }}

	h := NewHandler(b, next)
	logger := slog.New(h)
	logger.Info("hello there")

	entries := b.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello there", entries[0].Message)
	assert.Equal(t, []string{"hello there"}, forwarded)
}

func TestHandlerWithGroupSetsEntrySource(t *testing.T) {
	b := NewBuffer(10)
	h := NewHandler(b, nil).WithGroup("rpcsrv")
	logger := slog.New(h)
	logger.Info("grouped")

	entries := b.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "rpcsrv", entries[0].Source)
}

// recordingHandler is a minimal slog.Handler test double.
type recordingHandler struct {
	onHandle func(slog.Record)
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	if h.onHandle != nil {
		h.onHandle(r)
	}
	return nil
}
func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(name string) slog.Handler      { return h }
