package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/speech"
)

type fakeQueue struct {
	mu   sync.Mutex
	reqs []speech.Request
}

func (q *fakeQueue) Speak(req speech.Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
}

func (q *fakeQueue) all() []speech.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]speech.Request(nil), q.reqs...)
}

// fakeFlusher lets the test interleave activity with an in-flight flush.
type fakeFlusher struct {
	err     error
	onFlush func()
	flushed int
	flushMu sync.Mutex
}

func (f *fakeFlusher) Flush(ctx context.Context) error {
	f.flushMu.Lock()
	f.flushed++
	f.flushMu.Unlock()
	if f.onFlush != nil {
		f.onFlush()
	}
	return f.err
}

func TestDispatch_SpeaksWithCancelTag(t *testing.T) {
	store := NewStore()
	queue := &fakeQueue{}
	d := NewDispatcher(store, nil, queue, nil)

	err := d.Dispatch(context.Background(), Request{
		SessionKey: "s1",
		Level:      LevelTurnComplete,
		Message:    "Claude is waiting.",
		DebugLabel: "turn-complete",
	})
	require.NoError(t, err)

	reqs := queue.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Claude is waiting.", reqs[0].Message)
	assert.Equal(t, "notification:s1", reqs[0].CancelTag)
	assert.Equal(t, "s1", reqs[0].SessionID)
	assert.False(t, store.ShouldNotify("s1", LevelTurnComplete))
}

func TestDispatch_SecondSameLevelSuppressed(t *testing.T) {
	store := NewStore()
	queue := &fakeQueue{}
	d := NewDispatcher(store, nil, queue, nil)

	req := Request{SessionKey: "s1", Level: LevelTurnComplete, Message: "waiting", DebugLabel: "turn"}
	require.NoError(t, d.Dispatch(context.Background(), req))
	require.NoError(t, d.Dispatch(context.Background(), req))

	assert.Len(t, queue.all(), 1)
}

func TestDispatch_HigherLevelOverrides(t *testing.T) {
	store := NewStore()
	queue := &fakeQueue{}
	d := NewDispatcher(store, nil, queue, nil)

	require.NoError(t, d.Dispatch(context.Background(), Request{
		SessionKey: "s1", Level: LevelTurnComplete, Message: "waiting", DebugLabel: "turn",
	}))
	require.NoError(t, d.Dispatch(context.Background(), Request{
		SessionKey: "s1", Level: LevelQuestion, Message: "question", DebugLabel: "ask",
	}))

	reqs := queue.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, "question", reqs[1].Message)
}

func TestDispatch_StaleAfterFlushDropped(t *testing.T) {
	store := NewStore()
	queue := &fakeQueue{}

	// Newer activity lands while the flush is in flight.
	flusher := &fakeFlusher{}
	flusher.onFlush = func() { store.CancelActivity("s1") }

	d := NewDispatcher(store, flusher, queue, nil)
	err := d.Dispatch(context.Background(), Request{
		SessionKey:   "s1",
		Level:        LevelTurnComplete,
		Message:      "stale",
		DebugLabel:   "turn",
		FlushSummary: true,
	})

	require.NoError(t, err)
	assert.Empty(t, queue.all(), "stale notification must not reach the queue")
	// The level was never claimed, so the next turn-complete can speak.
	assert.True(t, store.ShouldNotify("s1", LevelTurnComplete))
}

func TestDispatch_FlushErrorAbortsWithoutSpeaking(t *testing.T) {
	store := NewStore()
	queue := &fakeQueue{}
	flusher := &fakeFlusher{err: errors.New("generator down")}

	d := NewDispatcher(store, flusher, queue, nil)
	err := d.Dispatch(context.Background(), Request{
		SessionKey:   "s1",
		Level:        LevelTurnComplete,
		Message:      "waiting",
		DebugLabel:   "turn",
		FlushSummary: true,
	})

	require.Error(t, err)
	assert.Empty(t, queue.all())
	assert.True(t, store.ShouldNotify("s1", LevelTurnComplete))
}

func TestDispatch_NoFlushWhenNotRequested(t *testing.T) {
	store := NewStore()
	queue := &fakeQueue{}
	flusher := &fakeFlusher{}

	d := NewDispatcher(store, flusher, queue, nil)
	require.NoError(t, d.Dispatch(context.Background(), Request{
		SessionKey: "s1", Level: LevelPermission, Message: "permission", DebugLabel: "perm",
	}))

	assert.Equal(t, 0, flusher.flushed)
	assert.Len(t, queue.all(), 1)
}

func TestDispatch_RacedCancelNeverSpeaks(t *testing.T) {
	store := NewStore()
	queue := &fakeQueue{}

	started := make(chan struct{})
	release := make(chan struct{})
	flusher := &fakeFlusher{}
	flusher.onFlush = func() {
		close(started)
		<-release
	}
	d := NewDispatcher(store, flusher, queue, nil)

	done := make(chan error, 1)
	go func() {
		done <- d.Dispatch(context.Background(), Request{
			SessionKey:   "s1",
			Level:        LevelTurnComplete,
			Message:      "waiting",
			DebugLabel:   "turn",
			FlushSummary: true,
		})
	}()

	<-started
	store.CancelActivity("s1")
	close(release)
	require.NoError(t, <-done)
	assert.Empty(t, queue.all())
}
