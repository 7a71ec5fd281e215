package narrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/activity"
)

// fakeGenerator records prompts and returns canned narrations, optionally
// blocking until released to simulate a slow generator call.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   []string // user prompts, in call order
	reply   string
	err     error
	blockCh chan struct{} // when non-nil, Generate waits for a receive
}

func (g *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	if g.blockCh != nil {
		select {
		case <-g.blockCh:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, user)
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return fmt.Sprintf("narration %d", len(g.calls)), nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGenerator) call(i int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[i]
}

type spokenRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *spokenRecorder) speak(message, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, message)
}

func (r *spokenRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func newTestSummarizer(gen Generator, spoken *spokenRecorder) *Summarizer {
	return NewSummarizer(gen, spoken.speak, Options{
		Throttle:         10 * time.Millisecond,
		GeneratorTimeout: time.Second,
		MaxPromptEvents:  10,
	}, nil)
}

func TestFlush_SingleCallAllEventsInOrder(t *testing.T) {
	gen := &fakeGenerator{}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)

	for i := 0; i < 4; i++ {
		s.Record(activity.NewToolUse("Bash", fmt.Sprintf("cmd-%d", i), "s1"), false)
	}
	require.NoError(t, s.Flush(context.Background()))

	require.Equal(t, 1, gen.callCount())
	prompt := gen.call(0)
	for i := 0; i < 4; i++ {
		assert.Contains(t, prompt, fmt.Sprintf("%d. Bash: cmd-%d", i+1, i))
	}
	require.Len(t, spoken.all(), 1)
	assert.Equal(t, "narration 1.", spoken.all()[0])
}

func TestFlush_EmptyBufferNoCall(t *testing.T) {
	gen := &fakeGenerator{}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 0, gen.callCount())
	assert.Empty(t, spoken.all())
}

func TestFlush_ConcurrentFlushDeferred(t *testing.T) {
	gen := &fakeGenerator{blockCh: make(chan struct{})}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)

	s.Record(activity.NewToolUse("Read", "/a.go", "s1"), false)

	firstDone := make(chan struct{})
	go func() {
		_ = s.Flush(context.Background())
		close(firstDone)
	}()

	// Wait for the first flush to reach the (blocked) generator, then record
	// more events and start a second flush.
	time.Sleep(20 * time.Millisecond)
	s.Record(activity.NewToolUse("Write", "/b.go", "s1"), false)

	secondDone := make(chan struct{})
	go func() {
		_ = s.Flush(context.Background())
		close(secondDone)
	}()

	select {
	case <-secondDone:
		t.Fatal("second flush completed while first was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	gen.blockCh <- struct{}{} // release first call
	<-firstDone
	gen.blockCh <- struct{}{} // release second call
	<-secondDone

	require.Equal(t, 2, gen.callCount())
	assert.Contains(t, gen.call(0), "Read: /a.go")
	assert.NotContains(t, gen.call(0), "Write: /b.go")
	assert.Contains(t, gen.call(1), "Write: /b.go")
	assert.NotContains(t, gen.call(1), "Read: /a.go")
}

func TestFlush_GeneratorFailureSpeaksFallback(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)

	s.Record(activity.NewToolUse("Bash", "make", "s1"), false)
	s.Record(activity.NewText("done", "s1"), false)
	require.NoError(t, s.Flush(context.Background()))

	lines := spoken.all()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "2 activities")

	// History stays clean: the next successful narration has no previous
	// narration context from the failed attempt.
	gen.mu.Lock()
	gen.err = nil
	gen.mu.Unlock()
	s.Record(activity.NewText("retrying", "s1"), false)
	require.NoError(t, s.Flush(context.Background()))
	assert.NotContains(t, gen.call(1), "Previous narration")
}

func TestFlush_FallbackSingularMessage(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)

	s.Record(activity.NewText("only one", "s1"), false)
	require.NoError(t, s.Flush(context.Background()))
	require.Len(t, spoken.all(), 1)
	assert.Contains(t, spoken.all()[0], "one activity")
}

func TestFlush_HistoryCarriedAndCapped(t *testing.T) {
	gen := &fakeGenerator{}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)

	for i := 0; i < 4; i++ {
		s.Record(activity.NewText(fmt.Sprintf("step %d", i), "s1"), false)
		require.NoError(t, s.Flush(context.Background()))
	}

	require.Equal(t, 4, gen.callCount())
	// Second prompt carries the first narration as context.
	assert.Contains(t, gen.call(1), "- narration 1.")
	// Fourth prompt carries only the two most recent narrations.
	fourth := gen.call(3)
	assert.NotContains(t, fourth, "- narration 1.")
	assert.Contains(t, fourth, "- narration 2.")
	assert.Contains(t, fourth, "- narration 3.")
	assert.Equal(t, 1, strings.Count(fourth, "- narration 2."))
}

func TestFlush_SessionsIsolated(t *testing.T) {
	gen := &fakeGenerator{}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)

	s.Record(activity.NewText("session one work", "s1"), false)
	s.Record(activity.NewText("session two work", "s2"), false)
	require.NoError(t, s.Flush(context.Background()))

	require.Equal(t, 2, gen.callCount())
	assert.NotEqual(t, gen.call(0), gen.call(1))
}

func TestFlush_ContextAlreadyCancelled(t *testing.T) {
	gen := &fakeGenerator{}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)

	s.Record(activity.NewText("pending", "s1"), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, gen.callCount())
	assert.Empty(t, spoken.all())
}

func TestRecord_TriggerSchedulesThrottledFlush(t *testing.T) {
	gen := &fakeGenerator{}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)
	s.Start()
	defer s.Stop()

	s.Record(activity.NewToolUse("Bash", "ls", "s1"), true)
	s.Record(activity.NewToolUse("Bash", "pwd", "s1"), true) // coalesces

	require.Eventually(t, func() bool { return gen.callCount() == 1 },
		time.Second, 5*time.Millisecond)
	prompt := gen.call(0)
	assert.Contains(t, prompt, "Bash: ls")
	assert.Contains(t, prompt, "Bash: pwd")
}

func TestRecord_NoScheduleWhenInactive(t *testing.T) {
	gen := &fakeGenerator{}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)

	s.Record(activity.NewToolUse("Bash", "ls", "s1"), true)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, gen.callCount())
	assert.Equal(t, 1, s.PendingEvents())
}

func TestStop_CancelsOutstandingTimer(t *testing.T) {
	gen := &fakeGenerator{}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)
	s.Start()

	s.Record(activity.NewToolUse("Bash", "ls", "s1"), true)
	s.Stop()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, gen.callCount())
}

func TestFlush_ReschedulesWhenEventsArriveDuringFlush(t *testing.T) {
	gen := &fakeGenerator{blockCh: make(chan struct{})}
	spoken := &spokenRecorder{}
	s := newTestSummarizer(gen, spoken)
	s.Start()
	defer s.Stop()

	s.Record(activity.NewText("first", "s1"), false)

	done := make(chan struct{})
	go func() {
		_ = s.Flush(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Record(activity.NewText("arrived mid-flush", "s1"), false)
	gen.blockCh <- struct{}{}
	<-done

	// The post-flush reschedule picks up the mid-flush event.
	gen.blockCh <- struct{}{}
	require.Eventually(t, func() bool { return gen.callCount() == 2 },
		time.Second, 5*time.Millisecond)
	assert.Contains(t, gen.call(1), "arrived mid-flush")
}
