package narrate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/activity"
)

// historyDepth is how many prior narrations carry forward as continuity
// context for the next prompt.
const historyDepth = 2

// SpeakFunc receives a finished narration for a session.
type SpeakFunc func(message, sessionID string)

// Options tunes the summarizer.
type Options struct {
	// Throttle is the delay between a triggering Record and the scheduled
	// flush, coalescing bursts of activity into one generator call.
	Throttle time.Duration
	// GeneratorTimeout bounds one generator call.
	GeneratorTimeout time.Duration
	// MaxPromptEvents caps how many events one prompt embeds.
	MaxPromptEvents int
	// Language the narration is generated in.
	Language string
}

type sessionBuffer struct {
	events  []activity.Event
	history []string
}

// Summarizer batches activity events per session and turns them into short
// spoken narrations. Flushes are strictly serialized: at most one generator
// call is in flight process-wide, and a Flush entered while another runs
// waits for it and then processes whatever accumulated in the meantime.
type Summarizer struct {
	gen    Generator
	speak  SpeakFunc
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sessionBuffer
	timer    *time.Timer
	active   bool

	// flushMu is the async mutex giving "one in-flight flush, strictly
	// ordered" semantics.
	flushMu sync.Mutex
}

// NewSummarizer wires a summarizer. It starts inactive: throttled
// scheduling only happens between Start and Stop, while explicit Flush
// calls work at any time.
func NewSummarizer(gen Generator, speak SpeakFunc, opts Options, logger *zap.Logger) *Summarizer {
	if opts.Throttle <= 0 {
		opts.Throttle = 20 * time.Second
	}
	if opts.GeneratorTimeout <= 0 {
		opts.GeneratorTimeout = 30 * time.Second
	}
	if opts.MaxPromptEvents <= 0 {
		opts.MaxPromptEvents = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		gen:      gen,
		speak:    speak,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*sessionBuffer),
	}
}

// Record appends an event to its session's buffer. With trigger set and the
// summarizer active, a throttled flush is scheduled unless one is already
// pending; bursts coalesce into the existing timer.
func (s *Summarizer) Record(ev activity.Event, trigger bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.buffer(ev.SessionID)
	buf.events = append(buf.events, ev)
	if trigger && s.active {
		s.scheduleLocked()
	}
}

// buffer must be called with s.mu held.
func (s *Summarizer) buffer(sessionID string) *sessionBuffer {
	buf, ok := s.sessions[sessionID]
	if !ok {
		buf = &sessionBuffer{}
		s.sessions[sessionID] = buf
	}
	return buf
}

// scheduleLocked arms the single throttle timer. Caller holds s.mu.
func (s *Summarizer) scheduleLocked() {
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.opts.Throttle, func() {
		if err := s.Flush(context.Background()); err != nil {
			s.logger.Error("throttled flush failed", zap.Error(err))
		}
	})
}

// Start enables throttled flush scheduling.
func (s *Summarizer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
}

// Stop disables throttled scheduling and cancels any outstanding timer.
// Buffered events stay put; a final explicit Flush can still drain them.
func (s *Summarizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.cancelTimerLocked()
}

// cancelTimerLocked must be called with s.mu held.
func (s *Summarizer) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// PendingEvents reports how many events await narration across sessions.
func (s *Summarizer) PendingEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, buf := range s.sessions {
		n += len(buf.events)
	}
	return n
}

// Flush drains every non-empty session buffer into narration. A generator
// failure for a session is recovered locally: the events are dropped, a
// fallback line reporting the lost count is spoken, and the session's
// narration history is left untouched. Flush only returns an error when the
// caller's context is done before work starts.
func (s *Summarizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.mu.Unlock()

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("flush aborted: %w", err)
	}

	for _, sessionID := range s.pendingSessions() {
		events, history := s.takeBuffer(sessionID)
		if len(events) == 0 {
			continue
		}
		s.narrate(ctx, sessionID, events, history)
	}

	// Events recorded while the generator ran get their own pass.
	s.mu.Lock()
	if s.active && s.hasPendingLocked() {
		s.scheduleLocked()
	}
	s.mu.Unlock()

	return nil
}

// pendingSessions returns session keys in stable order.
func (s *Summarizer) pendingSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sessions))
	for key, buf := range s.sessions {
		if len(buf.events) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// takeBuffer snapshots and clears a session's event buffer and copies its
// narration history.
func (s *Summarizer) takeBuffer(sessionID string) ([]activity.Event, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.buffer(sessionID)
	events := buf.events
	buf.events = nil
	history := append([]string(nil), buf.history...)
	return events, history
}

func (s *Summarizer) hasPendingLocked() bool {
	for _, buf := range s.sessions {
		if len(buf.events) > 0 {
			return true
		}
	}
	return false
}

// narrate runs one generator call for one session's snapshot.
func (s *Summarizer) narrate(ctx context.Context, sessionID string, events []activity.Event, history []string) {
	kept, omitted := selectEventsForPrompt(events, s.opts.MaxPromptEvents)
	user := buildUserPrompt(kept, omitted, history)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.GeneratorTimeout)
	defer cancel()

	narration, err := s.gen.Generate(callCtx, systemPrompt(s.opts.Language), user)
	if err != nil {
		// The snapshot is already gone; report the loss instead of narrating,
		// and keep the history clean of the failed attempt.
		s.logger.Warn("narration generation failed",
			zap.String("session", sessionID),
			zap.Int("lost", len(events)),
			zap.Error(err))
		s.speak(fallbackMessage(len(events)), sessionID)
		return
	}

	narration = EnsureTerminalPunctuation(narration)

	s.mu.Lock()
	buf := s.buffer(sessionID)
	buf.history = append(buf.history, narration)
	if len(buf.history) > historyDepth {
		buf.history = buf.history[len(buf.history)-historyDepth:]
	}
	s.mu.Unlock()

	s.logger.Debug("narration generated",
		zap.String("session", sessionID),
		zap.Int("events", len(kept)),
		zap.Int("omitted", omitted))
	s.speak(narration, sessionID)
}

// fallbackMessage is spoken instead of a narration when generation fails.
func fallbackMessage(lost int) string {
	if lost == 1 {
		return "Narration is unavailable, one activity was skipped."
	}
	return fmt.Sprintf("Narration is unavailable, %d activities were skipped.", lost)
}
