package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/activity"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/speech"
)

// Flusher is the summarizer operation the dispatcher depends on: drain
// buffered activity into narration before the notification speaks.
type Flusher interface {
	Flush(ctx context.Context) error
}

// OutputQueue is the speaking surface the dispatcher enqueues into.
type OutputQueue interface {
	Speak(req speech.Request)
}

// Request describes one notification to dispatch.
type Request struct {
	SessionKey string
	Level      Level
	Message    string
	Project    *activity.Project
	DebugLabel string
	// FlushSummary drains pending narration before the notification so the
	// spoken order stays "what happened, then the prompt".
	FlushSummary bool
}

// Dispatcher decides whether a notification may speak. It is the one place
// that tolerates a summarizer flush completing after newer activity has
// already invalidated the notification.
type Dispatcher struct {
	store      *Store
	summarizer Flusher
	queue      OutputQueue
	logger     *zap.Logger
}

// NewDispatcher wires a dispatcher. summarizer may be nil when narration is
// disabled; FlushSummary requests then skip straight to the checks.
func NewDispatcher(store *Store, summarizer Flusher, queue OutputQueue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, summarizer: summarizer, queue: queue, logger: logger}
}

// CancelTag returns the output-queue tag for a session's notifications.
func CancelTag(sessionKey string) string {
	return "notification:" + sessionKey
}

// Dispatch runs the notification algorithm. A nil return means the
// notification was either enqueued or dropped as stale/suppressed; errors
// are only returned for summarizer failures.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	gen := d.store.Generation(req.SessionKey)

	if req.FlushSummary && d.summarizer != nil {
		if err := d.summarizer.Flush(ctx); err != nil {
			return fmt.Errorf("flush summary before %s: %w", req.DebugLabel, err)
		}
	}

	// The flush may have taken long enough for newer activity to arrive.
	// A generation bump means this notification describes a stale state.
	if now := d.store.Generation(req.SessionKey); now != gen {
		d.logger.Debug("notification superseded by newer activity",
			zap.String("label", req.DebugLabel),
			zap.String("session", req.SessionKey),
			zap.Uint64("generation", gen),
			zap.Uint64("current", now))
		return nil
	}

	if !d.store.ShouldNotify(req.SessionKey, req.Level) {
		d.logger.Debug("notification suppressed by higher priority",
			zap.String("label", req.DebugLabel),
			zap.String("session", req.SessionKey),
			zap.Stringer("level", req.Level))
		return nil
	}

	d.store.SetLevel(req.SessionKey, req.Level)
	d.logger.Debug("notification accepted",
		zap.String("label", req.DebugLabel),
		zap.String("session", req.SessionKey),
		zap.Stringer("level", req.Level))

	d.queue.Speak(speech.Request{
		Message:   req.Message,
		Project:   req.Project,
		SessionID: req.SessionKey,
		CancelTag: CancelTag(req.SessionKey),
	})
	return nil
}
