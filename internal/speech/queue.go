package speech

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/activity"
)

// SpeakFunc performs the speaking side effect for one message. The queue
// invokes it at most once concurrently.
type SpeakFunc func(ctx context.Context, message string) error

// Request is one message handed to the queue by a caller.
type Request struct {
	Message   string
	Project   *activity.Project
	SessionID string
	CancelTag string
}

// Config tunes queue behavior. Zero values fall back to defaults.
type Config struct {
	// MaxMessageLen middle-truncates longer messages before speaking.
	MaxMessageLen int
	// TruncateSep joins the head and tail of a truncated message.
	TruncateSep string
	// MaxQueueWait bounds how long affinity ordering may starve an item.
	// Anything queued longer is promoted ahead of affinity preferences.
	MaxQueueWait time.Duration
	// OnSpoken, when set, observes every successfully spoken message.
	OnSpoken func(Spoken)
}

// Spoken describes one message after its side effect completed.
type Spoken struct {
	Message      string
	SessionID    string
	Project      *activity.Project
	CancelTag    string
	Announcement bool
}

const (
	defaultMaxMessageLen = 300
	defaultTruncateSep   = " ... "
	defaultMaxQueueWait  = 45 * time.Second
)

type item struct {
	id           string
	message      string
	project      *activity.Project
	sessionID    string
	cancelTag    string
	enqueuedAt   time.Time
	announcement bool
}

// Queue orders pending spoken messages by project/session affinity and
// runs the speak side effect one message at a time. Queued items can be
// cancelled by tag; the in-flight item is exempt.
type Queue struct {
	speak  SpeakFunc
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	items       []*item
	busy        bool
	closed      bool
	drained     chan struct{}
	drainedOnce sync.Once

	// Affinity tracking: the project/session of the most recent utterance.
	curProjectDir string
	curSession    string
}

// NewQueue builds an idle queue around the given side effect.
func NewQueue(speak SpeakFunc, cfg Config, logger *zap.Logger) *Queue {
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = defaultMaxMessageLen
	}
	if cfg.TruncateSep == "" {
		cfg.TruncateSep = defaultTruncateSep
	}
	if cfg.MaxQueueWait <= 0 {
		cfg.MaxQueueWait = defaultMaxQueueWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		speak:   speak,
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		drained: make(chan struct{}),
	}
}

// Speak enqueues a message and starts processing if the executor is idle.
// Requests after StopGracefully are dropped.
func (q *Queue) Speak(req Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Debug("queue closed, dropping message", zap.String("session", req.SessionID))
		return
	}
	it := &item{
		id:         uuid.NewString(),
		message:    MiddleTruncate(req.Message, q.cfg.MaxMessageLen, q.cfg.TruncateSep),
		project:    req.Project,
		sessionID:  req.SessionID,
		cancelTag:  req.CancelTag,
		enqueuedAt: time.Now(),
	}
	q.items = append(q.items, it)
	q.logger.Debug("queued message",
		zap.String("id", it.id),
		zap.String("session", it.sessionID),
		zap.Int("pending", len(q.items)))
	q.startNextLocked()
}

// CancelByTag removes all queued items with the given tag. The currently
// speaking item keeps playing even if its tag matches.
func (q *Queue) CancelByTag(tag string) {
	if tag == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, it := range q.items {
		if it.cancelTag == tag {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	if removed > 0 {
		q.logger.Debug("cancelled queued messages", zap.String("tag", tag), zap.Int("removed", removed))
	}
}

// Clear drops every queued item. The in-flight item is unaffected.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Len reports the number of queued (not in-flight) items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// StopGracefully stops accepting new speech, drops pending items without
// speaking them, and returns once the in-flight side effect has finished.
func (q *Queue) StopGracefully() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	if !q.busy {
		q.closeDrainedLocked()
	}
	q.mu.Unlock()
	<-q.drained
}

// Abort force-stops the queue: the in-flight side effect's context is
// cancelled and all queued work is dropped immediately.
func (q *Queue) Abort() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	if !q.busy {
		q.closeDrainedLocked()
	}
	q.mu.Unlock()
	q.cancel()
	<-q.drained
}

func (q *Queue) closeDrainedLocked() {
	q.drainedOnce.Do(func() { close(q.drained) })
}

// startNextLocked dispatches the next eligible item. Caller holds q.mu.
func (q *Queue) startNextLocked() {
	if q.busy {
		return
	}
	if q.closed {
		q.items = nil
		q.closeDrainedLocked()
		return
	}
	if len(q.items) == 0 {
		return
	}

	next := q.selectLocked()
	if toSpeak := q.switchAnnouncementLocked(next); toSpeak != nil {
		// The pending item stays queued at the front; the announcement
		// speaks first and retargets the tracked project.
		q.moveToFrontLocked(next)
		q.runLocked(toSpeak)
		return
	}

	q.removeLocked(next)
	q.runLocked(next)
}

// selectLocked picks the next item: age-promoted head, then same project and
// session, then same project, then FIFO head.
func (q *Queue) selectLocked() *item {
	now := time.Now()
	for _, it := range q.items {
		if now.Sub(it.enqueuedAt) > q.cfg.MaxQueueWait {
			return it
		}
	}
	if q.curProjectDir != "" {
		for _, it := range q.items {
			if it.project != nil && it.project.Dir == q.curProjectDir && it.sessionID == q.curSession {
				return it
			}
		}
		for _, it := range q.items {
			if it.project != nil && it.project.Dir == q.curProjectDir {
				return it
			}
		}
	}
	return q.items[0]
}

// switchAnnouncementLocked returns an announcement item when speaking next
// would change projects, nil when no announcement is needed.
func (q *Queue) switchAnnouncementLocked(next *item) *item {
	if next.project == nil || q.curProjectDir == "" || next.project.Dir == q.curProjectDir {
		return nil
	}
	name := next.project.DisplayName
	if name == "" {
		name = next.project.Dir
	}
	return &item{
		id:           uuid.NewString(),
		message:      fmt.Sprintf("Next, from project %s.", name),
		project:      next.project,
		enqueuedAt:   time.Now(),
		announcement: true,
	}
}

func (q *Queue) removeLocked(target *item) {
	for i, it := range q.items {
		if it == target {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

func (q *Queue) moveToFrontLocked(target *item) {
	q.removeLocked(target)
	q.items = append([]*item{target}, q.items...)
}

// runLocked marks the queue busy and executes the item's side effect on a
// fresh goroutine. Caller holds q.mu.
func (q *Queue) runLocked(it *item) {
	q.busy = true
	go func() {
		if err := q.speak(q.ctx, it.message); err != nil {
			// Side-effect errors never propagate; the queue just moves on.
			q.logger.Warn("speak failed", zap.String("id", it.id), zap.Error(err))
		} else if q.cfg.OnSpoken != nil {
			q.cfg.OnSpoken(Spoken{
				Message:      it.message,
				SessionID:    it.sessionID,
				Project:      it.project,
				CancelTag:    it.cancelTag,
				Announcement: it.announcement,
			})
		}
		q.mu.Lock()
		q.busy = false
		if it.project != nil {
			q.curProjectDir = it.project.Dir
		}
		if !it.announcement {
			q.curSession = it.sessionID
		}
		q.startNextLocked()
		q.mu.Unlock()
	}()
}

// MiddleTruncate shortens a message to max runes by cutting the middle and
// joining the halves with sep. Messages at or under the limit are returned
// unchanged.
func MiddleTruncate(message string, max int, sep string) string {
	runes := []rune(message)
	if len(runes) <= max || max <= 0 {
		return message
	}
	sepRunes := []rune(sep)
	keep := max - len(sepRunes)
	if keep < 2 {
		return string(runes[:max])
	}
	head := keep / 2
	tail := keep - head
	return string(runes[:head]) + sep + string(runes[len(runes)-tail:])
}
