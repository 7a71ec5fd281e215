package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/activity"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/config"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/history"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/narrate"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/notify"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/speech"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/watch"
)

// Daemon wires the watcher, summarizer, notification store/dispatcher and
// output queue together and routes watcher signals between them.
type Daemon struct {
	cfg    config.Config
	logger *zap.Logger

	store      *notify.Store
	summarizer *narrate.Summarizer
	dispatcher *notify.Dispatcher
	queue      *speech.Queue
	watcher    *watch.Watcher
	hist       *history.Store

	// Last seen project per session, for narration affinity.
	mu       sync.Mutex
	projects map[string]*activity.Project
}

// New assembles a daemon from config. Narration is skipped when disabled or
// when the generator API key is absent; everything else still runs.
func New(cfg config.Config, logger *zap.Logger) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    notify.NewStore(),
		projects: make(map[string]*activity.Project),
	}

	if cfg.History.Enabled {
		hist, err := history.Open(cfg.History.Path)
		if err != nil {
			// The history log is advisory; run without it.
			logger.Warn("history disabled", zap.Error(err))
		} else {
			d.hist = hist
		}
	}

	engine := speech.NewEngine(cfg.Speech.Command, cfg.Speech.Args, logger)
	d.queue = speech.NewQueue(engine.Speak, speech.Config{
		MaxMessageLen: cfg.Speech.MaxMessageChars,
		TruncateSep:   cfg.Speech.TruncateSeparator,
		MaxQueueWait:  time.Duration(cfg.Speech.MaxQueueWaitSeconds) * time.Second,
		OnSpoken:      d.recordSpoken,
	}, logger)

	if cfg.Narration.Enabled {
		client := narrate.NewClient(cfg.Generator)
		if client.HasAPIKey() {
			d.summarizer = narrate.NewSummarizer(client, d.speakNarration, narrate.Options{
				Throttle:         cfg.Throttle(),
				GeneratorTimeout: cfg.GeneratorTimeout(),
				MaxPromptEvents:  cfg.Narration.MaxPromptEvents,
				Language:         cfg.Narration.Language,
			}, logger)
		} else {
			logger.Warn("narration disabled: generator API key not set",
				zap.String("env", cfg.Generator.APIKeyEnv))
		}
	}

	var flusher notify.Flusher
	if d.summarizer != nil {
		flusher = d.summarizer
	}
	d.dispatcher = notify.NewDispatcher(d.store, flusher, d.queue, logger)

	watcher, err := watch.New(cfg.Watch.ProjectsDir, cfg.HookSpoolPath(), logger)
	if err != nil {
		return nil, err
	}
	d.watcher = watcher

	return d, nil
}

// Run processes watcher signals until ctx is cancelled, then shuts down
// gracefully: narration timer stopped, one final bounded flush, queue
// drained without speaking, in-flight speech awaited.
func (d *Daemon) Run(ctx context.Context) error {
	if d.summarizer != nil {
		d.summarizer.Start()
	}
	if err := d.watcher.Start(ctx); err != nil {
		return err
	}
	d.logger.Info("daemon started",
		zap.String("projects", d.cfg.Watch.ProjectsDir),
		zap.Bool("narration", d.summarizer != nil))

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case sig := <-d.watcher.Signals():
			d.route(ctx, sig)
		}
	}
}

// Abort cuts off in-flight speech and drops all queued work. Used on the
// second interrupt while a graceful shutdown is still draining.
func (d *Daemon) Abort() {
	d.queue.Abort()
}

func (d *Daemon) shutdown() {
	d.watcher.Stop()

	if d.summarizer != nil {
		d.summarizer.Stop()
		flushCtx, cancel := context.WithTimeout(context.Background(), d.cfg.GeneratorTimeout())
		if err := d.summarizer.Flush(flushCtx); err != nil {
			d.logger.Warn("final flush", zap.Error(err))
		}
		cancel()
	}

	d.queue.StopGracefully()

	if d.hist != nil {
		if err := d.hist.Close(); err != nil {
			d.logger.Warn("close history", zap.Error(err))
		}
	}
	d.logger.Info("daemon stopped")
}

// route applies the per-signal rules: activity invalidates pending
// notifications and feeds narration; prompts and completions dispatch
// prioritized notifications.
func (d *Daemon) route(ctx context.Context, sig watch.Signal) {
	if sig.Project != nil {
		d.mu.Lock()
		d.projects[sig.SessionID] = sig.Project
		d.mu.Unlock()
	}

	switch sig.Kind {
	case watch.SignalActivity:
		d.invalidate(sig.SessionID)
		if d.summarizer != nil {
			d.summarizer.Record(sig.Event, true)
		}

	case watch.SignalUserResponse:
		d.invalidate(sig.SessionID)

	case watch.SignalTurnComplete:
		d.dispatch(ctx, notify.Request{
			SessionKey:   sig.SessionID,
			Level:        notify.LevelTurnComplete,
			Message:      "Done. Waiting for your response.",
			Project:      d.projectOf(sig.SessionID, sig.Project),
			DebugLabel:   "turn-complete",
			FlushSummary: true,
		})

	case watch.SignalAskQuestion:
		d.dispatch(ctx, notify.Request{
			SessionKey:   sig.SessionID,
			Level:        notify.LevelQuestion,
			Message:      questionMessage(sig.Message),
			Project:      d.projectOf(sig.SessionID, sig.Project),
			DebugLabel:   "ask-question",
			FlushSummary: true,
		})

	case watch.SignalPermission:
		d.dispatch(ctx, notify.Request{
			SessionKey: sig.SessionID,
			Level:      notify.LevelPermission,
			Message:    orDefault(sig.Message, "Claude is asking for permission."),
			Project:    d.projectOf(sig.SessionID, sig.Project),
			DebugLabel: "permission-prompt",
		})

	case watch.SignalIdle:
		d.dispatch(ctx, notify.Request{
			SessionKey: sig.SessionID,
			Level:      notify.LevelIdle,
			Message:    orDefault(sig.Message, "Claude is waiting for your input."),
			Project:    d.projectOf(sig.SessionID, sig.Project),
			DebugLabel: "idle-prompt",
		})
	}
}

// invalidate bumps the session generation and removes its queued, not yet
// spoken notifications.
func (d *Daemon) invalidate(sessionID string) {
	d.store.CancelActivity(sessionID)
	d.queue.CancelByTag(notify.CancelTag(sessionID))
}

func (d *Daemon) dispatch(ctx context.Context, req notify.Request) {
	if err := d.dispatcher.Dispatch(ctx, req); err != nil {
		d.logger.Error("dispatch failed",
			zap.String("label", req.DebugLabel),
			zap.String("session", req.SessionKey),
			zap.Error(err))
	}
}

// speakNarration is the summarizer's speak callback.
func (d *Daemon) speakNarration(message, sessionID string) {
	d.queue.Speak(speech.Request{
		Message:   message,
		Project:   d.projectOf(sessionID, nil),
		SessionID: sessionID,
	})
}

// projectOf prefers the signal's own project, falling back to the last one
// seen for the session.
func (d *Daemon) projectOf(sessionID string, fromSignal *activity.Project) *activity.Project {
	if fromSignal != nil {
		return fromSignal
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.projects[sessionID]
}

// recordSpoken logs every spoken utterance to the history store.
func (d *Daemon) recordSpoken(sp speech.Spoken) {
	if d.hist == nil {
		return
	}
	kind := history.KindNarration
	switch {
	case sp.Announcement:
		kind = history.KindAnnouncement
	case sp.CancelTag != "":
		kind = history.KindNotification
	}
	var project string
	if sp.Project != nil {
		project = sp.Project.Dir
	}
	if err := d.hist.Record(history.Utterance{
		SessionID: sp.SessionID,
		Project:   project,
		Kind:      kind,
		Message:   sp.Message,
	}); err != nil {
		d.logger.Warn("record history", zap.Error(err))
	}
}

func questionMessage(question string) string {
	if question == "" {
		return "Claude is asking a question."
	}
	return "Claude is asking: " + question
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}
