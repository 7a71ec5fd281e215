package watch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/activity"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/hook"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/transcript"
)

// Watcher tails Claude Code transcript files and the hook spool, turning
// new JSONL lines into daemon signals. Files are read incrementally from a
// remembered byte offset; only complete lines are consumed.
type Watcher struct {
	fs          *fsnotify.Watcher
	projectsDir string
	spoolPath   string
	logger      *zap.Logger

	mu      sync.Mutex
	offsets map[string]int64

	signals chan Signal
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New creates a watcher over the Claude Code projects directory and the
// daemon's hook spool file.
func New(projectsDir, spoolPath string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fs:          fsw,
		projectsDir: projectsDir,
		spoolPath:   spoolPath,
		logger:      logger,
		offsets:     make(map[string]int64),
		signals:     make(chan Signal, 256),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Signals is the channel the daemon consumes.
func (w *Watcher) Signals() <-chan Signal {
	return w.signals
}

// Start registers watches, seeds offsets at end-of-file so history is not
// replayed, and begins the event loop. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addProjectWatches(); err != nil {
		w.logger.Warn("projects dir not watchable yet", zap.String("dir", w.projectsDir), zap.Error(err))
	}

	spoolDir := filepath.Dir(w.spoolPath)
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return fmt.Errorf("create spool directory: %w", err)
	}
	if err := w.fs.Add(spoolDir); err != nil {
		return fmt.Errorf("watch spool directory: %w", err)
	}
	w.seedOffset(w.spoolPath)

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.fs.Close(); err != nil {
		w.logger.Warn("close fsnotify watcher", zap.Error(err))
	}
}

// addProjectWatches watches the projects dir and every project subdirectory,
// remembering current sizes of existing transcripts.
func (w *Watcher) addProjectWatches() error {
	if err := w.fs.Add(w.projectsDir); err != nil {
		return err
	}
	return filepath.WalkDir(w.projectsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != w.projectsDir {
				if err := w.fs.Add(path); err != nil {
					w.logger.Warn("watch project dir", zap.String("dir", path), zap.Error(err))
				}
			}
			return nil
		}
		if strings.HasSuffix(path, ".jsonl") {
			w.seedOffset(path)
		}
		return nil
	})
}

func (w *Watcher) seedOffset(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.offsets[path] = info.Size()
	w.mu.Unlock()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	// New project directories appear when a session starts in a new cwd.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if strings.HasPrefix(event.Name, w.projectsDir+string(filepath.Separator)) {
				if err := w.fs.Add(event.Name); err != nil {
					w.logger.Warn("watch new project dir", zap.String("dir", event.Name), zap.Error(err))
				}
			}
			return
		}
	}

	switch {
	case event.Name == w.spoolPath:
		w.tailSpool()
	case strings.HasSuffix(event.Name, ".jsonl"):
		w.tailTranscript(event.Name)
	}
}

// tailTranscript reads new complete lines of a transcript file and emits
// the signals they carry.
func (w *Watcher) tailTranscript(path string) {
	lines, err := w.readNewLines(path)
	if err != nil {
		w.logger.Warn("tail transcript", zap.String("path", path), zap.Error(err))
		return
	}
	for _, line := range lines {
		entry, err := transcript.ParseLine(line)
		if err != nil {
			w.logger.Warn("transcript line", zap.String("path", path), zap.Error(err))
			continue
		}
		if entry == nil {
			continue
		}
		for _, sig := range entrySignals(entry) {
			w.emit(sig)
		}
	}
}

// tailSpool reads new hook lines and emits the notification signals.
func (w *Watcher) tailSpool() {
	lines, err := w.readNewLines(w.spoolPath)
	if err != nil {
		w.logger.Warn("tail spool", zap.Error(err))
		return
	}
	for _, line := range lines {
		input, err := hook.ParseLine(line)
		if err != nil {
			w.logger.Warn("spool line", zap.Error(err))
			continue
		}
		if sig, ok := hookSignal(input); ok {
			w.emit(sig)
		}
	}
}

// entrySignals converts one transcript entry into daemon signals.
func entrySignals(entry *transcript.Entry) []Signal {
	project := projectFor(entry.CWD)

	if transcript.IsUserText(entry) {
		return []Signal{{
			Kind:      SignalUserResponse,
			SessionID: entry.SessionID,
			Project:   project,
		}}
	}

	var signals []Signal
	for _, ev := range transcript.Events(entry) {
		if ev.Kind == activity.KindToolUse && ev.ToolName == "AskUserQuestion" {
			signals = append(signals, Signal{
				Kind:      SignalAskQuestion,
				SessionID: entry.SessionID,
				Project:   project,
				Message:   ev.Detail,
			})
			continue
		}
		signals = append(signals, Signal{
			Kind:      SignalActivity,
			SessionID: entry.SessionID,
			Project:   project,
			Event:     ev,
		})
	}
	return signals
}

// hookSignal classifies a spooled hook input.
func hookSignal(input *hook.Input) (Signal, bool) {
	base := Signal{
		SessionID: input.SessionID,
		Project:   projectFor(input.CWD),
		Message:   input.Message,
	}
	switch input.HookEventName {
	case "Stop":
		base.Kind = SignalTurnComplete
		return base, true
	case "Notification":
		if strings.Contains(strings.ToLower(input.Message), "permission") {
			base.Kind = SignalPermission
		} else {
			base.Kind = SignalIdle
		}
		return base, true
	}
	return Signal{}, false
}

// readNewLines returns the complete lines appended since the last read.
// A trailing partial line stays unconsumed until its newline arrives.
func (w *Watcher) readNewLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	offset := w.offsets[path]
	w.mu.Unlock()

	// Truncated or rotated files start over.
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return nil, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, nil
	}
	consumed := data[:end+1]

	w.mu.Lock()
	w.offsets[path] = offset + int64(len(consumed))
	w.mu.Unlock()

	var lines [][]byte
	for _, line := range bytes.Split(consumed, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (w *Watcher) emit(sig Signal) {
	select {
	case w.signals <- sig:
	case <-w.stopCh:
	}
}
