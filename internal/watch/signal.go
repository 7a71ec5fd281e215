package watch

import (
	"path/filepath"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/activity"
)

// SignalKind discriminates the events the watcher hands to the daemon.
type SignalKind string

const (
	// SignalActivity is one narratable assistant action (tool use or text).
	SignalActivity SignalKind = "activity"
	// SignalUserResponse is a human-typed user message.
	SignalUserResponse SignalKind = "user-response"
	// SignalAskQuestion is the assistant asking the user a question.
	SignalAskQuestion SignalKind = "ask-question"
	// SignalTurnComplete comes from the Stop hook.
	SignalTurnComplete SignalKind = "turn-complete"
	// SignalPermission comes from a Notification hook asking for permission.
	SignalPermission SignalKind = "permission"
	// SignalIdle comes from a Notification hook reporting an idle prompt.
	SignalIdle SignalKind = "idle"
)

// Signal is one typed daemon event extracted from a transcript or hook line.
type Signal struct {
	Kind      SignalKind
	SessionID string
	Project   *activity.Project
	Event     activity.Event // set for SignalActivity
	Message   string         // question text or hook message
}

// projectFor derives a project identity from a session working directory.
func projectFor(cwd string) *activity.Project {
	if cwd == "" {
		return nil
	}
	return &activity.Project{Dir: cwd, DisplayName: filepath.Base(cwd)}
}
