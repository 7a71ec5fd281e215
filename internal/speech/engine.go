package speech

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// Engine speaks text by running a host text-to-speech command, one
// utterance per process. Cancelling the context kills the process, which
// is how forced shutdown cuts off in-flight speech.
type Engine struct {
	command string
	args    []string
	logger  *zap.Logger
}

// DefaultCommand picks the platform TTS command: `say` on macOS, `espeak`
// elsewhere.
func DefaultCommand() (string, []string) {
	if runtime.GOOS == "darwin" {
		return "say", nil
	}
	return "espeak", nil
}

// NewEngine builds an engine for the given command. Empty command falls
// back to the platform default.
func NewEngine(command string, args []string, logger *zap.Logger) *Engine {
	if command == "" {
		command, args = DefaultCommand()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{command: command, args: args, logger: logger}
}

// Speak runs the TTS command with the message appended as the final
// argument and waits for it to exit.
func (e *Engine) Speak(ctx context.Context, message string) error {
	if message == "" {
		return nil
	}
	args := append(append([]string(nil), e.args...), message)
	cmd := exec.CommandContext(ctx, e.command, args...)

	e.logger.Debug("speaking", zap.String("command", e.command), zap.Int("chars", len(message)))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("speech interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("run %s: %w", e.command, err)
	}
	return nil
}
