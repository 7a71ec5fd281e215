package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/config"
)

// Input is the JSON object Claude Code sends to hooks via stdin.
type Input struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	HookEventName  string `json:"hook_event_name"`
	CWD            string `json:"cwd,omitempty"`
	Message        string `json:"message,omitempty"`
	Title          string `json:"title,omitempty"`
}

// spooledEvents are the hook events forwarded to the daemon. Everything
// else exits quietly so Claude Code is never blocked.
var spooledEvents = map[string]bool{
	"Notification": true,
	"Stop":         true,
}

// Handle reads hook input from stdin and spools it for the daemon.
func Handle(cfg config.Config, event string) error {
	input, err := readStdin()
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return handleInput(input, event, cfg)
}

func handleInput(input *Input, event string, cfg config.Config) error {
	// Use event override if provided (e.g., --event Stop)
	if event != "" {
		input.HookEventName = event
	}
	if input.HookEventName == "" {
		return fmt.Errorf("missing hook event name")
	}
	if !spooledEvents[input.HookEventName] {
		return nil
	}
	return appendSpool(cfg.HookSpoolPath(), input)
}

func readStdin() (*Input, error) {
	// Read all stdin with a timeout
	done := make(chan []byte, 1)
	errCh := make(chan error, 1)

	go func() {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			errCh <- err
			return
		}
		done <- data
	}()

	var data []byte
	select {
	case data = <-done:
	case err := <-errCh:
		return nil, err
	case <-time.After(2 * time.Second):
		return nil, fmt.Errorf("stdin read timeout")
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("empty stdin")
	}

	var input Input
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parse stdin JSON: %w", err)
	}

	return &input, nil
}

// appendSpool appends the input as one JSON line. Hook processes run
// concurrently; a single O_APPEND write keeps lines whole.
func appendSpool(path string, input *Input) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create spool directory: %w", err)
	}

	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal hook input: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open spool: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append spool: %w", err)
	}
	return nil
}

// ParseLine decodes one spooled hook line back into an Input.
func ParseLine(line []byte) (*Input, error) {
	var input Input
	if err := json.Unmarshal(line, &input); err != nil {
		return nil, fmt.Errorf("decode spool line: %w", err)
	}
	return &input, nil
}
