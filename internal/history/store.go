package history

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// Utterance kinds.
const (
	KindNarration    = "narration"
	KindNotification = "notification"
	KindAnnouncement = "announcement"
)

// Utterance is one spoken message. The log is advisory: nothing in the
// daemon reads it back at runtime.
type Utterance struct {
	ID        int64     `json:"id"`
	SpokenAt  time.Time `json:"spoken_at"`
	SessionID string    `json:"session_id,omitempty"`
	Project   string    `json:"project,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// Store persists spoken utterances in a SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS utterances (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    spoken_at TIMESTAMP NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    project TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    message TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_utterances_spoken_at ON utterances(spoken_at);
CREATE INDEX IF NOT EXISTS idx_utterances_session ON utterances(session_id);
`

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one spoken utterance. A zero SpokenAt becomes now.
func (s *Store) Record(u Utterance) error {
	if u.SpokenAt.IsZero() {
		u.SpokenAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO utterances (spoken_at, session_id, project, kind, message) VALUES (?, ?, ?, ?, ?)`,
		u.SpokenAt.UTC().Format(time.RFC3339Nano), u.SessionID, u.Project, u.Kind, u.Message,
	)
	if err != nil {
		return fmt.Errorf("record utterance: %w", err)
	}
	return nil
}

// Recent returns the n most recent utterances, newest first.
func (s *Store) Recent(n int) ([]Utterance, error) {
	rows, err := s.db.Query(
		`SELECT id, spoken_at, session_id, project, kind, message
		 FROM utterances ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanUtterances(rows)
}

// Export writes the full history as zstd-compressed JSONL, oldest first.
func (s *Store) Export(w io.Writer) error {
	rows, err := s.db.Query(
		`SELECT id, spoken_at, session_id, project, kind, message
		 FROM utterances ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	utterances, err := scanUtterances(rows)
	if err != nil {
		return err
	}

	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}

	for _, u := range utterances {
		data, err := json.Marshal(u)
		if err != nil {
			encoder.Close()
			return fmt.Errorf("marshal utterance: %w", err)
		}
		if _, err := encoder.Write(append(data, '\n')); err != nil {
			encoder.Close()
			return fmt.Errorf("compress: %w", err)
		}
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize compression: %w", err)
	}
	return nil
}

// ReadExport decodes an export stream back into utterances.
func ReadExport(r io.Reader) ([]Utterance, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	var utterances []Utterance
	scanner := bufio.NewScanner(decoder)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var u Utterance
		if err := json.Unmarshal(scanner.Bytes(), &u); err != nil {
			return nil, fmt.Errorf("decode export line: %w", err)
		}
		utterances = append(utterances, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan export: %w", err)
	}
	return utterances, nil
}

func scanUtterances(rows *sql.Rows) ([]Utterance, error) {
	var out []Utterance
	for rows.Next() {
		var u Utterance
		var spokenAt string
		if err := rows.Scan(&u.ID, &spokenAt, &u.SessionID, &u.Project, &u.Kind, &u.Message); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, spokenAt)
		if err != nil {
			return nil, fmt.Errorf("parse spoken_at: %w", err)
		}
		u.SpokenAt = ts
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
