package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"habla/log"
)

const (
	idLayout     = "20060102_150405"
	headerLayout = "2006-01-02 15:04:05"
	lineLayout   = "15:04:05"

	AudioFile      = "recording.wav"
	TranscriptFile = "transcript.txt"
)

// Session is one start-to-stop recording run and its directory.
type Session struct {
	ID             string
	Dir            string
	AudioPath      string
	TranscriptPath string
	StartedAt      time.Time
	EndedAt        *time.Time

	mu    sync.Mutex
	lines int
}

// Lines reports how many transcript lines have been appended.
func (s *Session) Lines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// TranscriptLine is one recognized utterance and its translation.
type TranscriptLine struct {
	Time   time.Time
	Source string
	Target string
}

// Block is the transcript file form of the line.
func (l TranscriptLine) Block() string {
	return fmt.Sprintf("\n[%s]\nEnglish: %s\nSpanish: %s\n", l.Time.Format(lineLayout), l.Source, l.Target)
}

// Display is the form shown in the UI text area.
func (l TranscriptLine) Display() string {
	return fmt.Sprintf("\n[%s]\nEnglish: %s\nSpanish: %s\n%s", l.Time.Format(lineLayout), l.Source, l.Target, strings.Repeat("-", 40))
}

// writeFile is swapped in tests to simulate a full disk.
var writeFile = os.WriteFile

// Store owns the sessions root directory.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (st *Store) Root() string { return st.root }

// Create makes a fresh directory for a session starting at t and writes the
// transcript header. If a directory for the same second already exists a
// numeric suffix is appended.
func (st *Store) Create(t time.Time) (*Session, error) {
	if err := os.MkdirAll(st.root, 0755); err != nil {
		return nil, fmt.Errorf("creating sessions root: %w", err)
	}

	base := t.Format(idLayout)
	id := base
	var dir string
	for n := 2; ; n++ {
		dir = filepath.Join(st.root, id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("creating session dir: %w", err)
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}

	s := &Session{
		ID:             id,
		Dir:            dir,
		AudioPath:      filepath.Join(dir, AudioFile),
		TranscriptPath: filepath.Join(dir, TranscriptFile),
		StartedAt:      t,
	}
	header := fmt.Sprintf("Transcription Session - %s\n\n", t.Format(headerLayout))
	if err := writeFile(s.TranscriptPath, []byte(header), 0644); err != nil {
		log.Errorf("write transcript header %s: %v", s.TranscriptPath, err)
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing transcript header: %w", err)
	}
	return s, nil
}

func appendFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// AppendLine adds one block to the transcript. The file is opened and
// closed on every call so a crash never loses earlier lines.
func (st *Store) AppendLine(s *Session, line TranscriptLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndedAt != nil {
		return fmt.Errorf("session %s already finalized", s.ID)
	}
	if err := appendFile(s.TranscriptPath, line.Block()); err != nil {
		log.Errorf("append transcript %s: %v", s.TranscriptPath, err)
		return fmt.Errorf("appending transcript line: %w", err)
	}
	s.lines++
	return nil
}

// Finalize writes the end line. Later calls are no-ops.
func (st *Store) Finalize(s *Session, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndedAt != nil {
		return nil
	}
	end := t
	s.EndedAt = &end
	if err := appendFile(s.TranscriptPath, fmt.Sprintf("\nSession ended at %s", t.Format(headerLayout))); err != nil {
		log.Errorf("finalize transcript %s: %v", s.TranscriptPath, err)
		return fmt.Errorf("writing session end: %w", err)
	}
	return nil
}

// List returns session IDs under the root in chronological order.
func (st *Store) List() ([]string, error) {
	entries, err := os.ReadDir(st.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.ParseInLocation(idLayout, e.Name()[:min(len(e.Name()), len(idLayout))], time.Local); err != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}
