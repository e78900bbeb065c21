// Package clipboard copies transcript entries to the system clipboard.
package clipboard

import (
	"errors"
	"strings"

	cb "github.com/atotto/clipboard"
)

// ErrUnavailable means no clipboard tool (xclip, xsel, wl-copy, pbcopy) was found.
var ErrUnavailable = errors.New("clipboard unavailable")

func Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnavailable
	}
	return cb.ReadAll()
}

func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnavailable
	}
	return cb.WriteAll(text)
}

// LastEntry returns the most recent English/Spanish pair from display text,
// or "" if there is none.
func LastEntry(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.HasPrefix(lines[i], "English: ") {
			continue
		}
		entry := lines[i]
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "Spanish: ") {
			entry += "\n" + lines[i+1]
		}
		return entry
	}
	return ""
}

// CopyLast copies LastEntry(text). It reports false when there was nothing
// to copy.
func CopyLast(text string) (bool, error) {
	entry := LastEntry(text)
	if entry == "" {
		return false, nil
	}
	return true, Copy(entry)
}
