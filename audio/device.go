package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var errSelectAborted = errors.New("device selection aborted")

type pickerKey int

const (
	keyNone pickerKey = iota
	keyUp
	keyDown
	keyConfirm
	keyCancel
)

// decodeKey maps one raw-mode read to a picker action. Arrow keys arrive
// as a three byte escape sequence.
func decodeKey(b []byte) pickerKey {
	switch {
	case len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'A':
		return keyUp
	case len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'B':
		return keyDown
	case len(b) != 1:
		return keyNone
	}
	switch b[0] {
	case '\r', '\n':
		return keyConfirm
	case 3, 'q': // ctrl+c
		return keyCancel
	case 'k':
		return keyUp
	case 'j':
		return keyDown
	}
	return keyNone
}

// renderPicker draws the list with the cursor row highlighted. Bluetooth
// devices carry a warning since their narrowband mic hurts recognition.
func renderPicker(w io.Writer, devices []DeviceDescriptor, cursor int) {
	var b strings.Builder
	b.WriteString("\r\x1b[JSelect microphone (↑/↓, Enter to confirm, q to cancel):\r\n\r\n")
	for i, d := range devices {
		label := d.Name
		if IsBluetooth(d.Name) {
			label += " \x1b[33m[bluetooth, expect worse recognition]\x1b[0m"
		}
		if i == cursor {
			fmt.Fprintf(&b, "  \x1b[1;36m▶ %s\x1b[0m\r\n", label)
		} else {
			fmt.Fprintf(&b, "    %s\r\n", label)
		}
	}
	io.WriteString(w, b.String())
}

// SelectDevice shows the catalog as an interactive list and returns the
// chosen entry. A single-entry catalog is returned without prompting.
func SelectDevice(c *Catalog) (DeviceDescriptor, error) {
	devices := c.ListInputDevices()
	if len(devices) == 1 {
		return devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	saved, err := term.MakeRaw(fd)
	if err != nil {
		return DeviceDescriptor{}, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, saved)

	cursor := 0
	renderPicker(os.Stdout, devices, cursor)
	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return DeviceDescriptor{}, fmt.Errorf("reading input: %w", err)
		}
		switch decodeKey(buf[:n]) {
		case keyConfirm:
			fmt.Print("\r\n")
			return devices[cursor], nil
		case keyCancel:
			fmt.Print("\r\n")
			return DeviceDescriptor{}, errSelectAborted
		case keyUp:
			cursor = max(cursor-1, 0)
		case keyDown:
			cursor = min(cursor+1, len(devices)-1)
		}
		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderPicker(os.Stdout, devices, cursor)
	}
}
