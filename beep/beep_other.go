//go:build !linux && !darwin

package beep

import "errors"

func newPlayer() (player, error) {
	return nil, errors.New("no playback backend on this platform")
}
