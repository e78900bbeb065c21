// Package shutdown routes termination signals to the session controller so
// an interrupted session still gets its end line and audio file.
package shutdown

import (
	"os"
	"os/signal"
)

func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, signals...)
}

func Stop(ch chan<- os.Signal) {
	signal.Stop(ch)
}
