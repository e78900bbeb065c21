//go:build !windows

package shutdown

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestNotifyDeliversHangup(t *testing.T) {
	ch := make(chan os.Signal, 1)
	Notify(ch)
	defer Stop(ch)

	if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
		t.Skipf("cannot signal self: %v", err)
	}
	select {
	case sig := <-ch:
		if sig != syscall.SIGHUP {
			t.Errorf("got %v", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}
}
