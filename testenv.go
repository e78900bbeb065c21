package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"habla/audio"
	"habla/log"
	"habla/pipeline"
)

const testWaitTimeout = 60 * time.Second

// runTestMode drives the controller from line commands on in:
//
//	START            start a session on the configured device
//	STOP             stop it
//	WAIT             block until the last session has been finalized
//	WAIT_AUDIO_DONE  block until the fake device has played its whole file
//	WAIT_LINES n     block until n transcript lines have been shown
//	SLEEP ms
//	QUIT
//
// Every display line and status change is echoed to out.
func runTestMode(a *app, fake *audio.FakeContext, sink *pipeline.ViewSink, in io.Reader, out io.Writer) int {
	done := make(chan struct{})
	echoed := make(chan struct{})
	go func() {
		defer close(echoed)
		echoEvents(sink.Events(), out, done)
	}()
	defer func() {
		close(done)
		<-echoed
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" || strings.HasPrefix(cmd, "#") {
			continue
		}
		verb, arg, _ := strings.Cut(cmd, " ")
		switch verb {
		case "START":
			if !a.ctrl.OnStart(a.cfg.Device, a.model) {
				fmt.Fprintln(out, "! start ignored")
			}
		case "STOP":
			if !a.ctrl.OnStop() {
				fmt.Fprintln(out, "! stop ignored")
			}
		case "WAIT":
			a.ctrl.Wait()
		case "WAIT_AUDIO_DONE":
			if fake != nil && !fake.WaitAudio(testWaitTimeout) {
				fmt.Fprintln(out, "! audio wait timed out")
			}
		case "WAIT_LINES":
			n, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Fprintf(out, "! bad count %q\n", arg)
				continue
			}
			if !sink.WaitFor(testWaitTimeout, func(v pipeline.View) bool { return v.Lines >= n }) {
				fmt.Fprintf(out, "! timed out waiting for %d lines\n", n)
			}
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			return closeTest(a)
		default:
			fmt.Fprintf(out, "! unknown command %q\n", cmd)
		}
	}
	return closeTest(a)
}

func closeTest(a *app) int {
	if err := a.ctrl.Close(); err != nil {
		log.Errorf("close: %v", err)
		return 1
	}
	return 0
}

func echoEvents(q *pipeline.Queue, out io.Writer, done <-chan struct{}) {
	flush := func() {
		for _, e := range q.Drain() {
			switch e.Kind {
			case pipeline.EventStatus:
				fmt.Fprintf(out, "status: %s\n", e.Text)
			case pipeline.EventLine:
				fmt.Fprint(out, e.Text)
			}
		}
	}
	for {
		select {
		case <-done:
			flush()
			return
		case <-q.Notify():
			flush()
		}
	}
}
