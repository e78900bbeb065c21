// Package beep plays the short cues heard when a session starts or stops.
package beep

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"habla/log"
)

var disabled atomic.Bool

// Disable silences every cue for the rest of the process. Headless runs and
// tests call it first.
func Disable() { disabled.Store(true) }

func Enabled() bool { return !disabled.Load() }

const sampleRate = 44100

// cue describes one sound. Double cues repeat the tone after a short gap.
type cue struct {
	freq    float64
	seconds float64
	volume  float64
	decay   float64
	double  bool
}

var (
	startCue = cue{freq: 1200, seconds: 0.03, volume: 0.5, decay: 60}
	endCue   = cue{freq: 900, seconds: 0.05, volume: 0.5, decay: 40}
	errorCue = cue{freq: 350, seconds: 0.08, volume: 0.6, decay: 30, double: true}
)

func (c cue) render() []int16 {
	if c.double {
		return DoubleTone(sampleRate, c.freq, c.seconds, 0.05, c.volume, c.decay)
	}
	return Tone(sampleRate, c.freq, c.seconds, c.volume, c.decay)
}

// Tone renders a decaying sine as mono 16-bit samples.
func Tone(rate int, freq, seconds, volume, decay float64) []int16 {
	n := int(float64(rate) * seconds)
	out := make([]int16, n)
	for i := range out {
		t := float64(i) / float64(rate)
		env := math.Exp(-t * decay)
		out[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * env)
	}
	return out
}

// DoubleTone is two Tones separated by gap seconds of silence.
func DoubleTone(rate int, freq, seconds, gap, volume, decay float64) []int16 {
	one := Tone(rate, freq, seconds, volume, decay)
	out := make([]int16, 0, 2*len(one)+int(float64(rate)*gap))
	out = append(out, one...)
	out = append(out, make([]int16, int(float64(rate)*gap))...)
	return append(out, one...)
}

// padTo appends silence so pcm lasts at least seconds.
func padTo(pcm []int16, seconds float64) []int16 {
	if n := int(sampleRate * seconds); len(pcm) < n {
		return append(pcm, make([]int16, n-len(pcm))...)
	}
	return pcm
}

func stereo(mono []int16) []int16 {
	out := make([]int16, len(mono)*2)
	for i, s := range mono {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

func leBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// player is the platform playback backend. play must not block the caller
// for longer than it takes to hand the samples over.
type player interface {
	play(mono []int16)
}

var (
	backend  player
	initOnce sync.Once
)

// Init opens the playback backend. It is optional; the first cue does it
// otherwise.
func Init() {
	initOnce.Do(func() {
		p, err := newPlayer()
		if err != nil {
			log.Warnf("beep: %v", err)
			return
		}
		backend = p
	})
}

func playCue(c cue) {
	if !Enabled() {
		return
	}
	Init()
	if backend != nil {
		backend.play(c.render())
	}
}

func PlayStart() { playCue(startCue) }
func PlayEnd()   { playCue(endCue) }
func PlayError() { playCue(errorCue) }

// Cue plays the start or stop cue without blocking. It matches the hook the
// session controller calls on every transition.
func Cue(start bool) {
	if start {
		PlayStart()
	} else {
		PlayEnd()
	}
}
