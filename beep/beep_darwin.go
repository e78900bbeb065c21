//go:build darwin

package beep

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// malgoPlayer keeps one playback device open and feeds it from the
// miniaudio callback.
type malgoPlayer struct {
	ctx *malgo.AllocatedContext

	mu     sync.Mutex
	device *malgo.Device

	// Read from the audio thread.
	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
}

func newPlayer() (player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo context: %w", err)
	}
	p := &malgoPlayer{ctx: ctx}
	if err := p.open(); err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, err
	}
	return p, nil
}

func (p *malgoPlayer) open() error {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = sampleRate

	dev, err := malgo.InitDevice(p.ctx.Context, cfg, malgo.DeviceCallbacks{Data: p.fill})
	if err != nil {
		return fmt.Errorf("malgo playback device: %w", err)
	}
	p.device = dev
	return nil
}

func (p *malgoPlayer) fill(out, _ []byte, frameCount uint32) {
	want := min(frameCount*2, uint32(len(out)))
	var n uint32
	if buf := p.current.Load(); buf != nil {
		pos := p.pos.Load()
		n = min(want, uint32(len(*buf))-pos)
		copy(out[:n], (*buf)[pos:pos+n])
		p.pos.Store(pos + n)
		if pos+n >= uint32(len(*buf)) {
			p.current.Store(nil)
		}
	}
	clear(out[n:])
}

func (p *malgoPlayer) play(mono []int16) {
	buf := leBytes(mono)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		if err := p.open(); err != nil {
			return
		}
	}
	p.device.Stop()
	p.pos.Store(0)
	p.current.Store(&buf)
	if err := p.device.Start(); err == nil {
		return
	}
	// The device goes stale across sleep/wake; reopen once.
	p.device.Uninit()
	p.device = nil
	if err := p.open(); err != nil {
		p.current.Store(nil)
		return
	}
	if err := p.device.Start(); err != nil {
		p.current.Store(nil)
	}
}
