//go:build linux

package beep

import (
	"fmt"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"habla/log"
)

// pulsePlayer opens a short-lived client per cue so a restarted sound
// server never leaves the player holding a dead connection.
type pulsePlayer struct{}

func newPlayer() (player, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("habla"))
	if err != nil {
		return nil, fmt.Errorf("pulse client: %w", err)
	}
	c.Close()
	return pulsePlayer{}, nil
}

// pulse pads very short streams poorly, so cues are stretched to 200ms.
func (pulsePlayer) play(mono []int16) {
	go playPulse(stereo(padTo(mono, 0.2)))
}

func playPulse(samples []int16) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("habla"))
	if err != nil {
		log.Warnf("beep: pulse client: %v", err)
		return
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		log.Warnf("beep: playback: %v", err)
		return
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
	stream.Stop()
}
