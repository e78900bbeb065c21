package segment

import (
	"encoding/binary"
	"fmt"
	"math"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// Detector classifies one fixed-length frame as voiced or not.
type Detector interface {
	Name() string
	IsSpeech(frame []int16, sampleRate int) (bool, error)
}

func NewDetector(cfg Config) (Detector, error) {
	switch cfg.Detector {
	case "", "webrtc":
		return newWebRTCDetector(cfg.VADMode)
	case "energy":
		return &energyDetector{threshold: cfg.EnergyThreshold}, nil
	default:
		return nil, fmt.Errorf("unknown detector %q", cfg.Detector)
	}
}

type webrtcDetector struct {
	vad *webrtcvad.VAD
	buf []byte
}

func newWebRTCDetector(mode int) (*webrtcDetector, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(mode); err != nil {
		return nil, err
	}
	return &webrtcDetector{vad: v}, nil
}

func (d *webrtcDetector) Name() string { return "webrtc" }

func (d *webrtcDetector) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	if cap(d.buf) < len(frame)*2 {
		d.buf = make([]byte, len(frame)*2)
	}
	d.buf = d.buf[:len(frame)*2]
	for i, s := range frame {
		binary.LittleEndian.PutUint16(d.buf[i*2:], uint16(s))
	}
	return d.vad.Process(sampleRate, d.buf)
}

// energyDetector treats a frame as speech when its RMS amplitude crosses
// a fixed threshold.
type energyDetector struct {
	threshold float64
}

func (d *energyDetector) Name() string { return "energy" }

func (d *energyDetector) IsSpeech(frame []int16, _ int) (bool, error) {
	return RMS(frame) >= d.threshold, nil
}

func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
