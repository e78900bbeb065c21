package audio

import "strings"

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether it is a headset whose
// microphone runs over the low-bandwidth bluetooth profile.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// sourceInputChannels is the usable input channel count of a capture
// source. Pulse monitor sources loop back an output sink and count as none.
func sourceInputChannels(id string, channels int) int {
	if strings.HasSuffix(id, ".monitor") {
		return 0
	}
	return channels
}

// DataCallback receives little-endian int16 mono PCM.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	Gain       int  // software gain applied to samples; 0 or 1 disables
	Boost      bool // raise source volume where the backend supports it
}

type DeviceInfo struct {
	ID            string // opaque platform-specific identifier
	Name          string
	InputChannels int
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// Waveform is normalized mono audio in [-1.0, 1.0].
type Waveform struct {
	Samples    []float32
	SampleRate int
}

func (w Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// NewWaveform normalizes int16 PCM by dividing by 32768.
func NewWaveform(pcm []int16, sampleRate int) Waveform {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return Waveform{Samples: out, SampleRate: sampleRate}
}

// PCM converts back to int16, clamping out-of-range samples.
func (w Waveform) PCM() []int16 {
	out := make([]int16, len(w.Samples))
	for i, s := range w.Samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}
