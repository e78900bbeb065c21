package audio

import (
	"errors"
	"sync"
	"time"

	"habla/encoder"
)

const fakeChunk = 1024

// FakeContext plays a fixed PCM buffer into every capture it opens, resampled
// to the rate each capture asks for. After the buffer is exhausted it keeps
// delivering silence unless the tail is disabled, in which case the capture
// goes quiet as a stalled device would.
type FakeContext struct {
	pcm  []int16
	rate int

	mu          sync.Mutex
	speed       float64
	silenceTail bool
	devices     []DeviceInfo
	devicesErr  error
	panicOnList bool
	openErr     error
	opened      int
	feeding     int
}

// NewFakeContext plays pcm recorded at sampleRate. Realtime paces delivery at
// the natural rate; otherwise it runs 50x faster.
func NewFakeContext(pcm []int16, sampleRate int, realtime bool) *FakeContext {
	speed := 50.0
	if realtime {
		speed = 1
	}
	return &FakeContext{
		pcm:         pcm,
		rate:        sampleRate,
		speed:       speed,
		silenceTail: true,
		devices:     []DeviceInfo{{ID: "fake-0", Name: "Fake Microphone", InputChannels: 1}},
	}
}

func NewFakeContextFromWAV(path string, realtime bool) (*FakeContext, error) {
	pcm, rate, err := encoder.ReadWAVFile(path)
	if err != nil {
		return nil, err
	}
	return NewFakeContext(pcm, rate, realtime), nil
}

func (f *FakeContext) SetSpeed(speed float64) {
	f.mu.Lock()
	f.speed = speed
	f.mu.Unlock()
}

func (f *FakeContext) SetSilenceTail(on bool) {
	f.mu.Lock()
	f.silenceTail = on
	f.mu.Unlock()
}

// SetDevices replaces what Devices reports. A non-nil err is returned instead.
func (f *FakeContext) SetDevices(devs []DeviceInfo, err error) {
	f.mu.Lock()
	f.devices = devs
	f.devicesErr = err
	f.mu.Unlock()
}

func (f *FakeContext) SetPanicOnList(on bool) {
	f.mu.Lock()
	f.panicOnList = on
	f.mu.Unlock()
}

func (f *FakeContext) SetOpenError(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

// Opened counts captures created so far.
func (f *FakeContext) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// WaitAudio blocks until at least one capture was opened and every capture
// has delivered its whole buffer, or the timeout elapses.
func (f *FakeContext) WaitAudio(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		done := f.opened > 0 && f.feeding == 0
		f.mu.Unlock()
		if done {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnList {
		panic("fake: device enumeration")
	}
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	return append([]DeviceInfo(nil), f.devices...), nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	if device != nil {
		found := false
		for _, d := range f.devices {
			if d.ID == device.ID {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.New("fake: no such device " + device.Name)
		}
	}
	rate := int(config.SampleRate)
	if rate <= 0 {
		rate = f.rate
	}
	f.opened++
	f.feeding++
	return &FakeCapture{
		owner:    f,
		pcm:      Resample(f.pcm, f.rate, rate),
		rate:     rate,
		speed:    f.speed,
		tail:     f.silenceTail,
		fedAll:   make(chan struct{}),
		released: false,
	}, nil
}

func (f *FakeContext) release() {
	f.mu.Lock()
	f.feeding--
	f.mu.Unlock()
}

type FakeCapture struct {
	owner *FakeContext
	pcm   []int16
	rate  int
	speed float64
	tail  bool

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	fedAll   chan struct{}
	released bool
}

// AudioDone is closed once the whole buffer has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.fedAll }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) markFed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return
	}
	f.released = true
	close(f.fedAll)
	f.owner.release()
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	interval := time.Duration(float64(fakeChunk) * float64(time.Second) / float64(f.rate) / f.speed)
	silence := make([]byte, fakeChunk*2)

	go func() {
		defer close(f.feedDone)
		pos := 0
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			cb := f.callback()
			if cb != nil {
				switch {
				case pos < len(f.pcm):
					end := min(pos+fakeChunk, len(f.pcm))
					cb(pcmBytes(f.pcm[pos:end]), uint32(end-pos))
					pos = end
					if pos >= len(f.pcm) {
						f.markFed()
					}
				case f.tail:
					f.markFed()
					cb(silence, fakeChunk)
				default:
					f.markFed()
				}
			}

			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
	f.markFed()
}

func (f *FakeCapture) Close() {}
