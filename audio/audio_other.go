//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// malgoContext captures through miniaudio (CoreAudio, WASAPI).
type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: %w", err)
	}
	return &malgoContext{ctx: ctx}, nil
}

// Devices lists capture devices. miniaudio only enumerates input-capable
// devices for malgo.Capture, so every entry counts as mono input.
func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(infos))
	for _, d := range infos {
		devices = append(devices, DeviceInfo{
			ID:            hex.EncodeToString(d.ID.Pointer()[:]),
			Name:          d.Name(),
			InputChannels: 1,
		})
	}
	return devices, nil
}

func deviceID(info *DeviceInfo) (*malgo.DeviceID, error) {
	raw, err := hex.DecodeString(info.ID)
	if err != nil {
		return nil, fmt.Errorf("device %q: bad id: %w", info.Name, err)
	}
	var id malgo.DeviceID
	copy(id[:], raw)
	return &id, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = max(config.Channels, 1)
	cfg.SampleRate = config.SampleRate

	c := &malgoCapture{name: "system default", gain: config.Gain}
	if device != nil && device.ID != "" {
		id, err := deviceID(device)
		if err != nil {
			return nil, err
		}
		cfg.Capture.DeviceID = id.Pointer()
		c.name = device.Name
	}

	dev, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{Data: c.onData})
	if err != nil {
		return nil, fmt.Errorf("malgo init device %q: %w", c.name, err)
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device   *malgo.Device
	name     string
	gain     int
	callback atomic.Pointer[DataCallback]
}

// onData runs on the miniaudio thread. The buffer is reused by miniaudio
// after return, so it is copied before being handed on.
func (c *malgoCapture) onData(_, data []byte, frameCount uint32) {
	cb := c.callback.Load()
	if cb == nil {
		return
	}
	buf := append([]byte(nil), data...)
	applyGain(buf, c.gain)
	(*cb)(buf, frameCount)
}

func (c *malgoCapture) Start() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("malgo start %q: %w", c.name, err)
	}
	return nil
}

func (c *malgoCapture) Stop() { c.device.Stop() }

func (c *malgoCapture) Close() { c.device.Uninit() }

func (c *malgoCapture) SetCallback(cb DataCallback) { c.callback.Store(&cb) }

func (c *malgoCapture) ClearCallback() { c.callback.Store(nil) }

func (c *malgoCapture) DeviceName() string { return c.name }
