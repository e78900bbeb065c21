package audio

import (
	"errors"
	"fmt"

	"habla/log"
)

// DefaultDeviceName is the catalog entry that stands for the system default
// input. It is also what ListInputDevices falls back to when enumeration
// fails.
const DefaultDeviceName = "Default Microphone"

var ErrDeviceNotFound = errors.New("could not find selected microphone")

// DeviceDescriptor is a snapshot of one input device at query time.
// Index is the position in the enumeration, or -1 for the default sentinel.
type DeviceDescriptor struct {
	Name  string
	Index int
	ID    string
}

func (d DeviceDescriptor) IsDefault() bool { return d.Index < 0 }

// Info returns the DeviceInfo to hand to Context.NewCapture. The sentinel
// yields nil, which backends treat as the system default.
func (d DeviceDescriptor) Info() *DeviceInfo {
	if d.IsDefault() {
		return nil
	}
	return &DeviceInfo{ID: d.ID, Name: d.Name, InputChannels: 1}
}

var defaultDevice = DeviceDescriptor{Name: DefaultDeviceName, Index: -1}

type Catalog struct {
	ctx Context
}

func NewCatalog(ctx Context) *Catalog {
	return &Catalog{ctx: ctx}
}

// ListInputDevices never fails. Devices without input channels are skipped.
// If the backend errors, panics or reports nothing, the result is the single
// default entry.
func (c *Catalog) ListInputDevices() (out []DeviceDescriptor) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("device enumeration panic: %v", r)
			out = []DeviceDescriptor{defaultDevice}
		}
	}()

	if c == nil || c.ctx == nil {
		return []DeviceDescriptor{defaultDevice}
	}
	infos, err := c.ctx.Devices()
	if err != nil {
		log.Warnf("device enumeration: %v", err)
		return []DeviceDescriptor{defaultDevice}
	}
	for i, d := range infos {
		if d.InputChannels <= 0 {
			continue
		}
		out = append(out, DeviceDescriptor{Name: d.Name, Index: i, ID: d.ID})
	}
	if len(out) == 0 {
		return []DeviceDescriptor{defaultDevice}
	}
	return out
}

// Resolve finds a device by exact name. Duplicate names resolve to the first
// match.
func (c *Catalog) Resolve(name string) (DeviceDescriptor, error) {
	if name == "" || name == DefaultDeviceName {
		return defaultDevice, nil
	}
	for _, d := range c.ListInputDevices() {
		if d.Name == name {
			return d, nil
		}
	}
	return DeviceDescriptor{}, fmt.Errorf("%q: %w", name, ErrDeviceNotFound)
}

// Names returns the device names in catalog order, for UI selectors.
func (c *Catalog) Names() []string {
	devs := c.ListInputDevices()
	names := make([]string, len(devs))
	for i, d := range devs {
		names[i] = d.Name
	}
	return names
}
