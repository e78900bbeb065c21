package encoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavPCM = 1

func intBuffer(pcm []int16, sampleRate int) *audio.IntBuffer {
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: Channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: BitsPerSample,
	}
}

// WriteWAV writes mono 16-bit PCM as a complete WAV stream.
func WriteWAV(w io.WriteSeeker, pcm []int16, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, BitsPerSample, Channels, wavPCM)
	if err := enc.Write(intBuffer(pcm, sampleRate)); err != nil {
		return fmt.Errorf("writing wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing wav header: %w", err)
	}
	return nil
}

func WriteWAVFile(path string, pcm []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, pcm, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WAVFormat is the header of a PCM WAV file.
type WAVFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// ReadWAVFormat reads only the header of the WAV file at path.
func ReadWAVFormat(path string) (WAVFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVFormat{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return WAVFormat{}, fmt.Errorf("%s: not a valid wav file", path)
	}
	return WAVFormat{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}, nil
}

// ReadWAVFile returns the first channel of a PCM WAV file as int16 samples
// along with its sample rate.
func ReadWAVFile(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: not a valid wav file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: reading pcm: %w", path, err)
	}
	chans := int(d.NumChans)
	if chans < 1 {
		chans = 1
	}
	shift := int(d.BitDepth) - 16

	out := make([]int16, 0, len(buf.Data)/chans)
	for i := 0; i < len(buf.Data); i += chans {
		v := buf.Data[i]
		switch {
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		out = append(out, int16(v))
	}
	return out, int(d.SampleRate), nil
}

// WAVEncoder buffers blocks and emits a WAV container on Close.
type WAVEncoder struct {
	sampleRate int
	samples    []int16
	out        memFile
	mu         sync.Mutex
}

func NewWAV(sampleRate int) (*WAVEncoder, error) {
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	return &WAVEncoder{sampleRate: sampleRate}, nil
}

func (e *WAVEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	e.samples = append(e.samples, block...)
	e.mu.Unlock()
	return nil
}

func (e *WAVEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return WriteWAV(&e.out, e.samples, e.sampleRate)
}

func (e *WAVEncoder) Bytes() []byte       { return e.out.buf }
func (e *WAVEncoder) TotalFrames() uint64 { return uint64(len(e.samples)) }
func (e *WAVEncoder) ContentType() string { return "audio/wav" }
func (e *WAVEncoder) Ext() string         { return "wav" }

// memFile is the io.WriteSeeker the wav encoder needs to patch its header.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		m.buf = append(m.buf, make([]byte, end-int64(len(m.buf)))...)
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memfile: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = abs
	return abs, nil
}
