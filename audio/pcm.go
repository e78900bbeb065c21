package audio

import "encoding/binary"

func pcmBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// gainBytes encodes samples as little-endian PCM, scaling each by gain and
// clipping to the int16 range. A gain of 0 or 1 leaves samples unchanged.
func gainBytes(pcm []int16, gain int) []byte {
	if gain <= 1 {
		return pcmBytes(pcm)
	}
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clip16(int32(s)*int32(gain))))
	}
	return out
}

// applyGain scales little-endian PCM in place.
func applyGain(buf []byte, gain int) {
	if gain <= 1 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		s := int32(int16(binary.LittleEndian.Uint16(buf[i:])))
		binary.LittleEndian.PutUint16(buf[i:], uint16(clip16(s*int32(gain))))
	}
}

func clip16(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}

// Resample converts mono PCM between rates by linear interpolation.
func Resample(pcm []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(pcm) == 0 {
		return append([]int16(nil), pcm...)
	}
	n := int(int64(len(pcm)) * int64(to) / int64(from))
	out := make([]int16, n)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(pcm)-1 {
			out[i] = pcm[len(pcm)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(pcm[j])*(1-frac) + float64(pcm[j+1])*frac)
	}
	return out
}
