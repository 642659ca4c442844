package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Audio is mono signed 16-bit PCM.
type Audio struct {
	PCM        []int16
	SampleRate int
}

// DurationMS reports the clip length in milliseconds.
func (a Audio) DurationMS() int {
	if a.SampleRate <= 0 {
		return 0
	}
	return len(a.PCM) * 1000 / a.SampleRate
}

// Bytes returns the PCM as little-endian bytes.
func (a Audio) Bytes() []byte {
	out := make([]byte, len(a.PCM)*2)
	for i, sample := range a.PCM {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// FromBytes interprets little-endian s16 bytes as mono PCM. A trailing odd byte is dropped.
func FromBytes(raw []byte, sampleRate int) Audio {
	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return Audio{PCM: pcm, SampleRate: sampleRate}
}

// EncodeWAV wraps the PCM in a canonical 44-byte RIFF header.
func EncodeWAV(a Audio) []byte {
	data := a.Bytes()
	var buf bytes.Buffer
	buf.Grow(44 + len(data))

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(a.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(a.SampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

// ErrNotWAV is returned for payloads without a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a RIFF/WAVE payload")

// DecodeWAV reads 16-bit PCM WAV data. Stereo input is downmixed to mono.
func DecodeWAV(raw []byte) (Audio, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return Audio{}, ErrNotWAV
	}

	var (
		channels   int
		sampleRate int
		bits       int
		haveFormat bool
	)
	offset := 12
	for offset+8 <= len(raw) {
		id := string(raw[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(raw[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		// Streaming encoders write 0 or 0xFFFFFFFF for an unknown data length.
		if end > len(raw) || end < body {
			end = len(raw)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return Audio{}, fmt.Errorf("wav fmt chunk too short: %d bytes", end-body)
			}
			format := binary.LittleEndian.Uint16(raw[body:])
			if format != 1 && format != 0xFFFE {
				return Audio{}, fmt.Errorf("unsupported wav format %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(raw[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4:]))
			bits = int(binary.LittleEndian.Uint16(raw[body+14:]))
			haveFormat = true
		case "data":
			if !haveFormat {
				return Audio{}, errors.New("wav data chunk before fmt chunk")
			}
			if bits != 16 {
				return Audio{}, fmt.Errorf("unsupported wav bit depth %d", bits)
			}
			if channels < 1 {
				return Audio{}, fmt.Errorf("invalid wav channel count %d", channels)
			}
			return downmix(FromBytes(raw[body:end], sampleRate), channels), nil
		}

		offset = end + end%2
	}
	return Audio{}, errors.New("wav data chunk not found")
}

func downmix(a Audio, channels int) Audio {
	if channels == 1 {
		return a
	}
	frames := len(a.PCM) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(a.PCM[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return Audio{PCM: out, SampleRate: a.SampleRate}
}

// Resample converts a to rate with linear interpolation.
func Resample(a Audio, rate int) Audio {
	if rate <= 0 || a.SampleRate <= 0 || a.SampleRate == rate || len(a.PCM) == 0 {
		out := Audio{PCM: append([]int16(nil), a.PCM...), SampleRate: a.SampleRate}
		if rate > 0 {
			out.SampleRate = rate
		}
		return out
	}

	n := int(int64(len(a.PCM)) * int64(rate) / int64(a.SampleRate))
	out := make([]int16, n)
	step := float64(a.SampleRate) / float64(rate)
	last := len(a.PCM) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = a.PCM[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(a.PCM[idx])*(1-frac) + float64(a.PCM[idx+1])*frac)
	}
	return Audio{PCM: out, SampleRate: rate}
}
