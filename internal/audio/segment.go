package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// SegmenterConfig tunes utterance detection.
type SegmenterConfig struct {
	SampleRate int
	// Threshold is the RMS level, as a fraction of full scale, above which a
	// frame counts as speech.
	Threshold float64
	// StopSilence ends an utterance after this much continuous silence.
	StopSilence time.Duration
	// MinSpeech discards utterances with less voiced audio than this.
	MinSpeech time.Duration
	// Preroll keeps this much audio from before speech onset.
	Preroll time.Duration
}

// Segmenter groups PCM frames into utterances with an energy detector.
// It is not safe for concurrent use.
type Segmenter struct {
	cfg SegmenterConfig

	preroll  []int16
	current  []int16
	speaking bool
	voiced   int
	silence  int
}

// NewSegmenter returns a Segmenter with zero-value fields defaulted.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = CaptureRate
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.015
	}
	if cfg.StopSilence <= 0 {
		cfg.StopSilence = 1500 * time.Millisecond
	}
	if cfg.Preroll <= 0 {
		cfg.Preroll = 200 * time.Millisecond
	}
	return &Segmenter{cfg: cfg}
}

// Push feeds one frame and returns a finished utterance, if any.
func (s *Segmenter) Push(frame []int16) ([]int16, bool) {
	if len(frame) == 0 {
		return nil, false
	}
	loud := RMS(frame) >= s.cfg.Threshold

	if !s.speaking {
		if !loud {
			s.preroll = appendTail(s.preroll, frame, s.samples(s.cfg.Preroll))
			return nil, false
		}
		s.speaking = true
		s.current = append(s.current[:0], s.preroll...)
		s.preroll = s.preroll[:0]
		s.voiced = 0
		s.silence = 0
	}

	s.current = append(s.current, frame...)
	if loud {
		s.voiced += len(frame)
		s.silence = 0
		return nil, false
	}

	s.silence += len(frame)
	if s.silence < s.samples(s.cfg.StopSilence) {
		return nil, false
	}
	return s.finish()
}

// PushBytes feeds little-endian s16 bytes.
func (s *Segmenter) PushBytes(raw []byte) ([]int16, bool) {
	frame := make([]int16, len(raw)/2)
	for i := range frame {
		frame[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return s.Push(frame)
}

// Flush ends any utterance in progress.
func (s *Segmenter) Flush() ([]int16, bool) {
	if !s.speaking {
		return nil, false
	}
	return s.finish()
}

// Reset drops buffered audio.
func (s *Segmenter) Reset() {
	s.preroll = s.preroll[:0]
	s.current = nil
	s.speaking = false
	s.voiced = 0
	s.silence = 0
}

func (s *Segmenter) finish() ([]int16, bool) {
	utterance := s.current
	voiced := s.voiced
	s.current = nil
	s.speaking = false
	s.voiced = 0
	s.silence = 0

	if voiced < s.samples(s.cfg.MinSpeech) {
		return nil, false
	}
	return utterance, true
}

func (s *Segmenter) samples(d time.Duration) int {
	return int(d.Seconds() * float64(s.cfg.SampleRate))
}

func appendTail(buf, frame []int16, limit int) []int16 {
	buf = append(buf, frame...)
	if over := len(buf) - limit; over > 0 {
		buf = append(buf[:0], buf[over:]...)
	}
	return buf
}

// RMS returns the root-mean-square level of frame as a fraction of full scale.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range frame {
		v := float64(sample) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
