package pcm

// Default segmentation parameters.
const (
	DefaultSilenceRMS     = 300.0
	DefaultSilenceMs      = 500
	DefaultMaxUtteranceMs = 10_000
)

// Segmenter splits a PCM stream into utterances on runs of silence. Leading
// silence is discarded; an utterance ends once SilenceMs of consecutive
// silence follow speech, or when it reaches MaxUtteranceMs.
//
// A Segmenter is not safe for concurrent use.
type Segmenter struct {
	Format         Format
	SilenceRMS     float64
	SilenceMs      int
	MaxUtteranceMs int

	buf       []byte
	hadSpeech bool
	silenceMs int
}

// NewSegmenter returns a Segmenter for f with the default thresholds.
func NewSegmenter(f Format) *Segmenter {
	return &Segmenter{
		Format:         f,
		SilenceRMS:     DefaultSilenceRMS,
		SilenceMs:      DefaultSilenceMs,
		MaxUtteranceMs: DefaultMaxUtteranceMs,
	}
}

// Push adds a chunk and returns a completed utterance, or nil.
func (s *Segmenter) Push(chunk []byte) []byte {
	if RMS(chunk) < s.SilenceRMS {
		if !s.hadSpeech {
			return nil
		}
		s.silenceMs += s.Format.DurationMs(len(chunk))
		s.buf = append(s.buf, chunk...)
		if s.silenceMs >= s.SilenceMs {
			return s.Flush()
		}
		return nil
	}

	s.hadSpeech = true
	s.silenceMs = 0
	s.buf = append(s.buf, chunk...)
	if s.MaxUtteranceMs > 0 && s.Format.DurationMs(len(s.buf)) >= s.MaxUtteranceMs {
		return s.Flush()
	}
	return nil
}

// Flush returns whatever speech is buffered and resets the segmenter. It
// returns nil when no speech was seen.
func (s *Segmenter) Flush() []byte {
	out := s.buf
	if !s.hadSpeech {
		out = nil
	}
	s.buf = nil
	s.hadSpeech = false
	s.silenceMs = 0
	return out
}
