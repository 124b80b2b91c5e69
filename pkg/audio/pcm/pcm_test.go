package pcm_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/liamchens/quran-voice-buddy/pkg/audio/pcm"
)

// tone returns ms milliseconds of mono 16 kHz PCM with every sample set to v.
func tone(ms int, v int16) []byte {
	n := 16 * ms
	b := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

var mono16k = pcm.Format{SampleRate: 16000, Channels: 1}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := pcm.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := pcm.RMS(tone(10, 1000)); math.Abs(got-1000) > 1e-9 {
		t.Errorf("RMS(constant 1000) = %v, want 1000", got)
	}
	if got := pcm.RMS(tone(10, -500)); math.Abs(got-500) > 1e-9 {
		t.Errorf("RMS(constant -500) = %v, want 500", got)
	}
}

func TestFormat_DurationMs(t *testing.T) {
	t.Parallel()

	if got := mono16k.DurationMs(32000); got != 1000 {
		t.Errorf("DurationMs(32000) = %d, want 1000", got)
	}
	if got := (pcm.Format{}).DurationMs(100); got != 0 {
		t.Errorf("invalid format DurationMs = %d, want 0", got)
	}
}

func TestToFloat32Mono(t *testing.T) {
	t.Parallel()

	stereo := make([]byte, 8)
	binary.LittleEndian.PutUint16(stereo[0:], uint16(16384))
	binary.LittleEndian.PutUint16(stereo[2:], 0)
	binary.LittleEndian.PutUint16(stereo[4:], uint16(0x8000)) // -32768
	binary.LittleEndian.PutUint16(stereo[6:], uint16(0x8000))

	got := pcm.ToFloat32Mono(stereo, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != 0.25 || got[1] != -1 {
		t.Errorf("samples = %v, want [0.25 -1]", got)
	}
	if got := pcm.ToFloat32Mono([]byte{1, 2, 3}, 0); len(got) != 1 {
		t.Errorf("odd trailing byte: len = %d, want 1", len(got))
	}
}

func TestEncodeWAV(t *testing.T) {
	t.Parallel()

	data := tone(1, 7)
	wav := pcm.EncodeWAV(data, mono16k)
	if len(wav) != 44+len(data) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(data))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Error("missing RIFF/WAVE/data markers")
	}
	if sr := binary.LittleEndian.Uint32(wav[24:28]); sr != 16000 {
		t.Errorf("sample rate = %d, want 16000", sr)
	}
	if n := binary.LittleEndian.Uint32(wav[40:44]); int(n) != len(data) {
		t.Errorf("data size = %d, want %d", n, len(data))
	}
}

func TestSegmenter(t *testing.T) {
	t.Parallel()

	s := pcm.NewSegmenter(mono16k)

	if out := s.Push(tone(200, 0)); out != nil {
		t.Fatal("leading silence produced an utterance")
	}
	if out := s.Push(tone(100, 5000)); out != nil {
		t.Fatal("speech alone produced an utterance")
	}
	if out := s.Push(tone(300, 0)); out != nil {
		t.Fatal("short pause produced an utterance")
	}
	out := s.Push(tone(300, 0))
	if out == nil {
		t.Fatal("speech followed by 600 ms silence produced no utterance")
	}
	if want := len(tone(700, 0)); len(out) != want {
		t.Errorf("utterance = %d bytes, want %d", len(out), want)
	}
	if s.Flush() != nil {
		t.Error("Flush after emit returned data")
	}
}

func TestSegmenter_MaxUtterance(t *testing.T) {
	t.Parallel()

	s := pcm.NewSegmenter(mono16k)
	s.MaxUtteranceMs = 250
	if s.Push(tone(200, 5000)) != nil {
		t.Fatal("flushed before the limit")
	}
	if s.Push(tone(100, 5000)) == nil {
		t.Fatal("utterance over the limit was not flushed")
	}
}

func TestSegmenter_FlushSilenceOnly(t *testing.T) {
	t.Parallel()

	s := pcm.NewSegmenter(mono16k)
	s.Push(tone(100, 0))
	if s.Flush() != nil {
		t.Error("Flush returned silence")
	}
}
