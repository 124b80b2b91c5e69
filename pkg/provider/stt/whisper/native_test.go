package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt/whisper"
)

// testModelPath reads WHISPER_MODEL_PATH and skips the test when unset.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNativeSession_Lifecycle(t *testing.T) {
	p, err := whisper.NewNative(testModelPath(t),
		whisper.WithNativeLanguage("ar"),
		whisper.WithNativeSilenceThresholdMs(100),
		whisper.WithNativeMaxBufferDurationMs(5000),
	)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := h.SetKeywords(nil); !errors.Is(err, stt.ErrNotSupported) {
		t.Errorf("SetKeywords = %v, want ErrNotSupported", err)
	}

	// Silence alone never reaches the model.
	_ = h.SendAudio(makeSilencePCM(16000))
	select {
	case tr, ok := <-h.Finals():
		if ok {
			t.Errorf("unexpected transcript from silence: %+v", tr)
		}
	case <-time.After(300 * time.Millisecond):
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.SendAudio(makeSilencePCM(10)); !errors.Is(err, stt.ErrClosed) {
		t.Errorf("SendAudio after Close = %v, want ErrClosed", err)
	}
}
