package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/soundpin/soundpin/internal/assert"
)

func writeTempPayload(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload")
	assert.NilErr(t, os.WriteFile(path, data, 0o600))
	return path
}

// TestPlayWAV asserts that a WAVE payload plays to completion on the fake
// playback device.
func TestPlayWAV(t *testing.T) {
	s, tac := newTestSystem()

	block := make([]float32, samplesPerPeriod*3+7) // force a padded last frame
	for i := range block {
		block[i] = 0.25
	}
	path := writeTempPayload(t, EncodeWAV([][]float32{block}, sampleRate))

	err := s.PlayFile(context.Background(), path, MimeWAV)
	assert.NilErr(t, err)
	assert.ChanWritten(t, tac.playbackDev.uninited)
}

// TestPlayWAVWrongRate asserts that payloads captured at a foreign sample
// rate are rejected instead of playing at the wrong speed.
func TestPlayWAVWrongRate(t *testing.T) {
	s, _ := newTestSystem()
	path := writeTempPayload(t, EncodeWAV([][]float32{{0.1, 0.2}}, 44100))

	err := s.PlayFile(context.Background(), path, MimeWAV)
	assert.NonNilErr(t, err)
}

// TestPlayOpus asserts that an opusfile payload decodes and plays to
// completion on the fake playback device.
func TestPlayOpus(t *testing.T) {
	s, tac := newTestSystem()

	data, err := EncodeOpusFile([][]byte{{0xa5, 1}, {0xa5, 2}})
	assert.NilErr(t, err)
	path := writeTempPayload(t, data)

	err = s.PlayFile(context.Background(), path, MimeOggOpus)
	assert.NilErr(t, err)
	assert.ChanWritten(t, tac.playbackDev.uninited)
}

// TestPlayFileUnknownMime asserts that payloads in foreign containers are
// refused by the local engine.
func TestPlayFileUnknownMime(t *testing.T) {
	s, _ := newTestSystem()
	path := writeTempPayload(t, []byte("opaque"))

	err := s.PlayFile(context.Background(), path, "audio/m4a")
	assert.NonNilErr(t, err)
}

// TestPlayFileCanceled asserts that canceling the context interrupts
// playback.
func TestPlayFileCanceled(t *testing.T) {
	s, tac := newTestSystem()

	// Long enough that playback cannot finish before the cancel.
	blocks := make([][]float32, 1000)
	for i := range blocks {
		blocks[i] = make([]float32, samplesPerPeriod)
	}
	path := writeTempPayload(t, EncodeWAV(blocks, sampleRate))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.PlayFile(ctx, path, MimeWAV)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ChanWritten(t, tac.playbackDev.uninited)
}

// TestCanRecordAndPlay asserts the codec-dependent capability checks.
func TestCanRecordAndPlay(t *testing.T) {
	s, tac := newTestSystem()
	assert.BoolIs(t, s.CanRecord(MimeOggOpus), true)
	assert.BoolIs(t, s.CanRecord(MimeWAV), true)
	assert.BoolIs(t, s.CanRecord("audio/m4a"), false)
	assert.BoolIs(t, s.CanPlay(MimeOggOpus), true)
	assert.BoolIs(t, s.CanPlay(MimeWAV), true)
	assert.BoolIs(t, s.CanPlay("audio/m4a"), false)

	tac.encErr = errTestCodec
	tac.decErr = errTestCodec
	assert.BoolIs(t, s.CanRecord(MimeOggOpus), false)
	assert.BoolIs(t, s.CanPlay(MimeOggOpus), false)
	// The raw path needs no codec.
	assert.BoolIs(t, s.CanRecord(MimeWAV), true)
	assert.BoolIs(t, s.CanPlay(MimeWAV), true)
}
