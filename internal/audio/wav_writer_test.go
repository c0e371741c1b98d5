package audio

import (
	"encoding/binary"
	"testing"

	"github.com/soundpin/soundpin/internal/assert"
)

// TestEncodeWAV asserts the container layout and the PCM quantization rules,
// including clamping of out-of-range samples.
func TestEncodeWAV(t *testing.T) {
	blocks := [][]float32{
		{0, 0.5, 1, 1.5},
		{-0.5, -1, -1.5},
	}
	data := EncodeWAV(blocks, sampleRate)

	// Exactly header plus two bytes per sample.
	assert.DeepEqual(t, len(data), wavHeaderSize+7*wavBlockAlign)
	assert.DeepEqual(t, string(data[0:4]), "RIFF")
	assert.DeepEqual(t, string(data[8:12]), "WAVE")
	assert.DeepEqual(t, int(binary.LittleEndian.Uint32(data[24:])), sampleRate)
	assert.DeepEqual(t, int(binary.LittleEndian.Uint32(data[40:])), 7*wavBlockAlign)

	rate, pcm, err := parseWAV(data)
	assert.NilErr(t, err)
	assert.DeepEqual(t, rate, sampleRate)

	want := []int16{0, 16383, 32767, 32767, -16384, -32768, -32768}
	got := bytesToLES16Slice(pcm, nil)
	assert.DeepEqual(t, got, want)
}

// TestEncodeWAVEmpty asserts that zero input samples produce a bare header.
func TestEncodeWAVEmpty(t *testing.T) {
	data := EncodeWAV(nil, sampleRate)
	assert.DeepEqual(t, len(data), wavHeaderSize)

	rate, pcm, err := parseWAV(data)
	assert.NilErr(t, err)
	assert.DeepEqual(t, rate, sampleRate)
	assert.DeepEqual(t, len(pcm), 0)
}

// TestParseWAVRejectsGarbage asserts the strict container checks.
func TestParseWAVRejectsGarbage(t *testing.T) {
	_, _, err := parseWAV([]byte("too short"))
	assert.NonNilErr(t, err)

	data := EncodeWAV([][]float32{{0.1}}, sampleRate)
	data[0] = 'X'
	_, _, err = parseWAV(data)
	assert.NonNilErr(t, err)
}
