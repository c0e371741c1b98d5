package audio

import (
	"bytes"
	"testing"

	"github.com/soundpin/soundpin/internal/assert"
)

// TestOpusFileRoundTrip asserts that packets written to an opusfile come
// back intact through the reader, including the lacing edge case of a packet
// of exactly 255 bytes.
func TestOpusFileRoundTrip(t *testing.T) {
	packets := [][]byte{
		{0x01, 0x02, 0x03},
		bytes.Repeat([]byte{0xfe}, 255),
		bytes.Repeat([]byte{0x7f}, 1000),
		{0x04},
	}

	data, err := EncodeOpusFile(packets)
	assert.NilErr(t, err)

	got, err := opusPacketsFromOgg(data)
	assert.NilErr(t, err)
	assert.DeepEqual(t, got, packets)
}

// TestEncodeOpusFileEmpty asserts that an empty capture cannot be encoded.
func TestEncodeOpusFileEmpty(t *testing.T) {
	_, err := EncodeOpusFile(nil)
	assert.NonNilErr(t, err)
}

// TestOggPacketsRejectsGarbage asserts the reader fails on non-ogg data
// instead of returning bogus packets.
func TestOggPacketsRejectsGarbage(t *testing.T) {
	_, err := oggPackets([]byte("definitely not an ogg stream, long enough to parse"))
	assert.NonNilErr(t, err)

	// A valid container whose only packets are the headers has no audio.
	data, err := EncodeOpusFile([][]byte{{0x01}})
	assert.NilErr(t, err)
	headersOnly := data[:len(data)-28-1] // strip the single audio page
	_, err = opusPacketsFromOgg(headersOnly)
	assert.NonNilErr(t, err)
}
