package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	wavHeaderSize = 44

	// wavBlockAlign is the size in bytes of one mono 16-bit PCM frame.
	wavBlockAlign = 2

	wavFormatPCM = 1
)

// appendWAVHeader appends the 44-byte RIFF/WAVE descriptor for a mono,
// 16-bit PCM stream of sampleCount samples at the given rate.
func appendWAVHeader(buf []byte, sampleCount, sampleRate int) []byte {
	dataSize := uint32(sampleCount * wavBlockAlign)

	var hdr [wavHeaderSize]byte
	copy(hdr[0:], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:], 36+dataSize)
	copy(hdr[8:], "WAVE")

	copy(hdr[12:], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:], wavFormatPCM)
	binary.LittleEndian.PutUint16(hdr[22:], channels)
	binary.LittleEndian.PutUint32(hdr[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:], uint32(sampleRate*wavBlockAlign)) // byte rate
	binary.LittleEndian.PutUint16(hdr[32:], wavBlockAlign)
	binary.LittleEndian.PutUint16(hdr[34:], 16) // bits per sample

	copy(hdr[36:], "data")
	binary.LittleEndian.PutUint32(hdr[40:], dataSize)

	return append(buf, hdr[:]...)
}

// pcm16Sample quantizes a float sample to a signed 16-bit PCM sample. Input
// is clamped to [-1, 1]. Negative values scale by 32768 and non-negative
// ones by 32767 so that exactly +1.0 does not overflow int16.
func pcm16Sample(v float32) int16 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// EncodeWAV assembles the given mono float sample blocks (values in [-1, 1])
// into a single self-contained WAVE container with 16-bit little-endian PCM
// samples at the given rate. Blocks are concatenated preserving arrival
// order. The output is exactly 44+2*N bytes for N input samples.
func EncodeWAV(blocks [][]float32, sampleRate int) []byte {
	var n int
	for _, b := range blocks {
		n += len(b)
	}

	buf := make([]byte, 0, wavHeaderSize+n*wavBlockAlign)
	buf = appendWAVHeader(buf, n, sampleRate)
	for _, b := range blocks {
		for _, v := range b {
			s := pcm16Sample(v)
			buf = append(buf, byte(s), byte(s>>8))
		}
	}
	return buf
}

// parseWAV decodes a WAVE container produced by EncodeWAV, returning the
// sample rate and the raw 16-bit PCM sample data. Only the fixed mono PCM
// layout written by EncodeWAV is supported.
func parseWAV(data []byte) (int, []byte, error) {
	if len(data) < wavHeaderSize {
		return 0, nil, errors.New("wav container shorter than header")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, nil, errors.New("not a RIFF/WAVE container")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return 0, nil, errors.New("unexpected wav chunk layout")
	}
	if format := binary.LittleEndian.Uint16(data[20:]); format != wavFormatPCM {
		return 0, nil, fmt.Errorf("unsupported wav format tag %d", format)
	}
	if ch := binary.LittleEndian.Uint16(data[22:]); ch != channels {
		return 0, nil, fmt.Errorf("unsupported wav channel count %d", ch)
	}
	if bits := binary.LittleEndian.Uint16(data[34:]); bits != 16 {
		return 0, nil, fmt.Errorf("unsupported wav bits per sample %d", bits)
	}

	rate := int(binary.LittleEndian.Uint32(data[24:]))
	dataSize := int(binary.LittleEndian.Uint32(data[40:]))
	if dataSize > len(data)-wavHeaderSize {
		return 0, nil, errors.New("wav data chunk larger than container")
	}
	return rate, data[wavHeaderSize : wavHeaderSize+dataSize], nil
}
