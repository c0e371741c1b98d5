package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	opusIdSig      = "OpusHead"
	opusCommentSig = "OpusTags"

	opusVendor = "soundpin"
)

// opusWriter writes opus packets into an ogg container (an "opusfile").
type opusWriter struct {
	ogg *oggWriter

	totalPCMSamples uint64
	pageIndex       uint32
}

func newOpusWriter(out io.Writer) (*opusWriter, error) {
	writer := &opusWriter{
		ogg: newOggWriter(out),
	}

	err := writer.writeHeaders()
	if err != nil {
		return nil, err
	}

	return writer, nil
}

func (w *opusWriter) writeHeaders() error {
	idHeader := make([]byte, 19)
	copy(idHeader[0:], opusIdSig)
	idHeader[8] = 1 // version
	idHeader[9] = channels

	binary.LittleEndian.PutUint16(idHeader[10:], 0)          // pre-skip
	binary.LittleEndian.PutUint32(idHeader[12:], sampleRate) // original sample rate
	binary.LittleEndian.PutUint16(idHeader[16:], 0)          // output gain
	idHeader[18] = 0                                         // channel mapping family

	idPage := w.ogg.newPage(idHeader, 0, w.pageIndex)
	idPage.isFirstPage = true
	err := w.ogg.writePage(idPage)
	if err != nil {
		return err
	}
	w.pageIndex++

	commentHeader := make([]byte, 16+len(opusVendor))
	copy(commentHeader[0:], opusCommentSig)
	binary.LittleEndian.PutUint32(commentHeader[8:], uint32(len(opusVendor)))
	copy(commentHeader[12:], opusVendor)
	binary.LittleEndian.PutUint32(commentHeader[12+len(opusVendor):], 0) // comment list length

	commentPage := w.ogg.newPage(commentHeader, 0, w.pageIndex)
	err = w.ogg.writePage(commentPage)
	if err == nil {
		w.pageIndex++
	}
	return err
}

func (w *opusWriter) writePacket(p []byte, pcmSamples uint64, isLast bool) error {
	if len(p) > 255*255 {
		// Such a large payload requires splitting a single packet into
		// multiple ogg pages.
		return fmt.Errorf("packet splitting not supported")
	}
	granule := w.totalPCMSamples + pcmSamples
	w.totalPCMSamples += pcmSamples
	page := w.ogg.newPage(p, granule, w.pageIndex)
	page.isLastPage = isLast
	w.pageIndex++

	return w.ogg.writePage(page)
}

// EncodeOpusFile assembles a sequence of opus packets (each spanning one
// capture period) into an ogg container.
func EncodeOpusFile(packets [][]byte) ([]byte, error) {
	if len(packets) == 0 {
		return nil, errors.New("no data to encode")
	}

	buf := bytes.NewBuffer(nil)
	w, err := newOpusWriter(buf)
	if err != nil {
		return nil, err
	}

	for i := range packets {
		isLast := i == len(packets)-1
		err := w.writePacket(packets[i], samplesPerPeriod, isLast)
		if err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}
