package audio

import (
	"encoding/binary"
	"io"
	"math/rand"
)

const oggSig = "OggS"

type oggHeader struct {
	version     uint8
	isContinued bool
	isFirstPage bool
	isLastPage  bool

	granulePosition uint64
	bitstreamSerial uint32
	pageSequence    uint32

	pageSegments uint8
	segmentTable []uint8
}

type oggPage struct {
	oggHeader
	segments [][]byte

	// Size of all segments in bytes.
	segmentTotal int
}

var checksumTable = crcChecksum()

type oggWriter struct {
	w      io.Writer
	serial uint32
}

func newOggWriter(out io.Writer) *oggWriter {
	return &oggWriter{
		w:      out,
		serial: rand.Uint32(),
	}
}

func (o *oggWriter) writePage(p oggPage) error {
	headerSize := 27 + int(p.pageSegments)
	totalSize := headerSize + p.segmentTotal

	buf := make([]byte, totalSize)
	headerType := uint8(0x0)
	if p.isContinued {
		headerType = headerType | 0x1
	}
	if p.isFirstPage {
		headerType = headerType | 0x2
	}
	if p.isLastPage {
		headerType = headerType | 0x4
	}

	copy(buf[0:], oggSig)
	buf[4] = p.version
	buf[5] = headerType

	binary.LittleEndian.PutUint64(buf[6:], p.granulePosition)
	binary.LittleEndian.PutUint32(buf[14:], p.bitstreamSerial)
	binary.LittleEndian.PutUint32(buf[18:], p.pageSequence)
	// checksum is computed over the full page below

	buf[26] = p.pageSegments
	for i, s := range p.segmentTable {
		buf[27+i] = s
	}

	idx := headerSize
	for i, s := range p.segments {
		copy(buf[idx:], s)
		idx += int(p.segmentTable[i])
	}

	var checksum uint32
	for i := range buf {
		checksum = (checksum << 8) ^ checksumTable[byte(checksum>>24)^buf[i]]
	}
	binary.LittleEndian.PutUint32(buf[22:], checksum)

	_, err := o.w.Write(buf)
	return err
}

// partition splits a payload into lacing units no bigger than 255 bytes.
func partition(p []byte) ([]uint8, [][]byte) {
	segCountHint := len(p)/255 + 1
	st := make([]uint8, 0, segCountHint)
	s := make([][]byte, 0, segCountHint)

	for len(p) > 255 {
		st = append(st, 255)
		s = append(s, p[:255])
		p = p[255:]
	}

	st = append(st, uint8(len(p)))
	s = append(s, p)

	// A packet of exactly 255 bytes is terminated by a lacing value of 0.
	if len(p) == 255 {
		st = append(st, 0)
		s = append(s, []byte{})
	}
	return st, s
}

func (o *oggWriter) newPage(payload []byte, granulePosition uint64, pageSequence uint32) oggPage {
	segTable, segments := partition(payload)
	total := len(payload)

	return oggPage{
		oggHeader: oggHeader{
			version:         0,
			granulePosition: granulePosition,
			bitstreamSerial: o.serial,
			pageSequence:    pageSequence,

			pageSegments: uint8(len(segTable)),
			segmentTable: segTable,
		},
		segments:     segments,
		segmentTotal: total,
	}
}

// crcChecksum builds the CRC table for the ogg page checksum (direct
// algorithm, polynomial 0x04c11db7, unreflected).
func crcChecksum() *[256]uint32 {
	var table [256]uint32
	const poly = 0x04c11db7

	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if (r & 0x80000000) != 0 {
				r = (r << 1) ^ poly
			} else {
				r <<= 1
			}
			table[i] = (r & 0xffffffff)
		}
	}
	return &table
}
