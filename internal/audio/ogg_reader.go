package audio

import (
	"errors"
	"fmt"
	"strings"
)

// oggPackets parses an ogg container and returns the packet payloads in
// order. Packets continued across pages are not supported (the matching
// writer never emits them).
func oggPackets(data []byte) ([][]byte, error) {
	var packets [][]byte
	for off := 0; off < len(data); {
		if len(data)-off < 27 {
			return nil, errors.New("short ogg page header")
		}
		if string(data[off:off+4]) != oggSig {
			return nil, fmt.Errorf("missing ogg capture pattern at offset %d", off)
		}
		if version := data[off+4]; version != 0 {
			return nil, fmt.Errorf("unsupported ogg version %d", version)
		}
		if data[off+5]&0x1 != 0 {
			return nil, errors.New("continued ogg pages not supported")
		}

		segCount := int(data[off+26])
		if len(data)-off < 27+segCount {
			return nil, errors.New("short ogg segment table")
		}
		segTable := data[off+27 : off+27+segCount]

		body := off + 27 + segCount
		var packet []byte
		for _, lacing := range segTable {
			n := int(lacing)
			if body+n > len(data) {
				return nil, errors.New("ogg page body larger than container")
			}
			packet = append(packet, data[body:body+n]...)
			body += n
			if n < 255 {
				packets = append(packets, packet)
				packet = nil
			}
		}
		if packet != nil {
			return nil, errors.New("ogg packet continued across pages")
		}
		off = body
	}
	return packets, nil
}

// opusPacketsFromOgg extracts the opus audio packets from an opusfile,
// skipping the id and comment headers and the empty closing packet, if any.
func opusPacketsFromOgg(data []byte) ([][]byte, error) {
	packets, err := oggPackets(data)
	if err != nil {
		return nil, err
	}

	res := make([][]byte, 0, len(packets))
	for _, p := range packets {
		if len(p) == 0 {
			continue
		}
		if strings.HasPrefix(string(p), opusIdSig) || strings.HasPrefix(string(p), opusCommentSig) {
			continue
		}
		res = append(res, p)
	}
	if len(res) == 0 {
		return nil, errors.New("opusfile has no audio packets")
	}
	return res, nil
}
