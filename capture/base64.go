package capture

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// normalizeBase64 converts possibly URL-safe, possibly unpadded base64 into
// standard padded base64. Delegated facilities are inconsistent about which
// alphabet and padding they emit. A length remainder of exactly 1 cannot
// occur in any valid base64 stream and is rejected as malformed.
func normalizeBase64(s string) (string, error) {
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	s = strings.TrimRight(s, "=")
	switch len(s) % 4 {
	case 1:
		return "", fmt.Errorf("%w: base64 length remainder 1", ErrMalformedPayload)
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return s, nil
}

// decodeFacilityPayload normalizes and decodes a base64 payload returned by
// a delegated capture facility.
func decodeFacilityPayload(s string) ([]byte, error) {
	norm, err := normalizeBase64(s)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(norm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return data, nil
}
