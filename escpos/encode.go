// Package escpos turns client payloads into the byte buffers transmitted
// to the printer. Everything here is pure: no I/O, no state.
package escpos

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Encoder errors. Terminal for the triggering command; never retried.
var (
	ErrInvalidEncoding = errors.New("invalid encoding")
	ErrMissingPayload  = errors.New("missing payload")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrInvalidField    = errors.New("invalid field")
)

// DecodeHex decodes an even-length string of hex digits into bytes. An
// empty string decodes to an empty buffer.
func DecodeHex(text string) ([]byte, error) {
	data, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return data, nil
}

// DecodeBase64 decodes standard base64, accepting both padded and
// unpadded input. The decoded content is not validated further.
func DecodeBase64(text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty base64 payload", ErrMissingPayload)
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return data, nil
}

// Raw validates a binary payload for passthrough transmission: it must be
// non-empty and no larger than max bytes.
func Raw(data []byte, max int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMissingPayload)
	}
	if len(data) > max {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, len(data), max)
	}
	return data, nil
}

// HexUpper maps each rune of text to the two-uppercase-hex-digit
// representation of its code point. Runes above 0xFF are truncated to
// their low byte.
func HexUpper(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 2)
	for _, r := range text {
		fmt.Fprintf(&b, "%02X", byte(r))
	}
	return b.String()
}
