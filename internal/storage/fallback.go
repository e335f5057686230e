package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"iot-ledger-backend/internal/model"
)

// fallbackPrefix makes pseudo-CIDs look like CIDv1 strings. They are not
// decodable CIDs.
const fallbackPrefix = "bafybeig"

// Serialize encodes metadata as compact JSON in declaration order, without
// HTML escaping.
func Serialize(meta model.DeviceMetadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(meta); err != nil {
		return nil, fmt.Errorf("failed to serialize metadata: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// FallbackCID derives a stable placeholder identifier from the metadata when
// the storage service cannot be reached. Identical metadata always yields the
// same value.
func FallbackCID(meta model.DeviceMetadata) (string, error) {
	doc, err := Serialize(meta)
	if err != nil {
		return "", err
	}

	sum := rollingHash(string(doc))
	abs := int64(sum)
	if abs < 0 {
		abs = -abs
	}

	digits := strconv.FormatInt(abs, 16)
	if len(digits) < 12 {
		digits = strings.Repeat("0", 12-len(digits)) + digits
	}
	return fallbackPrefix + digits + nameTag(meta.Name), nil
}

// rollingHash is h = 31*h + c with int32 wraparound. For code points outside
// the BMP only the high surrogate contributes.
func rollingHash(s string) int32 {
	var h int32
	for _, r := range s {
		c := r
		if r > 0xFFFF {
			c, _ = utf16.EncodeRune(r)
		}
		h = 31*h + int32(c)
	}
	return h
}

// nameTag is the device name without whitespace, lowercased, at most 8 runes.
func nameTag(name string) string {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
	runes := []rune(strings.ToLower(compact))
	if len(runes) > 8 {
		runes = runes[:8]
	}
	return string(runes)
}
