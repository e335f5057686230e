// Package identity derives the fixed-length identifiers used as ledger keys.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DeviceHash maps a free-form identifier such as a MAC address onto 32 bytes.
// Every byte of the UTF-8 encoding becomes two hex digits; the digits are then
// right-padded with zeros or truncated to 64. Inputs longer than 32 bytes that
// share a prefix collide.
func DeviceHash(input string) common.Hash {
	digits := hex.EncodeToString([]byte(input))
	if len(digits) > 2*common.HashLength {
		digits = digits[:2*common.HashLength]
	} else {
		digits += strings.Repeat("0", 2*common.HashLength-len(digits))
	}
	return common.HexToHash(digits)
}

// DataHash is the content digest of a sensor reading.
func DataHash(value string) common.Hash {
	return common.Hash(sha256.Sum256([]byte(value)))
}

// DataTypeTag encodes a numeric data type (1 temperature, 2 humidity, ...) as
// a left-padded bytes32.
func DataTypeTag(n uint64) common.Hash {
	var h common.Hash
	binary.BigEndian.PutUint64(h[common.HashLength-8:], n)
	return h
}
