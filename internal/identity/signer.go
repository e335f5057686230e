package identity

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = crypto.SignatureLength

// Signer produces the registration signature submitted with a device.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner parses an optional hex private key. An empty key yields a signer
// that emits the fixed placeholder signature.
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return &Signer{}, nil
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}
	return &Signer{key: key}, nil
}

// Key returns the operator key, or nil when none is configured.
func (s *Signer) Key() *ecdsa.PrivateKey {
	return s.key
}

// Address is the operator account, or the zero address without a key.
func (s *Signer) Address() common.Address {
	if s.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// Sign returns a 65-byte signature over keccak256(deviceHash || cid).
func (s *Signer) Sign(deviceHash common.Hash, cid string) ([]byte, error) {
	if s == nil || s.key == nil {
		return PlaceholderSignature(), nil
	}
	digest := crypto.Keccak256(deviceHash.Bytes(), []byte(cid))
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign registration: %w", err)
	}
	return sig, nil
}

// PlaceholderSignature is 0x10 followed by 64 zero bytes.
func PlaceholderSignature() []byte {
	sig := make([]byte, SignatureLength)
	sig[0] = 0x10
	return sig
}
