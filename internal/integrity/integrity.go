// Package integrity signs oracle payloads so downstream consumers can prove
// a snapshot came from this venue and was not altered in transit. Signing
// follows the Ethereum scheme (Keccak-256 digest, secp256k1 signature) so
// payloads stay verifiable by on-chain contracts.
package integrity

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// SignedPayload wraps a JSON payload with its digest and signature.
type SignedPayload struct {
	Payload   json.RawMessage `json:"payload"`
	Keccak256 string          `json:"keccak256Hash"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"publicKey"`
	SignedAt  int64           `json:"signedAt"`
}

// Signer holds the venue's signing key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicHex  string
	now        func() time.Time
}

// NewSigner generates an ephemeral signing key. Use NewSignerFromHex for a
// stable identity across restarts.
func NewSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return newSigner(key), nil
}

// NewSignerFromHex loads a signing key from its hex encoding, with or
// without a 0x prefix.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return newSigner(key), nil
}

func newSigner(key *ecdsa.PrivateKey) *Signer {
	s := &Signer{
		privateKey: key,
		publicHex:  fmt.Sprintf("0x%x", crypto.FromECDSAPub(&key.PublicKey)),
		now:        time.Now,
	}
	logrus.WithField("publicKey", s.publicHex[:18]+"...").Info("Integrity signer initialized")
	return s
}

// PublicKeyHex returns the 0x-prefixed uncompressed public key.
func (s *Signer) PublicKeyHex() string {
	return s.publicHex
}

// Sign serializes the payload, hashes it with Keccak-256 and signs the
// digest with the venue key.
func (s *Signer) Sign(payload interface{}) (SignedPayload, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	digest := crypto.Keccak256Hash(raw)
	signature, err := crypto.Sign(digest.Bytes(), s.privateKey)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("failed to sign payload: %w", err)
	}

	return SignedPayload{
		Payload:   raw,
		Keccak256: digest.Hex(),
		Signature: fmt.Sprintf("0x%x", signature),
		PublicKey: s.publicHex,
		SignedAt:  s.now().UnixMilli(),
	}, nil
}

// Verify recomputes the digest over the payload and checks the signature
// against the embedded public key.
func Verify(sp SignedPayload) (bool, error) {
	digest := crypto.Keccak256Hash(sp.Payload)
	if digest.Hex() != sp.Keccak256 {
		return false, fmt.Errorf("digest mismatch: payload hashes to %s, envelope claims %s", digest.Hex(), sp.Keccak256)
	}

	signature, err := hex.DecodeString(strings.TrimPrefix(sp.Signature, "0x"))
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(signature) != 65 {
		return false, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	publicKey, err := hex.DecodeString(strings.TrimPrefix(sp.PublicKey, "0x"))
	if err != nil {
		return false, fmt.Errorf("failed to decode public key: %w", err)
	}

	// Recovery byte is dropped for verification.
	return crypto.VerifySignature(publicKey, digest.Bytes(), signature[:64]), nil
}
