// Package token implements the encrypted gate access key: a short-lived
// capability authorizing one gate entry for one rider, validated without
// any server-side lookup. Replay protection is not the codec's job — the
// ledger's one-open-trip-per-rider constraint stops a second entry while
// a trip is open.
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/scrypt"
)

// ErrInvalid covers every way a token can fail validation: malformed
// shape, tampering, wrong key, or expiry. Callers get no finer detail.
var ErrInvalid = errors.New("invalid or expired access key")

// Payload is the plaintext carried inside a token. Timestamps are epoch
// milliseconds to match the wire contract.
type Payload struct {
	RiderID   string `json:"riderId"`
	PartySize int    `json:"partySize"`
	IssuedAt  int64  `json:"timestamp"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Codec encrypts and validates access keys with AES-256-GCM under a key
// stretched from the operator secret via scrypt.
type Codec struct {
	aead cipher.AEAD
	now  func() time.Time
}

// scrypt parameters mirror the defaults of Node's crypto.scryptSync,
// which produced the keys this service originally interoperated with.
const (
	scryptN    = 16384
	scryptR    = 8
	scryptP    = 1
	scryptSalt = "salt"
)

func NewCodec(secret string) (*Codec, error) {
	key, err := scrypt.Key([]byte(secret), []byte(scryptSalt), scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("token aead: %w", err)
	}
	return &Codec{aead: aead, now: time.Now}, nil
}

// Issue builds and encrypts a payload valid for ttl from now. The wire
// format is hex(nonce) + ":" + hex(ciphertext).
func (c *Codec) Issue(riderID string, partySize int, ttl time.Duration) (string, Payload, error) {
	now := c.now()
	payload := Payload{
		RiderID:   riderID,
		PartySize: partySize,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", Payload{}, fmt.Errorf("encode token payload: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", Payload{}, fmt.Errorf("token nonce: %w", err)
	}
	ciphertext := c.aead.Seal(nil, nonce, plaintext, nil)

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ciphertext), payload, nil
}

// Validate decrypts a token and checks expiry. It returns ErrInvalid for
// anything short of a fully intact, unexpired token and never panics on
// attacker-controlled input.
func (c *Codec) Validate(tok string) (Payload, error) {
	nonceHex, cipherHex, ok := strings.Cut(tok, ":")
	if !ok {
		return Payload{}, ErrInvalid
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return Payload{}, ErrInvalid
	}
	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil {
		return Payload{}, ErrInvalid
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Payload{}, ErrInvalid
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return Payload{}, ErrInvalid
	}
	if c.now().UnixMilli() > payload.ExpiresAt {
		return Payload{}, ErrInvalid
	}
	return payload, nil
}
