package token

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("test-secret")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestIssueValidateRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	tok, issued, err := c.Issue("rider-1", 3, 5*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.ExpiresAt-issued.IssuedAt != (5 * time.Minute).Milliseconds() {
		t.Fatalf("bad validity window: %+v", issued)
	}

	got, err := c.Validate(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.RiderID != "rider-1" || got.PartySize != 3 {
		t.Fatalf("payload mismatch: %+v", got)
	}
}

func TestValidateExpired(t *testing.T) {
	c := newTestCodec(t)
	tok, _, err := c.Issue("rider-1", 1, -time.Second)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.Validate(tok); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for expired token, got %v", err)
	}
}

func TestValidateRejectsBitFlips(t *testing.T) {
	c := newTestCodec(t)
	tok, _, err := c.Issue("rider-1", 1, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	nonceHex, cipherHex, _ := strings.Cut(tok, ":")
	raw, _ := hex.DecodeString(cipherHex)
	for i := range raw {
		flipped := make([]byte, len(raw))
		copy(flipped, raw)
		flipped[i] ^= 0x01
		mutated := nonceHex + ":" + hex.EncodeToString(flipped)
		if _, err := c.Validate(mutated); !errors.Is(err, ErrInvalid) {
			t.Fatalf("bit flip at byte %d accepted", i)
		}
	}
}

func TestValidateRejectsWrongKey(t *testing.T) {
	c := newTestCodec(t)
	other, err := NewCodec("different-secret")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	tok, _, err := other.Issue("rider-1", 1, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.Validate(tok); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for foreign key, got %v", err)
	}
}

func TestValidateMalformed(t *testing.T) {
	c := newTestCodec(t)
	for _, tok := range []string{
		"",
		"nocolon",
		"zz:zz",
		"abcd:",
		":abcd",
		"00ff:00ff", // nonce too short
	} {
		if _, err := c.Validate(tok); !errors.Is(err, ErrInvalid) {
			t.Errorf("Validate(%q) = %v, want ErrInvalid", tok, err)
		}
	}
}

func TestNoncesDoNotRepeat(t *testing.T) {
	c := newTestCodec(t)
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		tok, _, err := c.Issue("rider-1", 1, time.Minute)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		nonceHex, _, _ := strings.Cut(tok, ":")
		if seen[nonceHex] {
			t.Fatalf("nonce repeated after %d issues", i)
		}
		seen[nonceHex] = true
	}
}
