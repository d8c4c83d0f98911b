package recharge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// HMACVerifier checks the provider's HMAC-SHA256 delivery signature,
// computed over a canonical comma-joined field string and sent base64
// encoded.
type HMACVerifier struct {
	Secret []byte
}

func (v *HMACVerifier) Verify(ev Event, signature string) bool {
	if signature == "" || len(v.Secret) == 0 {
		return false
	}

	canonical := fmt.Sprintf(
		"Invoice.Id=%s,Invoice.Status=%s,Transaction.Status=%s,Transaction.PaymentId=%s,Invoice.ExternalIdentifier=%s",
		ev.Data.Invoice.ID,
		ev.Data.Invoice.Status,
		ev.Data.Transaction.Status,
		ev.Data.Transaction.PaymentID,
		ev.Data.Invoice.ExternalIdentifier,
	)

	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(canonical))
	want := mac.Sum(nil)

	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}
