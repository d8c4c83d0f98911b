package recharge

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/khaledhegab/ets-backend-final/internal/models"
	"github.com/khaledhegab/ets-backend-final/internal/storage"
)

type acceptAll struct{}

func (acceptAll) Verify(Event, string) bool { return true }

type rejectAll struct{}

func (rejectAll) Verify(Event, string) bool { return false }

func paidEvent(riderID, paymentID, amount string) Event {
	var ev Event
	ev.Event.Code = 1
	ev.Event.Name = "PAYMENT_STATUS_CHANGED"
	ev.Data.Amount.ValueInBaseCurrency = amount
	ev.Data.Invoice.ID = "inv-1"
	ev.Data.Invoice.Status = "PAID"
	ev.Data.Invoice.ExternalIdentifier = riderID
	ev.Data.Transaction.ID = "txn-1"
	ev.Data.Transaction.Status = "SUCCESS"
	ev.Data.Transaction.PaymentID = paymentID
	ev.Data.Transaction.PaymentMethod = "card"
	return ev
}

func newTestProcessor(verifier SignatureVerifier) (*Processor, *storage.MemoryAccounts, *storage.MemoryTransactions) {
	accounts := storage.NewMemoryAccounts()
	txns := storage.NewMemoryTransactions()
	return &Processor{Accounts: accounts, Transactions: txns, Verifier: verifier}, accounts, txns
}

func mustAvailable(t *testing.T, accounts *storage.MemoryAccounts, riderID string, want int64) {
	t.Helper()
	bal, err := accounts.GetBalance(context.Background(), riderID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Available != want {
		t.Fatalf("available = %d, want %d", bal.Available, want)
	}
}

func TestProcessCreditsBalance(t *testing.T) {
	p, accounts, txns := newTestProcessor(acceptAll{})
	ctx := context.Background()
	accounts.Seed("rider-1", models.Balance{Available: 100})

	if err := p.Process(ctx, paidEvent("rider-1", "pay-1", "50.00"), "sig"); err != nil {
		t.Fatalf("process: %v", err)
	}
	mustAvailable(t, accounts, "rider-1", 5100)

	txn, err := txns.FindByReferenceID(ctx, "pay-1")
	if err != nil {
		t.Fatalf("find credit: %v", err)
	}
	if txn.Debit || txn.Hold || txn.Amount != 5000 || txn.Method != "card" {
		t.Fatalf("credit txn = %+v", txn)
	}
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	p, accounts, _ := newTestProcessor(acceptAll{})
	ctx := context.Background()
	accounts.Seed("rider-1", models.Balance{})

	ev := paidEvent("rider-1", "pay-1", "10")
	for i := 0; i < 3; i++ {
		if err := p.Process(ctx, ev, "sig"); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	mustAvailable(t, accounts, "rider-1", 1000)
}

func TestProcessDropsWithoutError(t *testing.T) {
	wrongEvent := paidEvent("rider-1", "pay-1", "10")
	wrongEvent.Event.Code = 2

	unpaid := paidEvent("rider-1", "pay-2", "10")
	unpaid.Data.Invoice.Status = "PENDING"

	failed := paidEvent("rider-1", "pay-3", "10")
	failed.Data.Transaction.Status = "FAILED"

	badAmount := paidEvent("rider-1", "pay-4", "not-a-number")
	zeroAmount := paidEvent("rider-1", "pay-5", "0")
	noRider := paidEvent("", "pay-6", "10")
	noPayment := paidEvent("rider-1", "", "10")

	cases := []struct {
		name     string
		verifier SignatureVerifier
		event    Event
	}{
		{"bad signature", rejectAll{}, paidEvent("rider-1", "pay-0", "10")},
		{"wrong event type", acceptAll{}, wrongEvent},
		{"invoice unpaid", acceptAll{}, unpaid},
		{"transaction failed", acceptAll{}, failed},
		{"unparseable amount", acceptAll{}, badAmount},
		{"zero amount", acceptAll{}, zeroAmount},
		{"missing rider", acceptAll{}, noRider},
		{"missing payment id", acceptAll{}, noPayment},
		{"unknown rider", acceptAll{}, paidEvent("ghost", "pay-7", "10")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, accounts, _ := newTestProcessor(c.verifier)
			accounts.Seed("rider-1", models.Balance{Available: 7})
			if err := p.Process(context.Background(), c.event, "sig"); err != nil {
				t.Fatalf("drop must not error: %v", err)
			}
			mustAvailable(t, accounts, "rider-1", 7)
		})
	}
}

func TestHMACVerifier(t *testing.T) {
	secret := []byte("webhook-secret")
	v := &HMACVerifier{Secret: secret}
	ev := paidEvent("rider-1", "pay-1", "10")

	canonical := fmt.Sprintf(
		"Invoice.Id=%s,Invoice.Status=%s,Transaction.Status=%s,Transaction.PaymentId=%s,Invoice.ExternalIdentifier=%s",
		"inv-1", "PAID", "SUCCESS", "pay-1", "rider-1")
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(canonical))
	good := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !v.Verify(ev, good) {
		t.Fatal("valid signature rejected")
	}
	if v.Verify(ev, "") {
		t.Fatal("empty signature accepted")
	}
	if v.Verify(ev, "not base64 !!!") {
		t.Fatal("undecodable signature accepted")
	}

	tampered := ev
	tampered.Data.Transaction.PaymentID = "pay-2"
	if v.Verify(tampered, good) {
		t.Fatal("signature accepted for altered payment id")
	}

	if (&HMACVerifier{}).Verify(ev, good) {
		t.Fatal("verifier with no secret must fail closed")
	}
}
