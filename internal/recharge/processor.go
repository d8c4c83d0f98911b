// Package recharge applies externally verified payment-provider webhook
// events to rider balances. The provider retries deliveries, so every
// rejection path is a silent no-op: an error response would only make
// the provider hammer us with an event we will never accept.
package recharge

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/khaledhegab/ets-backend-final/internal/models"
	"github.com/khaledhegab/ets-backend-final/internal/observability"
	"github.com/khaledhegab/ets-backend-final/internal/storage"
)

// Event is the payment provider's webhook payload.
type Event struct {
	Event struct {
		Code int    `json:"Code"`
		Name string `json:"Name"`
	} `json:"Event"`
	Data struct {
		Amount struct {
			ValueInBaseCurrency string `json:"ValueInBaseCurrency"`
		} `json:"Amount"`
		Invoice struct {
			ID                 string `json:"Id"`
			Status             string `json:"Status"`
			ExternalIdentifier string `json:"ExternalIdentifier"` // rider id
		} `json:"Invoice"`
		Transaction struct {
			ID            string `json:"Id"`
			Status        string `json:"Status"`
			PaymentID     string `json:"PaymentId"`
			PaymentMethod string `json:"PaymentMethod"`
		} `json:"Transaction"`
	} `json:"Data"`
}

// SignatureVerifier checks the provider's delivery signature. It fails
// closed: any verification problem reads as false.
type SignatureVerifier interface {
	Verify(ev Event, signature string) bool
}

type Processor struct {
	Accounts     storage.AccountStore
	Transactions storage.TransactionStore
	Verifier     SignatureVerifier
	Logger       *slog.Logger
}

const (
	eventCodePaymentStatusChanged = 1
	eventNamePaymentStatusChanged = "PAYMENT_STATUS_CHANGED"
)

const casAttempts = 3

// Process applies one webhook delivery. It returns an error only for
// storage failures on an event it had decided to accept; everything
// else — bad signature, wrong event type, unpaid status, duplicate
// payment reference — is dropped without error.
func (p *Processor) Process(ctx context.Context, ev Event, signature string) error {
	if p.Verifier == nil || !p.Verifier.Verify(ev, signature) {
		p.ignore(ctx, ev, "bad_signature")
		return nil
	}
	if ev.Event.Code != eventCodePaymentStatusChanged || ev.Event.Name != eventNamePaymentStatusChanged {
		p.ignore(ctx, ev, "wrong_event")
		return nil
	}
	if ev.Data.Transaction.Status != "SUCCESS" || ev.Data.Invoice.Status != "PAID" {
		p.ignore(ctx, ev, "not_successful")
		return nil
	}

	riderID := ev.Data.Invoice.ExternalIdentifier
	paymentID := ev.Data.Transaction.PaymentID
	amount, err := parseAmount(ev.Data.Amount.ValueInBaseCurrency)
	if err != nil || amount <= 0 || riderID == "" || paymentID == "" {
		p.ignore(ctx, ev, "malformed")
		return nil
	}

	// PaymentId is the idempotency key; the provider redelivers.
	if _, err := p.Transactions.FindByReferenceID(ctx, paymentID); err == nil {
		p.ignore(ctx, ev, "duplicate")
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if _, err := p.Accounts.GetBalance(ctx, riderID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			p.ignore(ctx, ev, "unknown_rider")
			return nil
		}
		return err
	}

	txn := &models.Transaction{
		RiderID:     riderID,
		Amount:      amount,
		Debit:       false,
		Hold:        false,
		ReferenceID: paymentID,
		Method:      ev.Data.Transaction.PaymentMethod,
	}
	if _, err := p.Transactions.Insert(ctx, txn); err != nil {
		// A concurrent delivery of the same event won the reference-id
		// uniqueness race; its credit stands.
		if errors.Is(err, storage.ErrConflict) {
			p.ignore(ctx, ev, "duplicate")
			return nil
		}
		return err
	}

	if err := p.credit(ctx, riderID, amount); err != nil {
		return err
	}

	observability.RechargesApplied.Inc()
	p.logger().InfoContext(ctx, "balance recharged",
		"rider_id", riderID, "amount", amount, "payment_id", paymentID)
	return nil
}

func (p *Processor) credit(ctx context.Context, riderID string, amount int64) error {
	var err error
	for attempt := 0; attempt < casAttempts; attempt++ {
		var bal models.Balance
		bal, err = p.Accounts.GetBalance(ctx, riderID)
		if err != nil {
			return err
		}
		next := models.Balance{Available: bal.Available + amount, Holding: bal.Holding}
		err = p.Accounts.UpdateBalance(ctx, riderID, bal, next)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrStale) {
			return err
		}
	}
	return err
}

func (p *Processor) ignore(ctx context.Context, ev Event, reason string) {
	observability.RechargesIgnored.WithLabelValues(reason).Inc()
	p.logger().DebugContext(ctx, "recharge event ignored",
		"reason", reason, "payment_id", ev.Data.Transaction.PaymentID)
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// parseAmount converts the provider's base-currency decimal string to
// minor units, tolerating missing or short fractional digits.
func parseAmount(v string) (int64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return int64(f*100 + 0.5), nil
}
