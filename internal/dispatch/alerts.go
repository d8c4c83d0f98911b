package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/khaledhegab/ets-backend-final/internal/ledger"
)

// OpsNotifier posts reconciliation alerts to the operations endpoint.
// Delivery is best effort: the alert is already logged and counted by
// the ledger, the POST is the pager path.
type OpsNotifier struct {
	Endpoint string
	Client   *http.Client
	Logger   *slog.Logger
}

func NewOpsNotifier(endpoint string, logger *slog.Logger) *OpsNotifier {
	return &OpsNotifier{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 3 * time.Second},
		Logger:   logger,
	}
}

func (n *OpsNotifier) Alert(ctx context.Context, alert ledger.ReconciliationAlert) {
	if n.Endpoint == "" {
		return
	}
	b, err := json.Marshal(alert)
	if err != nil {
		n.logger().ErrorContext(ctx, "encode reconciliation alert", "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(b))
	if err != nil {
		n.logger().ErrorContext(ctx, "build reconciliation alert request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		n.logger().ErrorContext(ctx, "deliver reconciliation alert", "trip_id", alert.TripID, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger().ErrorContext(ctx, "reconciliation alert rejected",
			"trip_id", alert.TripID, "error", fmt.Errorf("status %d", resp.StatusCode))
	}
}

func (n *OpsNotifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}
