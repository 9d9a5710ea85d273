package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceOverdue sweeps sent invoices past their due date.
	TaskInvoiceOverdue = "invoice:overdue"
	// TaskQuotationExpire expires open quotations past their valid-until date.
	TaskQuotationExpire = "quotation:expire"
	// TaskInventoryReconcile compares stock snapshots against the movement log.
	TaskInventoryReconcile = "inventory:reconcile"
)

// SweepPayload carries scheduling metadata for the periodic sweeps.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewInvoiceOverdueTask constructs the overdue-invoice sweep task.
func NewInvoiceOverdueTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceOverdue, body, asynq.Queue(QueueDefault)), nil
}

// NewQuotationExpireTask constructs the quotation-expiry sweep task.
func NewQuotationExpireTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationExpire, body, asynq.Queue(QueueDefault)), nil
}

// NewInventoryReconcileTask constructs the stock reconciliation task.
func NewInventoryReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryReconcile, body, asynq.Queue(QueueDefault)), nil
}

// OverdueMarker flips due invoices to overdue.
type OverdueMarker interface {
	MarkOverdueDue(ctx context.Context) (int, error)
}

// QuotationExpirer expires quotations past their validity window.
type QuotationExpirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// StockReconciler audits stock snapshots against the movement log.
type StockReconciler interface {
	Reconcile(ctx context.Context, repair bool, actorID int64) ([]inventory.ReconcileResult, error)
}

// HandleInvoiceOverdue builds the handler for TaskInvoiceOverdue.
func HandleInvoiceOverdue(svc OverdueMarker, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		moved, err := svc.MarkOverdueDue(ctx)
		if err != nil {
			return err
		}
		logger.Info("overdue sweep complete", slog.Int("moved", moved))
		return nil
	}
}

// HandleQuotationExpire builds the handler for TaskQuotationExpire.
func HandleQuotationExpire(svc QuotationExpirer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		expired, err := svc.ExpireDue(ctx)
		if err != nil {
			return err
		}
		logger.Info("quotation expiry sweep complete", slog.Int("expired", expired))
		return nil
	}
}

// systemActorID marks movements written by scheduled jobs rather than a user.
const systemActorID = 0

// HandleInventoryReconcile builds the handler for TaskInventoryReconcile.
// The sweep reports drift without repairing; repair stays a manual action.
func HandleInventoryReconcile(svc StockReconciler, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		drift, err := svc.Reconcile(ctx, false, systemActorID)
		if err != nil {
			return err
		}
		logger.Info("stock reconciliation complete", slog.Int("drift_rows", len(drift)))
		return nil
	}
}
