package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarker struct {
	calls int
	err   error
}

func (f *fakeMarker) MarkOverdueDue(context.Context) (int, error) {
	f.calls++
	return 3, f.err
}

type fakeExpirer struct {
	calls int
}

func (f *fakeExpirer) ExpireDue(context.Context) (int, error) {
	f.calls++
	return 2, nil
}

type fakeReconciler struct {
	repair  bool
	actorID int64
}

func (f *fakeReconciler) Reconcile(_ context.Context, repair bool, actorID int64) ([]inventory.ReconcileResult, error) {
	f.repair = repair
	f.actorID = actorID
	return []inventory.ReconcileResult{{ProductID: 1, Drift: -2}}, nil
}

func TestHandleInvoiceOverdue(t *testing.T) {
	marker := &fakeMarker{}
	task, err := NewInvoiceOverdueTask(time.Now())
	require.NoError(t, err)

	require.NoError(t, HandleInvoiceOverdue(marker, discard())(context.Background(), task))
	require.Equal(t, 1, marker.calls)
}

func TestHandleInvoiceOverduePropagatesError(t *testing.T) {
	marker := &fakeMarker{err: errors.New("db down")}
	task, err := NewInvoiceOverdueTask(time.Now())
	require.NoError(t, err)

	require.Error(t, HandleInvoiceOverdue(marker, discard())(context.Background(), task))
}

func TestHandleInvoiceOverdueSkipsBadPayload(t *testing.T) {
	marker := &fakeMarker{}
	bad := asynq.NewTask(TaskInvoiceOverdue, []byte("{not json"))

	err := HandleInvoiceOverdue(marker, discard())(context.Background(), bad)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, marker.calls)
}

func TestHandleQuotationExpire(t *testing.T) {
	expirer := &fakeExpirer{}
	task, err := NewQuotationExpireTask(time.Now())
	require.NoError(t, err)

	require.NoError(t, HandleQuotationExpire(expirer, discard())(context.Background(), task))
	require.Equal(t, 1, expirer.calls)
}

func TestHandleInventoryReconcileNeverRepairs(t *testing.T) {
	rec := &fakeReconciler{repair: true}
	task, err := NewInventoryReconcileTask(time.Now())
	require.NoError(t, err)

	require.NoError(t, HandleInventoryReconcile(rec, discard())(context.Background(), task))
	require.False(t, rec.repair)
	require.Equal(t, int64(systemActorID), rec.actorID)
}
