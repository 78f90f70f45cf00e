package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gastos/internal/amqp"
	applog "gastos/internal/log"
	"gastos/internal/services"
)

// RefreshWorker handles dataset refresh requests coming from AMQP
type RefreshWorker struct {
	service *services.DatasetService
	now     func() time.Time

	mu            sync.Mutex
	lastRefreshed time.Time
}

func NewRefreshWorker(service *services.DatasetService) *RefreshWorker {
	return &RefreshWorker{service: service, now: time.Now}
}

// HandleRefreshMessage refreshes the dataset. Requests issued before the
// last successful refresh started are already satisfied and are skipped.
func (w *RefreshWorker) HandleRefreshMessage(ctx context.Context, msg *amqp.RefreshRequestMessage) error {
	fields := applog.NewFields().
		WithComponent(applog.ComponentWorker).
		WithOperation(applog.OpRefresh)
	if msg.RequestID != "" {
		fields.WithRequestID(msg.RequestID)
	}

	w.mu.Lock()
	last := w.lastRefreshed
	w.mu.Unlock()
	if !msg.RequestedAt.IsZero() && !last.IsZero() && msg.RequestedAt.Before(last) {
		slog.DebugContext(ctx, "Skipping refresh request already satisfied", fields.ToSlice()...)
		return nil
	}

	slog.InfoContext(ctx, "Processing refresh request", append(fields.ToSlice(), "reason", msg.Reason)...)

	started := w.now()
	records, err := w.service.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh dataset: %w", err)
	}

	w.mu.Lock()
	if started.After(w.lastRefreshed) {
		w.lastRefreshed = started
	}
	w.mu.Unlock()

	slog.InfoContext(ctx, "Refresh request completed",
		append(fields.ToSlice(), applog.FieldRecords, len(records))...)
	return nil
}

// StartupCheck warms the cache when it is missing or expired. This recovers
// from worker downtime without waiting for a request.
func (w *RefreshWorker) StartupCheck(ctx context.Context) error {
	if w.service.Store().IsValid(ctx) {
		slog.InfoContext(ctx, "Cache is valid on startup",
			applog.FieldComponent, applog.ComponentWorker)
		return nil
	}
	slog.InfoContext(ctx, "Cache missing or expired on startup, refreshing",
		applog.FieldComponent, applog.ComponentWorker)
	return w.HandleRefreshMessage(ctx, &amqp.RefreshRequestMessage{Reason: "startup"})
}
