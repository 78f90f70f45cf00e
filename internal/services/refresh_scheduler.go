package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "gastos/internal/log"
)

// RefreshSchedulerConfig holds configuration for the refresh scheduler
type RefreshSchedulerConfig struct {
	// PollInterval is how often the cache is checked (default: 5m)
	PollInterval time.Duration

	// RefreshBefore refreshes once the cached envelope is this close to
	// expiring (default: 5m). Zero refreshes only after expiry.
	RefreshBefore time.Duration
}

// DefaultRefreshSchedulerConfig returns sensible defaults
func DefaultRefreshSchedulerConfig() RefreshSchedulerConfig {
	return RefreshSchedulerConfig{
		PollInterval:  5 * time.Minute,
		RefreshBefore: 5 * time.Minute,
	}
}

// RefreshScheduler keeps the cache warm by refreshing the dataset before the
// stored envelope expires.
type RefreshScheduler struct {
	service *DatasetService
	config  RefreshSchedulerConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefreshScheduler creates a new scheduler
func NewRefreshScheduler(service *DatasetService, config RefreshSchedulerConfig) *RefreshScheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultRefreshSchedulerConfig().PollInterval
	}
	return &RefreshScheduler{
		service: service,
		config:  config,
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *RefreshScheduler) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("refresh scheduler is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Refresh scheduler started",
		applog.FieldComponent, applog.ComponentWorker,
		"poll_interval", p.config.PollInterval,
		"refresh_before", p.config.RefreshBefore)

	return nil
}

// Stop gracefully stops the scheduler and waits for completion.
func (p *RefreshScheduler) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Refresh scheduler stopped gracefully",
			applog.FieldComponent, applog.ComponentWorker)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Refresh scheduler stop timed out",
			applog.FieldComponent, applog.ComponentWorker)
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the scheduler is currently running
func (p *RefreshScheduler) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RefreshScheduler) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Check immediately on startup
	p.Tick(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick refreshes the dataset when the cache is missing or about to expire.
// It reports whether a refresh was attempted.
func (p *RefreshScheduler) Tick(ctx context.Context) bool {
	if !p.due(ctx) {
		return false
	}
	if _, err := p.service.Refresh(ctx); err != nil {
		slog.WarnContext(ctx, "Scheduled refresh failed",
			applog.NewFields().
				WithComponent(applog.ComponentWorker).
				WithOperation(applog.OpRefresh).
				WithError(err).ToSlice()...)
	}
	return true
}

func (p *RefreshScheduler) due(ctx context.Context) bool {
	store := p.service.Store()
	if !store.Enabled() {
		return true
	}
	st, ok := store.Status(ctx)
	if !ok || !st.Valid {
		return true
	}
	return store.TTL()-st.Age <= p.config.RefreshBefore
}
