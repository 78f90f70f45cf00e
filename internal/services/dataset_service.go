package services

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"gastos/internal/cache"
	"gastos/internal/core"
	applog "gastos/internal/log"
)

// Source says where the current records came from.
type Source string

const (
	SourceNone    Source = ""
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// State is a snapshot of the dataset as seen by consumers. Err and Records
// are mutually exclusive.
type State struct {
	Records  []core.MonthlyRecord
	Loading  bool
	Err      error
	Source   Source
	LoadedAt time.Time
}

// Fetcher performs one uncached read of the dataset.
type Fetcher interface {
	FetchExpenses(ctx context.Context) ([]core.MonthlyRecord, error)
}

// Notifier is told about every successful network fetch.
type Notifier interface {
	PublishDatasetRefreshed(ctx context.Context, records int, source string) error
}

// RefreshRecorder keeps a history of network fetch outcomes.
type RefreshRecorder interface {
	RecordRefresh(ctx context.Context, source string, records int, err error) error
}

// DatasetService loads the expense dataset through the cache and keeps the
// latest outcome. Concurrent loads are not coalesced: each one runs to
// completion and the last to finish defines State.
type DatasetService struct {
	fetcher  Fetcher
	store    *cache.Store
	notifier Notifier
	recorder RefreshRecorder
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.RWMutex
	state    State
	inflight int
	onChange []func(State)
}

// Option customises a DatasetService.
type Option func(*DatasetService)

func WithNotifier(n Notifier) Option {
	return func(s *DatasetService) { s.notifier = n }
}

func WithRecorder(r RefreshRecorder) Option {
	return func(s *DatasetService) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *DatasetService) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *DatasetService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewDatasetService wires a fetcher to a cache store. store may be nil.
func NewDatasetService(fetcher Fetcher, store *cache.Store, opts ...Option) *DatasetService {
	if store == nil {
		store = cache.NewStore(nil)
	}
	s := &DatasetService{
		fetcher: fetcher,
		store:   store,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the cache store for diagnostics.
func (s *DatasetService) Store() *cache.Store {
	return s.store
}

// OnChange registers fn to run after every completed load. Callbacks run
// synchronously and must not call back into the service's load methods.
func (s *DatasetService) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// State returns the current snapshot.
func (s *DatasetService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Loading = s.inflight > 0
	return st
}

// Load returns cached records when the cache holds a valid envelope and
// otherwise fetches from the source and writes the result through.
func (s *DatasetService) Load(ctx context.Context) ([]core.MonthlyRecord, error) {
	s.begin()

	if records, ok := s.store.Read(ctx); ok {
		s.logger.InfoContext(ctx, "Dataset loaded",
			applog.NewFields().
				WithComponent(applog.ComponentDataset).
				WithOperation(applog.OpRead).
				WithDataset(string(SourceCache), len(records)).ToSlice()...)
		s.finish(State{Records: records, Source: SourceCache, LoadedAt: s.now()})
		return records, nil
	}

	return s.fetch(ctx)
}

// Refresh ignores the cache, fetches from the source and replaces the cache
// on success. On failure the cache is left untouched.
func (s *DatasetService) Refresh(ctx context.Context) ([]core.MonthlyRecord, error) {
	s.begin()
	return s.fetch(ctx)
}

func (s *DatasetService) fetch(ctx context.Context) ([]core.MonthlyRecord, error) {
	records, err := s.fetcher.FetchExpenses(ctx)
	s.record(ctx, records, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load dataset",
			applog.NewFields().
				WithComponent(applog.ComponentDataset).
				WithOperation(applog.OpFetch).
				WithError(err).ToSlice()...)
		s.finish(State{Err: err, LoadedAt: s.now()})
		return nil, err
	}
	if records == nil {
		records = []core.MonthlyRecord{}
	}

	s.store.Write(ctx, records)
	s.logger.InfoContext(ctx, "Dataset loaded",
		applog.NewFields().
			WithComponent(applog.ComponentDataset).
			WithOperation(applog.OpFetch).
			WithDataset(string(SourceNetwork), len(records)).ToSlice()...)
	s.finish(State{Records: records, Source: SourceNetwork, LoadedAt: s.now()})

	if s.notifier != nil {
		if err := s.notifier.PublishDatasetRefreshed(ctx, len(records), string(SourceNetwork)); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish dataset refreshed event",
				applog.FieldComponent, applog.ComponentDataset,
				applog.FieldError, err)
		}
	}
	return records, nil
}

func (s *DatasetService) record(ctx context.Context, records []core.MonthlyRecord, err error) {
	if s.recorder == nil {
		return
	}
	if rerr := s.recorder.RecordRefresh(ctx, string(SourceNetwork), len(records), err); rerr != nil {
		s.logger.WarnContext(ctx, "Failed to record refresh",
			applog.FieldComponent, applog.ComponentDataset,
			applog.FieldError, rerr)
	}
}

func (s *DatasetService) begin() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *DatasetService) finish(st State) {
	s.mu.Lock()
	s.inflight--
	s.state = st
	callbacks := slices.Clone(s.onChange)
	s.mu.Unlock()

	st.Loading = s.State().Loading
	for _, fn := range callbacks {
		fn(st)
	}
}
