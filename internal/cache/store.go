package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
)

const (
	// DefaultKey is the single slot the dataset is stored under.
	DefaultKey = "expense-data-cache"
	// DefaultTTL is how long a stored dataset stays usable.
	DefaultTTL = time.Hour
)

// ErrNotFound is returned by backends when the key holds nothing.
var ErrNotFound = errors.New("cache entry not found")

// Backend is a persistent byte store. Implementations must be safe for
// concurrent use; last writer wins.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Envelope is one cache generation as persisted by the backend.
type Envelope struct {
	Data      []core.MonthlyRecord `json:"data"`
	Timestamp int64                `json:"timestamp"` // unix milliseconds
}

// Time returns the envelope timestamp.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Status describes the stored envelope without touching it.
type Status struct {
	StoredAt time.Time
	Age      time.Duration
	Records  int
	Valid    bool
}

// Store keeps the assembled dataset in a single slot with a time-based expiry.
// A Store without backend behaves as "no persistent store available": reads
// miss and writes are dropped. Backend failures are logged, never returned.
type Store struct {
	backend Backend
	key     string
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTTL replaces DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithKey replaces DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a store over backend, which may be nil.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a persistent backend is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.backend != nil
}

// TTL returns the configured expiry.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Read returns the stored records if they are younger than the TTL. An
// expired envelope is deleted as a side effect.
func (s *Store) Read(ctx context.Context) ([]core.MonthlyRecord, bool) {
	env, ok := s.load(ctx)
	if !ok {
		return nil, false
	}
	if s.expired(env) {
		s.logger.DebugContext(ctx, "Cache expired, clearing",
			applog.FieldComponent, applog.ComponentCache,
			applog.FieldCacheKey, s.key,
			applog.FieldCacheAge, s.now().Sub(env.Time()).String())
		s.Clear(ctx)
		return nil, false
	}
	s.logger.DebugContext(ctx, "Using cached data",
		applog.FieldComponent, applog.ComponentCache,
		applog.FieldCacheKey, s.key,
		applog.FieldRecords, len(env.Data))
	if env.Data == nil {
		env.Data = []core.MonthlyRecord{}
	}
	return env.Data, true
}

// Write replaces the stored envelope with records stamped now.
func (s *Store) Write(ctx context.Context, records []core.MonthlyRecord) {
	if !s.Enabled() {
		return
	}
	if records == nil {
		records = []core.MonthlyRecord{}
	}
	body, err := json.Marshal(Envelope{Data: records, Timestamp: s.now().UnixMilli()})
	if err != nil {
		s.warn(ctx, "Failed to encode cache envelope", applog.OpWrite, err)
		return
	}
	if err := s.backend.Put(ctx, s.key, body); err != nil {
		s.warn(ctx, "Failed to cache data", applog.OpWrite, err)
		return
	}
	s.logger.DebugContext(ctx, "Data cached successfully",
		applog.FieldComponent, applog.ComponentCache,
		applog.FieldCacheKey, s.key,
		applog.FieldRecords, len(records))
}

// Clear removes the stored envelope.
func (s *Store) Clear(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.backend.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrNotFound) {
		s.warn(ctx, "Failed to clear cache", applog.OpClear, err)
	}
}

// IsValid reports whether a stored envelope exists and is within the TTL.
// Unlike Read it never modifies the backend.
func (s *Store) IsValid(ctx context.Context) bool {
	env, ok := s.load(ctx)
	return ok && !s.expired(env)
}

// Status returns details about the stored envelope without modifying it.
func (s *Store) Status(ctx context.Context) (Status, bool) {
	env, ok := s.load(ctx)
	if !ok {
		return Status{}, false
	}
	storedAt := env.Time()
	return Status{
		StoredAt: storedAt,
		Age:      s.now().Sub(storedAt),
		Records:  len(env.Data),
		Valid:    !s.expired(env),
	}, true
}

func (s *Store) expired(env Envelope) bool {
	return s.now().Sub(env.Time()) > s.ttl
}

func (s *Store) load(ctx context.Context) (Envelope, bool) {
	if !s.Enabled() {
		return Envelope{}, false
	}
	body, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.warn(ctx, "Failed to read cache", applog.OpRead, err)
		}
		return Envelope{}, false
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.warn(ctx, "Failed to decode cache envelope", applog.OpParse, err)
		return Envelope{}, false
	}
	return env, true
}

func (s *Store) warn(ctx context.Context, msg, op string, err error) {
	fields := applog.NewFields().
		WithComponent(applog.ComponentCache).
		WithOperation(op).
		WithError(err)
	fields[applog.FieldCacheKey] = s.key
	s.logger.WarnContext(ctx, msg, fields.ToSlice()...)
}
