// Package analytics records per-request outcomes. The recorder is an
// explicitly constructed dependency with its own lifecycle: built at process
// start, injected into the pipeline, drained at shutdown. There is no
// process-global client.
package analytics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vizor/internal/infra"
)

// Outcome is one finished (or failed) generation request.
type Outcome struct {
	CallerID string
	Target   string
	Provider string
	Status   string
	CacheHit bool
	ErrText  string
	Duration time.Duration
}

// Recorder receives request outcomes. Implementations must never block the
// response path.
type Recorder interface {
	Record(outcome Outcome)
	Close(ctx context.Context) error
}

// NopRecorder discards everything. Used when no DATABASE_URL is configured.
type NopRecorder struct{}

func (NopRecorder) Record(Outcome) {}

func (NopRecorder) Close(context.Context) error { return nil }

// PGRecorder persists outcomes to Postgres through a buffered worker
// goroutine, so recording never blocks a request and a slow database only
// drops analytics rows, never responses.
type PGRecorder struct {
	pool   *pgxpool.Pool
	logger infra.Logger
	queue  chan Outcome
	done   chan struct{}
}

const insertOutcomeSQL = `
INSERT INTO generation_outcomes (
    caller_id, target, provider, status, cache_hit, error_text, duration_ms, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, now());
`

// NewPGRecorder starts the worker. The queue is bounded; overflow is dropped
// with a warning rather than applying backpressure to requests.
func NewPGRecorder(pool *pgxpool.Pool, logger infra.Logger) *PGRecorder {
	r := &PGRecorder{
		pool:   pool,
		logger: logger,
		queue:  make(chan Outcome, 256),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *PGRecorder) loop() {
	defer close(r.done)
	for outcome := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := r.pool.Exec(ctx, insertOutcomeSQL,
			outcome.CallerID,
			outcome.Target,
			outcome.Provider,
			outcome.Status,
			outcome.CacheHit,
			outcome.ErrText,
			outcome.Duration.Milliseconds(),
		)
		cancel()
		if err != nil {
			r.logger.Warn().Err(err).Msg("analytics: insert outcome failed")
		}
	}
}

// Record enqueues an outcome without blocking.
func (r *PGRecorder) Record(outcome Outcome) {
	select {
	case r.queue <- outcome:
	default:
		r.logger.Warn().Msg("analytics: queue full, outcome dropped")
	}
}

// Close drains the queue and stops the worker.
func (r *PGRecorder) Close(ctx context.Context) error {
	close(r.queue)
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ Recorder = (*PGRecorder)(nil)
	_ Recorder = NopRecorder{}
)
