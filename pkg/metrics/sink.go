package metrics

import (
	"fmt"
	"time"

	"github.com/shadowmesh/hebench/pkg/params"
)

// Sink bundles the optional Redis batch-counter mirror and Postgres
// run-ledger behind the single call surface pkg/roles uses. Either
// collaborator may be nil: a Sink with both nil is valid and every method
// on it is then a no-op, which is how a role behaves when
// Parameters.Metrics.Enabled is false.
type Sink struct {
	Counters *RedisCounters
	Ledger   *RunLedger
}

// NewSink dials the collaborators cfg enables and returns a Sink wrapping
// them. A disabled cfg returns a zero-value Sink whose methods are no-ops,
// so callers never need to branch on cfg.Enabled themselves.
func NewSink(cfg params.MetricsConfig) (*Sink, error) {
	if !cfg.Enabled {
		return &Sink{}, nil
	}

	var s Sink
	if cfg.Redis != "" {
		counters, err := NewRedisCounters(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("metrics sink: %w", err)
		}
		s.Counters = counters
	}
	if cfg.Postgres != "" {
		ledger, err := NewRunLedger(cfg.Postgres)
		if err != nil {
			if s.Counters != nil {
				s.Counters.Close()
			}
			return nil, fmt.Errorf("metrics sink: %w", err)
		}
		s.Ledger = ledger
	}
	return &s, nil
}

// RunStarted records a new run in the Postgres ledger, if configured.
func (s *Sink) RunStarted(runID, role string, p *params.Parameters, startedAt time.Time) error {
	if s == nil || s.Ledger == nil {
		return nil
	}
	return s.Ledger.RecordStart(Run{
		RunID:        runID + ":" + role,
		Variant:      string(p.Variant),
		IntBits:      p.IntBits,
		BatchSize:    p.BatchSize,
		BatchCount:   p.BatchCount,
		DataHandling: string(p.DataHandling),
		StartedAt:    startedAt,
	})
}

// RunFinished marks the run complete in the Postgres ledger, if configured.
func (s *Sink) RunFinished(runID, role string, succeeded bool, elapsed time.Duration) error {
	if s == nil || s.Ledger == nil {
		return nil
	}
	return s.Ledger.RecordFinish(runID+":"+role, succeeded, elapsed)
}

// BatchComplete mirrors one role's batch-completion event into the Redis
// counters, if configured.
func (s *Sink) BatchComplete(runID, role string, batch int) error {
	if s == nil || s.Counters == nil {
		return nil
	}
	return s.Counters.IncrBatch(runID, role, batch)
}

// Close releases whichever collaborators are present.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if s.Counters != nil {
		if err := s.Counters.Close(); err != nil {
			firstErr = err
		}
	}
	if s.Ledger != nil {
		if err := s.Ledger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
