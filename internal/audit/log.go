package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

// Sink receives audit events for durable storage. The pgx Repository is
// the production sink.
type Sink interface {
	Append(ctx context.Context, event contracts.AuditEvent) error
}

// Log is the append-only audit trail of the strategy sandbox. It keeps a
// bounded in-memory ring for queries and forwards every event to the sink
// when one is attached. Safe for concurrent writers.
type Log struct {
	mu     sync.RWMutex
	events []contracts.AuditEvent
	max    int

	sink   Sink
	logger *logger.Logger
}

// New creates an audit log holding at most max recent events in memory.
func New(log *logger.Logger, max int) *Log {
	if max <= 0 {
		max = 10000
	}
	return &Log{
		events: make([]contracts.AuditEvent, 0, 256),
		max:    max,
		logger: log,
	}
}

// WithSink attaches a durable sink. Must be called before concurrent use.
func (l *Log) WithSink(s Sink) *Log {
	l.sink = s
	return l
}

// Record appends one event. Sink failures are logged, never propagated:
// an audit write must not fail the operation being audited.
func (l *Log) Record(ctx context.Context, typ contracts.AuditEventType, strategyID int64, codeHash, detail string) {
	event := contracts.AuditEvent{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Type:       typ,
		StrategyID: strategyID,
		CodeHash:   codeHash,
		Detail:     detail,
	}

	l.mu.Lock()
	if len(l.events) >= l.max {
		l.events = l.events[1:]
	}
	l.events = append(l.events, event)
	sink := l.sink
	l.mu.Unlock()

	l.logger.WithFields(map[string]interface{}{
		"type":        string(typ),
		"strategy_id": strategyID,
		"detail":      detail,
	}).Debug("Audit event")

	if sink != nil {
		if err := sink.Append(ctx, event); err != nil {
			l.logger.WithError(err).Warn("Audit sink append failed")
		}
	}
}

// Query returns events for a strategy within [from, to]. A zero strategyID
// matches every strategy; zero bounds are open.
func (l *Log) Query(strategyID int64, from, to time.Time) []contracts.AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []contracts.AuditEvent
	for _, e := range l.events {
		if strategyID != 0 && e.StrategyID != strategyID {
			continue
		}
		if !from.IsZero() && e.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && e.Timestamp.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Recent returns the latest n events, newest first.
func (l *Log) Recent(n int) []contracts.AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]contracts.AuditEvent, n)
	for i := 0; i < n; i++ {
		out[i] = l.events[len(l.events)-1-i]
	}
	return out
}

// Len returns the number of buffered events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
