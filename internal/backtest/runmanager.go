package backtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

// =============================================================================
// Run Manager
// Owns asynchronous backtest runs: queueing, concurrency limiting,
// cancellation, progress fan-out for streaming clients, and optional
// persistence of finished runs.
// =============================================================================

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// Run is one tracked backtest.
type Run struct {
	ID         string    `json:"id"`
	Request    Request   `json:"request"`
	Status     RunStatus `json:"status"`
	Progress   float64   `json:"progress"` // 0..1
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Result     *Result   `json:"result,omitempty"`
}

// ProgressEvent is one update pushed to streaming subscribers.
type ProgressEvent struct {
	RunID    string    `json:"run_id"`
	Status   RunStatus `json:"status"`
	Done     int       `json:"done"`
	Total    int       `json:"total"`
	Progress float64   `json:"progress"`
	Error    string    `json:"error,omitempty"`
}

// PriceSource supplies the price panel for a run's universe and range.
type PriceSource interface {
	Panel(ctx context.Context, codes []string, start, end time.Time) (*contracts.MarketData, error)
}

// RunSink persists run lifecycle transitions. Implementations must be
// safe for concurrent use; a nil sink disables persistence.
type RunSink interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
}

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("backtest: run not found")

type RunManager struct {
	engine *Engine
	prices PriceSource
	sink   RunSink
	log    *logger.Logger

	slots chan struct{}

	mu      sync.RWMutex
	runs    map[string]*Run
	cancels map[string]context.CancelFunc
	subs    map[string]map[chan ProgressEvent]struct{}
}

func NewRunManager(engine *Engine, prices PriceSource, sink RunSink, maxConcurrent int, log *logger.Logger) *RunManager {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &RunManager{
		engine:  engine,
		prices:  prices,
		sink:    sink,
		log:     log,
		slots:   make(chan struct{}, maxConcurrent),
		runs:    make(map[string]*Run),
		cancels: make(map[string]context.CancelFunc),
		subs:    make(map[string]map[chan ProgressEvent]struct{}),
	}
}

// Start queues one run and returns immediately. The combination is
// validated up front so a malformed request never consumes a worker slot.
func (m *RunManager) Start(req *Request) (*Run, error) {
	if err := req.Combination.Validate(); err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.New().String(),
		Request:   *req,
		Status:    RunPending,
		CreatedAt: time.Now().UTC(),
	}
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.runs[run.ID] = run
	m.cancels[run.ID] = cancel
	m.mu.Unlock()

	m.persist(func(sink RunSink, pctx context.Context) error { return sink.CreateRun(pctx, run) })
	go m.execute(ctx, run.ID)
	return m.Get(run.ID)
}

// Get returns a copy of the run's current state.
func (m *RunManager) Get(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

// List returns copies of all tracked runs, newest first.
func (m *RunManager) List() []*Run {
	m.mu.RLock()
	out := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		cp := *run
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Cancel aborts a pending or running run.
func (m *RunManager) Cancel(id string) error {
	m.mu.RLock()
	cancel, ok := m.cancels[id]
	m.mu.RUnlock()
	if !ok {
		return ErrRunNotFound
	}
	cancel()
	return nil
}

// Subscribe streams progress events for one run. The returned stop
// function must be called when the client disconnects.
func (m *RunManager) Subscribe(id string) (<-chan ProgressEvent, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil, ErrRunNotFound
	}
	ch := make(chan ProgressEvent, 16)
	switch run.Status {
	case RunCompleted, RunFailed, RunCanceled:
		// Already terminal: replay the final event and close.
		ch <- ProgressEvent{RunID: id, Status: run.Status, Progress: run.Progress, Error: run.Error}
		close(ch)
		return ch, func() {}, nil
	}
	if m.subs[id] == nil {
		m.subs[id] = make(map[chan ProgressEvent]struct{})
	}
	m.subs[id][ch] = struct{}{}

	stop := func() {
		m.mu.Lock()
		if set, ok := m.subs[id]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(m.subs, id)
			}
		}
		m.mu.Unlock()
	}
	return ch, stop, nil
}

func (m *RunManager) execute(ctx context.Context, id string) {
	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		m.finish(id, nil, ctx.Err())
		return
	}

	run, err := m.Get(id)
	if err != nil {
		return
	}
	m.transition(id, func(r *Run) {
		r.Status = RunRunning
		r.StartedAt = time.Now().UTC()
	})
	m.publish(id, ProgressEvent{RunID: id, Status: RunRunning})

	panel, err := m.prices.Panel(ctx, run.Request.StockCodes, run.Request.StartDate, run.Request.EndDate)
	if err != nil {
		m.finish(id, nil, err)
		return
	}

	lastPct := -1
	progress := func(done, total int) {
		pct := done * 100 / total
		if pct == lastPct && done != total {
			return
		}
		lastPct = pct
		frac := float64(done) / float64(total)
		m.transition(id, func(r *Run) { r.Progress = frac })
		m.publish(id, ProgressEvent{
			RunID: id, Status: RunRunning, Done: done, Total: total, Progress: frac,
		})
	}

	result, err := m.engine.Run(ctx, &run.Request, panel, progress)
	m.finish(id, result, err)
}

func (m *RunManager) finish(id string, result *Result, err error) {
	m.transition(id, func(r *Run) {
		r.FinishedAt = time.Now().UTC()
		switch {
		case err == nil:
			r.Status = RunCompleted
			r.Progress = 1
			r.Result = result
		case errors.Is(err, context.Canceled):
			r.Status = RunCanceled
			r.Error = err.Error()
		default:
			r.Status = RunFailed
			r.Error = err.Error()
		}
	})

	m.mu.Lock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
	runCopy := *m.runs[id]
	run := &runCopy
	m.mu.Unlock()

	m.publish(id, ProgressEvent{
		RunID: id, Status: run.Status, Progress: run.Progress, Error: run.Error,
	})
	m.closeSubs(id)
	m.persist(func(sink RunSink, pctx context.Context) error { return sink.UpdateRun(pctx, run) })

	if err != nil {
		m.log.WithField("run", id).WithError(err).Warn("backtest run did not complete")
	} else {
		m.log.WithFields(map[string]interface{}{
			"run":    id,
			"trades": len(result.Trades),
			"return": result.Metrics.TotalReturn,
		}).Info("backtest run completed")
	}
}

func (m *RunManager) transition(id string, mutate func(*Run)) {
	m.mu.Lock()
	if run, ok := m.runs[id]; ok {
		mutate(run)
	}
	m.mu.Unlock()
}

// publish never blocks: a slow subscriber just misses intermediate
// events, the terminal event is delivered via the channel close.
func (m *RunManager) publish(id string, ev ProgressEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subs[id] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *RunManager) closeSubs(id string) {
	m.mu.Lock()
	for ch := range m.subs[id] {
		close(ch)
	}
	delete(m.subs, id)
	m.mu.Unlock()
}

func (m *RunManager) persist(op func(RunSink, context.Context) error) {
	if m.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := op(m.sink, ctx); err != nil {
		m.log.WithError(err).Error("persisting backtest run state")
	}
}
