package journal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
)

// Recorder is a chain.EventHandler that builds a Record per execution and
// appends it to a Store once the execution finishes.
type Recorder struct {
	store  *Store
	chain  string
	logger *slog.Logger

	mu      sync.Mutex
	runs    map[string]*Record
	lastErr error
}

// NewRecorder records executions of the named chain into store.
func NewRecorder(store *Store, chainName string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, chain: chainName, logger: logger, runs: make(map[string]*Record)}
}

// Err returns the last append failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Observe folds ev into the execution's pending record.
func (r *Recorder) Observe(ev chain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.run(ev)
	switch ev.Type {
	case chain.EventHandlerStarted:
		hr := handlerRecord(rec, ev.Handler)
		hr.Attempts = ev.Attempt
	case chain.EventHandlerCompleted:
		hr := handlerRecord(rec, ev.Handler)
		hr.Outcome = OutcomeSuccess
		hr.Elapsed += ev.Elapsed
		hr.Error = ""
	case chain.EventHandlerFailed:
		hr := handlerRecord(rec, ev.Handler)
		hr.Outcome = OutcomeFailure
		hr.Elapsed += ev.Elapsed
		if ev.Err != nil {
			hr.Error = ev.Err.Error()
		}
	case chain.EventHandlerSkipped:
		handlerRecord(rec, ev.Handler).Outcome = OutcomeSkipped
	case chain.EventChainCompleted, chain.EventChainFailed, chain.EventChainCancelled:
		rec.Status = ev.Status.String()
		rec.Elapsed = ev.Elapsed
		if ev.Err != nil {
			rec.Error = ev.Err.Error()
		}
		delete(r.runs, ev.ExecutionID)
		if err := r.store.Append(rec); err != nil {
			r.lastErr = err
			r.logger.Error("journal append failed", "execution_id", ev.ExecutionID, "error", err)
			return
		}
		r.logger.Debug("journal record appended", "execution_id", ev.ExecutionID, "id", rec.ID, "status", rec.Status)
	}
}

func (r *Recorder) run(ev chain.Event) *Record {
	rec, ok := r.runs[ev.ExecutionID]
	if !ok {
		started := ev.Time
		if started.IsZero() {
			started = time.Now()
		}
		rec = &Record{
			ExecutionID: ev.ExecutionID,
			Chain:       r.chain,
			Status:      chain.StatusRunning.String(),
			StartedAt:   started.UTC(),
		}
		r.runs[ev.ExecutionID] = rec
	}
	return rec
}

func handlerRecord(rec *Record, name string) *HandlerRecord {
	for i := range rec.Handlers {
		if rec.Handlers[i].Name == name {
			return &rec.Handlers[i]
		}
	}
	rec.Handlers = append(rec.Handlers, HandlerRecord{Name: name})
	return &rec.Handlers[len(rec.Handlers)-1]
}
