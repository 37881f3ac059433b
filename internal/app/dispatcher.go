package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/tether/internal/relay"
	"github.com/five82/tether/internal/state"
)

const maxFailedActions = 50

// FailedAction is a submission the relay did not accept.
type FailedAction struct {
	ID      uuid.UUID
	Actions []relay.Action
	Err     error
	At      time.Time
}

// Summary is a one-line description for the failed-action list.
func (f FailedAction) Summary() string {
	parts := make([]string, 0, len(f.Actions))
	for _, a := range f.Actions {
		parts = append(parts, a.Name)
	}
	return strings.Join(parts, ", ") + ": " + f.Err.Error()
}

// Dispatcher submits user actions to the relay. Each submission is an
// independent request; results only reach the store through the update
// stream, so the dispatcher never touches it beyond reading the cursor and
// CSRF token.
type Dispatcher struct {
	transport relay.Transport
	store     *state.Store
	logger    *slog.Logger
	metrics   *Metrics

	mu     sync.Mutex
	failed []FailedAction
	wg     sync.WaitGroup
}

// NewDispatcher returns a Dispatcher sending through transport.
func NewDispatcher(transport relay.Transport, store *state.Store, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transport: transport,
		store:     store,
		logger:    logger.With("component", "dispatcher"),
		metrics:   metrics,
	}
}

// Submit sends actions in the background and calls done, if non-nil, with
// the outcome. It never blocks on the network.
func (d *Dispatcher) Submit(ctx context.Context, actions []relay.Action, done func(error)) {
	if len(actions) == 0 {
		if done != nil {
			done(nil)
		}
		return
	}
	cursor := d.store.Cursor()
	token := d.store.CSRFToken()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := d.transport.DoActions(ctx, actions, cursor, token)
		if err != nil {
			d.metrics.action(outcomeError)
			d.record(actions, err)
		} else {
			d.metrics.action(outcomeOK)
			d.logger.Debug("actions accepted", "count", len(actions), "first", actions[0].String())
		}
		if done != nil {
			done(err)
		}
	}()
}

func (d *Dispatcher) record(actions []relay.Action, err error) {
	entry := FailedAction{ID: uuid.New(), Actions: actions, Err: err, At: time.Now()}
	d.logger.Warn("action failed", "id", entry.ID.String(), "action", actions[0].String(), "error", err)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = append(d.failed, entry)
	if n := len(d.failed) - maxFailedActions; n > 0 {
		d.failed = d.failed[n:]
	}
}

// Failed returns the failed submissions, oldest first.
func (d *Dispatcher) Failed() []FailedAction {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]FailedAction, len(d.failed))
	copy(out, d.failed)
	return out
}

// Dismiss removes the failed entry with id.
func (d *Dispatcher) Dismiss(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, f := range d.failed {
		if f.ID == id {
			d.failed = append(d.failed[:i], d.failed[i+1:]...)
			return true
		}
	}
	return false
}

// DismissLatest removes the newest failed entry.
func (d *Dispatcher) DismissLatest() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.failed) == 0 {
		return false
	}
	d.failed = d.failed[:len(d.failed)-1]
	return true
}

// Wait blocks until all submissions have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
