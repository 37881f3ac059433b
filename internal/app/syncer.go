package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/five82/tether/internal/relay"
	"github.com/five82/tether/internal/state"
)

const (
	defaultPollWait = 60 * time.Second
	skewWarnAfter   = 10 * time.Second
)

// Phase is the syncer's position in the session lifecycle.
type Phase int

const (
	PhaseAuthenticating Phase = iota
	PhaseFetchingSnapshot
	PhasePolling
	PhaseResyncing
	PhaseFailed
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseFetchingSnapshot:
		return "fetching snapshot"
	case PhasePolling:
		return "live"
	case PhaseResyncing:
		return "resyncing"
	case PhaseFailed:
		return "failed"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status is what the UI shows about the sync loop.
type Status struct {
	Phase               Phase
	LastError           error
	ConsecutiveFailures int
	RetryIn             time.Duration
	LastSync            time.Time
	Cursor              int64
	ClockSkew           time.Duration
}

// IsOffline returns true when the relay has been unreachable for multiple polls.
func (s Status) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// SkewWarning reports whether the relay clock is far enough off to mention.
func (s Status) SkewWarning() bool {
	return s.ClockSkew > skewWarnAfter || s.ClockSkew < -skewWarnAfter
}

// SyncerConfig tunes the sync loop.
type SyncerConfig struct {
	MaxLines       int
	PollWait       time.Duration
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
}

// SyncerOption customises a Syncer.
type SyncerOption func(*Syncer)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) SyncerOption {
	return func(s *Syncer) { s.logger = l }
}

// WithMetrics records sync metrics.
func WithMetrics(m *Metrics) SyncerOption {
	return func(s *Syncer) { s.metrics = m }
}

// WithChangeHandler is called on the loop goroutine after every store
// mutation. It must not block.
func WithChangeHandler(fn func(state.ChangeSet)) SyncerOption {
	return func(s *Syncer) { s.onChange = fn }
}

// WithStatusHandler is called on the loop goroutine after every status
// change. It must not block.
func WithStatusHandler(fn func(Status)) SyncerOption {
	return func(s *Syncer) { s.onStatus = fn }
}

// WithClock replaces time.Now for skew checks.
func WithClock(now func() time.Time) SyncerOption {
	return func(s *Syncer) { s.now = now }
}

// Syncer keeps a state.Store in step with the relay: one snapshot fetch, then
// a chain of long polls, with backoff on failure and a fresh snapshot on
// desync. All store mutation happens on the goroutine running Run.
type Syncer struct {
	transport relay.Transport
	store     *state.Store
	cfg       SyncerConfig
	backoff   *Backoff

	logger   *slog.Logger
	metrics  *Metrics
	onChange func(state.ChangeSet)
	onStatus func(Status)
	now      func() time.Time

	commands chan command

	mu     sync.RWMutex
	status Status
}

type command int

const (
	cmdRetry command = iota
	cmdResync
)

// NewSyncer builds a Syncer for store using transport.
func NewSyncer(transport relay.Transport, store *state.Store, cfg SyncerConfig, opts ...SyncerOption) *Syncer {
	if cfg.PollWait <= 0 {
		cfg.PollWait = defaultPollWait
	}
	s := &Syncer{
		transport: transport,
		store:     store,
		cfg:       cfg,
		backoff:   NewBackoff(cfg.BackoffFloor, cfg.BackoffCeiling),
		logger:    slog.Default(),
		now:       time.Now,
		commands:  make(chan command, 4),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "syncer")
	return s
}

// Status returns a copy of the current status.
func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Retry restarts the snapshot fetch after a persistent failure.
func (s *Syncer) Retry() {
	s.send(cmdRetry)
}

// Resync discards the in-flight poll and reloads the full snapshot.
func (s *Syncer) Resync() {
	s.send(cmdResync)
}

func (s *Syncer) send(c command) {
	select {
	case s.commands <- c:
	default:
	}
}

type eventKind int

const (
	evSnapshot eventKind = iota
	evPoll
	evTimer
	evClock
)

type timerPurpose int

const (
	timerPoll timerPurpose = iota
	timerSnapshot
)

type event struct {
	kind eventKind

	snap *relay.StateResponse
	err  error

	poll relay.PollResult
	from int64
	gen  uint64

	purpose timerPurpose
	seq     int

	relayTime time.Time
	sentAt    time.Time
}

// loop is the state owned by Run.
type loop struct {
	events chan event

	snapshotInFlight bool
	pollInFlight     bool
	cancelPoll       context.CancelFunc

	timer    *time.Timer
	timerSeq int

	checkedClock bool
}

// Run drives the sync loop until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	l := &loop{events: make(chan event, 4)}
	defer func() {
		if l.timer != nil {
			l.timer.Stop()
		}
		if l.cancelPoll != nil {
			l.cancelPoll()
		}
		s.setPhase(PhaseStopped)
	}()

	s.setPhase(PhaseAuthenticating)
	s.startSnapshot(ctx, l)

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-s.commands:
			s.handleCommand(ctx, l, c)
		case ev := <-l.events:
			switch ev.kind {
			case evSnapshot:
				s.handleSnapshot(ctx, l, ev)
			case evPoll:
				s.handlePoll(ctx, l, ev)
			case evTimer:
				s.handleTimer(ctx, l, ev)
			case evClock:
				s.handleClock(ev)
			}
		}
	}
}

func (s *Syncer) handleCommand(ctx context.Context, l *loop, c command) {
	if l.snapshotInFlight {
		return
	}
	switch c {
	case cmdRetry:
		if s.Status().Phase != PhaseFailed {
			return
		}
		s.logger.Info("retrying snapshot fetch")
		s.backoff.Reset()
		s.setPhase(PhaseFetchingSnapshot)
	case cmdResync:
		s.logger.Info("manual resync requested")
		s.setPhase(PhaseResyncing)
	}
	s.stopTimer(l)
	if l.cancelPoll != nil {
		l.cancelPoll()
	}
	s.startSnapshot(ctx, l)
}

func (s *Syncer) startSnapshot(ctx context.Context, l *loop) {
	l.snapshotInFlight = true
	go func() {
		snap, err := s.transport.GetState(ctx, s.cfg.MaxLines)
		deliver(ctx, l.events, event{kind: evSnapshot, snap: snap, err: err})
	}()
}

func (s *Syncer) handleSnapshot(ctx context.Context, l *loop, ev event) {
	l.snapshotInFlight = false
	phase := s.Status().Phase

	if ev.err != nil {
		s.metrics.snapshot(outcomeError)
		if relay.IsAuthError(ev.err) || phase != PhaseResyncing {
			s.logger.Error("snapshot fetch failed", "error", ev.err)
			s.fail(ev.err)
			return
		}
		delay := s.backoff.Fail()
		s.logger.Warn("resync fetch failed", "attempt", s.backoff.Failures(), "retry_in", delay, "error", ev.err)
		s.setRetry(ev.err, delay)
		s.schedule(ctx, l, timerSnapshot, delay)
		return
	}

	cs, err := s.store.LoadSnapshot(ev.snap)
	if err != nil {
		s.metrics.snapshot(outcomeError)
		s.logger.Error("snapshot rejected", "error", err)
		s.fail(err)
		return
	}
	s.metrics.snapshot(outcomeOK)
	s.backoff.Reset()
	s.logger.Info("snapshot loaded", "windows", len(ev.snap.Windows), "cursor", ev.snap.NextUpdateID)
	s.update(func(st *Status) {
		st.Phase = PhasePolling
		st.LastError = nil
		st.ConsecutiveFailures = 0
		st.RetryIn = 0
		st.LastSync = s.now()
		st.Cursor = s.store.Cursor()
	})
	s.observe()
	s.changed(cs)

	if !l.checkedClock {
		l.checkedClock = true
		s.checkClock(ctx, l)
	}
	s.startPoll(ctx, l)
}

func (s *Syncer) startPoll(ctx context.Context, l *loop) {
	if l.pollInFlight || l.snapshotInFlight || s.Status().Phase != PhasePolling {
		return
	}
	from := s.store.Cursor()
	gen := s.store.Generation()
	pollCtx, cancel := context.WithCancel(ctx)
	l.pollInFlight = true
	l.cancelPoll = cancel
	go func() {
		defer cancel()
		res := s.transport.GetUpdates(pollCtx, from, s.cfg.PollWait)
		deliver(ctx, l.events, event{kind: evPoll, poll: res, from: from, gen: gen})
	}()
}

func (s *Syncer) handlePoll(ctx context.Context, l *loop, ev event) {
	l.pollInFlight = false
	l.cancelPoll = nil

	if l.snapshotInFlight || ev.gen != s.store.Generation() || s.Status().Phase != PhasePolling {
		s.metrics.poll(outcomeStale)
		s.logger.Debug("discarding stale poll result", "from", ev.from, "outcome", ev.poll.Kind.String())
		s.startPoll(ctx, l)
		return
	}

	switch ev.poll.Kind {
	case relay.PollUpdated:
		cs, err := s.store.ApplyBatch(ev.from, ev.poll.Batch)
		if err != nil {
			// ErrStaleBatch; the store moved on since the poll was issued.
			s.metrics.poll(outcomeStale)
			s.logger.Debug("discarding batch", "from", ev.from, "error", err)
			s.startPoll(ctx, l)
			return
		}
		s.metrics.poll(outcomeUpdated)
		s.metrics.applied(len(ev.poll.Batch.Updates), len(cs.Anomalies))
		for _, a := range cs.Anomalies {
			s.logger.Warn("update anomaly", "error", a)
		}
		s.backoff.Reset()
		s.update(func(st *Status) {
			st.LastError = nil
			st.ConsecutiveFailures = 0
			st.RetryIn = 0
			st.LastSync = s.now()
			st.Cursor = s.store.Cursor()
		})
		s.observe()
		if !cs.Empty() {
			s.changed(cs)
		}
		s.startPoll(ctx, l)

	case relay.PollDesynced:
		s.metrics.poll(outcomeDesynced)
		delay := s.backoff.Fail()
		s.logger.Warn("update stream desynchronized, reloading snapshot", "cursor", ev.from, "retry_in", delay)
		s.changed(s.store.Reset())
		s.update(func(st *Status) {
			st.Phase = PhaseResyncing
			st.RetryIn = delay
			st.Cursor = 0
		})
		s.observe()
		s.schedule(ctx, l, timerSnapshot, delay)

	default:
		s.metrics.poll(outcomeFailed)
		if relay.IsAuthError(ev.poll.Err) {
			s.logger.Error("relay rejected credentials", "error", ev.poll.Err)
			s.fail(ev.poll.Err)
			return
		}
		delay := s.backoff.Fail()
		s.logger.Warn("update poll failed", "attempt", s.backoff.Failures(), "retry_in", delay, "error", ev.poll.Err)
		s.setRetry(ev.poll.Err, delay)
		s.schedule(ctx, l, timerPoll, delay)
	}
}

func (s *Syncer) handleTimer(ctx context.Context, l *loop, ev event) {
	if ev.seq != l.timerSeq {
		return
	}
	l.timer = nil
	s.update(func(st *Status) { st.RetryIn = 0 })
	switch ev.purpose {
	case timerPoll:
		s.startPoll(ctx, l)
	case timerSnapshot:
		if !l.snapshotInFlight {
			s.startSnapshot(ctx, l)
		}
	}
}

func (s *Syncer) schedule(ctx context.Context, l *loop, purpose timerPurpose, delay time.Duration) {
	s.stopTimer(l)
	seq := l.timerSeq
	l.timer = time.AfterFunc(delay, func() {
		deliver(ctx, l.events, event{kind: evTimer, purpose: purpose, seq: seq})
	})
	s.observe()
}

func (s *Syncer) stopTimer(l *loop) {
	l.timerSeq++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (s *Syncer) checkClock(ctx context.Context, l *loop) {
	sentAt := s.now()
	go func() {
		t, err := s.transport.GetTime(ctx)
		deliver(ctx, l.events, event{kind: evClock, relayTime: t, err: err, sentAt: sentAt})
	}()
}

func (s *Syncer) handleClock(ev event) {
	if ev.err != nil {
		s.logger.Debug("clock check failed", "error", ev.err)
		return
	}
	skew := clockSkew(ev.relayTime, ev.sentAt, s.now())
	s.update(func(st *Status) { st.ClockSkew = skew })
	if st := s.Status(); st.SkewWarning() {
		s.logger.Warn("relay clock differs from local clock", "skew", skew.Round(time.Second))
	}
}

// clockSkew compares the relay time with the midpoint of the request.
func clockSkew(relayTime, sentAt, receivedAt time.Time) time.Duration {
	mid := sentAt.Add(receivedAt.Sub(sentAt) / 2)
	return relayTime.Sub(mid)
}

func (s *Syncer) fail(err error) {
	s.update(func(st *Status) {
		st.Phase = PhaseFailed
		st.LastError = err
		st.RetryIn = 0
	})
}

func (s *Syncer) setRetry(err error, delay time.Duration) {
	s.update(func(st *Status) {
		st.LastError = err
		st.ConsecutiveFailures = s.backoff.Failures()
		st.RetryIn = delay
	})
}

func (s *Syncer) setPhase(p Phase) {
	s.update(func(st *Status) { st.Phase = p })
}

func (s *Syncer) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	st := s.status
	s.mu.Unlock()
	if s.onStatus != nil {
		s.onStatus(st)
	}
}

func (s *Syncer) observe() {
	st := s.Status()
	s.metrics.observe(s.store.Cursor(), len(s.store.WindowKeys()), st.RetryIn)
}

func (s *Syncer) changed(cs state.ChangeSet) {
	if s.onChange != nil {
		s.onChange(cs)
	}
}

func deliver(ctx context.Context, ch chan<- event, ev event) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
