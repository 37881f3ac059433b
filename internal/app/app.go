package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tether/internal/config"
	"github.com/five82/tether/internal/logging"
	"github.com/five82/tether/internal/prefs"
	"github.com/five82/tether/internal/relay"
	"github.com/five82/tether/internal/state"
	"github.com/five82/tether/internal/ui"
)

// Options configure the tether application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/tether/prefs.toml
	PollEvery  int    // long-poll wait in seconds; zero uses the config value
}

// Run boots the tether TUI until the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.PollEvery > 0 {
		cfg.PollWait = time.Duration(opts.PollEvery) * time.Second
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts.PrefsPath == "" {
		opts.PrefsPath = prefs.DefaultPath()
	}
	userPrefs, prefsErr := prefs.Load(opts.PrefsPath)

	logger, closer, err := logging.Setup(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = closer.Close() }()
	if prefsErr != nil {
		logger.Warn("preferences unreadable, using defaults", "path", opts.PrefsPath, "error", prefsErr)
	}

	client, err := relay.NewClient(cfg.RelayURL,
		relay.WithPassword(cfg.Password),
		relay.WithTimeouts(relay.Timeouts{Snapshot: cfg.SnapshotTimeout, Action: cfg.ActionTimeout}),
	)
	if err != nil {
		return fmt.Errorf("init relay client: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := state.NewStore(cfg.LineCap(userPrefs.Compact))
	metrics := NewMetrics()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := ServeMetrics(ctx, cfg.MetricsAddr, metrics, logger); err != nil {
				logger.Error("metrics listener stopped", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	notifier := NewNotifier(userPrefs.Notify, logger.With("component", "notify"))
	go notifier.Run(ctx)
	dispatcher := NewDispatcher(client, store, logger, metrics)
	defer dispatcher.Wait()

	// Store changes reach the UI in order through one pump goroutine so the
	// sync loop never waits on the render loop.
	uiMsgs := make(chan tea.Msg, uiQueueSize)
	syncer := NewSyncer(client, store, SyncerConfig{
		MaxLines:       store.MaxLines(),
		PollWait:       cfg.PollWait,
		BackoffFloor:   cfg.BackoffFloor,
		BackoffCeiling: cfg.BackoffCeiling,
	},
		WithLogger(logger),
		WithMetrics(metrics),
		WithChangeHandler(func(cs state.ChangeSet) {
			notifier.Highlights(cs.Highlights)
			enqueue(ctx, uiMsgs, ui.ChangesMsg(cs))
		}),
		WithStatusHandler(func(st Status) {
			enqueue(ctx, uiMsgs, ui.StatusMsg(toSyncStatus(st)))
		}),
	)

	prog := ui.NewProgram(ui.Options{
		Store:     store,
		Backend:   &uiBackend{ctx: ctx, syncer: syncer, dispatcher: dispatcher},
		Prefs:     userPrefs,
		PrefsPath: opts.PrefsPath,
		LogPath:   cfg.LogFile,
	}, tea.WithContext(ctx))

	go pump(ctx, uiMsgs, prog)

	syncDone := make(chan error, 1)
	go func() { syncDone <- syncer.Run(ctx) }()

	logger.Info("tether started", "relay", client.BaseURL(), "poll_wait", cfg.PollWait)
	_, runErr := prog.Run()
	cancel()
	if err := <-syncDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("sync loop ended", "error", err)
	}
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		runErr = nil
	}
	logger.Info("tether stopped")
	return runErr
}

// uiBackend adapts the sync loop and dispatcher to the UI's Backend.
type uiBackend struct {
	ctx        context.Context
	syncer     *Syncer
	dispatcher *Dispatcher
}

func (b *uiBackend) Submit(actions []relay.Action, done func(error)) {
	b.dispatcher.Submit(b.ctx, actions, done)
}

func (b *uiBackend) Retry()  { b.syncer.Retry() }
func (b *uiBackend) Resync() { b.syncer.Resync() }

func (b *uiBackend) Failures() []ui.Failure {
	return toFailures(b.dispatcher.Failed())
}

func (b *uiBackend) DismissLatest() bool {
	return b.dispatcher.DismissLatest()
}

func toSyncStatus(st Status) ui.SyncStatus {
	return ui.SyncStatus{
		Phase:               st.Phase.String(),
		LastError:           st.LastError,
		ConsecutiveFailures: st.ConsecutiveFailures,
		RetryIn:             st.RetryIn,
		Offline:             st.IsOffline(),
		ClockSkew:           st.ClockSkew,
		SkewWarning:         st.SkewWarning(),
		Cursor:              st.Cursor,
	}
}

func toFailures(failed []FailedAction) []ui.Failure {
	out := make([]ui.Failure, 0, len(failed))
	for _, f := range failed {
		out = append(out, ui.Failure{ID: f.ID.String(), Summary: f.Summary(), At: f.At})
	}
	return out
}

var _ ui.Backend = (*uiBackend)(nil)

const uiQueueSize = 256

func enqueue(ctx context.Context, ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

// sender is the part of *tea.Program the pump needs.
type sender interface {
	Send(msg tea.Msg)
}

func pump(ctx context.Context, ch <-chan tea.Msg, dst sender) {
	for {
		select {
		case msg := <-ch:
			dst.Send(msg)
		case <-ctx.Done():
			return
		}
	}
}
