package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	utilwait "k8s.io/apimachinery/pkg/util/wait"

	"github.com/openshift/clockpm-daemon/pkg/config"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
	"github.com/openshift/clockpm-daemon/pkg/debug"
	"github.com/openshift/clockpm-daemon/pkg/event"
	"github.com/openshift/clockpm-daemon/pkg/metrics"
	"github.com/openshift/clockpm-daemon/pkg/plugin"
)

// ErrStopped is returned for calls posted after the event loop exited
var ErrStopped = errors.New("clock daemon stopped")

const (
	// DefaultRefreshInterval is how often gauges and the debug tree are
	// refreshed from a manager snapshot
	DefaultRefreshInterval = 5 * time.Second
	callQueueLength        = 64
)

// Daemon owns the clock manager. Every call into the manager runs on the
// event loop goroutine, which stands in for the interrupt controller of the
// chip: one entry at a time, callbacks nested inside it.
type Daemon struct {
	board     *config.Board
	plugins   *plugin.PluginManager
	chipName  string
	manager   *cpm.Manager
	notifier  *event.StateNotifier
	residency *event.Residency
	tracker   *ReadyTracker
	watcher   *config.Watcher
	tree      *debug.Tree
	refresh   time.Duration

	calls   chan func()
	stopped chan struct{}
	// runCtx parents the workload goroutines, set once Run starts
	runCtx context.Context

	// only touched on the event loop
	devices map[string]*device
}

// Options ...
type Options struct {
	Watcher         *config.Watcher
	RefreshInterval time.Duration
	// PrintTree prints the manager state to stdout whenever it changes
	PrintTree bool
}

// New builds the manager on the plugin chip and registers the board clients
func New(board *config.Board, plugins *plugin.PluginManager, tracker *ReadyTracker, opts Options) (*Daemon, error) {
	if err := plugins.OnBoardConfigChange(board); err != nil {
		return nil, err
	}
	chip, chipName, err := plugins.Chip()
	if err != nil {
		return nil, err
	}
	if tracker == nil {
		tracker = &ReadyTracker{}
	}
	dn := &Daemon{
		board:     board,
		plugins:   plugins,
		chipName:  chipName,
		notifier:  event.NewStateNotifier(),
		residency: event.NewResidency(event.DefaultResidencyWindow),
		tracker:   tracker,
		watcher:   opts.Watcher,
		refresh:   opts.RefreshInterval,
		calls:     make(chan func(), callQueueLength),
		stopped:   make(chan struct{}),
		devices:   make(map[string]*device),
	}
	if dn.refresh <= 0 {
		dn.refresh = DefaultRefreshInterval
	}
	if opts.PrintTree {
		dn.tree = debug.NewTree(os.Stdout)
	}
	dn.residency.OnUpdate = metrics.UpdateResidencyMetrics
	dn.notifier.Register(dn.residency)
	dn.manager = cpm.New(chip, board.Capacity, dn)

	failed := dn.applyClients(board)
	tracker.setConfig(true, failed)
	glog.Infof("clock daemon for board %s on chip %s: %d sources, %d clients",
		board.Name, chipName, dn.manager.Sources().Len(), len(dn.devices))
	return dn, nil
}

// ClockChanged implements cpm.Observer
func (dn *Daemon) ClockChanged(c cpm.Change) {
	tbl := dn.manager.Sources()
	metrics.UpdateClockChangeMetrics(tbl, c)
	dn.notifier.Publish(event.ClockEvent{
		Topic:    event.ClockChange,
		Time:     time.Now(),
		Change:   c,
		FromName: tbl.Names(c.From),
		ToName:   tbl.Name(c.To),
	})
	dn.plugins.AfterClockChange(c)
}

// PassCompleted implements cpm.Observer
func (dn *Daemon) PassCompleted(p cpm.Pass) {
	metrics.UpdatePassMetrics(p)
	dn.notifier.Publish(event.ClockEvent{Topic: event.PassCompleted, Time: time.Now(), Pass: p})
}

// Notifier lets other components follow clock events
func (dn *Daemon) Notifier() *event.StateNotifier {
	return dn.notifier
}

// Residency ...
func (dn *Daemon) Residency() *event.Residency {
	return dn.residency
}

// Post queues fn on the event loop without waiting for it
func (dn *Daemon) Post(fn func()) {
	select {
	case dn.calls <- fn:
	case <-dn.stopped:
	}
}

// After posts fn once d has elapsed, like a timer interrupt
func (dn *Daemon) After(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { dn.Post(fn) })
}

// Do runs fn on the event loop and waits for it to finish
func (dn *Daemon) Do(fn func()) error {
	done := make(chan struct{})
	select {
	case dn.calls <- func() { defer close(done); fn() }:
	case <-dn.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-dn.stopped:
		return ErrStopped
	}
}

// Snapshot copies the manager state on the event loop
func (dn *Daemon) Snapshot() (cpm.Snapshot, error) {
	var snap cpm.Snapshot
	err := dn.Do(func() { snap = dn.manager.Snapshot() })
	return snap, err
}

// Run serves the event loop, the workloads and board reloads until ctx is
// done.
func (dn *Daemon) Run(ctx context.Context) error {
	glog.Info("Daemon Run() started")
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dn.loop(ctx)
		return nil
	})

	// workloads are started on the loop so they see a consistent device table
	if err := dn.Do(func() {
		dn.runCtx = ctx
		for _, dev := range dn.devices {
			dev.start(ctx, dn)
		}
	}); err != nil {
		return g.Wait()
	}

	g.Go(func() error {
		utilwait.UntilWithContext(ctx, func(context.Context) {
			snap, err := dn.Snapshot()
			if err != nil {
				return
			}
			metrics.UpdateSnapshotMetrics(snap)
			if dn.tree != nil {
				dn.tree.Update(snap)
			}
		}, dn.refresh)
		return nil
	})

	if dn.watcher != nil {
		g.Go(func() error {
			return dn.watcher.Run(ctx)
		})
		g.Go(func() error {
			for board := range dn.watcher.Updates() {
				if err := dn.Do(func() { dn.reload(board) }); err != nil {
					return nil
				}
			}
			return nil
		})
	}

	err := g.Wait()
	glog.Info("Daemon stopped")
	return err
}

func (dn *Daemon) loop(ctx context.Context) {
	dn.tracker.setRunning(true)
	defer dn.tracker.setRunning(false)
	defer close(dn.stopped)
	for {
		select {
		case fn := <-dn.calls:
			fn()
		case <-ctx.Done():
			dn.stopDevices()
			return
		}
	}
}

// Manager is for tests and tools that drive the manager on their own
// goroutine while the loop is not running.
func (dn *Daemon) Manager() *cpm.Manager {
	return dn.manager
}

// Board returns the board currently applied
func (dn *Daemon) Board() (*config.Board, error) {
	var b *config.Board
	err := dn.Do(func() { b = dn.board })
	if err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	return b, nil
}
