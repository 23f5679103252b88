package daemon

import (
	"context"
	"sort"
	"time"

	"github.com/golang/glog"
	utilwait "k8s.io/apimachinery/pkg/util/wait"

	"github.com/openshift/clockpm-daemon/pkg/config"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
	"github.com/openshift/clockpm-daemon/pkg/metrics"
	"github.com/openshift/clockpm-daemon/pkg/peripheral"
)

const (
	defaultPeriod = time.Second
	defaultBusy   = 10 * time.Millisecond
)

// device is a board client and the driver simulating it
type device struct {
	cfg    config.ClientConfig
	dev    peripheral.Device
	handle cpm.Handle
	cancel context.CancelFunc
	// retired clients keep their manager slot so they can come back
	retired bool
}

// clockClient reports whether the device was registered with the manager
func (d *device) clockClient() bool {
	return d.handle.Valid()
}

func (d *device) period() time.Duration {
	if d.cfg.Period.Duration > 0 {
		return d.cfg.Period.Duration
	}
	return defaultPeriod
}

// start runs the periodic workload, posting each trigger to the loop
func (d *device) start(ctx context.Context, dn *Daemon) {
	if d.cancel != nil || d.retired {
		return
	}
	wctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	dev := d.dev
	go utilwait.UntilWithContext(wctx, func(context.Context) {
		dn.Post(dev.Trigger)
	}, d.period())
}

func (d *device) stop() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (dn *Daemon) stopDevices() {
	for _, d := range dn.devices {
		d.stop()
	}
}

func (dn *Daemon) newDriver(c config.ClientConfig) peripheral.Device {
	busy := c.Busy.Duration
	if busy <= 0 {
		busy = defaultBusy
	}
	switch c.Kind {
	case config.KindSampler:
		return peripheral.NewSampler(c.Name, busy, dn)
	case config.KindCompute:
		return peripheral.NewCompute(c.Name, busy, dn.manager, dn)
	default:
		return peripheral.NewSPI(c.Name, c.BaudRate, busy, dn)
	}
}

// applyClients creates, updates and retires devices so they match board.
// It returns the clients that could not be registered.
func (dn *Daemon) applyClients(board *config.Board) []string {
	var failed []string
	wanted := make(map[string]bool, len(board.Clients))
	for _, c := range board.Clients {
		wanted[c.Name] = true
		if err := dn.applyClient(c); err != nil {
			glog.Errorf("client %s: %v", c.Name, err)
			failed = append(failed, c.Name)
		}
	}

	var retired []string
	for name, d := range dn.devices {
		if wanted[name] || d.retired {
			continue
		}
		dn.retire(d)
		retired = append(retired, name)
	}
	sort.Strings(retired)
	metrics.DeleteClientMetrics(retired)
	return failed
}

func (dn *Daemon) applyClient(c config.ClientConfig) error {
	d, ok := dn.devices[c.Name]
	if ok && d.cfg.Kind != c.Kind {
		glog.Warningf("client %s changes kind from %s to %s, the change needs a restart", c.Name, d.cfg.Kind, c.Kind)
		c.Kind = d.cfg.Kind
	}
	if !ok {
		d = &device{cfg: c, dev: dn.newDriver(c)}
		if cc, isClient := d.dev.(cpm.ClockClient); isClient {
			h, err := dn.manager.Register(cc)
			if err != nil {
				return err
			}
			d.handle = h
			if attacher, canAttach := d.dev.(interface{ Attach(*cpm.Manager, cpm.Handle) }); canAttach {
				attacher.Attach(dn.manager, h)
			}
		}
		dn.devices[c.Name] = d
		glog.Infof("client %s (%s) added", c.Name, c.Kind)
	} else if d.retired {
		glog.Infof("client %s (%s) restored", c.Name, c.Kind)
	}

	if d.clockClient() {
		if err := dn.configure(d, c); err != nil {
			return err
		}
	}
	// a new period needs a fresh workload
	if d.cfg.Period != c.Period {
		d.stop()
	}
	d.cfg = c
	d.retired = false
	if dn.runCtx != nil {
		d.start(dn.runCtx, dn)
	}
	return nil
}

// configure pushes the resolved client parameters to the manager
func (dn *Daemon) configure(d *device, c config.ClientConfig) error {
	p, err := c.Resolve(dn.manager.Sources())
	if err != nil {
		return err
	}
	return p.Apply(dn.manager, d.handle)
}

func (dn *Daemon) retire(d *device) {
	d.stop()
	d.retired = true
	if d.clockClient() {
		if err := dn.manager.DisableClock(d.handle); err != nil {
			glog.Errorf("client %s: %v", d.cfg.Name, err)
		}
	}
	glog.Infof("client %s (%s) removed", d.cfg.Name, d.cfg.Kind)
}

// reload applies a board read by the watcher. The chip and the capacity
// are fixed for the life of the manager.
func (dn *Daemon) reload(board *config.Board) {
	if board.Chip != dn.board.Chip || board.Capacity != dn.board.Capacity {
		glog.Warningf("board %s: chip or capacity changed, the change needs a restart", board.Name)
	}
	if err := dn.plugins.OnBoardConfigChange(board); err != nil {
		glog.Errorf("board %s rejected by plugins: %v", board.Name, err)
		return
	}
	failed := dn.applyClients(board)
	dn.board = board
	dn.tracker.setConfig(true, failed)
	glog.Infof("board %s applied, %d clients", board.Name, len(board.Clients))
}

// DeviceStats returns the driver statistics of the active clients
func (dn *Daemon) DeviceStats() (map[string]peripheral.Stats, error) {
	out := make(map[string]peripheral.Stats)
	err := dn.Do(func() {
		for name, d := range dn.devices {
			if !d.retired {
				out[name] = d.dev.Stats()
			}
		}
	})
	return out, err
}
