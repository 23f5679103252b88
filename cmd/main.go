package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/openshift/clockpm-daemon/pkg/config"
	"github.com/openshift/clockpm-daemon/pkg/daemon"
	"github.com/openshift/clockpm-daemon/pkg/metrics"
)

// Git commit of current build set at build time
var GitCommit = "Undefined"

type cliParams struct {
	boardPath       string
	chip            string
	capacity        int
	metricsAddr     string
	readyAddr       string
	watch           bool
	printTree       bool
	refreshInterval time.Duration
}

// Parse Command line flags
func (cp *cliParams) flagInit() {
	flag.StringVar(&cp.boardPath, "board", config.DefaultBoardPath,
		"board file listing the chip plugin and the clock clients")
	flag.StringVar(&cp.chip, "chip", "",
		"chip plugin, overrides the board file")
	flag.IntVar(&cp.capacity, "capacity", 0,
		"client table size, overrides the board file")
	flag.StringVar(&cp.metricsAddr, "metrics-addr", config.DefaultMetricsAddr,
		"address of the prometheus endpoint, empty to disable")
	flag.StringVar(&cp.readyAddr, "ready-addr", config.DefaultReadyAddr,
		"address of the readiness and debug endpoint")
	flag.BoolVar(&cp.watch, "watch", true,
		"reapply the board file when it changes")
	flag.BoolVar(&cp.printTree, "print-tree", false,
		"print the clock manager state whenever it changes")
	flag.DurationVar(&cp.refreshInterval, "refresh-interval", daemon.DefaultRefreshInterval,
		"interval for refreshing gauges from the clock manager")
	flag.Parse()
	cp.debugPrint()
}

func (cp *cliParams) debugPrint() {
	glog.Infof("board file set to: %q", cp.boardPath)
	glog.Infof("chip override: %q, capacity override: %d", cp.chip, cp.capacity)
	glog.Infof("metrics address: %q, ready address: %q", cp.metricsAddr, cp.readyAddr)
	glog.Infof("watch board file: %v", cp.watch)
	glog.Infof("refresh interval set to: %s", cp.refreshInterval)
}

func (cp *cliParams) loadBoard() (*config.Board, error) {
	board := config.Default()
	if _, err := os.Stat(cp.boardPath); err == nil {
		if board, err = config.Load(cp.boardPath); err != nil {
			return nil, err
		}
	} else {
		glog.Warningf("no board file at %q, running the built-in %s board", cp.boardPath, board.Name)
	}
	if cp.chip != "" {
		board.Chip = cp.chip
	}
	if cp.capacity > 0 {
		board.Capacity = cp.capacity
	}
	return board, board.Validate()
}

// pluginNames is the chip plugin followed by the board and PLUGINS extras
func pluginNames(board *config.Board) []string {
	names := []string{board.Chip}
	seen := map[string]bool{board.Chip: true}
	extra := append([]string{}, board.Plugins...)
	if val, ok := os.LookupEnv("PLUGINS"); ok && val != "" {
		extra = append(extra, strings.Split(val, ",")...)
	}
	for _, n := range extra {
		if n = strings.TrimSpace(n); n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

func main() {
	fmt.Printf("Git commit: %s\n", GitCommit)
	cp := &cliParams{}
	cp.flagInit()

	board, err := cp.loadBoard()
	if err != nil {
		glog.Errorf("load board failed: %v", err)
		os.Exit(1)
	}

	metrics.RegisterMetrics(board.Name)
	pm, err := daemon.RegisterPlugins(pluginNames(board))
	if err != nil {
		glog.Errorf("plugin registration failed: %v", err)
		os.Exit(1)
	}

	opts := daemon.Options{RefreshInterval: cp.refreshInterval, PrintTree: cp.printTree}
	if _, statErr := os.Stat(cp.boardPath); cp.watch && statErr == nil {
		if opts.Watcher, err = config.NewWatcher(cp.boardPath, config.DefaultDebounce); err != nil {
			glog.Errorf("board watcher failed: %v", err)
			os.Exit(1)
		}
	}

	tracker := &daemon.ReadyTracker{}
	dn, err := daemon.New(board, pm, tracker, opts)
	if err != nil {
		glog.Errorf("failed to start clock daemon: %v", err)
		os.Exit(1)
	}

	if cp.metricsAddr != "" {
		daemon.StartMetricsServer(cp.metricsAddr)
	}
	daemon.StartReadyServer(cp.readyAddr, tracker, dn)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		glog.Info("signal received, shutting down", sig)
		cancel()
	}()

	if err := dn.Run(ctx); err != nil {
		glog.Errorf("clock daemon exited: %v", err)
		glog.Flush()
		os.Exit(1)
	}
	glog.Flush()
}
