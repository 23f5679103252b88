package daemon

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	utilwait "k8s.io/apimachinery/pkg/util/wait"

	"github.com/openshift/clockpm-daemon/pkg/debug"
)

// ReadyTracker reports readiness once the board is applied and the event
// loop is serving calls.
type ReadyTracker struct {
	mutex   sync.Mutex
	config  bool
	running bool
	failed  []string
}

func (rt *ReadyTracker) Ready() (bool, string) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	if !rt.config {
		return false, "Board not applied"
	}
	if !rt.running {
		return false, "Event loop not running"
	}
	if len(rt.failed) > 0 {
		return false, "Clients not registered: " + strings.Join(rt.failed, ", ")
	}
	return true, ""
}

func (rt *ReadyTracker) setConfig(v bool, failed []string) {
	rt.mutex.Lock()
	rt.config = v
	rt.failed = failed
	rt.mutex.Unlock()
}

func (rt *ReadyTracker) setRunning(v bool) {
	rt.mutex.Lock()
	rt.running = v
	rt.mutex.Unlock()
}

type readyHandler struct {
	tracker *ReadyTracker
}

func (h readyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isReady, msg := h.tracker.Ready(); !isReady {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "503: %s\n", msg)
	} else {
		w.WriteHeader(http.StatusOK)
	}
}

// treeHandler renders the manager state taken on the event loop
type treeHandler struct {
	daemon *Daemon
}

func (h treeHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	snap, err := h.daemon.Snapshot()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "503: %v\n", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	debug.PrintTree(w, snap)
}

// StartReadyServer ...
func StartReadyServer(bindAddress string, tracker *ReadyTracker, dn *Daemon) {
	glog.Info("Starting Ready Server")
	mux := http.NewServeMux()
	mux.Handle("/ready", readyHandler{tracker: tracker})
	if dn != nil {
		mux.Handle("/debug/tree", treeHandler{daemon: dn})
	}
	go utilwait.Until(func() {
		err := http.ListenAndServe(bindAddress, mux)
		if err != nil {
			utilruntime.HandleError(fmt.Errorf("starting ready server failed: %v", err))
		}
	}, 5*time.Second, utilwait.NeverStop)
}

// StartMetricsServer ...
func StartMetricsServer(bindAddress string) {
	glog.Info("Starting Metrics Server")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go utilwait.Until(func() {
		err := http.ListenAndServe(bindAddress, mux)
		if err != nil {
			utilruntime.HandleError(fmt.Errorf("starting metrics server failed: %v", err))
		}
	}, 5*time.Second, utilwait.NeverStop)
}
