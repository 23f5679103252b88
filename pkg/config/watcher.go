package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// DefaultDebounce groups the burst of events an editor or a configmap
// update produces into one reload
const DefaultDebounce = 200 * time.Millisecond

// Watcher re-reads the board file whenever it changes. The parent directory
// is watched so atomic renames are seen as well.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	updates  chan *Board
}

// NewWatcher starts watching path
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create board watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err = fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	glog.Infof("watching %s for board changes", path)
	return &Watcher{
		path:     path,
		debounce: debounce,
		watcher:  fw,
		updates:  make(chan *Board, 1),
	}, nil
}

// Updates delivers every board that parsed successfully after a change
func (w *Watcher) Updates() <-chan *Board {
	return w.updates
}

// Run forwards reloads until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	defer close(w.updates)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("board watcher event channel closed")
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			glog.V(2).Infof("board file event %s", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			b, err := Load(w.path)
			if err != nil {
				glog.Warningf("board file rejected, keeping the previous one: %v", err)
				continue
			}
			select {
			case w.updates <- b:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("board watcher error channel closed")
			}
			glog.Errorf("board watcher: %v", err)
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		}
	}
}
