package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// ChangeKind classifies what changed in the data dir.
type ChangeKind uint8

const (
	// ChangeState covers state.db and its SQLite sidecar files.
	ChangeState ChangeKind = 1 << iota
	// ChangeConfig covers config.toml in the data dir.
	ChangeConfig
)

// Has reports whether k includes other.
func (k ChangeKind) Has(other ChangeKind) bool {
	return k&other != 0
}

func (k ChangeKind) String() string {
	var parts []string
	if k.Has(ChangeState) {
		parts = append(parts, "state")
	}
	if k.Has(ChangeConfig) {
		parts = append(parts, "config")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Change is one debounced batch of edits to the data dir.
type Change struct {
	Kind  ChangeKind
	Files []string
	At    time.Time
}

// Watcher reports edits other processes (the CLI, mostly) make to the state
// database or config. A burst of SQLite WAL writes collapses into a single
// Change once the data dir has been quiet for the debounce window.
type Watcher struct {
	dir      string
	fsw      *fsnotify.Watcher
	logger   *log.Logger
	debounce time.Duration

	changes chan Change
	errs    chan error

	// Owned by the loop goroutine.
	pendingKind  ChangeKind
	pendingFiles map[string]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewWatcher watches dataDir, creating it if needed.
func NewWatcher(dataDir string) (*Watcher, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, fmt.Errorf("dataDir is required")
	}
	dataDir = filepath.Clean(dataDir)
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dataDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dataDir, err)
	}

	return &Watcher{
		dir:          dataDir,
		fsw:          fsw,
		logger:       log.Default().WithPrefix("watcher"),
		debounce:     100 * time.Millisecond,
		changes:      make(chan Change, 8),
		errs:         make(chan error, 8),
		pendingFiles: make(map[string]struct{}),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Changes is closed after Stop.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors is closed after Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Start runs the event loop until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil || w.fsw == nil {
		return fmt.Errorf("watcher is not initialized")
	}
	w.startOnce.Do(func() {
		go w.loop(ctx)
	})
	return nil
}

// Stop closes the fsnotify watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	if w == nil {
		return nil
	}
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fsw.Close()
		w.startOnce.Do(func() { close(w.doneCh) })
		<-w.doneCh
		w.closeChannels()
	})
	return err
}

func (w *Watcher) closeChannels() {
	close(w.changes)
	close(w.errs)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
				w.logger.Warn("watcher error dropped", "error", err)
			}
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.note(ev.Name) {
				continue
			}
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			armed = true
		case <-timer.C:
			armed = false
			change, ok := w.take(time.Now().UTC())
			if !ok {
				continue
			}
			select {
			case w.changes <- change:
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// classify maps a path in the data dir to the kind of change it signals.
func (w *Watcher) classify(path string) ChangeKind {
	path = filepath.Clean(path)
	if filepath.Dir(path) != w.dir {
		return 0
	}
	name := filepath.Base(path)
	switch {
	case name == "config.toml":
		return ChangeConfig
	case name == "state.db", strings.HasPrefix(name, "state.db-"):
		return ChangeState
	}
	return 0
}

// note adds path to the pending batch. It reports false for irrelevant files.
func (w *Watcher) note(path string) bool {
	kind := w.classify(path)
	if kind == 0 {
		return false
	}
	w.pendingKind |= kind
	w.pendingFiles[filepath.Base(path)] = struct{}{}
	return true
}

// take drains the pending batch.
func (w *Watcher) take(at time.Time) (Change, bool) {
	if w.pendingKind == 0 {
		return Change{}, false
	}
	files := make([]string, 0, len(w.pendingFiles))
	for f := range w.pendingFiles {
		files = append(files, f)
	}
	sort.Strings(files)

	change := Change{Kind: w.pendingKind, Files: files, At: at}
	w.pendingKind = 0
	w.pendingFiles = make(map[string]struct{})
	return change, true
}
