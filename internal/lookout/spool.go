package lookout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/tiedsiren/tiedsiren/internal/siren"
)

const (
	detectionsDirName = "detections"
	watchlistFileName = "watchlist.json"
)

// Detection is the on-disk record the native monitor writes per detection.
type Detection struct {
	Identifier string    `json:"identifier"`
	DetectedAt time.Time `json:"detected_at,omitempty"`
}

// Watchlist is the on-disk record the native monitor reads to know what to watch.
type Watchlist struct {
	UpdatedAt time.Time    `json:"updated_at"`
	Sirens    siren.Sirens `json:"sirens"`
}

// Spool bridges the native monitoring module through a directory.
//
// The native side drops one JSON file per detection into <dir>/detections and
// reads <dir>/watchlist.json. Detection files are consumed (removed) after
// subscribers have been notified, one event at a time, on a single goroutine.
type Spool struct {
	dir           string
	detectionsDir string
	watchlistPath string

	watcher *fsnotify.Watcher
	logger  *log.Logger
	subs    registry

	debounceWindow time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// SpoolOption configures a Spool.
type SpoolOption func(*Spool)

// WithSpoolLogger sets the logger.
func WithSpoolLogger(logger *log.Logger) SpoolOption {
	return func(s *Spool) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDebounce sets how long to wait for a burst of file events to settle.
func WithDebounce(d time.Duration) SpoolOption {
	return func(s *Spool) {
		if d > 0 {
			s.debounceWindow = d
		}
	}
}

// NewSpool prepares the spool directory and an fsnotify watcher on it.
func NewSpool(dir string, opts ...SpoolOption) (*Spool, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("spool dir is required")
	}
	detectionsDir := filepath.Join(dir, detectionsDirName)
	if err := os.MkdirAll(detectionsDir, 0750); err != nil {
		return nil, fmt.Errorf("creating detections dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new fsnotify watcher: %w", err)
	}
	if err := fsw.Add(detectionsDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", detectionsDir, err)
	}

	s := &Spool{
		dir:            dir,
		detectionsDir:  detectionsDir,
		watchlistPath:  filepath.Join(dir, watchlistFileName),
		watcher:        fsw,
		logger:         log.Default().WithPrefix("lookout"),
		debounceWindow: 50 * time.Millisecond,
		pending:        make(map[string]struct{}),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the spool root directory.
func (s *Spool) Dir() string {
	return s.dir
}

func (s *Spool) OnSirenDetected(fn DetectionFunc) func() {
	return s.subs.add(fn)
}

// OnSirenDetectedAt is OnSirenDetected with the detected_at each file carries.
func (s *Spool) OnSirenDetectedAt(fn TimedDetectionFunc) func() {
	return s.subs.addTimed(fn)
}

// WatchSirens atomically replaces the watchlist file.
func (s *Spool) WatchSirens(ctx context.Context, sirens siren.Sirens) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wl := Watchlist{UpdatedAt: time.Now().UTC(), Sirens: siren.Merge(sirens)}
	data, err := json.MarshalIndent(wl, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding watchlist: %w", err)
	}
	if err := writeFileAtomic(s.watchlistPath, data); err != nil {
		return fmt.Errorf("writing watchlist: %w", err)
	}
	s.logger.Debug("watchlist updated", "entries", wl.Sirens.Len())
	return nil
}

// Start consumes detections already waiting in the spool, then watches for
// new ones until ctx is done or Stop is called.
func (s *Spool) Start(ctx context.Context) error {
	if s == nil || s.watcher == nil {
		return fmt.Errorf("spool is not initialized")
	}
	s.startOnce.Do(func() {
		go s.loop(ctx)
	})
	return nil
}

// Stop stops the watch loop and waits for it to exit.
func (s *Spool) Stop() error {
	if s == nil {
		return nil
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		_ = s.watcher.Close()
		started := true
		s.startOnce.Do(func() { started = false })
		if started {
			<-s.doneCh
		}
	})
	return nil
}

func (s *Spool) loop(ctx context.Context) {
	defer close(s.doneCh)

	s.consumeExisting()

	for {
		var timerC <-chan time.Time
		s.mu.Lock()
		if s.timer != nil {
			timerC = s.timer.C
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.flush()
			return
		case <-s.stopCh:
			s.flush()
			return
		case err, ok := <-s.watcher.Errors:
			if !ok {
				s.flush()
				return
			}
			s.logger.Warn("spool watcher error", "error", err)
		case ev, ok := <-s.watcher.Events:
			if !ok {
				s.flush()
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !isDetectionFile(ev.Name) {
				continue
			}
			s.record(ev.Name)
		case <-timerC:
			s.flush()
		}
	}
}

func (s *Spool) consumeExisting() {
	entries, err := os.ReadDir(s.detectionsDir)
	if err != nil {
		s.logger.Warn("reading detections dir", "error", err)
		return
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isDetectionFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(s.detectionsDir, e.Name()))
	}
	s.process(paths)
}

func (s *Spool) record(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[filepath.Clean(path)] = struct{}{}

	if s.timer == nil {
		s.timer = time.NewTimer(s.debounceWindow)
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timer.Reset(s.debounceWindow)
}

func (s *Spool) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]struct{})
	if s.timer != nil {
		if !s.timer.Stop() {
			select {
			case <-s.timer.C:
			default:
			}
		}
		s.timer = nil
	}
	s.mu.Unlock()

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	s.process(paths)
}

// process handles detection files in name order, which is write order.
func (s *Spool) process(paths []string) {
	sort.Strings(paths)
	for _, p := range paths {
		det, err := readDetection(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			s.logger.Warn("discarding unreadable detection", "path", p, "error", err)
			_ = os.Remove(p)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("removing detection file", "path", p, "error", err)
		}
		s.subs.fire(det.Identifier, det.DetectedAt)
	}
}

func readDetection(path string) (Detection, error) {
	var det Detection
	data, err := os.ReadFile(path)
	if err != nil {
		return det, err
	}
	if err := json.Unmarshal(data, &det); err != nil {
		return det, fmt.Errorf("decoding detection: %w", err)
	}
	det.Identifier = strings.TrimSpace(det.Identifier)
	if det.Identifier == "" {
		return det, fmt.Errorf("detection has no identifier")
	}
	return det, nil
}

func isDetectionFile(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && strings.HasSuffix(base, ".json")
}

// WriteDetection drops a detection record into the spool at dir, the same way
// the native monitor does. It returns the written path.
func WriteDetection(dir, identifier string, at time.Time) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("identifier is required")
	}
	if at.IsZero() {
		at = time.Now()
	}
	detectionsDir := filepath.Join(dir, detectionsDirName)
	if err := os.MkdirAll(detectionsDir, 0750); err != nil {
		return "", fmt.Errorf("creating detections dir: %w", err)
	}
	data, err := json.Marshal(Detection{Identifier: identifier, DetectedAt: at.UTC()})
	if err != nil {
		return "", fmt.Errorf("encoding detection: %w", err)
	}
	name := fmt.Sprintf("%020d-%s.json", at.UnixNano(), uuid.NewString()[:8])
	path := filepath.Join(detectionsDir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ReadWatchlist reads the watchlist the spool at dir last published.
func ReadWatchlist(dir string) (Watchlist, error) {
	var wl Watchlist
	data, err := os.ReadFile(filepath.Join(dir, watchlistFileName))
	if err != nil {
		return wl, err
	}
	if err := json.Unmarshal(data, &wl); err != nil {
		return wl, fmt.Errorf("decoding watchlist: %w", err)
	}
	return wl, nil
}

// writeFileAtomic writes to a hidden temp file in the same directory and
// renames it into place so readers never see partial content.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
