package lookout

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tiedsiren/tiedsiren/internal/siren"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemory_DetectFiresSubscribersInOrder(t *testing.T) {
	m := NewMemory()

	var got []string
	unsubA := m.OnSirenDetected(func(id string) { got = append(got, "a:"+id) })
	m.OnSirenDetected(func(id string) { got = append(got, "b:"+id) })

	m.Detect("com.facebook.katana")
	unsubA()
	m.Detect("reddit.com")

	want := []string{"a:com.facebook.katana", "b:com.facebook.katana", "b:reddit.com"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("detections (-want +got):\n%s", diff)
	}
	if m.Subscribers() != 1 {
		t.Fatalf("Subscribers=%d want 1", m.Subscribers())
	}
}

func TestMemory_WatchSirens(t *testing.T) {
	m := NewMemory()
	s := siren.Empty()
	s.Websites = []string{"x.com", "x.com"}

	if err := m.WatchSirens(context.Background(), s); err != nil {
		t.Fatalf("WatchSirens: %v", err)
	}
	if diff := cmp.Diff([]string{"x.com"}, m.Watched().Websites); diff != "" {
		t.Fatalf("watched websites (-want +got):\n%s", diff)
	}

	boom := errors.New("boom")
	m.FailWatch(boom)
	if err := m.WatchSirens(context.Background(), s); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if m.WatchCalls() != 2 {
		t.Fatalf("WatchCalls=%d want 2", m.WatchCalls())
	}
}

func TestMemory_NilCallbackIsIgnored(t *testing.T) {
	m := NewMemory()
	unsub := m.OnSirenDetected(nil)
	unsub()
	m.Detect("x")
	if m.Subscribers() != 0 {
		t.Fatalf("nil callback should not register")
	}
}

type collector struct {
	mu  sync.Mutex
	ids []string
	ch  chan string
}

func newCollector() *collector {
	return &collector{ch: make(chan string, 16)}
}

func (c *collector) on(id string) {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.mu.Unlock()
	c.ch <- id
}

func (c *collector) wait(t *testing.T) string {
	t.Helper()
	select {
	case id := <-c.ch:
		return id
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for detection")
		return ""
	}
}

func TestSpool_ConsumesExistingAndNewDetections(t *testing.T) {
	dir := t.TempDir()

	// Written before the spool starts: must be picked up on Start.
	early, err := WriteDetection(dir, "com.facebook.katana", time.Unix(100, 0))
	if err != nil {
		t.Fatalf("WriteDetection: %v", err)
	}

	sp, err := NewSpool(dir, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	t.Cleanup(func() { _ = sp.Stop() })

	c := newCollector()
	sp.OnSirenDetected(c.on)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := sp.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := c.wait(t); got != "com.facebook.katana" {
		t.Fatalf("first detection=%q", got)
	}
	if _, err := os.Stat(early); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected consumed detection file to be removed, stat err=%v", err)
	}

	if _, err := WriteDetection(dir, "reddit.com", time.Time{}); err != nil {
		t.Fatalf("WriteDetection: %v", err)
	}
	if got := c.wait(t); got != "reddit.com" {
		t.Fatalf("second detection=%q", got)
	}
}

func TestSpool_ReportsDetectedAtFromFile(t *testing.T) {
	dir := t.TempDir()
	seenAt := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if _, err := WriteDetection(dir, "reddit.com", seenAt); err != nil {
		t.Fatalf("WriteDetection: %v", err)
	}

	sp, err := NewSpool(dir, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	t.Cleanup(func() { _ = sp.Stop() })

	got := make(chan time.Time, 1)
	sp.OnSirenDetectedAt(func(_ string, at time.Time) { got <- at })
	if err := sp.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case at := <-got:
		if !at.Equal(seenAt) {
			t.Fatalf("detected_at=%v want %v", at, seenAt)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for detection")
	}
}

func TestSpool_SameIdentifierTwiceFiresTwice(t *testing.T) {
	dir := t.TempDir()
	sp, err := NewSpool(dir, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	t.Cleanup(func() { _ = sp.Stop() })

	c := newCollector()
	sp.OnSirenDetected(c.on)
	if err := sp.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := WriteDetection(dir, "com.facebook.katana", time.Time{}); err != nil {
			t.Fatalf("WriteDetection: %v", err)
		}
	}
	c.wait(t)
	c.wait(t)
}

func TestSpool_DiscardsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	sp, err := NewSpool(dir, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	t.Cleanup(func() { _ = sp.Stop() })

	c := newCollector()
	sp.OnSirenDetected(c.on)

	bad := filepath.Join(dir, detectionsDirName, "00000000000000000001-bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := WriteDetection(dir, "ok.example", time.Unix(200, 0)); err != nil {
		t.Fatalf("WriteDetection: %v", err)
	}

	if err := sp.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.wait(t); got != "ok.example" {
		t.Fatalf("detection=%q", got)
	}
	if _, err := os.Stat(bad); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected malformed file removed, stat err=%v", err)
	}
}

func TestSpool_WatchSirensPublishesWatchlist(t *testing.T) {
	dir := t.TempDir()
	sp, err := NewSpool(dir)
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	t.Cleanup(func() { _ = sp.Stop() })

	s := siren.Empty()
	s.Android = []siren.AndroidApp{{PackageName: "com.a"}, {PackageName: "com.a"}}
	s.Keywords = []string{"news"}
	if err := sp.WatchSirens(context.Background(), s); err != nil {
		t.Fatalf("WatchSirens: %v", err)
	}

	wl, err := ReadWatchlist(dir)
	if err != nil {
		t.Fatalf("ReadWatchlist: %v", err)
	}
	if diff := cmp.Diff([]string{"com.a"}, wl.Sirens.IDs(siren.CategoryAndroid)); diff != "" {
		t.Fatalf("android ids (-want +got):\n%s", diff)
	}
	if wl.UpdatedAt.IsZero() {
		t.Fatalf("expected updated_at")
	}
}

func TestSpool_StopWithoutStart(t *testing.T) {
	sp, err := NewSpool(t.TempDir())
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	if err := sp.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sp.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestNewSpool_RequiresDir(t *testing.T) {
	if _, err := NewSpool("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestWriteDetection_RequiresIdentifier(t *testing.T) {
	if _, err := WriteDetection(t.TempDir(), " ", time.Time{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestIsDetectionFile(t *testing.T) {
	cases := map[string]bool{
		"/x/1-a.json":          true,
		"/x/.1-a.json.123":     false,
		"/x/.hidden.json":      false,
		"/x/readme.txt":        false,
		"/x/detections/b.json": true,
	}
	for path, want := range cases {
		if got := isDetectionFile(path); got != want {
			t.Fatalf("isDetectionFile(%q)=%v want %v", path, got, want)
		}
	}
}
