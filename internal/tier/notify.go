package tier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tiedsiren/tiedsiren/internal/state"
	"github.com/tiedsiren/tiedsiren/internal/utils"
)

// DesktopNotifier shows a desktop notification.
type DesktopNotifier interface {
	Notify(title, message string) error
}

// DesktopNotifierFunc adapts a function to DesktopNotifier.
type DesktopNotifierFunc func(title, message string) error

func (f DesktopNotifierFunc) Notify(title, message string) error {
	return f(title, message)
}

// NotifyBlocker tells the user a siren was blocked. Repeated launches of the
// same identifier within the cooldown produce a single notification.
type NotifyBlocker struct {
	notifier DesktopNotifier
	cooldown time.Duration
	logger   *log.Logger
	now      func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time
}

// NewNotifyBlocker returns a blocker that notifies through notifier, or the
// platform notifier when nil.
func NewNotifyBlocker(notifier DesktopNotifier, cooldown time.Duration, logger *log.Logger) *NotifyBlocker {
	if logger == nil {
		logger = log.Default().WithPrefix("notify")
	}
	if notifier == nil {
		notifier = DesktopNotifierFunc(SendDesktopNotification)
	}
	if cooldown < 0 {
		cooldown = 0
	}
	return &NotifyBlocker{
		notifier: notifier,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
		notified: make(map[string]time.Time),
	}
}

// Block sends a best-effort notification. Notifier failures are logged, not
// returned.
func (b *NotifyBlocker) Block(ctx context.Context, app state.LaunchedApp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.markOnce(app.Identifier, b.now()) {
		b.logger.Debug("notification suppressed", "identifier", app.Identifier)
		return nil
	}

	title := "Tied Siren: blocked"
	message := fmt.Sprintf("%s is blocked during your session", app.Identifier)
	if app.Category != "" {
		message = fmt.Sprintf("%s (%s) is blocked during your session", app.Identifier, app.Category)
	}
	if err := b.notifier.Notify(title, message); err != nil {
		b.logger.Warn("desktop notification failed", "identifier", app.Identifier, "error", err)
	}
	return nil
}

func (b *NotifyBlocker) markOnce(key string, at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if last, ok := b.notified[key]; ok && at.Sub(last) < b.cooldown {
		return false
	}
	b.notified[key] = at
	return true
}

// SendDesktopNotification sends a best-effort desktop notification on the
// current platform.
func SendDesktopNotification(title, message string) error {
	title = strings.TrimSpace(utils.Printable(title))
	message = strings.TrimSpace(utils.Printable(message))
	if title == "" {
		title = "Tied Siren"
	}
	if message == "" {
		return fmt.Errorf("message is required")
	}

	switch runtime.GOOS {
	case "darwin":
		if _, err := exec.LookPath("osascript"); err != nil {
			return fmt.Errorf("osascript not found")
		}
		script := fmt.Sprintf(
			`display notification "%s" with title "%s"`,
			escapeAppleScript(message),
			escapeAppleScript(title),
		)
		return runNoOutput("osascript", "-e", script)
	case "linux":
		if _, err := exec.LookPath("notify-send"); err != nil {
			return fmt.Errorf("notify-send not found")
		}
		return runNoOutput("notify-send", title, message)
	case "windows":
		return errors.New("desktop notifications not implemented on windows")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

func runNoOutput(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Env = os.Environ()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w (%s)", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
