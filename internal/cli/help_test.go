package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tiedsiren/tiedsiren/internal/core"
)

func TestClampWidth(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{50, 72},   // Below minimum, clamp to 72
		{72, 72},   // At minimum
		{80, 80},   // Normal width
		{100, 100}, // At maximum
		{120, 100}, // Above maximum, clamp to 100
	}

	for _, tt := range tests {
		if result := clampWidth(tt.input); result != tt.expected {
			t.Errorf("clampWidth(%d) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestDetectWidth_FallsBack(t *testing.T) {
	t.Setenv("COLUMNS", "invalid")
	if width := detectWidth(); width <= 0 {
		t.Errorf("detectWidth() returned %d, expected positive value", width)
	}
}

func TestSupportsUnicode(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_CTYPE", "")

	t.Setenv("TERM", "xterm-256color")
	t.Setenv("LANG", "en_US.UTF-8")
	if !supportsUnicode() {
		t.Error("expected unicode support with UTF-8 locale")
	}

	t.Setenv("TERM", "dumb")
	if supportsUnicode() {
		t.Error("dumb terminal should not use unicode")
	}

	t.Setenv("TERM", "xterm")
	t.Setenv("LANG", "C")
	if supportsUnicode() {
		t.Error("C locale should not use unicode")
	}
}

func TestRenderSection_StripsIconWithoutUnicode(t *testing.T) {
	got := renderSection(false, "📋 BLOCKLISTS", []string{"line"})
	if strings.Contains(got, "📋") || !strings.Contains(got, "BLOCKLISTS") {
		t.Fatalf("unexpected section %q", got)
	}
}

func TestPhaseBadge(t *testing.T) {
	tests := []struct {
		phase core.Phase
		want  string
	}{
		{core.NoActiveSession, "NO ACTIVE SESSION"},
		{core.ActiveUnlocked, "ACTIVE UNLOCKED"},
		{core.ActiveLocked, "ACTIVE LOCKED"},
	}
	for _, tt := range tests {
		if got := phaseBadge(tt.phase, false); !strings.Contains(got, tt.want) {
			t.Errorf("phaseBadge(%s) = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestShowQuickReference_ASCII(t *testing.T) {
	t.Setenv("TERM", "dumb")

	var buf bytes.Buffer
	if err := showQuickReference(&buf); err != nil {
		t.Fatalf("showQuickReference: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "TIED SIREN QUICK REFERENCE - Focus Sessions") {
		t.Fatalf("expected ASCII title, got %q", out)
	}
	if strings.Contains(out, "╭") {
		t.Fatalf("expected ASCII border")
	}
}
