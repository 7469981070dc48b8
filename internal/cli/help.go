package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tiedsiren/tiedsiren/internal/core"
	"golang.org/x/term"
)

// Catppuccin Mocha color palette
var (
	colorMauve   = lipgloss.Color("#cba6f7") // Title
	colorBlue    = lipgloss.Color("#89b4fa") // Section headers
	colorGreen   = lipgloss.Color("#a6e3a1") // Commands, unlocked
	colorYellow  = lipgloss.Color("#f9e2af") // Flags
	colorRed     = lipgloss.Color("#f38ba8") // Locked
	colorOverlay = lipgloss.Color("#6c7086") // Muted text
	colorBase    = lipgloss.Color("#1e1e2e") // Background
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMauve).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			MarginTop(1)

	commandStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	flagStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	lockedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	unlockedStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorOverlay)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBlue).
			Background(colorBase).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)
)

func showQuickReference(w io.Writer) error {
	width := clampWidth(detectWidth())
	useUnicode := supportsUnicode()

	border := lipgloss.RoundedBorder()
	if !useUnicode {
		border = lipgloss.Border{
			Top:         "-",
			Bottom:      "-",
			Left:        "|",
			Right:       "|",
			TopLeft:     "+",
			TopRight:    "+",
			BottomLeft:  "+",
			BottomRight: "+",
		}
	}

	container := boxStyle.Border(border).Width(width)

	titleText := " TIED SIREN QUICK REFERENCE · Focus Sessions "
	titleRendered := gradientText(titleText, []lipgloss.Color{colorMauve, colorBlue})
	if !useUnicode {
		titleRendered = "TIED SIREN QUICK REFERENCE - Focus Sessions"
	}
	title := titleStyle.Width(width - 4).Align(lipgloss.Center).Render(titleRendered)

	blocklists := renderSection(useUnicode, "📋 BLOCKLISTS", []string{
		bullet("tiedsiren blocklist create social --app com.instagram.android --website reddit.com", "create a blocklist"),
		bullet("tiedsiren blocklist add social keywords doomscroll", "add a siren"),
		bullet("tiedsiren blocklist remove social websites reddit.com", "remove a siren (refused while locked)"),
		bullet("tiedsiren blocklist list -j", "list blocklists"),
	})

	sessions := renderSection(useUnicode, "⏱️ SESSIONS", []string{
		bullet("tiedsiren session start -b social -d 90m", "start a regular session"),
		bullet("tiedsiren session start -b social -d 2h --strict", "start a strict session (no way out)"),
		bullet("tiedsiren session end <id>", "end a regular session early"),
		bullet("tiedsiren status -j", "phase, active sessions and siren counts"),
	})

	daemon := renderSection(useUnicode, "🛰️ DAEMON", []string{
		bullet("tiedsiren daemon run", "watch and block in the foreground"),
		bullet("tiedsiren daemon install --user", "register as a login service"),
		bullet("tiedsiren launches --limit 20", "recently blocked launches"),
	})

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		blocklists,
		sessions,
		daemon,
		phaseLegend(useUnicode),
		flagLegend(useUnicode),
		footerLegend(useUnicode),
	)

	_, err := fmt.Fprintln(w, container.Render(content))
	return err
}

func clampWidth(w int) int {
	if w < 72 {
		return 72
	}
	if w > 100 {
		return 100
	}
	return w
}

func detectWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if v, err := strconv.Atoi(cols); err == nil && v > 0 {
			return v
		}
	}
	return 80
}

func supportsUnicode() bool {
	termEnv := strings.ToLower(os.Getenv("TERM"))
	locale := strings.ToLower(strings.Join([]string{
		os.Getenv("LC_ALL"),
		os.Getenv("LC_CTYPE"),
		os.Getenv("LANG"),
	}, " "))
	if strings.Contains(termEnv, "dumb") {
		return false
	}
	return strings.Contains(locale, "utf-8") || strings.Contains(locale, "utf8")
}

func gradientText(text string, colors []lipgloss.Color) string {
	if len(colors) == 0 || !supportsUnicode() {
		return text
	}
	runes := []rune(text)
	segments := len(colors)
	if segments == 1 || len(runes) <= 1 {
		return lipgloss.NewStyle().Foreground(colors[0]).Render(text)
	}

	var b strings.Builder
	for i, r := range runes {
		idx := i * (segments - 1) / (len(runes) - 1)
		b.WriteString(lipgloss.NewStyle().Foreground(colors[idx]).Render(string(r)))
	}
	return b.String()
}

func bullet(command, desc string) string {
	return commandStyle.Render("  "+command) + mutedStyle.Render("  "+desc)
}

func renderSection(useUnicode bool, title string, lines []string) string {
	if !useUnicode {
		if i := strings.Index(title, " "); i >= 0 {
			title = title[i+1:]
		}
	}
	header := sectionStyle.Render(title)
	body := strings.Join(lines, "\n")
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

// phaseBadge renders a session phase the way status output shows it.
func phaseBadge(p core.Phase, useUnicode bool) string {
	label := strings.ToUpper(strings.ReplaceAll(string(p), "_", " "))
	switch p {
	case core.ActiveLocked:
		if useUnicode {
			label = "🔒 " + label
		}
		return lockedStyle.Render(label)
	case core.ActiveUnlocked:
		if useUnicode {
			label = "🔓 " + label
		}
		return unlockedStyle.Render(label)
	default:
		return mutedStyle.Render(label)
	}
}

func phaseLegend(useUnicode bool) string {
	header := "🎯 PHASES"
	if !useUnicode {
		header = "PHASES"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render(header),
		fmt.Sprintf("  %s   %s   %s",
			phaseBadge(core.NoActiveSession, useUnicode),
			phaseBadge(core.ActiveUnlocked, useUnicode),
			phaseBadge(core.ActiveLocked, useUnicode)),
	)
}

func flagLegend(useUnicode bool) string {
	prefix := "🚩 GLOBAL FLAGS"
	if !useUnicode {
		prefix = "FLAGS"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render(prefix),
		flagStyle.Render("  -j, --json")+mutedStyle.Render("              structured output"),
		flagStyle.Render("  -o, --output <fmt>")+mutedStyle.Render("      text, json or yaml"),
		flagStyle.Render("  -H, --home <dir>")+mutedStyle.Render("        home holding .tiedsiren"),
		flagStyle.Render("  -c, --config <path>")+mutedStyle.Render("     config file"),
	)
}

func footerLegend(useUnicode bool) string {
	help := "tiedsiren <command> --help"
	if !useUnicode {
		return mutedStyle.Render("HELP: " + help)
	}
	return lipgloss.JoinHorizontal(lipgloss.Left,
		mutedStyle.Render("HELP: "), commandStyle.Render(help),
	)
}
