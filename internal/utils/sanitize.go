// Package utils holds small helpers shared by the CLI and daemon.
package utils

import (
	"regexp"
	"strings"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences from s.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// Printable makes user-supplied text (blocklist names, siren identifiers,
// app labels) safe to print on a single terminal line. Escape sequences and
// control characters are dropped; tabs and newlines become spaces.
func Printable(s string) string {
	s = StripANSI(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}
