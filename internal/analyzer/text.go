package analyzer

import (
	"regexp"
	"strconv"
	"strings"
)

// pidPrefixRe matches valgrind's per-process line prefix, e.g. "==12345== ".
var pidPrefixRe = regexp.MustCompile(`^\s*==\d+==\s*`)

// stripPIDPrefix removes the valgrind prefix and surrounding whitespace.
func stripPIDPrefix(line string) string {
	return strings.TrimSpace(pidPrefixRe.ReplaceAllString(line, ""))
}

// isFrame reports whether a prefix-stripped line is a stack frame.
func isFrame(cleaned string) bool {
	return strings.HasPrefix(cleaned, "at ") || strings.HasPrefix(cleaned, "by ")
}

// parseCount parses a non-negative integer that may contain thousands separators.
func parseCount(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// lines splits captured output, accepting both \n and \r\n endings.
func lines(raw string) []string {
	return strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
