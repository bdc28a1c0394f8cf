package reconcile

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"tablesync/internal/apperr"
)

const (
	// MaxNameLength bounds table and field names, in characters.
	MaxNameLength = 80
	// MaxConflictAttempts bounds the _dup suffix search.
	MaxConflictAttempts = 1000

	unnamed       = "unnamed"
	autoTableName = "auto_table"
)

var (
	reControl = regexp.MustCompile(`[\n\r\t]`)
	reSpaces  = regexp.MustCompile(`\s+`)
	reUnsafe  = regexp.MustCompile(`[\\/:*?"<>|]`)
)

// NormalizeName makes name safe for the store: NFC, trimmed, whitespace
// collapsed, unsafe characters replaced with "_" and cut to MaxNameLength.
func NormalizeName(name string) string {
	s := strings.TrimSpace(norm.NFC.String(name))
	if s == "" {
		return unnamed
	}
	s = reControl.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	s = reUnsafe.ReplaceAllString(s, "_")
	if r := []rune(s); len(r) > MaxNameLength {
		s = string(r[:MaxNameLength])
	}
	if s == "" {
		return unnamed
	}
	return s
}

// fold is the case-insensitive comparison key for names. A Caser is not safe
// for concurrent use, so each call gets its own.
func fold(s string) string { return cases.Fold().String(s) }

// ResolveNameConflict returns name, or name with the first free suffix of
// _dup, _dup2, _dup3, ... when name collides case-insensitively with one of
// existing.
func ResolveNameConflict(name string, existing []string) (string, error) {
	taken := make(map[string]bool, len(existing))
	for _, e := range existing {
		taken[fold(e)] = true
	}
	if !taken[fold(name)] {
		return name, nil
	}
	for i := 1; i <= MaxConflictAttempts; i++ {
		cand := name + "_dup"
		if i > 1 {
			cand += strconv.Itoa(i)
		}
		if !taken[fold(cand)] {
			return cand, nil
		}
	}
	return "", apperr.Newf(apperr.ErrNamingExhausted, "no free name for %q after %d attempts", name, MaxConflictAttempts)
}

// EnsureUniqueTableName returns name, or name with the first free suffix of
// _auto2, _auto3, ... when used already holds it. The comparison is
// case-sensitive. An empty name becomes "auto_table".
func EnsureUniqueTableName(name string, used map[string]bool) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = autoTableName
	}
	if !used[base] {
		return base
	}
	for i := 2; ; i++ {
		cand := base + "_auto" + strconv.Itoa(i)
		if !used[cand] {
			return cand
		}
	}
}
