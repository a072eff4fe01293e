// Package completion implements the slash-menu and tab-completion
// contracts as pure functions over two closed
// catalogs: a slash-command catalog (name → one-line summary) and a
// plain-command catalog (names only, for the bare-word local-command
// whitelist). There is no widget here, only the derivation the
// terminal UI is expected to call into.
package completion

import (
	"sort"
	"strings"
)

// Entry is one slash-command catalog row.
type Entry struct {
	Name    string
	Summary string
}

// Catalog is the closed set of slash commands, sorted by Name once at
// construction so Complete never has to sort on the hot path.
type Catalog struct {
	entries []Entry
	byName  map[string]string
}

// NewCatalog builds a Catalog from entries, sorted by name.
func NewCatalog(entries []Entry) *Catalog {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	byName := make(map[string]string, len(sorted))
	for _, e := range sorted {
		byName[e.Name] = e.Summary
	}
	return &Catalog{entries: sorted, byName: byName}
}

// Summary returns the one-line summary for name, or "" if unknown.
func (c *Catalog) Summary(name string) string {
	return c.byName[name]
}

// Buffer is the derived shape of the current input line the
// completion logic needs: the prefix before the token being
// completed, the token itself, and whether the line is a slash
// command.
type Buffer struct {
	Prefix  string
	Token   string
	IsSlash bool
}

// ParseBuffer derives (prefix, token, is_slash) from the raw input
// line and the cursor's implicit position at end-of-line (this
// runtime only ever completes the trailing word, matching the
// single free-form input line).
func ParseBuffer(line string) Buffer {
	isSlash := strings.HasPrefix(line, "/")
	body := line
	if isSlash {
		body = line[1:]
	}
	idx := strings.LastIndexByte(body, ' ')
	var prefix, token string
	if idx < 0 {
		token = body
	} else {
		prefix = body[:idx+1]
		token = body[idx+1:]
	}
	return Buffer{Prefix: prefix, Token: token, IsSlash: isSlash}
}

// Complete returns the sorted set of names in the chosen catalog (slash
// or plain) starting with token, for the given buffer. Plain names are
// only completed when token is the entire buffer (the first word) —
// matching the rule that plain commands are recognized only at the
// start of a line.
func Complete(buf Buffer, slash *Catalog, plainNames []string) []string {
	if buf.IsSlash {
		var matches []string
		for _, e := range slash.entries {
			if strings.HasPrefix(e.Name, buf.Token) {
				matches = append(matches, e.Name)
			}
		}
		return matches
	}
	if buf.Prefix != "" {
		return nil
	}
	names := make([]string, len(plainNames))
	copy(names, plainNames)
	sort.Strings(names)
	var matches []string
	for _, n := range names {
		if strings.HasPrefix(n, buf.Token) {
			matches = append(matches, n)
		}
	}
	return matches
}

// Rotator walks a fixed match list in order, wrapping around, so
// repeated Tab presses cycle through candidates while the prefix and
// suggestion list stay stable.
type Rotator struct {
	matches []string
	index   int
}

// NewRotator builds a Rotator over matches, positioned before the
// first entry.
func NewRotator(matches []string) *Rotator {
	return &Rotator{matches: matches, index: -1}
}

// Next returns the next match, wrapping to the first after the last.
// Returns "", false if there are no matches at all.
func (r *Rotator) Next() (string, bool) {
	if len(r.matches) == 0 {
		return "", false
	}
	r.index = (r.index + 1) % len(r.matches)
	return r.matches[r.index], true
}
