// Package talents loads skill and tool documents: short markdown files,
// optionally tagged with YAML frontmatter, that Type2 folds into its
// prompt as a "skills excerpt" and that Loader's Draft/Enable/Remove
// manage.
package talents

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Talent is a single loaded skill or tool document.
type Talent struct {
	Name    string   // filename without the .md suffix
	Tags    []string // from frontmatter; nil means always active
	Content string   // body with frontmatter stripped
}

// ManifestEntry describes one tag group for GenerateManifest.
type ManifestEntry struct {
	Tag          string
	Description  string
	Tools        []string
	AlwaysActive bool
}

// Loader reads talent documents from a directory.
type Loader struct {
	dir string
}

// NewLoader creates a talent loader for the given directory. An empty
// dir is valid and makes every load a no-op, so callers can construct
// a Loader before deciding whether a talents directory exists.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadAll reads every .md file in the talents directory, sorted by
// filename for deterministic ordering, and returns them as parsed
// Talents. A missing or empty directory returns (nil, nil).
func (l *Loader) LoadAll() ([]Talent, error) {
	if l.dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read talents dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, nil
	}

	talents := make([]Talent, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(l.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read talent %s: %w", name, err)
		}
		tags, body := parseFrontmatter(string(raw))
		talents = append(talents, Talent{
			Name:    strings.TrimSuffix(name, ".md"),
			Tags:    tags,
			Content: body,
		})
	}
	return talents, nil
}

// List returns the names of available talent files, without loading
// their content.
func (l *Loader) List() ([]string, error) {
	talents, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(talents))
	for _, t := range talents {
		names = append(names, t.Name)
	}
	return names, nil
}

// FilterByTags joins the content of every talent that should be
// included given the set of currently active tags, separated by a
// horizontal rule. Untagged talents are always included; a nil
// activeTags also includes every tagged talent. Pass an empty
// (non-nil) map to include only untagged talents.
func FilterByTags(all []Talent, activeTags map[string]bool) string {
	var parts []string
	for _, t := range all {
		if shouldIncludeTalent(t, activeTags) {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// shouldIncludeTalent reports whether t belongs in the prompt given
// the currently active capability tags.
func shouldIncludeTalent(t Talent, activeTags map[string]bool) bool {
	if len(t.Tags) == 0 {
		return true
	}
	if activeTags == nil {
		return true
	}
	for _, tag := range t.Tags {
		if activeTags[tag] {
			return true
		}
	}
	return false
}

// GenerateManifest builds a synthetic talent summarizing the available
// capability tags, for operators who want to request_capability or
// delegate instead of loading everything up front. Returns nil if
// entries is empty.
func GenerateManifest(entries []ManifestEntry) *Talent {
	if len(entries) == 0 {
		return nil
	}

	lines := []string{"# Capability Manifest", ""}
	for _, e := range entries {
		status := "available"
		if e.AlwaysActive {
			status = "always active"
		}
		lines = append(lines, fmt.Sprintf("- **%s** (%s): %s — tools: %s",
			e.Tag, status, e.Description, strings.Join(e.Tools, ", ")))
	}
	lines = append(lines, "",
		"Use the request_capability tool to activate a capability, "+
			"or delegate to a specialist as an alternative.")

	return &Talent{
		Name:    "_capability_manifest",
		Tags:    nil,
		Content: strings.Join(lines, "\n"),
	}
}

// Draft writes a new talent document named name.md with the given
// kind ("skill" or "tool") and, when source is non-empty, a "Source:"
// line recording where it came from (e.g. an install URL). It refuses
// to overwrite an existing talent of the same name.
func (l *Loader) Draft(name, kind, source string) (string, error) {
	if l.dir == "" {
		return "", fmt.Errorf("talents: no talents directory configured")
	}
	if name == "" {
		return "", fmt.Errorf("talents: name is required")
	}
	path := filepath.Join(l.dir, name+".md")
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("talents: %s already exists", name)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("talents: stat %s: %w", name, err)
	}

	if err := os.MkdirAll(l.dir, 0o700); err != nil {
		return "", fmt.Errorf("talents: create talents dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "---\ntags: [%s]\n---\n", kind)
	fmt.Fprintf(&b, "# %s\n\n", name)
	if source != "" {
		fmt.Fprintf(&b, "Source: %s\n\n", source)
	}
	b.WriteString("Draft: fill in what this ")
	b.WriteString(kind)
	b.WriteString(" actually does.\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("talents: write %s: %w", name, err)
	}
	return path, nil
}

// Enable strips any frontmatter tags from an existing talent so
// shouldIncludeTalent always includes it, regardless of which tags are
// currently active.
func (l *Loader) Enable(name string) error {
	if l.dir == "" {
		return fmt.Errorf("talents: no talents directory configured")
	}
	path := filepath.Join(l.dir, name+".md")
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("talents: read %s: %w", name, err)
	}
	_, body := parseFrontmatter(string(raw))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("talents: write %s: %w", name, err)
	}
	return nil
}

// Remove deletes a talent document by name.
func (l *Loader) Remove(name string) error {
	if l.dir == "" {
		return fmt.Errorf("talents: no talents directory configured")
	}
	path := filepath.Join(l.dir, name+".md")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("talents: remove %s: %w", name, err)
	}
	return nil
}

// parseFrontmatter splits raw into an optional YAML-ish frontmatter
// block delimited by --- lines and the remaining body. Only a single
// "tags: [a, b]" line is understood; any other frontmatter field is
// ignored. A document with no opening "---\n" or no closing "\n---\n"
// is returned unchanged with nil tags.
func parseFrontmatter(raw string) ([]string, string) {
	if !strings.HasPrefix(raw, "---\n") {
		return nil, raw
	}
	rest := raw[len("---\n"):]
	idx := strings.Index(rest, "\n---\n")
	if idx < 0 {
		return nil, raw
	}
	frontmatter := rest[:idx]
	body := rest[idx+len("\n---\n"):]
	return extractTags(frontmatter), body
}

// extractTags pulls the bracketed list from a "tags: [a, b]" line
// inside a frontmatter block. Returns nil if no such line exists or
// the list is empty.
func extractTags(frontmatter string) []string {
	for _, line := range strings.Split(frontmatter, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "tags:") {
			continue
		}
		val := strings.TrimSpace(strings.TrimPrefix(line, "tags:"))
		val = strings.TrimPrefix(val, "[")
		val = strings.TrimSuffix(val, "]")
		val = strings.TrimSpace(val)
		if val == "" {
			return nil
		}
		var tags []string
		for _, p := range strings.Split(val, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				tags = append(tags, p)
			}
		}
		if len(tags) == 0 {
			return nil
		}
		return tags
	}
	return nil
}
