// Package kcfg edits linux-tkg's customization.cfg in place. The file is
// shell syntax, so only _key="value" assignments are touched; every other
// line survives a rewrite byte-for-byte.
package kcfg

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"kforge/internal/log"
)

var assignRe = regexp.MustCompile(`^(_\w+)\s*=\s*["']?([^"'#\n]*)["']?`)

type lineKind int

const (
	lineVerbatim lineKind = iota
	lineAssignment
)

type line struct {
	kind  lineKind
	key   string
	value string
	raw   string
}

// File is a loaded customization.cfg.
type File struct {
	path  string
	lines []line
}

// Load parses a customization.cfg, keeping the original line text so an
// unmodified file round-trips exactly.
func Load(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	f := &File{path: path}
	for _, raw := range strings.Split(strings.TrimSuffix(string(content), "\n"), "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			f.lines = append(f.lines, line{kind: lineVerbatim, raw: raw})
			continue
		}
		if m := assignRe.FindStringSubmatch(raw); m != nil {
			f.lines = append(f.lines, line{
				kind:  lineAssignment,
				key:   m[1],
				value: strings.TrimSpace(m[2]),
				raw:   raw,
			})
			continue
		}
		f.lines = append(f.lines, line{kind: lineVerbatim, raw: raw})
	}
	return f, nil
}

// Path returns the file the config was loaded from.
func (f *File) Path() string { return f.path }

// Get returns the value of a _key assignment.
func (f *File) Get(key string) (string, bool) {
	for _, l := range f.lines {
		if l.kind == lineAssignment && l.key == key {
			return l.value, true
		}
	}
	return "", false
}

// Set updates an assignment's value, rewriting only that line. A missing
// key is appended at the end of the file.
func (f *File) Set(key, value string) {
	for i, l := range f.lines {
		if l.kind == lineAssignment && l.key == key {
			f.lines[i].value = value
			f.lines[i].raw = fmt.Sprintf("%s=%q", key, value)
			return
		}
	}
	f.lines = append(f.lines, line{
		kind:  lineAssignment,
		key:   key,
		value: value,
		raw:   fmt.Sprintf("%s=%q", key, value),
	})
}

// All returns every assignment as a map.
func (f *File) All() map[string]string {
	out := make(map[string]string)
	for _, l := range f.lines {
		if l.kind == lineAssignment {
			out[l.key] = l.value
		}
	}
	return out
}

// Keys returns assignment keys in file order.
func (f *File) Keys() []string {
	var out []string
	for _, l := range f.lines {
		if l.kind == lineAssignment {
			out = append(out, l.key)
		}
	}
	return out
}

// Save writes the file back, preserving untouched lines verbatim.
func (f *File) Save() error {
	var b strings.Builder
	for _, l := range f.lines {
		b.WriteString(l.raw)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(f.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	log.Debug(log.CatKcfg, "customization.cfg saved", "path", f.path)
	return nil
}
