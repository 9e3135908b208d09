// Package patch manages the linux-tkg userpatch directory: listing which
// patches are present for a kernel series, toggling them on and off via
// filename renames, and the curated catalog of well-known patch sources.
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kforge/internal/log"
)

const disabledSuffix = ".disabled"

// Entry is a single file in the userpatch directory. A disabled patch
// keeps its content and carries a .disabled filename suffix.
type Entry struct {
	Name    string
	Path    string
	Enabled bool
}

// BaseName is the entry's name without the .disabled suffix.
func (e Entry) BaseName() string {
	return strings.TrimSuffix(e.Name, disabledSuffix)
}

// Dir returns the userpatch directory for a kernel series inside a
// linux-tkg working copy, e.g. linux6.13-tkg-userpatches.
func Dir(tkgDir, series string) string {
	return filepath.Join(tkgDir, fmt.Sprintf("linux%s-tkg-userpatches", series))
}

// List returns the patch entries in dir sorted by name. A missing
// directory is an empty list, not an error.
func List(dir string) ([]Entry, error) {
	dirents, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading patch directory: %w", err)
	}

	var entries []Entry
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		name := d.Name()
		switch {
		case strings.HasSuffix(name, ".patch") || strings.HasSuffix(name, ".mypatch"):
			entries = append(entries, Entry{Name: name, Path: filepath.Join(dir, name), Enabled: true})
		case strings.HasSuffix(name, ".patch"+disabledSuffix) || strings.HasSuffix(name, ".mypatch"+disabledSuffix):
			entries = append(entries, Entry{Name: name, Path: filepath.Join(dir, name), Enabled: false})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Toggle flips an entry between enabled and disabled by renaming the file
// and returns the updated entry.
func Toggle(e Entry) (Entry, error) {
	var newPath string
	if e.Enabled {
		newPath = e.Path + disabledSuffix
	} else {
		newPath = strings.TrimSuffix(e.Path, disabledSuffix)
	}

	if err := os.Rename(e.Path, newPath); err != nil {
		return e, fmt.Errorf("toggling patch %s: %w", e.Name, err)
	}

	log.Info(log.CatRepo, "patch toggled", "name", e.BaseName(), "enabled", !e.Enabled)
	return Entry{
		Name:    filepath.Base(newPath),
		Path:    newPath,
		Enabled: !e.Enabled,
	}, nil
}

// Delete removes the entry's file.
func Delete(e Entry) error {
	if err := os.Remove(e.Path); err != nil {
		return fmt.Errorf("deleting patch %s: %w", e.Name, err)
	}
	log.Info(log.CatRepo, "patch deleted", "name", e.Name)
	return nil
}

// FilenameFromURL extracts the last path segment of a patch URL, falling
// back to a generic name for URLs without one.
func FilenameFromURL(url string) string {
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx == len(url)-1 {
		return "patch.patch"
	}
	return url[idx+1:]
}
