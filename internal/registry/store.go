package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"kforge/internal/log"
)

// registryFile is the on-disk name of the registry inside the data dir.
const registryFile = "patch_registry.json"

// Store is the owned, persisted mapping of Key to Record.
//
// Only the interactive surface mutates the store, after receiving a worker's
// terminal message; workers never touch it. Every save rewrites the whole
// file atomically, so a crash loses at most the last unsaved mutation and
// never corrupts unrelated records.
type Store struct {
	path    string
	records map[Key]Record
	order   []Key // iteration order: load order, then insertion order
	dirty   bool
}

// storeFile is the persisted JSON shape, keyed by "<series>/<name>".
type storeFile struct {
	Patches map[string]Record `json:"patches"`
}

// Load reads the registry from dataDir. A missing file yields an empty
// store, not an error; a malformed file is an error.
func Load(dataDir string) (*Store, error) {
	s := &Store{
		path:    filepath.Join(dataDir, registryFile),
		records: make(map[Key]Record),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", s.path, err)
	}

	for raw, rec := range file.Patches {
		key, err := ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing registry %s: %w", s.path, err)
		}
		s.records[key] = rec
		s.order = append(s.order, key)
	}
	// Map iteration is randomized; fix a stable order for this load.
	sort.Slice(s.order, func(i, j int) bool {
		return s.order[i].String() < s.order[j].String()
	})

	log.Debug(log.CatRegistry, "registry loaded", "path", s.path, "records", len(s.records))
	return s, nil
}

// Save atomically rewrites the registry file and clears the dirty flag.
// Failures are surfaced; the in-memory state keeps the attempted mutation so
// the caller can retry.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	file := storeFile{Patches: make(map[string]Record, len(s.records))}
	for key, rec := range s.records {
		file.Patches[key.String()] = rec
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing registry: %w", err)
	}

	s.dirty = false
	log.Debug(log.CatRegistry, "registry saved", "path", s.path, "records", len(s.records))
	return nil
}

// Upsert inserts or replaces a whole record and marks the store dirty.
func (s *Store) Upsert(rec Record) {
	key := rec.Key()
	if _, exists := s.records[key]; !exists {
		s.order = append(s.order, key)
	}
	s.records[key] = rec
	s.dirty = true
}

// Remove deletes a record if present and marks the store dirty.
func (s *Store) Remove(key Key) {
	if _, exists := s.records[key]; !exists {
		return
	}
	delete(s.records, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.dirty = true
}

// Get returns a snapshot of the record for key.
func (s *Store) Get(key Key) (Record, bool) {
	rec, ok := s.records[key]
	return rec, ok
}

// AllInSeries returns snapshots of every record in a series, in the store's
// stable iteration order.
func (s *Store) AllInSeries(series string) []Record {
	var out []Record
	for _, key := range s.order {
		if key.Series == series {
			out = append(out, s.records[key])
		}
	}
	return out
}

// All returns snapshots of every record in the store's stable order.
func (s *Store) All() []Record {
	out := make([]Record, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.records[key])
	}
	return out
}

// Len returns the number of tracked records.
func (s *Store) Len() int {
	return len(s.records)
}

// Dirty reports whether there are unsaved mutations.
func (s *Store) Dirty() bool {
	return s.dirty
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}
