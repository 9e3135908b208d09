// Package registry tracks downloaded patch artifacts: their content digest,
// where they came from, and whether the remote copy has changed since.
package registry

import (
	"fmt"
	"strings"
	"time"
)

// Key identifies one tracked artifact: a kernel series plus a file name.
// Two artifacts with the same name in different series are distinct.
type Key struct {
	Series string
	Name   string
}

// String renders the registry map key, e.g. "6.13/bbr3-6.13.patch".
func (k Key) String() string {
	return k.Series + "/" + k.Name
}

// ParseKey splits a "<series>/<name>" map key.
func ParseKey(s string) (Key, error) {
	series, name, ok := strings.Cut(s, "/")
	if !ok || series == "" || name == "" {
		return Key{}, fmt.Errorf("malformed registry key %q", s)
	}
	return Key{Series: series, Name: name}, nil
}

// Status is the freshness classification of a tracked artifact relative to
// its remote source.
type Status int

const (
	StatusUnknown Status = iota
	StatusUpToDate
	StatusStale
	StatusCheckError
	// StatusNoProvenance is a derived classification for records without a
	// source URL. It is reported, never stored.
	StatusNoProvenance
)

func (s Status) String() string {
	switch s {
	case StatusUpToDate:
		return "up-to-date"
	case StatusStale:
		return "stale"
	case StatusCheckError:
		return "check-error"
	case StatusNoProvenance:
		return "no-provenance"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler for JSON persistence.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unknown", "":
		*s = StatusUnknown
	case "up-to-date":
		*s = StatusUpToDate
	case "stale":
		*s = StatusStale
	case "check-error":
		*s = StatusCheckError
	case "no-provenance":
		*s = StatusNoProvenance
	default:
		return fmt.Errorf("unknown freshness status %q", text)
	}
	return nil
}

// Record is the persisted metadata for one downloaded artifact.
//
// Optional fields use "" as absent. ETag and LastModified are the remote
// cache-validators observed at download time; they are only ever replaced by
// a fresh download, never by a failed check.
type Record struct {
	Filename     string    `json:"filename"`
	Series       string    `json:"kernel_series"`
	SourceURL    string    `json:"source_url,omitempty"`
	CatalogID    string    `json:"catalog_id,omitempty"`
	SHA256       string    `json:"sha256"`
	DownloadedAt time.Time `json:"downloaded_at"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Status       Status    `json:"update_status"`
	StatusReason string    `json:"update_error,omitempty"`
}

// Key returns the registry key for this record.
func (r Record) Key() Key {
	return Key{Series: r.Series, Name: r.Filename}
}

// Freshness returns the reported classification. A record without a source
// URL is permanently classified no-provenance regardless of stored status.
func (r Record) Freshness() Status {
	if r.SourceURL == "" {
		return StatusNoProvenance
	}
	return r.Status
}
