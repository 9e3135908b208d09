package registry

import (
	"fmt"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"kforge/internal/log"
	"kforge/internal/ops"
)

// CheckMsg is the closed set of terminal messages for a staleness check.
// Exactly one is posted per checked record.
type CheckMsg interface{ checkMsg() }

// CheckUpToDate reports that the remote validators match the stored ones.
type CheckUpToDate struct{ Key Key }

// CheckStale reports that at least one remote validator differs.
type CheckStale struct{ Key Key }

// CheckFailed reports that the probe itself failed. Stored validators are
// left untouched: a failed probe must not overwrite known-good data.
type CheckFailed struct {
	Key    Key
	Reason string
}

// CheckNoSource reports that the record has no provenance URL. This is a
// terminal classification, not an error.
type CheckNoSource struct{ Key Key }

func (CheckUpToDate) checkMsg() {}
func (CheckStale) checkMsg()    {}
func (CheckFailed) checkMsg()   {}
func (CheckNoSource) checkMsg() {}

// CheckHandle is the polling endpoint for a dispatched check or sweep.
type CheckHandle struct {
	ID string
	*ops.Mailbox[CheckMsg]
}

// probeResult holds the validators observed by one HEAD probe.
type probeResult struct {
	etag         string
	lastModified string
}

// Checker issues header-only probes against artifact provenance URLs.
// Probe results are cached for a short TTL so repeated sweeps stay cheap.
type Checker struct {
	client *http.Client
	cache  *gocache.Cache
}

// NewChecker creates a checker. ttl bounds how long a probe result is
// reused before the URL is probed again.
func NewChecker(client *http.Client, ttl time.Duration) *Checker {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Checker{
		client: client,
		cache:  gocache.New(ttl, 2*ttl),
	}
}

// Check dispatches a staleness check for one record. The worker posts
// exactly one terminal message and closes the mailbox. The caller is free to
// drop the handle; the worker never blocks on it.
func (c *Checker) Check(rec Record) *CheckHandle {
	handle := &CheckHandle{ID: ops.NewID(), Mailbox: ops.NewMailbox[CheckMsg]()}
	go func() {
		defer handle.Close()
		handle.Post(c.checkOne(rec))
	}()
	return handle
}

// Sweep dispatches one staleness check per record that has a provenance
// URL. Records without one are excluded from the check set entirely. One
// message is posted per checked record, in input order, then the mailbox
// closes.
func (c *Checker) Sweep(records []Record) *CheckHandle {
	var tracked []Record
	for _, rec := range records {
		if rec.SourceURL != "" {
			tracked = append(tracked, rec)
		}
	}

	handle := &CheckHandle{ID: ops.NewID(), Mailbox: ops.NewMailbox[CheckMsg]()}
	log.Debug(log.CatRegistry, "staleness sweep dispatched",
		"op", handle.ID, "checked", len(tracked), "skipped", len(records)-len(tracked))

	go func() {
		defer handle.Close()
		for _, rec := range tracked {
			handle.Post(c.checkOne(rec))
		}
	}()
	return handle
}

// checkOne performs the blocking probe and classification for one record.
func (c *Checker) checkOne(rec Record) CheckMsg {
	key := rec.Key()
	if rec.SourceURL == "" {
		return CheckNoSource{Key: key}
	}

	probe, err := c.probe(rec.SourceURL)
	if err != nil {
		log.Warn(log.CatRegistry, "staleness probe failed", "key", key, "error", err)
		return CheckFailed{Key: key, Reason: err.Error()}
	}

	if validatorChanged(rec.ETag, probe.etag) || validatorChanged(rec.LastModified, probe.lastModified) {
		return CheckStale{Key: key}
	}
	return CheckUpToDate{Key: key}
}

// probe issues a HEAD request, consulting the TTL cache first. Only the
// entity-tag and last-modified response headers are read.
func (c *Checker) probe(url string) (probeResult, error) {
	if cached, ok := c.cache.Get(url); ok {
		return cached.(probeResult), nil
	}

	resp, err := c.client.Head(url)
	if err != nil {
		return probeResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return probeResult{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	result := probeResult{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
	c.cache.SetDefault(url, result)
	return result, nil
}

// validatorChanged compares one stored validator against a freshly probed
// one. A validator appearing where none was stored counts as a change; a
// validator disappearing does not, since some mirrors omit headers
// intermittently.
func validatorChanged(stored, probed string) bool {
	switch {
	case stored != "" && probed != "":
		return stored != probed
	case stored == "" && probed != "":
		return true
	default:
		return false
	}
}

// ApplyCheck folds a terminal check message into the store, following the
// freshness state machine. It returns the affected key and whether the
// store was mutated.
func ApplyCheck(store *Store, msg CheckMsg) (Key, bool) {
	switch m := msg.(type) {
	case CheckUpToDate:
		return m.Key, setStatus(store, m.Key, StatusUpToDate, "")
	case CheckStale:
		return m.Key, setStatus(store, m.Key, StatusStale, "")
	case CheckFailed:
		return m.Key, setStatus(store, m.Key, StatusCheckError, m.Reason)
	case CheckNoSource:
		// Permanent classification, derived from the record itself.
		return m.Key, false
	default:
		return Key{}, false
	}
}

func setStatus(store *Store, key Key, status Status, reason string) bool {
	rec, ok := store.Get(key)
	if !ok {
		// The record was removed while its check was in flight.
		return false
	}
	rec.Status = status
	rec.StatusReason = reason
	store.Upsert(rec)
	return true
}
