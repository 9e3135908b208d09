package registry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// awaitCheck polls a handle until its terminal messages arrive, the way the
// interactive surface would across ticks.
func awaitCheck(t *testing.T, handle *CheckHandle) []CheckMsg {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var msgs []CheckMsg
	for {
		msgs = append(msgs, handle.Drain()...)
		if handle.Exhausted() {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for check to finish, got %d messages", len(msgs))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func headServer(t *testing.T, etag, lastModified string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		if lastModified != "" {
			w.Header().Set("Last-Modified", lastModified)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChecker_UpToDate(t *testing.T) {
	srv := headServer(t, `"v1"`, "Mon, 02 Jan 2006 15:04:05 GMT")

	rec := testRecord("6.13", "a.patch")
	rec.SourceURL = srv.URL
	rec.ETag = `"v1"`
	rec.LastModified = "Mon, 02 Jan 2006 15:04:05 GMT"

	checker := NewChecker(srv.Client(), time.Minute)
	msgs := awaitCheck(t, checker.Check(rec))

	require.Len(t, msgs, 1)
	assert.Equal(t, CheckUpToDate{Key: rec.Key()}, msgs[0])
}

func TestChecker_StaleOnDifferingETag(t *testing.T) {
	srv := headServer(t, `"v2"`, "")

	rec := testRecord("6.13", "a.patch")
	rec.SourceURL = srv.URL
	rec.ETag = `"v1"`
	rec.LastModified = ""

	checker := NewChecker(srv.Client(), time.Minute)
	msgs := awaitCheck(t, checker.Check(rec))

	require.Len(t, msgs, 1)
	assert.Equal(t, CheckStale{Key: rec.Key()}, msgs[0])
}

func TestChecker_StaleOnNewValidator(t *testing.T) {
	// A validator appearing where none was stored counts as a change.
	srv := headServer(t, `"v1"`, "")

	rec := testRecord("6.13", "a.patch")
	rec.SourceURL = srv.URL
	rec.ETag = ""
	rec.LastModified = ""

	checker := NewChecker(srv.Client(), time.Minute)
	msgs := awaitCheck(t, checker.Check(rec))

	require.Len(t, msgs, 1)
	assert.Equal(t, CheckStale{Key: rec.Key()}, msgs[0])
}

func TestChecker_BothAbsentIsUpToDate(t *testing.T) {
	srv := headServer(t, "", "")

	rec := testRecord("6.13", "a.patch")
	rec.SourceURL = srv.URL
	rec.ETag = ""
	rec.LastModified = ""

	checker := NewChecker(srv.Client(), time.Minute)
	msgs := awaitCheck(t, checker.Check(rec))

	require.Len(t, msgs, 1)
	assert.Equal(t, CheckUpToDate{Key: rec.Key()}, msgs[0])
}

func TestChecker_ProbeFailure(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close() // connection refused from here on

	rec := testRecord("6.13", "a.patch")
	rec.SourceURL = url

	checker := NewChecker(&http.Client{Timeout: time.Second}, time.Minute)
	msgs := awaitCheck(t, checker.Check(rec))

	require.Len(t, msgs, 1)
	failed, ok := msgs[0].(CheckFailed)
	require.True(t, ok, "want CheckFailed, got %T", msgs[0])
	assert.Equal(t, rec.Key(), failed.Key)
	assert.NotEmpty(t, failed.Reason)
}

func TestChecker_NonSuccessStatusIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	rec := testRecord("6.13", "a.patch")
	rec.SourceURL = srv.URL

	checker := NewChecker(srv.Client(), time.Minute)
	msgs := awaitCheck(t, checker.Check(rec))

	require.Len(t, msgs, 1)
	_, ok := msgs[0].(CheckFailed)
	assert.True(t, ok, "want CheckFailed, got %T", msgs[0])
}

func TestChecker_NoSourceIsTerminalClassification(t *testing.T) {
	rec := testRecord("6.13", "manual.patch")
	rec.SourceURL = ""

	checker := NewChecker(nil, time.Minute)
	msgs := awaitCheck(t, checker.Check(rec))

	require.Len(t, msgs, 1)
	assert.Equal(t, CheckNoSource{Key: rec.Key()}, msgs[0])
}

func TestChecker_SweepExcludesNoProvenance(t *testing.T) {
	var probes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes++
		w.Header().Set("ETag", `"v1"`)
	}))
	t.Cleanup(srv.Close)

	tracked := testRecord("6.13", "tracked.patch")
	tracked.SourceURL = srv.URL
	tracked.ETag = `"v1"`
	tracked.LastModified = ""

	manual := testRecord("6.13", "manual.patch")
	manual.SourceURL = ""

	checker := NewChecker(srv.Client(), time.Minute)
	msgs := awaitCheck(t, checker.Sweep([]Record{tracked, manual}))

	// Only the tracked record is in the check set.
	require.Len(t, msgs, 1)
	assert.Equal(t, CheckUpToDate{Key: tracked.Key()}, msgs[0])
	assert.Equal(t, 1, probes)
	assert.Equal(t, StatusNoProvenance, manual.Freshness())
}

func TestChecker_ProbeCacheAvoidsRepeatProbes(t *testing.T) {
	var probes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes++
		w.Header().Set("ETag", `"v1"`)
	}))
	t.Cleanup(srv.Close)

	rec := testRecord("6.13", "a.patch")
	rec.SourceURL = srv.URL
	rec.ETag = `"v1"`
	rec.LastModified = ""

	checker := NewChecker(srv.Client(), time.Minute)
	awaitCheck(t, checker.Check(rec))
	awaitCheck(t, checker.Check(rec))

	assert.Equal(t, 1, probes)
}

func TestApplyCheck(t *testing.T) {
	store, err := Load(t.TempDir())
	require.NoError(t, err)

	rec := testRecord("6.13", "a.patch")
	rec.Status = StatusUnknown
	store.Upsert(rec)
	key := rec.Key()

	_, mutated := ApplyCheck(store, CheckStale{Key: key})
	assert.True(t, mutated)
	got, _ := store.Get(key)
	assert.Equal(t, StatusStale, got.Status)

	_, mutated = ApplyCheck(store, CheckUpToDate{Key: key})
	assert.True(t, mutated)
	got, _ = store.Get(key)
	assert.Equal(t, StatusUpToDate, got.Status)
	assert.Empty(t, got.StatusReason)

	// A failed check records the reason but keeps the stored validators.
	_, mutated = ApplyCheck(store, CheckFailed{Key: key, Reason: "timeout"})
	assert.True(t, mutated)
	got, _ = store.Get(key)
	assert.Equal(t, StatusCheckError, got.Status)
	assert.Equal(t, "timeout", got.StatusReason)
	assert.Equal(t, rec.ETag, got.ETag)
	assert.Equal(t, rec.LastModified, got.LastModified)

	// No-source messages never mutate the store.
	_, mutated = ApplyCheck(store, CheckNoSource{Key: key})
	assert.False(t, mutated)

	// Messages for records removed mid-flight are dropped.
	store.Remove(key)
	_, mutated = ApplyCheck(store, CheckStale{Key: key})
	assert.False(t, mutated)
}
