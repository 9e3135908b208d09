package ui

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kforge/internal/fetch"
	"kforge/internal/ops"
	"kforge/internal/patch"
	"kforge/internal/registry"
)

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPatchesTab_DownloadMarksUpToDate(t *testing.T) {
	svc := testServices(t)
	m := newPatchesModel(svc)
	m = m.setSeries("6.13")

	// A prior stale mark must not survive a fresh download.
	svc.Registry.Upsert(registry.Record{
		Filename:  "bbr3.patch",
		Series:    "6.13",
		SourceURL: "https://example.test/bbr3.patch",
		SHA256:    "old",
		Status:    registry.StatusStale,
	})

	handle := &fetch.Handle{ID: ops.NewID(), Mailbox: ops.NewMailbox[fetch.DownloadMsg]()}
	m.downloads = append(m.downloads, pendingDownload{
		handle: handle,
		series: "6.13",
		url:    "https://example.test/bbr3.patch",
	})
	handle.Post(fetch.Done{
		Path:       "/tmp/patches/bbr3.patch",
		Bytes:      3,
		SHA256:     "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Validators: fetch.Validators{ETag: `"v1"`},
	})
	handle.Close()

	m = m.poll()

	rec, ok := svc.Registry.Get(registry.Key{Series: "6.13", Name: "bbr3.patch"})
	require.True(t, ok)
	assert.Equal(t, registry.StatusUpToDate, rec.Status)
	assert.Equal(t, registry.StatusUpToDate, rec.Freshness())
	assert.Equal(t, `"v1"`, rec.ETag)
	assert.Empty(t, m.downloads)
}

func TestRedownloadTarget(t *testing.T) {
	entry, ok := patch.CatalogByID("bbr3")
	require.True(t, ok)

	// Catalog provenance resolves through the template for the current
	// series, not the URL the record was originally fetched from.
	rec := registry.Record{CatalogID: "bbr3", SourceURL: "https://example.test/old.patch"}
	url, filename, ok := redownloadTarget(rec, "6.12")
	require.True(t, ok)
	assert.Equal(t, entry.URLForSeries("6.12"), url)
	assert.Equal(t, entry.FilenameForSeries("6.12"), filename)

	// A series the catalog entry does not cover falls back to the record.
	url, filename, ok = redownloadTarget(rec, "4.19")
	require.True(t, ok)
	assert.Equal(t, "https://example.test/old.patch", url)
	assert.Equal(t, "old.patch", filename)

	// Plain URL provenance.
	url, filename, ok = redownloadTarget(registry.Record{SourceURL: "https://example.test/fix.patch"}, "6.13")
	require.True(t, ok)
	assert.Equal(t, "https://example.test/fix.patch", url)
	assert.Equal(t, "fix.patch", filename)

	// Nothing recorded.
	_, _, ok = redownloadTarget(registry.Record{}, "6.13")
	assert.False(t, ok)
}

func TestPatchesTab_RedownloadRefreshesRecord(t *testing.T) {
	svc := testServices(t)

	psrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v2"`)
		_, _ = w.Write([]byte("abc"))
	}))
	t.Cleanup(psrv.Close)
	svc.Downloader = fetch.NewDownloader(psrv.Client())

	dir := patch.Dir(svc.Work.LinuxTkg(), "6.13")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(dir+"/fix.patch", []byte("old"), 0o644))

	svc.Registry.Upsert(registry.Record{
		Filename:  "fix.patch",
		Series:    "6.13",
		SourceURL: psrv.URL + "/fix.patch",
		SHA256:    "old",
		ETag:      `"v1"`,
		Status:    registry.StatusStale,
	})

	m := newPatchesModel(svc)
	m = m.setSeries("6.13")
	require.Len(t, m.entries, 1)

	m, _ = m.update(keyRunes("d"))
	require.Len(t, m.downloads, 1)
	assert.Equal(t, psrv.URL+"/fix.patch", m.downloads[0].url)

	deadline := time.Now().Add(5 * time.Second)
	for len(m.downloads) > 0 {
		require.False(t, time.Now().After(deadline), "download never finished")
		m = m.poll()
		time.Sleep(10 * time.Millisecond)
	}

	rec, ok := svc.Registry.Get(registry.Key{Series: "6.13", Name: "fix.patch"})
	require.True(t, ok)
	assert.Equal(t, registry.StatusUpToDate, rec.Freshness())
	assert.Equal(t, `"v2"`, rec.ETag)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", rec.SHA256)
}

func TestPatchesTab_RedownloadWithoutRecord(t *testing.T) {
	svc := testServices(t)

	dir := patch.Dir(svc.Work.LinuxTkg(), "6.13")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(dir+"/local.patch", []byte("x"), 0o644))

	m := newPatchesModel(svc)
	m = m.setSeries("6.13")
	require.Len(t, m.entries, 1)

	m, _ = m.update(keyRunes("d"))
	assert.Empty(t, m.downloads)
	assert.Contains(t, m.statusLine, "no recorded source")
}
