package fetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// sha256("abc")
const abcDigest = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func awaitDownload(t *testing.T, handle *Handle) []DownloadMsg {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var msgs []DownloadMsg
	for {
		msgs = append(msgs, handle.Drain()...)
		if handle.Exhausted() {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for download, got %d messages", len(msgs))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// terminal returns the last message and asserts nothing follows it.
func terminal(t *testing.T, msgs []DownloadMsg) DownloadMsg {
	t.Helper()
	require.NotEmpty(t, msgs)
	for _, msg := range msgs[:len(msgs)-1] {
		switch msg.(type) {
		case Done, Error:
			t.Fatalf("terminal message %T was not last", msg)
		}
	}
	return msgs[len(msgs)-1]
}

func TestDownloadPatch_DigestAndValidators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		_, _ = w.Write([]byte("abc"))
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "x.patch")
	d := NewDownloader(srv.Client())
	msgs := awaitDownload(t, d.DownloadPatch(srv.URL, dest))

	done, ok := terminal(t, msgs).(Done)
	require.True(t, ok, "want Done, got %T", msgs[len(msgs)-1])
	assert.Equal(t, dest, done.Path)
	assert.Equal(t, uint64(3), done.Bytes)
	assert.Equal(t, abcDigest, done.SHA256)
	assert.Equal(t, `"v1"`, done.Validators.ETag)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", done.Validators.LastModified)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(content))
}

func TestDownloadPatch_GzipDecompression(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	d := NewDownloader(srv.Client())
	msgs := awaitDownload(t, d.DownloadPatch(srv.URL, filepath.Join(dir, "x.patch.gz")))

	done, ok := terminal(t, msgs).(Done)
	require.True(t, ok, "want Done, got %T", msgs[len(msgs)-1])

	// The .gz suffix is dropped and the digest covers the decompressed bytes.
	assert.Equal(t, filepath.Join(dir, "x.patch"), done.Path)
	assert.Equal(t, abcDigest, done.SHA256)

	content, err := os.ReadFile(done.Path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(content))
}

func TestDownloadPatch_XzDecompression(t *testing.T) {
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = xw.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, xw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	d := NewDownloader(srv.Client())
	msgs := awaitDownload(t, d.DownloadPatch(srv.URL, filepath.Join(dir, "x.patch.xz")))

	done, ok := terminal(t, msgs).(Done)
	require.True(t, ok, "want Done, got %T", msgs[len(msgs)-1])
	assert.Equal(t, filepath.Join(dir, "x.patch"), done.Path)
	assert.Equal(t, abcDigest, done.SHA256)
}

func TestDownloadPatch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "x.patch")
	d := NewDownloader(srv.Client())
	msgs := awaitDownload(t, d.DownloadPatch(srv.URL, dest))

	_, ok := terminal(t, msgs).(Error)
	require.True(t, ok, "want Error, got %T", msgs[len(msgs)-1])

	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "no file should be written on error")
}

func TestDownloadKernel_StreamsAndExtracts(t *testing.T) {
	tarball := makeKernelTarball(t, "linux-9.9.9", map[string]string{
		"Makefile":    "VERSION = 9\n",
		"kernel/fork": "source\n",
	})
	sum := sha256.Sum256(tarball)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(tarball)
	}))
	t.Cleanup(srv.Close)

	// DownloadKernel builds a cdn.kernel.org URL, so exercise the shared
	// file helper and the extractor against the test server directly.
	destDir := t.TempDir()
	d := &Downloader{client: srv.Client()}
	fileDest := filepath.Join(destDir, "linux-9.9.9.tar.xz")
	fh := newHandle()
	written, digest, _, err := d.downloadFile(fh, srv.URL, fileDest)
	fh.Close()
	require.NoError(t, err)
	assert.Equal(t, uint64(len(tarball)), written)
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)

	extracted, err := extractTarXz(fileDest, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "linux-9.9.9"), extracted)

	content, err := os.ReadFile(filepath.Join(extracted, "Makefile"))
	require.NoError(t, err)
	assert.Equal(t, "VERSION = 9\n", string(content))
}

func TestDownloadFile_TruncatedBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("abc"))
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "partial.tar.xz")
	d := NewDownloader(srv.Client())
	fh := newHandle()
	_, digest, _, err := d.downloadFile(fh, srv.URL, dest)
	fh.Close()

	// The digest must never be reported for a partial write, and the
	// partial file is removed.
	require.Error(t, err)
	assert.Empty(t, digest)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadKernel_ErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	srvURL := srv.URL
	t.Cleanup(srv.Close)

	d := NewDownloader(srv.Client())
	fh := newHandle()
	_, _, _, err := d.downloadFile(fh, srvURL, filepath.Join(t.TempDir(), "x"))
	fh.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestExtractTarXz_RejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	tarball := filepath.Join(dir, "evil.tar.xz")

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../escape",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     0,
	}))
	require.NoError(t, tw.Close())

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	require.NoError(t, err)
	_, err = xw.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	require.NoError(t, os.WriteFile(tarball, xzBuf.Bytes(), 0o644))

	_, err = extractTarXz(tarball, filepath.Join(dir, "dest"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes destination")
}

// makeKernelTarball builds an in-memory tar.xz with the given files under
// a single top-level directory.
func makeKernelTarball(t *testing.T, topDir string, files map[string]string) []byte {
	t.Helper()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     topDir + "/",
		Typeflag: tar.TypeDir,
		Mode:     0o755,
	}))
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     topDir + "/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	require.NoError(t, err)
	_, err = xw.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	return xzBuf.Bytes()
}
