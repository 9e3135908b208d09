package fetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"kforge/internal/kernel"
	"kforge/internal/log"
)

// progressStep is how many bytes accumulate between progress messages.
const progressStep = 256 * 1024

// Downloader performs blocking HTTP transfers inside worker goroutines.
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a downloader. A nil client gets a generous timeout
// suitable for large tarballs.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &Downloader{client: client}
}

// DownloadKernel dispatches a kernel source download: stream the tar.xz
// into destDir, then unpack it and remove the tarball. The terminal Done
// carries the extracted directory and the tarball's digest.
func (d *Downloader) DownloadKernel(version, destDir string) *Handle {
	handle := newHandle()
	url := kernel.DownloadURL(version)
	log.Info(log.CatDownload, "kernel download dispatched",
		"op", handle.ID, "version", version, "url", url)

	go func() {
		defer handle.Close()

		if err := os.MkdirAll(destDir, 0o755); err != nil {
			handle.Post(Error{Reason: fmt.Sprintf("creating destination directory: %v", err)})
			return
		}

		tarball := filepath.Join(destDir, kernel.TarballName(version))
		written, digest, _, err := d.downloadFile(handle, url, tarball)
		if err != nil {
			handle.Post(Error{Reason: err.Error()})
			return
		}

		handle.Post(Extracting{})
		extracted, err := extractTarXz(tarball, destDir)
		if err != nil {
			handle.Post(Error{Reason: err.Error()})
			return
		}
		_ = os.Remove(tarball)

		log.Info(log.CatDownload, "kernel download done",
			"op", handle.ID, "path", extracted, "bytes", written)
		handle.Post(Done{Path: extracted, Bytes: written, SHA256: digest})
	}()
	return handle
}

// DownloadPatch dispatches a patch download to destPath. Bodies ending in
// .xz or .gz are decompressed transparently and the suffix dropped from the
// final name. The digest covers the bytes written to the final file, and
// the response's cache-validators are captured for staleness tracking.
func (d *Downloader) DownloadPatch(url, destPath string) *Handle {
	handle := newHandle()
	log.Info(log.CatDownload, "patch download dispatched",
		"op", handle.ID, "url", url, "dest", destPath)

	go func() {
		defer handle.Close()

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			handle.Post(Error{Reason: fmt.Sprintf("creating patch directory: %v", err)})
			return
		}

		resp, err := d.client.Get(url)
		if err != nil {
			handle.Post(Error{Reason: err.Error()})
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			handle.Post(Error{Reason: fmt.Sprintf("unexpected status %s", resp.Status)})
			return
		}

		validators := Validators{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}

		var total uint64
		if resp.ContentLength > 0 {
			total = uint64(resp.ContentLength)
		}
		body, err := io.ReadAll(&progressReader{r: resp.Body, handle: handle, total: total})
		if err != nil {
			handle.Post(Error{Reason: err.Error()})
			return
		}
		if resp.ContentLength > 0 && int64(len(body)) != resp.ContentLength {
			handle.Post(Error{Reason: fmt.Sprintf(
				"truncated body: got %d of %d bytes", len(body), resp.ContentLength)})
			return
		}

		finalPath, content, err := decompressPatch(destPath, body)
		if err != nil {
			handle.Post(Error{Reason: err.Error()})
			return
		}

		sum := sha256.Sum256(content)
		if err := os.WriteFile(finalPath, content, 0o644); err != nil {
			_ = os.Remove(finalPath)
			handle.Post(Error{Reason: fmt.Sprintf("writing patch: %v", err)})
			return
		}

		digest := hex.EncodeToString(sum[:])
		log.Info(log.CatDownload, "patch download done",
			"op", handle.ID, "path", finalPath, "sha256", digest)
		handle.Post(Done{
			Path:       finalPath,
			Bytes:      uint64(len(content)),
			SHA256:     digest,
			Validators: validators,
		})
	}()
	return handle
}

// CheckAvailability issues a blocking HEAD for a version's tarball and
// reports whether it exists plus its advertised size. Callers run it off
// the interactive thread.
func (d *Downloader) CheckAvailability(version string) (bool, uint64, error) {
	resp, err := d.client.Head(kernel.DownloadURL(version))
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	var size uint64
	if resp.ContentLength > 0 {
		size = uint64(resp.ContentLength)
	}
	return resp.StatusCode == http.StatusOK, size, nil
}

// downloadFile streams a GET body to dest while hashing it, posting
// progress along the way. On any failure the partial file is removed and
// no digest is reported.
func (d *Downloader) downloadFile(handle *Handle, url, dest string) (uint64, string, Validators, error) {
	resp, err := d.client.Get(url)
	if err != nil {
		return 0, "", Validators{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, "", Validators{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	validators := Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	file, err := os.Create(dest)
	if err != nil {
		return 0, "", Validators{}, fmt.Errorf("creating %s: %w", dest, err)
	}

	var total uint64
	if resp.ContentLength > 0 {
		total = uint64(resp.ContentLength)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(file, hasher),
		&progressReader{r: resp.Body, handle: handle, total: total})
	closeErr := file.Close()

	fail := func(reason error) (uint64, string, Validators, error) {
		_ = os.Remove(dest)
		return 0, "", Validators{}, reason
	}
	if err != nil {
		return fail(fmt.Errorf("reading body: %w", err))
	}
	if closeErr != nil {
		return fail(fmt.Errorf("writing %s: %w", dest, closeErr))
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fail(fmt.Errorf("truncated body: got %d of %d bytes", written, resp.ContentLength))
	}

	return uint64(written), hex.EncodeToString(hasher.Sum(nil)), validators, nil
}

// progressReader posts a Progress message roughly every progressStep bytes.
type progressReader struct {
	r          io.Reader
	handle     *Handle
	total      uint64
	bytes      uint64
	lastPosted uint64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.bytes += uint64(n)
		if p.bytes-p.lastPosted >= progressStep || err == io.EOF {
			p.lastPosted = p.bytes
			p.handle.Post(Progress{Bytes: p.bytes, Total: p.total})
		}
	}
	return n, err
}

// decompressPatch decides the final path and content for a downloaded
// patch body based on the requested destination suffix.
func decompressPatch(destPath string, body []byte) (string, []byte, error) {
	switch {
	case strings.HasSuffix(destPath, ".xz"):
		r, err := xz.NewReader(bytes.NewReader(body))
		if err != nil {
			return "", nil, fmt.Errorf("xz decompression failed: %w", err)
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return "", nil, fmt.Errorf("xz decompression failed: %w", err)
		}
		return strings.TrimSuffix(destPath, ".xz"), content, nil
	case strings.HasSuffix(destPath, ".gz"):
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return "", nil, fmt.Errorf("gz decompression failed: %w", err)
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return "", nil, fmt.Errorf("gz decompression failed: %w", err)
		}
		return strings.TrimSuffix(destPath, ".gz"), content, nil
	default:
		return destPath, body, nil
	}
}

// extractTarXz unpacks a kernel tarball into destDir and returns the
// top-level source directory. Entries escaping destDir are rejected.
func extractTarXz(tarball, destDir string) (string, error) {
	file, err := os.Open(tarball)
	if err != nil {
		return "", fmt.Errorf("opening tarball: %w", err)
	}
	defer func() { _ = file.Close() }()

	xzr, err := xz.NewReader(file)
	if err != nil {
		return "", fmt.Errorf("reading tarball: %w", err)
	}

	tr := tar.NewReader(xzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("extracting tarball: %w", err)
		}

		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return "", fmt.Errorf("tarball entry escapes destination: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", fmt.Errorf("extracting tarball: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", fmt.Errorf("extracting tarball: %w", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return "", fmt.Errorf("extracting tarball: %w", err)
			}
			_, err = io.Copy(out, tr) //nolint:gosec // G110: kernel tarballs are trusted input
			closeErr := out.Close()
			if err != nil {
				return "", fmt.Errorf("extracting tarball: %w", err)
			}
			if closeErr != nil {
				return "", fmt.Errorf("extracting tarball: %w", closeErr)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", fmt.Errorf("extracting tarball: %w", err)
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return "", fmt.Errorf("extracting tarball: %w", err)
			}
		}
	}

	// The expected layout is a single linux-X.Y.Z directory.
	name := strings.TrimSuffix(filepath.Base(tarball), ".tar.xz")
	extracted := filepath.Join(destDir, name)
	if info, err := os.Stat(extracted); err == nil && info.IsDir() {
		return extracted, nil
	}
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", fmt.Errorf("reading destination: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "linux-") {
			return filepath.Join(destDir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("could not find extracted kernel directory in %s", destDir)
}
