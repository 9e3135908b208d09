// Package fetch downloads remote artifacts: kernel source tarballs and
// userpatches. Workers stream bodies to disk while feeding a running
// SHA-256; a digest is only ever reported for a complete, successful write.
package fetch

import "kforge/internal/ops"

// Validators are the remote cache-validators observed on a download
// response, used later to detect change without re-fetching content.
type Validators struct {
	ETag         string
	LastModified string
}

// DownloadMsg is the message set for one download operation: zero or more
// progress messages followed by exactly one terminal message.
type DownloadMsg interface{ downloadMsg() }

// Progress reports bytes received so far. Total is zero when the server
// did not advertise a length.
type Progress struct {
	Bytes uint64
	Total uint64
}

// Extracting reports that the tarball is downloaded and unpacking has
// begun. Only kernel downloads emit it.
type Extracting struct{}

// Done is the success terminal message. Path is the resulting artifact (an
// extracted source tree for kernels, a patch file otherwise); SHA256 covers
// exactly the bytes written to the artifact file.
type Done struct {
	Path       string
	Bytes      uint64
	SHA256     string
	Validators Validators
}

// Error is the failure terminal message. Any partial file has been removed.
type Error struct{ Reason string }

func (Progress) downloadMsg()   {}
func (Extracting) downloadMsg() {}
func (Done) downloadMsg()       {}
func (Error) downloadMsg()      {}

// Handle is the polling endpoint for a dispatched download.
type Handle struct {
	ID string
	*ops.Mailbox[DownloadMsg]
}

func newHandle() *Handle {
	return &Handle{ID: ops.NewID(), Mailbox: ops.NewMailbox[DownloadMsg]()}
}
