package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kforge/internal/fetch"
	"kforge/internal/kernel"
	"kforge/internal/ops"
)

func TestKernelTab_DownloadedPathShownInView(t *testing.T) {
	m := newKernelModel(testServices(t))
	m = m.setSize(100, 30)
	m.versions = []kernel.VersionInfo{{Version: "v6.13.2", Date: "2025-02-08"}}

	m.dlVersion = "v6.13.2"
	m.dlHandle = &fetch.Handle{ID: ops.NewID(), Mailbox: ops.NewMailbox[fetch.DownloadMsg]()}
	m.dlHandle.Post(fetch.Done{Path: "/tmp/sources/linux-6.13.2", Bytes: 5})
	m.dlHandle.Close()

	m = m.poll()

	require.Nil(t, m.dlHandle)
	assert.Equal(t, "/tmp/sources/linux-6.13.2", m.downloadedPath("v6.13.2"))
	assert.Empty(t, m.downloadedPath("v6.12.12"))
	assert.Contains(t, m.view(), "/tmp/sources/linux-6.13.2")
}
