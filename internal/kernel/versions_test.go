package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeries(t *testing.T) {
	assert.Equal(t, "6.13", Series("v6.13.2"))
	assert.Equal(t, "6.13", Series("6.13.2"))
	assert.Equal(t, "6.13", Series("v6.13"))
	assert.Equal(t, "", Series("v6"))
	assert.Equal(t, "", Series(""))
}

func TestDownloadURL(t *testing.T) {
	assert.Equal(t,
		"https://cdn.kernel.org/pub/linux/kernel/v6.x/linux-6.13.2.tar.xz",
		DownloadURL("6.13.2"))
	assert.Equal(t,
		"https://cdn.kernel.org/pub/linux/kernel/v6.x/linux-6.13.2.tar.xz",
		DownloadURL("v6.13.2"))
	assert.Equal(t,
		"https://cdn.kernel.org/pub/linux/kernel/v5.x/linux-5.15.tar.xz",
		DownloadURL("5.15"))
}

func TestTarballAndDirNames(t *testing.T) {
	assert.Equal(t, "linux-6.13.2.tar.xz", TarballName("v6.13.2"))
	assert.Equal(t, "linux-6.13.2", ExtractedDirName("v6.13.2"))
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, CompareVersions("v6.13.2", "6.13.2"))
	assert.Equal(t, -1, CompareVersions("v6.13", "v6.13.1"))
	assert.Equal(t, 1, CompareVersions("v6.13.10", "v6.13.9"))
	assert.Equal(t, 1, CompareVersions("v6.14", "v6.13.9"))
	assert.Equal(t, -1, CompareVersions("v5.15.100", "v6.1"))
}

func TestPreviousVersion(t *testing.T) {
	all := []VersionInfo{
		{Version: "v6.14"},
		{Version: "v6.13.2"},
		{Version: "v6.13.1"},
		{Version: "v6.13"},
		{Version: "v6.12.8"},
	}

	assert.Equal(t, "v6.13.1", PreviousVersion("v6.13.2", all))
	assert.Equal(t, "v6.13", PreviousVersion("v6.13.1", all))
	assert.Equal(t, "", PreviousVersion("v6.13", all))
	assert.Equal(t, "", PreviousVersion("v6.12.8", all))
	assert.Equal(t, "", PreviousVersion("v9.99", all), "unknown version")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.00 KB", FormatBytes(1024))
	assert.Equal(t, "1.50 MB", FormatBytes(3*1024*1024/2))
	assert.Equal(t, "2.00 GB", FormatBytes(2*1024*1024*1024))
}
