// Package kernel lists stable kernel releases from kernel.org and knows how
// to locate their source tarballs.
package kernel

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionInfo describes one released kernel tag.
type VersionInfo struct {
	Version string // tag name, e.g. "v6.13.2"
	Date    string // release date as rendered by cgit, may be empty
}

// Series returns the major.minor compatibility bucket for a version,
// e.g. "v6.13.2" -> "6.13". Returns "" for malformed input.
func Series(version string) string {
	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// DownloadURL returns the cdn.kernel.org tarball URL for a version,
// e.g. "6.13.2" -> ".../pub/linux/kernel/v6.x/linux-6.13.2.tar.xz".
func DownloadURL(version string) string {
	version = strings.TrimPrefix(version, "v")
	major := strings.SplitN(version, ".", 2)[0]
	return fmt.Sprintf("https://cdn.kernel.org/pub/linux/kernel/v%s.x/linux-%s.tar.xz", major, version)
}

// TarballName returns the local file name for a version's tarball.
func TarballName(version string) string {
	return fmt.Sprintf("linux-%s.tar.xz", strings.TrimPrefix(version, "v"))
}

// ExtractedDirName returns the directory the tarball unpacks into.
func ExtractedDirName(version string) string {
	return "linux-" + strings.TrimPrefix(version, "v")
}

// CompareVersions orders two version strings numerically by segment.
// Returns -1, 0 or 1 in the manner of strings.Compare.
func CompareVersions(a, b string) int {
	va := parseSegments(a)
	vb := parseSegments(b)
	for i := 0; i < len(va) || i < len(vb); i++ {
		sa, sb := 0, 0
		if i < len(va) {
			sa = va[i]
		}
		if i < len(vb) {
			sb = vb[i]
		}
		if sa != sb {
			if sa < sb {
				return -1
			}
			return 1
		}
	}
	return 0
}

func parseSegments(version string) []int {
	var segments []int
	for _, part := range strings.Split(strings.TrimPrefix(version, "v"), ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		segments = append(segments, n)
	}
	return segments
}

// PreviousVersion finds the release preceding version within the same
// series, scanning the newest-first list. When no older point release
// exists it falls back to the series base (e.g. "v6.13.1" -> "v6.13").
// Returns "" when nothing suitable is listed.
func PreviousVersion(version string, all []VersionInfo) string {
	idx := -1
	for i, v := range all {
		if v.Version == version {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}

	series := Series(version)
	if series == "" {
		return ""
	}
	for _, v := range all[idx+1:] {
		if Series(v.Version) == series {
			return v.Version
		}
	}

	// No older point release in the list; try the series base tag.
	if strings.Count(strings.TrimPrefix(version, "v"), ".") > 1 {
		base := "v" + series
		for _, v := range all {
			if v.Version == base {
				return base
			}
		}
	}
	return ""
}

// FormatBytes renders a byte count as a human-readable size.
func FormatBytes(bytes uint64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
