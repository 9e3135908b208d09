package patch

import "strings"

// CatalogEntry describes a well-known userpatch source. URL and filename
// are templates with a {series} placeholder.
type CatalogEntry struct {
	ID               string
	Name             string
	Description      string
	URLTemplate      string
	FilenameTemplate string
	SupportedSeries  []string
}

// URLForSeries expands the entry's URL template for a kernel series.
func (c CatalogEntry) URLForSeries(series string) string {
	return strings.ReplaceAll(c.URLTemplate, "{series}", series)
}

// FilenameForSeries expands the entry's filename template for a kernel series.
func (c CatalogEntry) FilenameForSeries(series string) string {
	return strings.ReplaceAll(c.FilenameTemplate, "{series}", series)
}

// SupportsSeries reports whether the entry is known to apply to the series.
func (c CatalogEntry) SupportsSeries(series string) bool {
	for _, s := range c.SupportedSeries {
		if s == series {
			return true
		}
	}
	return false
}

// CatalogForSeries filters the catalog to entries supporting a series.
func CatalogForSeries(series string) []CatalogEntry {
	var out []CatalogEntry
	for _, c := range Catalog {
		if c.SupportsSeries(series) {
			out = append(out, c)
		}
	}
	return out
}

// CatalogByID looks up a catalog entry by its stable identifier.
func CatalogByID(id string) (CatalogEntry, bool) {
	for _, c := range Catalog {
		if c.ID == id {
			return c, true
		}
	}
	return CatalogEntry{}, false
}

// Catalog is the curated set of userpatch sources offered in the patches
// tab. IDs are stable and recorded in the registry for provenance.
var Catalog = []CatalogEntry{
	{
		ID:               "acs-override",
		Name:             "ACS Override Patch",
		Description:      "Allows IOMMU groups to be split for better VFIO passthrough",
		URLTemplate:      "https://raw.githubusercontent.com/benbaker76/linux-acs-override/main/workspaces/{series}/acso.patch",
		FilenameTemplate: "acs-override-{series}.patch",
		SupportedSeries:  []string{"6.10", "6.11", "6.12", "6.13"},
	},
	{
		ID:               "bbr3",
		Name:             "BBRv3 TCP Congestion Control",
		Description:      "Google's BBRv3 TCP congestion control algorithm",
		URLTemplate:      "https://raw.githubusercontent.com/CachyOS/kernel-patches/master/{series}/misc/0001-bbr3.patch",
		FilenameTemplate: "bbr3-{series}.patch",
		SupportedSeries:  []string{"6.11", "6.12", "6.13"},
	},
	{
		ID:               "cachy-fixes",
		Name:             "CachyOS Kernel Fixes",
		Description:      "Collection of kernel fixes from CachyOS",
		URLTemplate:      "https://raw.githubusercontent.com/CachyOS/kernel-patches/master/{series}/all/0001-cachyos-base-all.patch",
		FilenameTemplate: "cachy-fixes-{series}.patch",
		SupportedSeries:  []string{"6.11", "6.12", "6.13"},
	},
	{
		ID:               "graysky-cpu",
		Name:             "Graysky CPU Optimizations",
		Description:      "Additional CPU compiler optimizations by graysky2",
		URLTemplate:      "https://raw.githubusercontent.com/graysky2/kernel_compiler_patch/master/more-uarches-for-kernel-6.8-rc4%2B.patch",
		FilenameTemplate: "graysky-cpu-{series}.patch",
		SupportedSeries:  []string{"6.8", "6.9", "6.10", "6.11", "6.12", "6.13"},
	},
	{
		ID:               "futex-waitv",
		Name:             "Futex2/waitv Backport",
		Description:      "Backport of futex2 waitv for Steam/Proton compatibility",
		URLTemplate:      "https://raw.githubusercontent.com/CachyOS/kernel-patches/master/{series}/misc/0001-futex-Add-entry-point-for-FUTEX_WAIT_MULTIPLE.patch",
		FilenameTemplate: "futex-waitv-{series}.patch",
		SupportedSeries:  []string{"6.10", "6.11"},
	},
	{
		ID:               "zstd-upstream",
		Name:             "ZSTD Upstream Updates",
		Description:      "Latest upstream ZSTD compression improvements",
		URLTemplate:      "https://raw.githubusercontent.com/CachyOS/kernel-patches/master/{series}/misc/0001-zstd.patch",
		FilenameTemplate: "zstd-upstream-{series}.patch",
		SupportedSeries:  []string{"6.11", "6.12", "6.13"},
	},
	{
		ID:               "amd-pstate",
		Name:             "AMD P-State Improvements",
		Description:      "Enhanced AMD P-State driver patches",
		URLTemplate:      "https://raw.githubusercontent.com/CachyOS/kernel-patches/master/{series}/misc/0001-amd-pstate.patch",
		FilenameTemplate: "amd-pstate-{series}.patch",
		SupportedSeries:  []string{"6.11", "6.12", "6.13"},
	},
	{
		ID:               "le9",
		Name:             "le9 OOM Protection",
		Description:      "Protect the working set under memory pressure",
		URLTemplate:      "https://raw.githubusercontent.com/CachyOS/kernel-patches/master/{series}/misc/0001-mm-add-le9.patch",
		FilenameTemplate: "le9-{series}.patch",
		SupportedSeries:  []string{"6.10", "6.11", "6.12"},
	},
}
