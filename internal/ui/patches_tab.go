package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"kforge/internal/fetch"
	"kforge/internal/log"
	"kforge/internal/patch"
	"kforge/internal/registry"
	"kforge/internal/ui/styles"
)

// pendingDownload pairs an in-flight patch download with the provenance
// recorded in the registry once it lands.
type pendingDownload struct {
	handle    *fetch.Handle
	series    string
	url       string
	catalogID string
}

// patchesModel is the Patches tab: the userpatch directory for the
// selected kernel series, the curated catalog, and per-patch freshness
// from the registry.
type patchesModel struct {
	svc *Services

	series  string
	entries []patch.Entry
	cursor  int

	showCatalog   bool
	catalog       []patch.CatalogEntry
	catalogCursor int

	urlPrompt bool
	urlInput  textinput.Model

	downloads   []pendingDownload
	checkHandle *registry.CheckHandle

	statusLine string
	width      int
	height     int
}

func newPatchesModel(svc *Services) patchesModel {
	in := textinput.New()
	in.Placeholder = "https://…/my.patch"
	in.CharLimit = 512
	return patchesModel{svc: svc, urlInput: in}
}

func (m patchesModel) setSize(width, height int) patchesModel {
	m.width = width
	m.height = height
	m.urlInput.Width = max(20, width-20)
	return m
}

// setSeries switches the tab to another kernel series, refreshing the
// entry list. Called from the root model when the kernel selection moves.
func (m patchesModel) setSeries(series string) patchesModel {
	if series == m.series {
		return m
	}
	m.series = series
	m.cursor = 0
	m.catalog = patch.CatalogForSeries(series)
	return m.refresh()
}

func (m patchesModel) patchDir() string {
	return patch.Dir(m.svc.Work.LinuxTkg(), m.series)
}

func (m patchesModel) refresh() patchesModel {
	if m.series == "" {
		m.entries = nil
		return m
	}
	entries, err := patch.List(m.patchDir())
	if err != nil {
		m.statusLine = "listing patches: " + err.Error()
		return m
	}
	m.entries = entries
	if m.cursor >= len(m.entries) {
		m.cursor = 0
	}
	return m
}

// poll drains download and check mailboxes once per tick, applying
// terminal messages to the registry and persisting it.
func (m patchesModel) poll() patchesModel {
	remaining := m.downloads[:0]
	for _, dl := range m.downloads {
		for _, msg := range dl.handle.Drain() {
			switch msg := msg.(type) {
			case fetch.Done:
				rec := registry.Record{
					Filename:     filepath.Base(msg.Path),
					Series:       dl.series,
					SourceURL:    dl.url,
					CatalogID:    dl.catalogID,
					SHA256:       msg.SHA256,
					DownloadedAt: time.Now().UTC(),
					ETag:         msg.Validators.ETag,
					LastModified: msg.Validators.LastModified,
					// A completed download is current with its source;
					// any earlier stale mark is cleared.
					Status: registry.StatusUpToDate,
				}
				m.svc.Registry.Upsert(rec)
				if err := m.svc.Registry.Save(); err != nil {
					log.ErrorErr(log.CatRegistry, "save after download failed", err)
				}
				m.statusLine = "downloaded " + rec.Filename
			case fetch.Error:
				m.statusLine = "download failed: " + msg.Reason
			}
		}
		if !dl.handle.Exhausted() {
			remaining = append(remaining, dl)
		}
	}
	if len(remaining) != len(m.downloads) {
		m.downloads = remaining
		m = m.refresh()
	} else {
		m.downloads = remaining
	}

	if m.checkHandle != nil {
		changed := false
		for _, msg := range m.checkHandle.Drain() {
			if _, ok := registry.ApplyCheck(m.svc.Registry, msg); ok {
				changed = true
			}
		}
		if m.checkHandle.Exhausted() {
			m.checkHandle = nil
			m.statusLine = "update check finished"
		}
		if changed {
			if err := m.svc.Registry.Save(); err != nil {
				log.ErrorErr(log.CatRegistry, "save after check failed", err)
			}
		}
	}

	return m
}

func (m patchesModel) update(msg tea.Msg) (patchesModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.urlPrompt {
		switch keyMsg.String() {
		case "enter":
			url := strings.TrimSpace(m.urlInput.Value())
			if url != "" {
				m = m.startDownload(url, "")
			}
			m.urlPrompt = false
			m.urlInput.Blur()
		case "esc":
			m.urlPrompt = false
			m.urlInput.Blur()
		default:
			var cmd tea.Cmd
			m.urlInput, cmd = m.urlInput.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.showCatalog {
		switch keyMsg.String() {
		case "up", "k":
			if m.catalogCursor > 0 {
				m.catalogCursor--
			}
		case "down", "j":
			if m.catalogCursor < len(m.catalog)-1 {
				m.catalogCursor++
			}
		case "enter":
			if m.catalogCursor < len(m.catalog) {
				entry := m.catalog[m.catalogCursor]
				m = m.startCatalogDownload(entry)
			}
			m.showCatalog = false
		case "esc", "c", "q":
			m.showCatalog = false
		}
		return m, nil
	}

	switch keyMsg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "r":
		m = m.refresh()
	case "t", "enter":
		if m.cursor < len(m.entries) {
			toggled, err := patch.Toggle(m.entries[m.cursor])
			if err != nil {
				m.statusLine = err.Error()
			} else {
				m.entries[m.cursor] = toggled
			}
		}
	case "d":
		if m.cursor < len(m.entries) {
			m = m.redownload(m.entries[m.cursor])
		}
	case "x":
		if m.cursor < len(m.entries) {
			e := m.entries[m.cursor]
			if err := patch.Delete(e); err != nil {
				m.statusLine = err.Error()
			} else {
				m.svc.Registry.Remove(registry.Key{Series: m.series, Name: e.BaseName()})
				if err := m.svc.Registry.Save(); err != nil {
					log.ErrorErr(log.CatRegistry, "save after delete failed", err)
				}
				m = m.refresh()
			}
		}
	case "c":
		if m.series != "" {
			m.showCatalog = true
			m.catalogCursor = 0
		}
	case "a":
		if m.series != "" {
			m.urlPrompt = true
			m.urlInput.SetValue("")
			return m, m.urlInput.Focus()
		}
	case "u":
		if m.checkHandle == nil && m.series != "" {
			records := m.svc.Registry.AllInSeries(m.series)
			m.checkHandle = m.svc.Checker.Sweep(records)
			m.statusLine = fmt.Sprintf("checking %d patches for updates", len(records))
		}
	}
	return m, nil
}

// redownloadTarget resolves where a tracked patch should be fetched from
// again. Catalog patches go back through the catalog so the URL template
// is expanded for the current series; others reuse the recorded source.
func redownloadTarget(rec registry.Record, series string) (url, filename string, ok bool) {
	if entry, found := patch.CatalogByID(rec.CatalogID); found && entry.SupportsSeries(series) {
		return entry.URLForSeries(series), entry.FilenameForSeries(series), true
	}
	if rec.SourceURL == "" {
		return "", "", false
	}
	return rec.SourceURL, patch.FilenameFromURL(rec.SourceURL), true
}

// redownload fetches the selected patch again from its recorded provenance.
func (m patchesModel) redownload(e patch.Entry) patchesModel {
	rec, ok := m.svc.Registry.Get(registry.Key{Series: m.series, Name: e.BaseName()})
	if !ok {
		m.statusLine = "no recorded source for " + e.BaseName()
		return m
	}
	url, filename, ok := redownloadTarget(rec, m.series)
	if !ok {
		m.statusLine = "no recorded source for " + e.BaseName()
		return m
	}
	m.downloads = append(m.downloads, pendingDownload{
		handle:    m.svc.Downloader.DownloadPatch(url, filepath.Join(m.patchDir(), filename)),
		series:    m.series,
		url:       url,
		catalogID: rec.CatalogID,
	})
	m.statusLine = "downloading " + filename
	return m
}

func (m patchesModel) startCatalogDownload(entry patch.CatalogEntry) patchesModel {
	url := entry.URLForSeries(m.series)
	dest := filepath.Join(m.patchDir(), entry.FilenameForSeries(m.series))
	m.downloads = append(m.downloads, pendingDownload{
		handle:    m.svc.Downloader.DownloadPatch(url, dest),
		series:    m.series,
		url:       url,
		catalogID: entry.ID,
	})
	m.statusLine = "downloading " + entry.Name
	return m
}

func (m patchesModel) startDownload(url, catalogID string) patchesModel {
	dest := filepath.Join(m.patchDir(), patch.FilenameFromURL(url))
	m.downloads = append(m.downloads, pendingDownload{
		handle:    m.svc.Downloader.DownloadPatch(url, dest),
		series:    m.series,
		url:       url,
		catalogID: catalogID,
	})
	m.statusLine = "downloading " + patch.FilenameFromURL(url)
	return m
}

func freshnessLabel(status registry.Status) string {
	switch status {
	case registry.StatusUpToDate:
		return styles.SuccessStyle.Render("up-to-date")
	case registry.StatusStale:
		return styles.StaleStyle.Render("stale")
	case registry.StatusCheckError:
		return styles.ErrorStyle.Render("check-error")
	case registry.StatusNoProvenance:
		return styles.MutedStyle.Render("no-provenance")
	default:
		return styles.MutedStyle.Render("unknown")
	}
}

func (m patchesModel) view() string {
	if m.showCatalog {
		return m.catalogView()
	}

	var b strings.Builder
	title := "Userpatches"
	if m.series != "" {
		title += " · linux" + m.series
	}
	b.WriteString(styles.TitleStyle.Render(title))
	b.WriteString("\n\n")

	if m.series == "" {
		b.WriteString(styles.MutedStyle.Render("select a kernel version first") + "\n")
		return b.String()
	}

	if m.urlPrompt {
		b.WriteString("patch URL: " + m.urlInput.View() + "\n\n")
	}

	if len(m.entries) == 0 {
		b.WriteString(styles.MutedStyle.Render("no patches in "+m.patchDir()) + "\n")
	}
	for i, e := range m.entries {
		prefix := "  "
		if i == m.cursor {
			prefix = styles.SelectionIndicatorStyle.Render("> ")
		}
		state := styles.MutedStyle.Render("off")
		if e.Enabled {
			state = styles.SuccessStyle.Render("on ")
		}

		fresh := ""
		if rec, ok := m.svc.Registry.Get(registry.Key{Series: m.series, Name: e.BaseName()}); ok {
			fresh = "  " + freshnessLabel(rec.Freshness())
		}
		b.WriteString(fmt.Sprintf("%s[%s] %s%s\n", prefix, state, e.BaseName(), fresh))
	}

	if n := len(m.downloads); n > 0 {
		b.WriteString("\n" + styles.MutedStyle.Render(fmt.Sprintf("%d download(s) in flight", n)) + "\n")
	}
	if m.statusLine != "" {
		b.WriteString("\n" + styles.MutedStyle.Render(m.statusLine) + "\n")
	}
	b.WriteString("\n" + styles.MutedStyle.Render(
		"t toggle · d re-download · x delete · c catalog · a add url · u check updates · r refresh"))
	return b.String()
}

func (m patchesModel) catalogView() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Patch catalog · linux" + m.series))
	b.WriteString("\n\n")

	if len(m.catalog) == 0 {
		b.WriteString(styles.MutedStyle.Render("no curated patches for this series") + "\n")
	}
	for i, c := range m.catalog {
		prefix := "  "
		if i == m.catalogCursor {
			prefix = styles.SelectionIndicatorStyle.Render("> ")
		}
		b.WriteString(fmt.Sprintf("%s%-28s %s\n", prefix, c.Name, styles.MutedStyle.Render(c.Description)))
	}
	b.WriteString("\n" + styles.MutedStyle.Render("enter download · esc back"))
	return b.String()
}
