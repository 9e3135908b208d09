package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"kforge/internal/fetch"
	"kforge/internal/kernel"
	"kforge/internal/ui/styles"
)

// kernelModel is the Kernel tab: the list of upstream versions, a
// download with progress, and the shortlog between a version and its
// predecessor.
type kernelModel struct {
	svc *Services

	versions []kernel.VersionInfo
	cursor   int
	fetching bool
	spin     spinner.Model

	fetchHandle    *kernel.FetchHandle
	shortlogHandle *kernel.ShortlogHandle
	shortlog       []kernel.CommitInfo
	shortlogFor    string
	showShortlog   bool

	dlHandle    *fetch.Handle
	dlVersion   string
	dlBytes     uint64
	dlTotal     uint64
	dlBar       progress.Model
	extracting  bool
	downloaded  map[string]string // version -> extracted path
	statusLine  string
	width       int
	height      int
}

func newKernelModel(svc *Services) kernelModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return kernelModel{
		svc:        svc,
		spin:       sp,
		dlBar:      progress.New(progress.WithDefaultGradient()),
		downloaded: make(map[string]string),
	}
}

// init dispatches the initial version fetch.
func (m kernelModel) init() (kernelModel, tea.Cmd) {
	m.fetchHandle = m.svc.Fetcher.FetchVersions()
	m.fetching = true
	return m, m.spin.Tick
}

func (m kernelModel) setSize(width, height int) kernelModel {
	m.width = width
	m.height = height
	m.dlBar.Width = max(20, width-30)
	return m
}

// selectedVersion returns the version under the cursor, or "".
func (m kernelModel) selectedVersion() string {
	if m.cursor < len(m.versions) {
		return m.versions[m.cursor].Version
	}
	return ""
}

// selectedSeries derives the kernel series of the current selection.
func (m kernelModel) selectedSeries() string {
	return kernel.Series(m.selectedVersion())
}

// downloadedPath reports where a version's sources were extracted, if a
// download completed this session.
func (m kernelModel) downloadedPath(version string) string {
	return m.downloaded[version]
}

// poll drains open mailboxes. Runs once per tick.
func (m kernelModel) poll() kernelModel {
	if m.fetchHandle != nil {
		if msg, ok := m.fetchHandle.TryRecv(); ok {
			switch msg := msg.(type) {
			case kernel.FetchDone:
				m.versions = msg.Versions
				if m.cursor >= len(m.versions) {
					m.cursor = 0
				}
				m.statusLine = fmt.Sprintf("%d versions", len(m.versions))
			case kernel.FetchError:
				m.statusLine = "fetch failed: " + msg.Reason
			}
			m.fetching = false
			m.fetchHandle = nil
		}
	}

	if m.shortlogHandle != nil {
		if msg, ok := m.shortlogHandle.TryRecv(); ok {
			switch msg := msg.(type) {
			case kernel.ShortlogDone:
				m.shortlog = msg.Commits
				m.showShortlog = true
			case kernel.ShortlogError:
				m.statusLine = "shortlog failed: " + msg.Reason
			}
			m.shortlogHandle = nil
		}
	}

	if m.dlHandle != nil {
		for _, msg := range m.dlHandle.Drain() {
			switch msg := msg.(type) {
			case fetch.Progress:
				m.dlBytes, m.dlTotal = msg.Bytes, msg.Total
			case fetch.Extracting:
				m.extracting = true
			case fetch.Done:
				m.downloaded[m.dlVersion] = msg.Path
				m.statusLine = fmt.Sprintf("downloaded %s (%s)",
					m.dlVersion, kernel.FormatBytes(msg.Bytes))
			case fetch.Error:
				m.statusLine = "download failed: " + msg.Reason
			}
		}
		if m.dlHandle.Exhausted() {
			m.dlHandle = nil
			m.extracting = false
		}
	}

	return m
}

func (m kernelModel) update(msg tea.Msg) (kernelModel, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.fetching {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if m.showShortlog {
			switch msg.String() {
			case "esc", "q", "enter":
				m.showShortlog = false
			}
			return m, nil
		}

		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.versions)-1 {
				m.cursor++
			}
		case "r":
			if m.fetchHandle == nil {
				m.fetchHandle = m.svc.Fetcher.FetchVersions()
				m.fetching = true
				return m, m.spin.Tick
			}
		case "enter", "d":
			if v := m.selectedVersion(); v != "" && m.dlHandle == nil {
				m.dlVersion = v
				m.dlBytes, m.dlTotal = 0, 0
				m.dlHandle = m.svc.Downloader.DownloadKernel(v, m.svc.Work.KernelSources())
				m.statusLine = "downloading " + v
			}
		case "s":
			v := m.selectedVersion()
			prev := kernel.PreviousVersion(v, m.versions)
			if v != "" && prev != "" && m.shortlogHandle == nil {
				m.shortlogFor = fmt.Sprintf("%s..%s", prev, v)
				m.shortlogHandle = m.svc.Fetcher.FetchShortlog(prev, v)
				m.statusLine = "fetching shortlog " + m.shortlogFor
			}
		}
	}
	return m, nil
}

func (m kernelModel) view() string {
	if m.showShortlog {
		return m.shortlogView()
	}

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Kernel versions"))
	b.WriteString("\n\n")

	if m.fetching {
		b.WriteString(m.spin.View() + " fetching versions from kernel.org\n")
	}

	visible := m.versions
	maxRows := max(4, m.height-10)
	start := 0
	if m.cursor >= maxRows {
		start = m.cursor - maxRows + 1
	}
	if start+maxRows < len(visible) {
		visible = visible[start : start+maxRows]
	} else if start < len(visible) {
		visible = visible[start:]
	}

	for i, v := range visible {
		idx := start + i
		prefix := "  "
		if idx == m.cursor {
			prefix = styles.SelectionIndicatorStyle.Render("> ")
		}
		line := fmt.Sprintf("%s%-12s %s", prefix, v.Version, styles.MutedStyle.Render(v.Date))
		if path := m.downloadedPath(v.Version); path != "" {
			line += styles.SuccessStyle.Render("  ✓ " + path)
		}
		b.WriteString(line + "\n")
	}

	if m.dlHandle != nil {
		b.WriteString("\n")
		if m.extracting {
			b.WriteString("extracting " + m.dlVersion + "\n")
		} else {
			pct := 0.0
			if m.dlTotal > 0 {
				pct = float64(m.dlBytes) / float64(m.dlTotal)
			}
			b.WriteString(fmt.Sprintf("%s %s / %s\n",
				m.dlBar.ViewAs(pct),
				kernel.FormatBytes(m.dlBytes),
				kernel.FormatBytes(m.dlTotal)))
		}
	}

	if m.statusLine != "" {
		b.WriteString("\n" + styles.MutedStyle.Render(m.statusLine) + "\n")
	}
	b.WriteString("\n" + styles.MutedStyle.Render("r refresh · enter download · s shortlog"))
	return b.String()
}

func (m kernelModel) shortlogView() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Shortlog " + m.shortlogFor))
	b.WriteString("\n\n")
	maxRows := max(4, m.height-8)
	for i, c := range m.shortlog {
		if i >= maxRows {
			b.WriteString(styles.MutedStyle.Render(
				fmt.Sprintf("… %d more", len(m.shortlog)-i)) + "\n")
			break
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			styles.MutedStyle.Render(c.Hash),
			c.Subject,
			styles.MutedStyle.Render("("+c.Author+")")))
	}
	b.WriteString("\n" + styles.MutedStyle.Render("esc back"))
	return b.String()
}
