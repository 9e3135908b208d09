package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kforge/internal/log"
	"kforge/internal/ui/styles"
)

// tickInterval is the mailbox polling cadence. Every open operation
// mailbox is drained once per tick; workers never block on the UI.
const tickInterval = 100 * time.Millisecond

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type tabID int

const (
	tabKernel tabID = iota
	tabConfig
	tabPatches
	tabBuild
)

var tabNames = []string{"Kernel", "Config", "Patches", "Build"}

// Model is the root application state.
type Model struct {
	svc    *Services
	active tabID
	width  int
	height int

	kernel  kernelModel
	config  configModel
	patches patchesModel
	build   buildModel

	cfgChanges  <-chan struct{}
	logListener *log.LogListener
	lastLog     string
	debug       bool

	initCmds []tea.Cmd
}

// New creates the root model. cfgChanges may be nil when the config
// watcher could not start; the app works without live refresh.
func New(svc *Services, cfgChanges <-chan struct{}, logListener *log.LogListener, debug bool) Model {
	m := Model{
		svc:         svc,
		kernel:      newKernelModel(svc),
		config:      newConfigModel(svc).reload(),
		patches:     newPatchesModel(svc),
		build:       newBuildModel(svc),
		cfgChanges:  cfgChanges,
		logListener: logListener,
		debug:       debug,
	}

	var kernelCmd tea.Cmd
	m.kernel, kernelCmd = m.kernel.init()
	m.initCmds = append(m.initCmds, kernelCmd)
	if logListener != nil {
		m.initCmds = append(m.initCmds, logListener.Listen())
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := append([]tea.Cmd{tickCmd()}, m.initCmds...)
	return tea.Batch(cmds...)
}

// typing reports whether the active tab is capturing raw key input.
func (m Model) typing() bool {
	switch m.active {
	case tabConfig:
		return m.config.editing
	case tabPatches:
		return m.patches.urlPrompt
	case tabBuild:
		return m.build.inputting
	default:
		return false
	}
}

// overlayOpen reports whether the active tab shows a sub-view that wants
// q/esc for itself.
func (m Model) overlayOpen() bool {
	switch m.active {
	case tabKernel:
		return m.kernel.showShortlog
	case tabPatches:
		return m.patches.showCatalog
	case tabBuild:
		return m.build.showHistory
	default:
		return false
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		body := msg.Height - 3
		m.kernel = m.kernel.setSize(msg.Width, body)
		m.config = m.config.setSize(msg.Width, body)
		m.patches = m.patches.setSize(msg.Width, body)
		m.build = m.build.setSize(msg.Width, body)
		return m, nil

	case log.LogEvent:
		m.lastLog = strings.TrimSpace(msg.Payload)
		if m.logListener != nil {
			return m, m.logListener.Listen()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.kernel, cmd = m.kernel.update(msg)
		return m, cmd

	case tickMsg:
		return m.onTick()

	case tea.KeyMsg:
		return m.onKey(msg)
	}

	return m, nil
}

// onTick polls every open mailbox exactly once and keeps the tabs in
// sync with the kernel selection.
func (m Model) onTick() (tea.Model, tea.Cmd) {
	m.kernel = m.kernel.poll()
	m.patches = m.patches.poll()
	m.build = m.build.poll()

	if series := m.kernel.selectedSeries(); series != "" {
		m.patches = m.patches.setSeries(series)
	}
	if v := m.kernel.selectedVersion(); v != "" && !m.build.running() {
		m.build = m.build.setVersion(v)
	}

	if m.cfgChanges != nil {
		select {
		case <-m.cfgChanges:
			log.Debug(log.CatWatcher, "customization.cfg changed externally")
			m.config = m.config.reload()
		default:
		}
	}

	return m, tickCmd()
}

func (m Model) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, m.quit()
	}

	if !m.typing() {
		switch msg.String() {
		case "q":
			if !m.overlayOpen() {
				return m, m.quit()
			}
		case "tab":
			m.active = (m.active + 1) % tabID(len(tabNames))
			return m, nil
		case "shift+tab":
			m.active = (m.active + tabID(len(tabNames)) - 1) % tabID(len(tabNames))
			return m, nil
		case "1", "2", "3", "4":
			m.active = tabID(msg.String()[0] - '1')
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.active {
	case tabKernel:
		m.kernel, cmd = m.kernel.update(msg)
	case tabConfig:
		m.config, cmd = m.config.update(msg)
	case tabPatches:
		m.patches, cmd = m.patches.update(msg)
	case tabBuild:
		m.build, cmd = m.build.update(msg)
	}
	return m, cmd
}

// quit persists pending registry changes before exiting.
func (m Model) quit() tea.Cmd {
	if m.svc.Registry.Dirty() {
		if err := m.svc.Registry.Save(); err != nil {
			log.ErrorErr(log.CatRegistry, "save on quit failed", err)
		}
	}
	return tea.Quit
}

// View implements tea.Model.
func (m Model) View() string {
	var tabs []string
	for i, name := range tabNames {
		if tabID(i) == m.active {
			tabs = append(tabs, styles.ActiveTabStyle.Render(name))
		} else {
			tabs = append(tabs, styles.TabStyle.Render(name))
		}
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	var body string
	switch m.active {
	case tabKernel:
		body = m.kernel.view()
	case tabConfig:
		body = m.config.view()
	case tabPatches:
		body = m.patches.view()
	case tabBuild:
		body = m.build.view()
	}

	status := "tab switch · q quit"
	if m.debug && m.lastLog != "" {
		status += "  " + m.lastLog
	}

	return bar + "\n" + body + "\n" + styles.StatusBarStyle.Render(status)
}
