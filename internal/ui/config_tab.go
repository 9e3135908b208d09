package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"kforge/internal/kcfg"
	"kforge/internal/log"
	"kforge/internal/ui/styles"
)

// configModel is the Config tab: a line-preserving editor over the
// linux-tkg customization.cfg in the working copy.
type configModel struct {
	svc *Services

	file    *kcfg.File
	keys    []string
	cursor  int
	editing bool
	input   textinput.Model

	statusLine string
	width      int
	height     int
}

func newConfigModel(svc *Services) configModel {
	in := textinput.New()
	in.CharLimit = 256
	return configModel{svc: svc, input: in}
}

func (m configModel) setSize(width, height int) configModel {
	m.width = width
	m.height = height
	m.input.Width = max(20, width-30)
	return m
}

// reload re-reads customization.cfg. Called on first view and whenever
// the file watcher reports an external edit.
func (m configModel) reload() configModel {
	if !m.svc.Work.LinuxTkgReady() {
		m.file = nil
		m.keys = nil
		return m
	}

	f, err := kcfg.Load(m.svc.Work.CustomizationCfg())
	if err != nil {
		log.ErrorErr(log.CatKcfg, "reload failed", err)
		m.statusLine = "reload failed: " + err.Error()
		return m
	}
	m.file = f
	m.keys = f.Keys()
	if m.cursor >= len(m.keys) {
		m.cursor = 0
	}
	return m
}

func (m configModel) update(msg tea.Msg) (configModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.editing {
		switch keyMsg.String() {
		case "enter":
			key := m.keys[m.cursor]
			m.file.Set(key, m.input.Value())
			if err := m.file.Save(); err != nil {
				m.statusLine = "save failed: " + err.Error()
			} else {
				m.statusLine = fmt.Sprintf("saved %s", key)
			}
			m.editing = false
			m.input.Blur()
		case "esc":
			m.editing = false
			m.input.Blur()
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch keyMsg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.keys)-1 {
			m.cursor++
		}
	case "r":
		m = m.reload()
		m.statusLine = "reloaded"
	case "enter", "e":
		if m.file != nil && m.cursor < len(m.keys) {
			val, _ := m.file.Get(m.keys[m.cursor])
			m.input.SetValue(val)
			m.input.CursorEnd()
			m.editing = true
			return m, m.input.Focus()
		}
	}
	return m, nil
}

func (m configModel) view() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("customization.cfg"))
	b.WriteString("\n\n")

	if m.file == nil {
		b.WriteString(styles.MutedStyle.Render(
			"no linux-tkg working copy yet; clone it from the Build tab") + "\n")
		return b.String()
	}

	maxRows := max(4, m.height-10)
	start := 0
	if m.cursor >= maxRows {
		start = m.cursor - maxRows + 1
	}
	end := min(len(m.keys), start+maxRows)

	for i := start; i < end; i++ {
		key := m.keys[i]
		val, _ := m.file.Get(key)
		prefix := "  "
		if i == m.cursor {
			prefix = styles.SelectionIndicatorStyle.Render("> ")
		}
		if i == m.cursor && m.editing {
			b.WriteString(fmt.Sprintf("%s%-24s %s\n", prefix, key, m.input.View()))
			continue
		}
		b.WriteString(fmt.Sprintf("%s%-24s %s\n", prefix, key, val))
	}

	if m.statusLine != "" {
		b.WriteString("\n" + styles.MutedStyle.Render(m.statusLine) + "\n")
	}
	b.WriteString("\n" + styles.MutedStyle.Render("enter edit · r reload"))
	return b.String()
}
