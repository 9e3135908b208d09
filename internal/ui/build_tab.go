package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"kforge/internal/builder"
	"kforge/internal/buildlog"
	"kforge/internal/config"
	"kforge/internal/history"
	"kforge/internal/log"
	"kforge/internal/ui/styles"
)

// buildModel is the Build tab: clone the linux-tkg scripts, run the
// build, stream classified output, and browse past runs.
type buildModel struct {
	svc *Services

	handle    *builder.Handle
	isClone   bool
	stopped   bool
	command   builder.Command
	version   string
	startedAt time.Time

	lines     []buildlog.Line
	vp        viewport.Model
	vpReady   bool
	input     textinput.Model
	inputting bool

	showHistory bool
	runs        []history.Run

	statusLine string
	width      int
	height     int
}

func newBuildModel(svc *Services) buildModel {
	in := textinput.New()
	in.Placeholder = "input for the build process"
	in.CharLimit = 256
	return buildModel{svc: svc, input: in}
}

func (m buildModel) setSize(width, height int) buildModel {
	m.width = width
	m.height = height
	vpHeight := max(4, height-10)
	if !m.vpReady {
		m.vp = viewport.New(max(20, width-6), vpHeight)
		m.vpReady = true
	} else {
		m.vp.Width = max(20, width-6)
		m.vp.Height = vpHeight
	}
	m.input.Width = max(20, width-20)
	return m
}

// setVersion records which kernel the next build is for, for history.
func (m buildModel) setVersion(version string) buildModel {
	m.version = version
	return m
}

func (m buildModel) running() bool { return m.handle != nil }

// poll drains the build mailbox once per tick and appends classified
// lines to the log view.
func (m buildModel) poll() buildModel {
	if m.handle == nil {
		return m
	}

	msgs := m.handle.Drain()
	for _, msg := range msgs {
		switch msg := msg.(type) {
		case builder.Line:
			m.lines = append(m.lines, buildlog.NewLine(msg.Text))
		case builder.Exit:
			m.finishRun(msg.Code, "")
			m.statusLine = fmt.Sprintf("exited with code %d", msg.Code)
		case builder.SpawnError:
			m.finishRun(0, msg.Reason)
			m.statusLine = "spawn failed: " + msg.Reason
		}
	}
	if len(msgs) > 0 {
		m.refreshViewport()
	}
	if m.handle.Exhausted() {
		m.handle = nil
	}
	return m
}

// finishRun records the terminal outcome in the history store. Clone runs
// are not build history.
func (m *buildModel) finishRun(code int, spawnReason string) {
	if m.isClone {
		return
	}
	outcome := history.OutcomeForExit(code, m.stopped)
	if spawnReason != "" {
		outcome = history.OutcomeSpawnError
	}
	_, err := m.svc.History.RecordRun(history.Run{
		KernelVersion: m.version,
		Command:       m.command.String(),
		ExitCode:      code,
		Outcome:       outcome,
		StartedAt:     m.startedAt,
		FinishedAt:    time.Now().UTC(),
	})
	if err != nil {
		log.ErrorErr(log.CatDB, "recording run failed", err)
	}
}

func (m *buildModel) refreshViewport() {
	if !m.vpReady {
		return
	}
	rendered := make([]string, len(m.lines))
	for i, l := range m.lines {
		rendered[i] = renderLogLine(l)
	}
	m.vp.SetContent(strings.Join(rendered, "\n"))
	m.vp.GotoBottom()
}

func renderLogLine(l buildlog.Line) string {
	switch l.Severity {
	case buildlog.SeverityStage:
		return styles.StageStyle.Render(l.Text)
	case buildlog.SeverityError:
		return styles.ErrorStyle.Render(l.Text)
	case buildlog.SeverityWarning:
		return styles.WarningStyle.Render(l.Text)
	default:
		return l.Text
	}
}

func (m buildModel) update(msg tea.Msg) (buildModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.inputting {
		switch keyMsg.String() {
		case "enter":
			if m.handle != nil {
				if err := m.handle.SendInput(m.input.Value()); err != nil {
					m.statusLine = err.Error()
				}
			}
			m.input.SetValue("")
			m.inputting = false
			m.input.Blur()
		case "esc":
			m.inputting = false
			m.input.Blur()
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.showHistory {
		switch keyMsg.String() {
		case "esc", "q", "h":
			m.showHistory = false
		}
		return m, nil
	}

	switch keyMsg.String() {
	case "g":
		if m.handle == nil && !m.svc.Work.LinuxTkgReady() {
			m.command = builder.CloneCommand(m.svc.Work.LinuxTkg())
			m.handle = builder.Start(m.command)
			m.isClone = true
			m.stopped = false
			m.lines = nil
			m.statusLine = "cloning linux-tkg"
		}
	case "b":
		if m.handle == nil && m.svc.Work.LinuxTkgReady() {
			if m.svc.Cfg.Build.UseMakepkg {
				m.command = builder.MakepkgCommand(m.svc.Work.LinuxTkg())
			} else {
				m.command = builder.InstallScriptCommand(m.svc.Work.LinuxTkg())
			}
			m.handle = builder.Start(m.command)
			m.isClone = false
			m.stopped = false
			m.startedAt = time.Now().UTC()
			m.lines = nil
			m.statusLine = "running " + m.command.String()
		}
	case "s":
		if m.handle != nil {
			m.stopped = true
			m.handle.Stop()
			m.statusLine = "stop requested"
		}
	case "i":
		if m.handle != nil {
			m.inputting = true
			return m, m.input.Focus()
		}
	case "m":
		if m.handle == nil {
			m.svc.Cfg.Build.UseMakepkg = !m.svc.Cfg.Build.UseMakepkg
			m = m.saveBuildConfig()
		}
	case "w":
		m.svc.Cfg.Build.KeepWorkDir = !m.svc.Cfg.Build.KeepWorkDir
		m.svc.Work.SetKeep(m.svc.Cfg.Build.KeepWorkDir)
		m = m.saveBuildConfig()
	case "h":
		runs, err := m.svc.History.ListRuns(20)
		if err != nil {
			m.statusLine = err.Error()
		} else {
			m.runs = runs
			m.showHistory = true
		}
	case "up", "k", "down", "j", "pgup", "pgdown":
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(keyMsg)
		return m, cmd
	}
	return m, nil
}

// saveBuildConfig persists the build section of the config file after a
// toggle, leaving the other sections and their comments intact.
func (m buildModel) saveBuildConfig() buildModel {
	if err := config.SaveBuild(m.svc.ConfigPath, m.svc.Cfg.Build); err != nil {
		m.statusLine = "saving config: " + err.Error()
		return m
	}
	mode := "install.sh"
	if m.svc.Cfg.Build.UseMakepkg {
		mode = "makepkg"
	}
	m.statusLine = fmt.Sprintf("saved: builder=%s keep-workdir=%v", mode, m.svc.Cfg.Build.KeepWorkDir)
	return m
}

func (m buildModel) view() string {
	if m.showHistory {
		return m.historyView()
	}

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Build"))
	if m.running() {
		b.WriteString(" " + styles.StageStyle.Render("· running"))
	}
	b.WriteString("\n\n")

	if m.vpReady {
		b.WriteString(styles.PaneStyle.Render(m.vp.View()))
		b.WriteString("\n")
	}

	if m.inputting {
		b.WriteString("stdin: " + m.input.View() + "\n")
	}
	if m.statusLine != "" {
		b.WriteString(styles.MutedStyle.Render(m.statusLine) + "\n")
	}

	help := "g clone · b build · s stop · i input · m builder · w keep-workdir · h history"
	if !m.svc.Work.LinuxTkgReady() {
		help = "g clone linux-tkg first · m builder · w keep-workdir · h history"
	}
	b.WriteString(styles.MutedStyle.Render(help))
	return b.String()
}

func (m buildModel) historyView() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Build history"))
	b.WriteString("\n\n")

	if len(m.runs) == 0 {
		b.WriteString(styles.MutedStyle.Render("no recorded builds") + "\n")
	}
	for _, r := range m.runs {
		outcome := r.Outcome
		switch r.Outcome {
		case history.OutcomeSuccess:
			outcome = styles.SuccessStyle.Render(r.Outcome)
		case history.OutcomeFailed, history.OutcomeSpawnError:
			outcome = styles.ErrorStyle.Render(r.Outcome)
		case history.OutcomeStopped:
			outcome = styles.WarningStyle.Render(r.Outcome)
		}
		b.WriteString(fmt.Sprintf("%s  %-10s %-12s %s\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04"),
			r.KernelVersion,
			outcome,
			styles.MutedStyle.Render(r.Command)))
	}
	b.WriteString("\n" + styles.MutedStyle.Render("esc back"))
	return b.String()
}
