package cmd

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"symtrace/internal/analysis"
	"symtrace/internal/report"
	"symtrace/internal/ui/colorize"
)

type browserMode int

const (
	viewSteps browserMode = iota
	viewDetail
	viewState
)

// stepItem is one row of the step list.
type stepItem struct {
	step *analysis.Step
	line string // "addr: text", possibly coloured
}

func (i stepItem) FilterValue() string { return colorize.StripANSI(i.line) }

type stepDelegate struct{}

func (d stepDelegate) Height() int                               { return 1 }
func (d stepDelegate) Spacing() int                              { return 0 }
func (d stepDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d stepDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(stepItem)
	if !ok {
		return
	}

	indicator := " "
	indexStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	if index == m.Index() {
		indicator = ">"
		indexStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	}

	var status string
	switch {
	case i.step.Err != nil:
		status = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("  failed")
	case len(i.step.Assignments) > 0:
		status = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Render(fmt.Sprintf("  %d expr", len(i.step.Assignments)))
	case i.step.Branch != nil:
		status = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Render("  branch")
	}

	fmt.Fprintf(w, " %s %s  %s%s", indicator, indexStyle.Render(fmt.Sprintf("%4d", i.step.Index)), i.line, status)
}

// traceDoneMsg carries the outcome of a trace run in the background.
type traceDoneMsg struct {
	res *analysis.Result
	err error
}

// browser is the interactive view of a trace: a filterable list of steps,
// a detail pane per step and the final state.
type browser struct {
	steps   list.Model
	pane    viewport.Model
	spinner spinner.Model
	mode    browserMode
	color   bool
	run     tea.Cmd

	running bool
	res     *analysis.Result
	err     error
	content string // text shown in the pane
	width   int
	height  int
}

func newBrowser(run tea.Cmd, color bool) browser {
	steps := list.New([]list.Item{}, stepDelegate{}, 80, 24)
	steps.SetShowStatusBar(false)
	steps.SetFilteringEnabled(true)
	steps.Title = "Steps"
	steps.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)
	steps.SetShowHelp(true)

	pane := viewport.New()
	pane.SetWidth(80)
	pane.SetHeight(24)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	return browser{
		steps:   steps,
		pane:    pane,
		spinner: s,
		color:   color,
		run:     run,
		running: true,
		width:   80,
		height:  24,
	}
}

func (m browser) Init() tea.Cmd {
	return tea.Batch(m.run, m.spinner.Tick)
}

func (m browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case traceDoneMsg:
		m.setResult(msg.res, msg.err)
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.steps.SetWidth(msg.Width)
		m.steps.SetHeight(msg.Height - 2)
		m.pane.SetWidth(msg.Width)
		m.pane.SetHeight(msg.Height - 2)
		return m, nil

	case tea.KeyMsg:
		if m.mode == viewSteps && m.steps.FilterState() == list.Filtering {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}
		handled, quit := m.handleKey(msg.String())
		if quit {
			return m, tea.Quit
		}
		if handled {
			return m, nil
		}
	}

	if m.running {
		return m, nil
	}
	switch m.mode {
	case viewSteps:
		m.steps, cmd = m.steps.Update(msg)
	default:
		m.pane, cmd = m.pane.Update(msg)
	}
	return m, cmd
}

// handleKey switches views. Keys it does not handle go to the active
// component for scrolling and filtering.
func (m *browser) handleKey(key string) (handled, quit bool) {
	switch key {
	case "q", "ctrl+c":
		return true, true
	}
	if m.running {
		return false, false
	}

	switch key {
	case "enter":
		if m.mode == viewSteps {
			m.showDetail()
			return true, false
		}
	case "esc", "backspace":
		if m.mode != viewSteps {
			m.mode = viewSteps
			return true, false
		}
	case "s":
		m.showState()
		return true, false
	case "tab":
		switch m.mode {
		case viewSteps:
			m.showDetail()
		case viewDetail:
			m.showState()
		default:
			m.mode = viewSteps
		}
		return true, false
	}
	return false, false
}

func (m *browser) setResult(res *analysis.Result, err error) {
	m.running = false
	m.res, m.err = res, err
	if res == nil {
		return
	}

	c := colorize.New(m.color)
	items := make([]list.Item, 0, len(res.Steps))
	for _, s := range res.Steps {
		text := fmt.Sprintf("% x", s.Entry.Bytes)
		if s.Decoded() {
			text = s.Instruction.Text
		}
		items = append(items, stepItem{step: s, line: c.Instruction(s.Entry.Address, text)})
	}
	m.steps.SetItems(items)
	m.steps.Title = fmt.Sprintf("Steps (%d total, %d failed)", len(res.Steps), res.Failed)
}

func (m *browser) showDetail() {
	item, ok := m.steps.SelectedItem().(stepItem)
	if !ok {
		return
	}
	m.setContent(m.render(func(w *report.Writer) error { return w.Step(item.step) }))
	m.mode = viewDetail
}

func (m *browser) showState() {
	if m.res == nil {
		return
	}
	content := m.render(func(w *report.Writer) error { return w.State(m.res) })
	if m.err != nil {
		content += "\n\n" + traceError(m.res, m.err).Error()
	}
	m.setContent(content)
	m.mode = viewState
}

func (m *browser) setContent(s string) {
	m.content = s
	m.pane.SetContent(s)
	m.pane.GotoTop()
}

func (m *browser) render(fn func(*report.Writer) error) string {
	var buf bytes.Buffer
	if err := fn(report.NewWriter(&buf, report.Text, report.WithColor(m.color))); err != nil {
		return err.Error()
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (m browser) View() string {
	var content string
	switch {
	case m.running:
		content = fmt.Sprintf("\n  %s Executing trace...", m.spinner.View())
	case m.mode == viewSteps:
		content = m.steps.View()
	default:
		content = m.pane.View()
	}

	var menu string
	switch {
	case m.running:
		menu = " Q: quit "
	case m.mode == viewSteps:
		menu = " Enter: step details • S: final state • Tab: cycle • Q: quit "
	default:
		menu = " Esc: steps • S: final state • Tab: cycle • Q: quit "
	}

	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}
