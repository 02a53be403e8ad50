package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/xml-bridge/bridge"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	encodingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	rootStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newInspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [file...]",
		Short: "Interactively open, inspect and release documents",
		Long: `Open documents in a terminal UI. Every open document is a pinned
handle; closing it releases the pin. Use it to watch pin counts and the
foreign heap as documents come and go.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("inspect needs a terminal; use the parse command instead")
			}
			// Stack traces would tear the screen; errors are shown inline.
			opts.quiet = true
			cfg, err := opts.config(nil, nil)
			if err != nil {
				return err
			}
			b := bridge.New(cfg)
			defer b.Close(context.Background())

			p := tea.NewProgram(newInspectModel(b, args), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}

type openDoc struct {
	doc     *bridge.Document
	path    string
	summary string
}

type inspectModel struct {
	err      error
	bridge   *bridge.Bridge
	pending  []string
	docs     []openDoc
	input    textinput.Model
	status   string
	selected int
	adding   bool
}

type openedMsg struct {
	err     error
	doc     *bridge.Document
	path    string
	summary string
}

type statusMsg string

func newInspectModel(b *bridge.Bridge, paths []string) *inspectModel {
	ti := textinput.New()
	ti.Placeholder = "path/to/document.xml"
	ti.Prompt = "open: "
	ti.Width = 50
	return &inspectModel{
		bridge:  b,
		pending: paths,
		input:   ti,
	}
}

func (m *inspectModel) Init() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(m.pending)+1)
	for _, path := range m.pending {
		cmds = append(cmds, m.open(path))
	}
	m.pending = nil
	cmds = append(cmds, m.refresh)
	return tea.Batch(cmds...)
}

func (m *inspectModel) open(path string) tea.Cmd {
	return func() tea.Msg {
		doc, err := m.bridge.ParseFile(context.Background(), path)
		if err != nil {
			return openedMsg{path: path, err: err}
		}
		summary, err := summarize(doc)
		if err != nil {
			doc.Close()
			return openedMsg{path: path, err: err}
		}
		return openedMsg{path: path, doc: doc, summary: summary}
	}
}

func (m *inspectModel) collect() tea.Msg {
	freed, err := m.bridge.Collect(context.Background())
	if err != nil {
		return statusMsg("collect: " + err.Error())
	}
	return statusMsg(fmt.Sprintf("collected %d objects; %s", freed, m.heapLine()))
}

func (m *inspectModel) refresh() tea.Msg {
	return statusMsg(m.heapLine())
}

func (m *inspectModel) heapLine() string {
	st, err := m.bridge.Stats(context.Background())
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("pinned %d • objects %d • heap %d/%d bytes • collections %d",
		m.bridge.Pinned(), st.Objects, st.Heap.Used, st.Heap.Size, st.Collections)
}

func (m *inspectModel) closeAll() {
	for _, d := range m.docs {
		d.doc.Close()
	}
	m.docs = nil
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.adding {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.closeAll()
			return m, tea.Quit

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.selected < len(m.docs)-1 {
				m.selected++
			}

		case "a", "o":
			m.adding = true
			m.err = nil
			m.input.SetValue("")
			return m, m.input.Focus()

		case "d", "x":
			if len(m.docs) == 0 {
				break
			}
			d := m.docs[m.selected]
			if err := d.doc.Close(); err != nil {
				m.err = err
			}
			m.docs = append(m.docs[:m.selected], m.docs[m.selected+1:]...)
			if m.selected >= len(m.docs) && m.selected > 0 {
				m.selected--
			}
			return m, m.refresh

		case "g":
			return m, m.collect
		}

	case openedMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("%s: %w", msg.path, msg.err)
			return m, m.refresh
		}
		m.err = nil
		m.docs = append(m.docs, openDoc{doc: msg.doc, path: msg.path, summary: msg.summary})
		return m, m.refresh

	case statusMsg:
		m.status = string(msg)
	}

	return m, nil
}

func (m *inspectModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		path := strings.TrimSpace(m.input.Value())
		m.adding = false
		m.input.Blur()
		if path == "" {
			return m, nil
		}
		return m, m.open(path)
	case "esc":
		m.adding = false
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *inspectModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("XML Bridge"))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%d open", len(m.docs)))
	b.WriteString("\n\n")

	if len(m.docs) == 0 {
		b.WriteString("No documents open.\n")
	}
	for i, d := range m.docs {
		line := d.path + "  " + m.formatSummary(d.summary)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + d.path + "  " + d.summary))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.adding {
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter open • esc cancel"))
		return b.String()
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • a open • d close • g collect • q quit"))
	return b.String()
}

func (m *inspectModel) formatSummary(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		switch {
		case strings.HasPrefix(f, "encoding="):
			fields[i] = encodingStyle.Render(f)
		case strings.HasPrefix(f, "root="):
			fields[i] = rootStyle.Render(f)
		}
	}
	return strings.Join(fields, " ")
}
