package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/storyline/internal/export"
	"github.com/fakeyudi/storyline/internal/story"
)

type tabID int

const (
	tabSummary tabID = iota
	tabStory
	tabLines
	tabContributors
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Story", "Lines", "Contributors"}

// Reader is the Bubble Tea model for browsing an exported story.
type Reader struct {
	doc       *export.Document
	filename  string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	newest    bool
}

// NewReader creates a reader for doc loaded from filename.
func NewReader(doc *export.Document, filename string) Reader {
	return Reader{doc: doc, filename: filepath.Base(filename)}
}

func (m Reader) Init() tea.Cmd { return nil }

func (m Reader) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
			return m, nil
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
			return m, nil
		case "s":
			if m.activeTab == tabLines && m.ready {
				m.newest = !m.newest
				m.viewports[tabLines].SetContent(m.renderTab(tabLines))
				m.viewports[tabLines].GotoTop()
			}
			return m, nil
		}
		if !m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Reader) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  storyline  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  q quit"
	if m.activeTab == tabLines {
		dir := "oldest first"
		if m.newest {
			dir = "newest first"
		}
		hint += "  s sort (" + dir + ")"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar(m.width, hint, pct))
}

func (m *Reader) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Reader) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabStory:
		return m.renderStory()
	case tabLines:
		return m.renderLines()
	case tabContributors:
		return m.renderContributors()
	}
	return ""
}

func (m *Reader) renderSummary() string {
	d := m.doc
	var sb strings.Builder
	sb.WriteString(heading("Story Summary"))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	title := d.Story.Title
	if title == "" {
		title = "Untitled story"
	}
	row("Title:", title)
	row("Story ID:", d.Story.ID)
	if !d.Story.CreatedAt.IsZero() {
		row("Started:", d.Story.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	row("Exported:", d.ExportedAt.Format("2006-01-02 15:04:05 MST"))

	sb.WriteString(heading("Counts"))
	row("Lines:", fmt.Sprintf("%d", len(d.Lines)))
	row("Words:", fmt.Sprintf("%d", d.WordCount))
	row("Writers:", fmt.Sprintf("%d", len(d.Contributors)))
	return sb.String()
}

func (m *Reader) renderStory() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Full Story (%d %s)", m.doc.WordCount, plural(m.doc.WordCount, "word", "words"))))
	if len(m.doc.Lines) == 0 {
		sb.WriteString(dimStyle.Render("  (no lines yet)") + "\n")
		return sb.String()
	}
	sb.WriteString(wrap(m.doc.FullText(), m.width, "  ") + "\n")
	return sb.String()
}

func (m *Reader) renderLines() string {
	var sb strings.Builder
	dir := "oldest first"
	if m.newest {
		dir = "newest first"
	}
	sb.WriteString(heading(fmt.Sprintf("Lines (%d, %s)", len(m.doc.Lines), dir)))
	if len(m.doc.Lines) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}

	lines := make([]story.Line, len(m.doc.Lines))
	copy(lines, m.doc.Lines)
	if m.newest {
		for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
			lines[i], lines[j] = lines[j], lines[i]
		}
	}
	for _, l := range lines {
		header := "  " + authorStyle.Render(l.AuthorName())
		if !l.CreatedAt.IsZero() {
			header += "  " + timeStyle.Render(l.CreatedAt.Format("2006-01-02 15:04"))
		}
		sb.WriteString(header + "\n")
		sb.WriteString(wrap(l.Content, m.width, "    ") + "\n\n")
	}
	return sb.String()
}

func (m *Reader) renderContributors() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Contributors (%d)", len(m.doc.Contributors))))
	if len(m.doc.Contributors) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for _, c := range m.doc.Contributors {
		sb.WriteString(bullet(fmt.Sprintf("%s  %s", c.Name, dimStyle.Render(fmt.Sprintf("%d %s", c.Lines, plural(c.Lines, "line", "lines"))))))
	}
	return sb.String()
}

// RunReader starts the reader TUI for doc.
func RunReader(doc *export.Document, filename string) error {
	p := tea.NewProgram(NewReader(doc, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
