package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/storyline/internal/api"
	"github.com/fakeyudi/storyline/internal/catalog"
	"github.com/fakeyudi/storyline/internal/story"
)

type pickerMode int

const (
	modeBrowse pickerMode = iota
	modeCreate
)

type (
	refreshedMsg struct{ err error }
	quoteMsg     struct{}
	createdMsg   struct {
		story story.Story
		err   error
	}
)

// PickerResult tells the caller which story was chosen, if any.
type PickerResult struct {
	Story   story.Story
	Chosen  bool
	Expired bool
}

// Picker lists stories and starts new ones.
type Picker struct {
	ctx     context.Context
	catalog *catalog.Catalog
	user    story.User
	now     func() time.Time

	stories []story.Story
	cursor  int
	loading bool
	notice  string
	mode    pickerMode
	inputs  [2]textinput.Model
	focus   int
	result  PickerResult
	opened  time.Time

	width  int
	height int
}

// NewPicker builds the story picker for user.
func NewPicker(ctx context.Context, c *catalog.Catalog, user story.User) Picker {
	title := textinput.New()
	title.Placeholder = "A title for the story"
	title.Prompt = "  Title       "
	title.CharLimit = 120

	first := textinput.New()
	first.Placeholder = "The line that starts it all"
	first.Prompt = "  First line  "
	first.CharLimit = 1000

	return Picker{
		ctx:     ctx,
		catalog: c,
		user:    user,
		now:     time.Now,
		stories: c.Stories(),
		loading: true,
		inputs:  [2]textinput.Model{title, first},
		opened:  time.Now(),
	}
}

// Result reports the user's choice; valid after the program exits.
func (m Picker) Result() PickerResult { return m.result }

func refreshCatalog(ctx context.Context, c *catalog.Catalog) tea.Cmd {
	return func() tea.Msg { return refreshedMsg{err: c.Refresh(ctx)} }
}

func createStory(ctx context.Context, c *catalog.Catalog, creatorID, title, firstLine string) tea.Cmd {
	return func() tea.Msg {
		s, err := c.Create(ctx, creatorID, title, firstLine)
		return createdMsg{story: s, err: err}
	}
}

func nextQuote() tea.Cmd {
	return tea.Tick(quotePeriod, func(time.Time) tea.Msg { return quoteMsg{} })
}

func (m Picker) Init() tea.Cmd {
	return tea.Batch(refreshCatalog(m.ctx, m.catalog), nextQuote())
}

func (m Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.mode == modeCreate {
			return m.updateCreate(msg)
		}
		return m.updateBrowse(msg)

	case refreshedMsg:
		m.loading = false
		if msg.err != nil {
			if api.IsUnauthorized(msg.err) {
				m.result.Expired = true
				return m, tea.Quit
			}
			m.notice = api.UserMessage(msg.err)
			return m, nil
		}
		m.notice = ""
		m.stories = m.catalog.Stories()
		if m.cursor >= len(m.stories) {
			m.cursor = max(len(m.stories)-1, 0)
		}
		return m, nil

	case createdMsg:
		m.loading = false
		if msg.err != nil {
			if api.IsUnauthorized(msg.err) {
				m.result.Expired = true
				return m, tea.Quit
			}
			m.notice = createError(msg.err)
			return m, nil
		}
		m.result = PickerResult{Story: msg.story, Chosen: true}
		return m, tea.Quit

	case quoteMsg:
		return m, nextQuote()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for i := range m.inputs {
			m.inputs[i].Width = max(m.width-20, 10)
		}
		return m, nil
	}
	return m, nil
}

func createError(err error) string {
	if errors.Is(err, catalog.ErrTitleRequired) || errors.Is(err, catalog.ErrFirstLineRequired) {
		return err.Error()
	}
	return api.UserMessage(err)
}

func (m Picker) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.stories)-1 {
			m.cursor++
		}
	case "r":
		m.loading = true
		return m, refreshCatalog(m.ctx, m.catalog)
	case "n":
		m.mode = modeCreate
		m.notice = ""
		m.focus = 0
		for i := range m.inputs {
			m.inputs[i].Reset()
		}
		return m, m.inputs[0].Focus()
	case "enter":
		if len(m.stories) > 0 {
			m.result = PickerResult{Story: m.stories[m.cursor], Chosen: true}
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Picker) updateCreate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.notice = ""
		for i := range m.inputs {
			m.inputs[i].Blur()
		}
		return m, nil
	case "tab", "shift+tab", "up", "down":
		m.inputs[m.focus].Blur()
		m.focus = 1 - m.focus
		return m, m.inputs[m.focus].Focus()
	case "enter":
		if m.focus == 0 {
			m.inputs[0].Blur()
			m.focus = 1
			return m, m.inputs[1].Focus()
		}
		if m.loading {
			return m, nil
		}
		m.loading = true
		m.notice = "creating…"
		return m, createStory(m.ctx, m.catalog, m.user.ID, m.inputs[0].Value(), m.inputs[1].Value())
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Picker) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}
	title := titleStyle.Width(width).Render("  storyline  " + catalog.Greeting(m.user, m.now()))
	q := quoteAt(m.opened, m.now())
	title += "\n" + quoteStyle.Render(fmt.Sprintf("  “%s”  %s", q.text, q.author))

	var body strings.Builder
	if m.mode == modeCreate {
		body.WriteString(heading("New story"))
		body.WriteString(m.inputs[0].View() + "\n\n")
		body.WriteString(m.inputs[1].View() + "\n")
	} else {
		body.WriteString(m.renderList(width))
	}
	if m.notice != "" {
		body.WriteString("\n" + dimStyle.Render("  "+m.notice) + "\n")
	}

	content := body.String()
	if m.height > 0 {
		content = lipgloss.NewStyle().Height(max(m.height-3, 1)).MaxHeight(max(m.height-3, 1)).Render(content)
	}

	hint := "  ↑/↓ select  enter open  n new story  r refresh  q quit"
	if m.mode == modeCreate {
		hint = "  tab switch field  enter create  esc cancel"
	}
	right := fmt.Sprintf("%d %s", len(m.stories), plural(len(m.stories), "story", "stories"))
	if m.loading {
		right = "loading…"
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, content, statusBar(width, hint, right))
}

func (m Picker) renderList(width int) string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Stories (%d)", len(m.stories))))
	if len(m.stories) == 0 {
		if !m.loading {
			sb.WriteString(dimStyle.Render("  No stories yet. Press n to start one.") + "\n")
		}
		return sb.String()
	}

	now := m.now()
	// Keep the cursor visible when the list is taller than the screen.
	visible := len(m.stories)
	if m.height > 0 {
		visible = max(m.height-8, 1)
	}
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, len(m.stories))

	for i := start; i < end; i++ {
		s := m.stories[i]
		name := s.Title
		if name == "" {
			name = "Untitled story"
		}
		row := "  " + name
		if ago := story.TimeAgo(s.CreatedAt, now); ago != "" {
			row += "  " + timeStyle.Render(ago)
		}
		if i == m.cursor {
			row = selectedRowStyle.Width(width - 2).Render(row)
		}
		sb.WriteString(row + "\n")
	}
	return sb.String()
}

// RunPicker shows the story picker until the user chooses or quits.
func RunPicker(ctx context.Context, c *catalog.Catalog, user story.User) (PickerResult, error) {
	p := tea.NewProgram(NewPicker(ctx, c, user), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}
	if pk, ok := final.(Picker); ok {
		return pk.Result(), nil
	}
	return PickerResult{}, nil
}
