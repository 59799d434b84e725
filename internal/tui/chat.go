package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/storyline/internal/api"
	"github.com/fakeyudi/storyline/internal/collab"
	"github.com/fakeyudi/storyline/internal/story"
)

const draftHeight = 3

type (
	updateMsg    struct{}
	tickMsg      time.Time
	submittedMsg struct {
		text string
		err  error
	}
)

// ChatResult tells the caller how the chat ended.
type ChatResult struct {
	// Back is set when the user asked to return to the story list.
	Back bool
	// Expired is set when the backend rejected the session.
	Expired bool
}

// Chat is the collaborative writing surface for one open story.
type Chat struct {
	ctx   context.Context
	view  *collab.View
	title string
	user  story.User
	now   func() time.Time

	snap    collab.Snapshot
	lines   viewport.Model
	draft   textarea.Model
	full    bool
	sending bool
	notice  string
	result  ChatResult
	opened  time.Time

	// selected is the ID of the highlighted line; "" follows the newest.
	selected string
	liked    likes

	width  int
	height int
	ready  bool
}

// NewChat builds the chat for the story already opened in view.
func NewChat(ctx context.Context, view *collab.View, title string, user story.User) Chat {
	ta := textarea.New()
	ta.Placeholder = "Continue the story…"
	ta.ShowLineNumbers = false
	ta.CharLimit = 1000
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	return Chat{
		ctx:    ctx,
		view:   view,
		title:  title,
		user:   user,
		now:    time.Now,
		snap:   view.Snapshot(),
		draft:  ta,
		opened: time.Now(),
		liked:  likes{},
	}
}

// Result reports how the chat ended; valid after the program exits.
func (m Chat) Result() ChatResult { return m.result }

func waitForUpdate(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return updateMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func submit(ctx context.Context, view *collab.View, text string) tea.Cmd {
	return func() tea.Msg {
		return submittedMsg{text: text, err: view.Submit(ctx, text)}
	}
}

func (m Chat) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForUpdate(m.view.Updates()), tick())
}

func (m Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.result.Back = true
			return m, tea.Quit
		case "ctrl+f":
			m.full = !m.full
			m.refresh(true)
			return m, nil
		case "ctrl+r":
			m.view.Refetch()
			m.notice = "reloading…"
			return m, nil
		case "ctrl+p":
			m.moveSelection(-1)
			return m, nil
		case "ctrl+n":
			m.moveSelection(1)
			return m, nil
		case "ctrl+l":
			if i := m.selectedIndex(); i >= 0 {
				m.liked.toggle(m.snap.Lines[i].ID)
				m.refresh(false)
			}
			return m, nil
		case "pgup", "pgdown", "ctrl+u", "ctrl+d":
			var cmd tea.Cmd
			m.lines, cmd = m.lines.Update(msg)
			return m, cmd
		case "enter":
			text := strings.TrimSpace(m.draft.Value())
			if m.sending || text == "" {
				return m, nil
			}
			m.sending = true
			m.notice = "sending…"
			return m, submit(m.ctx, m.view, text)
		}
		var cmd tea.Cmd
		m.draft, cmd = m.draft.Update(msg)
		m.view.Compose(m.draft.Value())
		return m, cmd

	case submittedMsg:
		m.sending = false
		switch {
		case msg.err == nil:
			m.notice = ""
			// Keep anything typed while the line was in flight.
			if strings.TrimSpace(m.draft.Value()) == msg.text {
				m.draft.Reset()
			} else {
				m.view.Compose(m.draft.Value())
			}
		case api.IsUnauthorized(msg.err):
			m.result.Expired = true
			return m, tea.Quit
		default:
			m.notice = api.UserMessage(msg.err)
		}
		return m, nil

	case updateMsg:
		m.snap = m.view.Snapshot()
		if m.notice == "reloading…" && m.snap.Loaded {
			m.notice = ""
		}
		m.refresh(false)
		return m, waitForUpdate(m.view.Updates())

	case tickMsg:
		m.snap = m.view.Snapshot()
		m.refresh(false)
		return m, tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil
	}

	var cmd tea.Cmd
	m.draft, cmd = m.draft.Update(msg)
	return m, cmd
}

func (m *Chat) layout() {
	// title(1) + info(1) + draft + status(1)
	vpHeight := m.height - 3 - draftHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	if !m.ready {
		m.lines = viewport.New(m.width, vpHeight)
		m.ready = true
	} else {
		m.lines.Width = m.width
		m.lines.Height = vpHeight
	}
	m.draft.SetWidth(m.width)
	m.draft.SetHeight(draftHeight)
	m.refresh(true)
}

// selectedIndex returns the highlighted line's index, or -1 with no lines.
func (m Chat) selectedIndex() int {
	n := len(m.snap.Lines)
	if n == 0 {
		return -1
	}
	if m.selected != "" {
		for i, l := range m.snap.Lines {
			if l.ID == m.selected {
				return i
			}
		}
	}
	return n - 1
}

// moveSelection shifts the highlight by delta lines. Moving past the newest
// line goes back to following it.
func (m *Chat) moveSelection(delta int) {
	i := m.selectedIndex()
	if i < 0 {
		return
	}
	i += delta
	switch {
	case i < 0:
		i = 0
	case i >= len(m.snap.Lines)-1:
		m.selected = ""
		m.refresh(true)
		return
	}
	m.selected = m.snap.Lines[i].ID
	m.refresh(false)
}

// refresh re-renders the line pane, following the bottom when the reader
// was already there.
func (m *Chat) refresh(jump bool) {
	if !m.ready {
		return
	}
	follow := jump || m.lines.AtBottom()
	if m.full {
		m.lines.SetContent(m.renderFullStory())
	} else {
		m.lines.SetContent(m.renderLines())
	}
	if follow {
		m.lines.GotoBottom()
	}
}

func (m Chat) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := m.title
	if title == "" {
		title = m.snap.StoryID
	}
	titleBar := titleStyle.Width(m.width).Render("  storyline  " + title)

	return lipgloss.JoinVertical(lipgloss.Left,
		titleBar,
		m.lines.View(),
		m.infoLine(),
		m.draft.View(),
		m.statusLine(),
	)
}

func (m Chat) infoLine() string {
	switch {
	case m.snap.Err != nil && !m.snap.Loaded:
		return errorStyle.Render("  could not load lines: " + api.UserMessage(m.snap.Err) + " (ctrl+r to retry)")
	case m.notice != "":
		return dimStyle.Render("  " + m.notice)
	case m.snap.Typing:
		return typingStyle.Render("  someone is writing…")
	}
	return dimStyle.Render("  " + tipAt(m.opened, m.now()))
}

func (m Chat) statusLine() string {
	state := m.snap.State.String()
	style, ok := stateStyles[state]
	if !ok {
		style = dimStyle
	}
	writers := len(m.snap.Online) + 1
	right := fmt.Sprintf("%s  %d %s  %d %s  %d %s  ♥ %d",
		style.Render("● "+state),
		len(m.snap.Lines), plural(len(m.snap.Lines), "line", "lines"),
		m.snap.WordCount, plural(m.snap.WordCount, "word", "words"),
		writers, plural(writers, "writer", "writers"),
		len(m.liked),
	)
	hint := "  enter send  ^p/^n pick  ^l like  ^f story  ^r reload  esc back"
	return statusBar(m.width, hint, right)
}

func (m Chat) renderLines() string {
	if !m.snap.Loaded && len(m.snap.Lines) == 0 {
		return dimStyle.Render("\n  loading lines…")
	}
	if len(m.snap.Lines) == 0 {
		return dimStyle.Render("\n  No lines yet. Write the first one.")
	}

	now := m.now()
	var sb strings.Builder
	sb.WriteString("\n")
	selected := m.selectedIndex()
	for i, l := range m.snap.Lines {
		name := authorStyle.Render(l.AuthorName())
		if l.AuthorID != "" && l.AuthorID == m.user.ID {
			name = selfStyle.Render("you")
		}
		marker := "  "
		if i == selected {
			marker = selfStyle.Render("› ")
		}
		header := marker + name
		if ago := story.TimeAgo(l.CreatedAt, now); ago != "" {
			header += "  " + timeStyle.Render(ago)
		}
		if m.liked.has(l.ID) {
			header += "  " + likeStyle.Render("♥")
		}
		sb.WriteString(header + "\n")
		sb.WriteString(wrap(l.Content, m.width, "    ") + "\n\n")
	}
	return sb.String()
}

func (m Chat) renderFullStory() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Full story (%d %s)", m.snap.WordCount, plural(m.snap.WordCount, "word", "words"))))
	if m.snap.FullText == "" {
		sb.WriteString(dimStyle.Render("  (no lines yet)") + "\n")
		return sb.String()
	}
	sb.WriteString(wrap(m.snap.FullText, m.width, "  ") + "\n")
	return sb.String()
}

// RunChat runs the chat for the story open in view until the user leaves.
func RunChat(ctx context.Context, view *collab.View, title string, user story.User) (ChatResult, error) {
	p := tea.NewProgram(NewChat(ctx, view, title, user), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return ChatResult{}, err
	}
	if c, ok := final.(Chat); ok {
		return c.Result(), nil
	}
	return ChatResult{}, nil
}
