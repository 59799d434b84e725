package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/storyline/internal/api"
	"github.com/fakeyudi/storyline/internal/catalog"
	"github.com/fakeyudi/storyline/internal/channel"
	"github.com/fakeyudi/storyline/internal/collab"
	"github.com/fakeyudi/storyline/internal/export"
	"github.com/fakeyudi/storyline/internal/story"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+f":
		return tea.KeyMsg{Type: tea.KeyCtrlF}
	case "ctrl+l":
		return tea.KeyMsg{Type: tea.KeyCtrlL}
	case "ctrl+n":
		return tea.KeyMsg{Type: tea.KeyCtrlN}
	case "ctrl+p":
		return tea.KeyMsg{Type: tea.KeyCtrlP}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(t *testing.T, m tea.Model, text string) tea.Model {
	t.Helper()
	for _, r := range text {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

// ── Reader ────────────

func sampleDoc() *export.Document {
	lines := []story.Line{
		{ID: "1", AuthorID: "a", Author: &story.Author{Name: "Ana"}, Content: "Once upon a time"},
		{ID: "2", AuthorID: "b", Author: &story.Author{Name: "Ben"}, Content: "a fox learned to fly"},
	}
	return export.Build(story.Story{ID: "s1", Title: "The Fox"}, lines, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
}

func TestReaderTabs(t *testing.T) {
	var m tea.Model = NewReader(sampleDoc(), "/tmp/fox.md")
	assert.Equal(t, "Loading…", m.View())

	m, _ = m.Update(tea.WindowSizeMsg{Width: 140, Height: 30})
	out := m.View()
	assert.Contains(t, out, "fox.md")
	assert.Contains(t, out, "The Fox")

	m, _ = m.Update(key("2"))
	assert.Contains(t, m.View(), "Once upon a time a fox learned to fly")

	m, _ = m.Update(key("4"))
	assert.Contains(t, m.View(), "Ana")
	assert.Contains(t, m.View(), "1 line")

	m, _ = m.Update(key("tab"))
	assert.Equal(t, tabSummary, m.(Reader).activeTab, "tab wraps around")
}

func TestReaderSortsLines(t *testing.T) {
	var m tea.Model = NewReader(sampleDoc(), "fox.json")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = m.Update(key("3"))

	out := m.View()
	assert.Less(t, strings.Index(out, "Once upon"), strings.Index(out, "a fox learned"))

	m, _ = m.Update(key("s"))
	out = m.View()
	assert.Contains(t, out, "newest first")
	assert.Greater(t, strings.Index(out, "Once upon"), strings.Index(out, "a fox learned"))
}

// ── Chat ────────────

type stubChannel struct {
	events chan channel.Event
	once   sync.Once
}

func (s *stubChannel) Events() <-chan channel.Event { return s.events }
func (s *stubChannel) State() channel.State         { return channel.StateConnected }
func (s *stubChannel) Typing() error                { return nil }
func (s *stubChannel) StopTyping() error            { return nil }
func (s *stubChannel) Close()                       { s.once.Do(func() { close(s.events) }) }

type stubLines struct {
	mu      sync.Mutex
	lines   []story.Line
	created []string
	err     error
}

func (s *stubLines) ListLines(ctx context.Context, storyID string) ([]story.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines, nil
}

func (s *stubLines) CreateLine(ctx context.Context, storyID, authorID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, content)
	return nil
}

func openView(t *testing.T, lines *stubLines) *collab.View {
	t.Helper()
	v := collab.New(lines, func(ctx context.Context, storyID string) (collab.Channel, error) {
		return &stubChannel{events: make(chan channel.Event, 4)}, nil
	}, collab.Options{UserID: "me"})
	require.NoError(t, v.Open(context.Background(), "s1"))
	require.Eventually(t, func() bool { return v.Snapshot().Loaded }, time.Second, 5*time.Millisecond)
	t.Cleanup(v.Close)
	return v
}

func TestChatShowsLines(t *testing.T) {
	lines := &stubLines{lines: []story.Line{
		{ID: "1", StoryID: "s1", AuthorID: "me", Content: "Once upon a time"},
		{ID: "2", StoryID: "s1", AuthorID: "u2", Author: &story.Author{Name: "Ben"}, Content: "a fox flew"},
	}}
	v := openView(t, lines)

	var m tea.Model = NewChat(context.Background(), v, "The Fox", story.User{ID: "me"})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 140, Height: 30})
	m, _ = m.Update(updateMsg{})

	out := m.View()
	assert.Contains(t, out, "The Fox")
	assert.Contains(t, out, "you")
	assert.Contains(t, out, "Ben")
	assert.Contains(t, out, "7 words")

	m, _ = m.Update(key("ctrl+f"))
	assert.Contains(t, m.View(), "Once upon a time a fox flew")
}

func TestChatSubmitsDraft(t *testing.T) {
	lines := &stubLines{}
	v := openView(t, lines)

	var m tea.Model = NewChat(context.Background(), v, "T", story.User{ID: "me"})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = typeText(t, m, "and then")

	m, cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)
	assert.True(t, m.(Chat).sending)

	m, _ = m.Update(cmd())
	assert.False(t, m.(Chat).sending)
	assert.Equal(t, "", m.(Chat).draft.Value())
	assert.Equal(t, []string{"and then"}, lines.created)
}

func TestChatKeepsTextTypedWhileSending(t *testing.T) {
	lines := &stubLines{}
	v := openView(t, lines)

	var m tea.Model = NewChat(context.Background(), v, "T", story.User{ID: "me"})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = typeText(t, m, "and then")
	m, cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)

	m = typeText(t, m, " more")
	m, _ = m.Update(cmd())
	assert.Equal(t, "and then more", m.(Chat).draft.Value())
	assert.Equal(t, []string{"and then"}, lines.created)
}

func TestChatLikesSelectedLine(t *testing.T) {
	lines := &stubLines{lines: []story.Line{
		{ID: "1", StoryID: "s1", AuthorID: "u2", Content: "Once"},
		{ID: "2", StoryID: "s1", AuthorID: "u3", Content: "upon"},
	}}
	v := openView(t, lines)

	var m tea.Model = NewChat(context.Background(), v, "T", story.User{ID: "me"})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 140, Height: 30})
	m, _ = m.Update(updateMsg{})
	assert.Contains(t, m.View(), "♥ 0")

	// The newest line is selected by default.
	m, _ = m.Update(key("ctrl+l"))
	assert.True(t, m.(Chat).liked.has("2"))
	assert.Contains(t, m.View(), "♥ 1")

	m, _ = m.Update(key("ctrl+p"))
	m, _ = m.Update(key("ctrl+l"))
	assert.True(t, m.(Chat).liked.has("1"))
	m, _ = m.Update(key("ctrl+l"))
	assert.False(t, m.(Chat).liked.has("1"))

	// Moving past the newest line goes back to following it.
	m, _ = m.Update(key("ctrl+n"))
	m, _ = m.Update(key("ctrl+n"))
	assert.Equal(t, "", m.(Chat).selected)
	assert.Equal(t, 1, m.(Chat).selectedIndex())
	assert.Len(t, m.(Chat).liked, 1)
}

func TestChatShowsWritingTip(t *testing.T) {
	v := openView(t, &stubLines{})
	c := NewChat(context.Background(), v, "T", story.User{ID: "me"})
	t0 := c.opened
	c.now = func() time.Time { return t0.Add(25 * time.Second) }

	var m tea.Model = c
	m, _ = m.Update(tea.WindowSizeMsg{Width: 140, Height: 30})
	assert.Contains(t, m.View(), writingTips[2])
}

func TestRotation(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, rotation(5, t0, t0, 10*time.Second))
	assert.Equal(t, 0, rotation(5, t0, t0.Add(9*time.Second), 10*time.Second))
	assert.Equal(t, 2, rotation(5, t0, t0.Add(25*time.Second), 10*time.Second))
	assert.Equal(t, 0, rotation(5, t0, t0.Add(50*time.Second), 10*time.Second))
	assert.Equal(t, 0, rotation(5, t0, t0.Add(-time.Minute), 10*time.Second))
	assert.Equal(t, 0, rotation(0, t0, t0.Add(time.Hour), 10*time.Second))
}

func TestChatBlankDraftIsNotSent(t *testing.T) {
	v := openView(t, &stubLines{})
	var m tea.Model = NewChat(context.Background(), v, "T", story.User{ID: "me"})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = typeText(t, m, "   ")

	_, cmd := m.Update(key("enter"))
	assert.Nil(t, cmd)
}

func TestChatExpiredSessionQuits(t *testing.T) {
	lines := &stubLines{err: &api.Error{Kind: api.KindUnauthorized, Status: 401}}
	v := openView(t, lines)

	var m tea.Model = NewChat(context.Background(), v, "T", story.User{ID: "me"})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = typeText(t, m, "hello")
	m, cmd := m.Update(key("enter"))
	m, _ = m.Update(cmd())

	assert.True(t, m.(Chat).Result().Expired)
}

func TestChatEscGoesBack(t *testing.T) {
	v := openView(t, &stubLines{})
	var m tea.Model = NewChat(context.Background(), v, "T", story.User{ID: "me"})
	m, _ = m.Update(key("esc"))
	assert.True(t, m.(Chat).Result().Back)
}

// ── Picker ────────────

type stubBackend struct {
	stories []story.Story
	created []string
}

func (s *stubBackend) ListStories(ctx context.Context) ([]story.Story, error) {
	return s.stories, nil
}

func (s *stubBackend) CreateStory(ctx context.Context, title, creatorID, firstLine string) (story.Story, error) {
	st := story.Story{ID: "new", Title: title, CreatorID: creatorID}
	s.created = append(s.created, title+"|"+firstLine)
	s.stories = append(s.stories, st)
	return st, nil
}

func TestPickerChoosesStory(t *testing.T) {
	b := &stubBackend{stories: []story.Story{{ID: "a", Title: "First"}, {ID: "b", Title: "Second"}}}
	c := catalog.New(b, zerolog.Nop())
	p := NewPicker(context.Background(), c, story.User{Name: "Ada"})

	var m tea.Model = p
	m, _ = m.Update(refreshCatalog(context.Background(), c)())
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	assert.Contains(t, m.View(), "Second")
	assert.Contains(t, m.View(), "Ada")

	m, _ = m.Update(key("down"))
	m, _ = m.Update(key("enter"))
	res := m.(Picker).Result()
	assert.True(t, res.Chosen)
	assert.Equal(t, "b", res.Story.ID)
}

func TestPickerCreatesStory(t *testing.T) {
	b := &stubBackend{}
	c := catalog.New(b, zerolog.Nop())
	var m tea.Model = NewPicker(context.Background(), c, story.User{ID: "u1"})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	m, _ = m.Update(key("n"))
	m = typeText(t, m, "Fox")
	m, _ = m.Update(key("enter"))
	m = typeText(t, m, "It flew.")
	m, cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd())

	res := m.(Picker).Result()
	assert.True(t, res.Chosen)
	assert.Equal(t, "Fox", res.Story.Title)
	assert.Equal(t, []string{"Fox|It flew."}, b.created)
}

func TestPickerReportsValidation(t *testing.T) {
	c := catalog.New(&stubBackend{}, zerolog.Nop())
	var m tea.Model = NewPicker(context.Background(), c, story.User{ID: "u1"})
	m, _ = m.Update(key("n"))
	m, _ = m.Update(key("enter"))
	m, cmd := m.Update(key("enter"))
	m, _ = m.Update(cmd())

	assert.False(t, m.(Picker).Result().Chosen)
	assert.Contains(t, m.View(), "title is required")
}

func TestPickerRotatesQuote(t *testing.T) {
	c := catalog.New(&stubBackend{}, zerolog.Nop())
	p := NewPicker(context.Background(), c, story.User{Name: "Ada"})
	t0 := p.opened
	p.now = func() time.Time { return t0 }

	var m tea.Model = p
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 24})
	assert.Contains(t, m.View(), quotes[0].author)

	pk := m.(Picker)
	pk.now = func() time.Time { return t0.Add(quotePeriod) }
	m, cmd := pk.Update(quoteMsg{})
	assert.NotNil(t, cmd, "quote rotation keeps ticking")
	assert.Contains(t, m.View(), quotes[1].author)
}
