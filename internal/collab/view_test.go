package collab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/storyline/internal/channel"
	"github.com/fakeyudi/storyline/internal/story"
)

type fakeChannel struct {
	storyID string
	events  chan channel.Event

	mu     sync.Mutex
	sent   []string
	closed bool
}

func newFakeChannel(storyID string) *fakeChannel {
	return &fakeChannel{storyID: storyID, events: make(chan channel.Event, 16)}
}

func (f *fakeChannel) Events() <-chan channel.Event { return f.events }
func (f *fakeChannel) State() channel.State         { return channel.StateConnecting }
func (f *fakeChannel) Typing() error                { return f.record(channel.EventTyping) }
func (f *fakeChannel) StopTyping() error            { return f.record(channel.EventStopTyping) }

func (f *fakeChannel) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return channel.ErrClosed
	}
	f.sent = append(f.sent, name)
	return nil
}

func (f *fakeChannel) signals() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

// fakeLines serves ListLines per story. A story with a gate blocks until the
// gate is closed, regardless of the request context.
type fakeLines struct {
	mu      sync.Mutex
	lines   map[string][]story.Line
	gates   map[string]chan struct{}
	fetches map[string]int
	created []story.Line
	err     error
}

func newFakeLines() *fakeLines {
	return &fakeLines{
		lines:   map[string][]story.Line{},
		gates:   map[string]chan struct{}{},
		fetches: map[string]int{},
	}
}

func (f *fakeLines) ListLines(ctx context.Context, storyID string) ([]story.Line, error) {
	f.mu.Lock()
	gate := f.gates[storyID]
	f.fetches[storyID]++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]story.Line(nil), f.lines[storyID]...), nil
}

func (f *fakeLines) CreateLine(ctx context.Context, storyID, authorID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, story.Line{StoryID: storyID, AuthorID: authorID, Content: content})
	return nil
}

func (f *fakeLines) fetchCount(storyID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[storyID]
}

type harness struct {
	view  *View
	lines *fakeLines

	mu    sync.Mutex
	chans map[string]*fakeChannel
}

func newHarness(t *testing.T) *harness {
	h := &harness{lines: newFakeLines(), chans: map[string]*fakeChannel{}}
	h.view = New(h.lines, func(ctx context.Context, storyID string) (Channel, error) {
		c := newFakeChannel(storyID)
		h.mu.Lock()
		h.chans[storyID] = c
		h.mu.Unlock()
		return c, nil
	}, Options{UserID: "me", TypingTimeout: time.Minute})
	t.Cleanup(h.view.Close)
	return h
}

func (h *harness) channel(storyID string) *fakeChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chans[storyID]
}

func line(id, storyID, content string) story.Line {
	return story.Line{ID: id, StoryID: storyID, AuthorID: "u2", Content: content}
}

func lineIDs(lines []story.Line) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ID
	}
	return ids
}

func TestOpenLoadsInitialLines(t *testing.T) {
	h := newHarness(t)
	h.lines.lines["s1"] = []story.Line{line("a", "s1", "Once"), line("b", "s1", "upon")}

	require.NoError(t, h.view.Open(context.Background(), "s1"))
	require.Eventually(t, func() bool { return h.view.Snapshot().Loaded }, time.Second, 5*time.Millisecond)

	snap := h.view.Snapshot()
	assert.Equal(t, "s1", snap.StoryID)
	assert.Equal(t, []string{"a", "b"}, lineIDs(snap.Lines))
	assert.Equal(t, "Once upon", snap.FullText)
	assert.Equal(t, 2, snap.WordCount)
}

func TestPushedLinesAreMergedOnce(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.lines.gates["s1"] = gate
	h.lines.lines["s1"] = []story.Line{line("a", "s1", "Once")}

	require.NoError(t, h.view.Open(context.Background(), "s1"))
	act := h.view.current()

	// The push beats the fetch, and the fetch also contains the pushed line.
	require.True(t, h.view.applyEvent(act.id, channel.Event{Name: channel.EventNewLine, Line: line("b", "s1", "upon")}))
	h.lines.mu.Lock()
	h.lines.lines["s1"] = append(h.lines.lines["s1"], line("b", "s1", "upon"))
	h.lines.mu.Unlock()
	close(gate)

	require.Eventually(t, func() bool { return h.view.Snapshot().Loaded }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, lineIDs(h.view.Snapshot().Lines))
}

// Feature: storyline, Property 6: results of a previous activation never
// reach the current one
func TestStaleActivationIsIsolated(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.lines.gates["s1"] = gate
	h.lines.lines["s1"] = []story.Line{line("old", "s1", "stale")}
	h.lines.lines["s2"] = []story.Line{line("new", "s2", "fresh")}

	require.NoError(t, h.view.Open(context.Background(), "s1"))
	old := h.view.current()
	require.NoError(t, h.view.Open(context.Background(), "s2"))
	require.Eventually(t, func() bool { return h.view.Snapshot().Loaded }, time.Second, 5*time.Millisecond)

	// The first story's fetch completes after the switch.
	close(gate)
	assert.Never(t, func() bool {
		for _, l := range h.view.Snapshot().Lines {
			if l.ID == "old" {
				return true
			}
		}
		return false
	}, 100*time.Millisecond, 5*time.Millisecond)

	// A late event or fetch tagged with the old activation is dropped.
	assert.False(t, h.view.applyEvent(old.id, channel.Event{Name: channel.EventNewLine, Line: line("late", "s2", "late")}))
	assert.False(t, h.view.applyEvent(old.id, channel.Event{Name: channel.EventUserTyping, UserID: "u2"}))
	assert.False(t, h.view.applyFetch(old.id, []story.Line{line("late", "s2", "late")}, nil))

	snap := h.view.Snapshot()
	assert.Equal(t, "s2", snap.StoryID)
	assert.Equal(t, []string{"new"}, lineIDs(snap.Lines))
	assert.False(t, snap.Typing)

	assert.True(t, h.channel("s1").isClosed(), "previous channel must be closed")
}

func TestEventsUpdatePresence(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), "s1"))
	c := h.channel("s1")

	c.events <- channel.Event{Name: channel.EventOnlineUsers, UserIDs: []string{"me", "u2", "u3"}}
	c.events <- channel.Event{Name: channel.EventUserTyping, UserID: "u2"}
	require.Eventually(t, func() bool { return h.view.Snapshot().Typing }, time.Second, 5*time.Millisecond)

	snap := h.view.Snapshot()
	assert.Equal(t, []string{"u2", "u3"}, snap.Online)
	assert.Equal(t, "u2", snap.Typer)

	c.events <- channel.Event{Name: channel.EventUserStopTyping}
	require.Eventually(t, func() bool { return !h.view.Snapshot().Typing }, time.Second, 5*time.Millisecond)
}

func TestOwnTypingIsIgnored(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), "s1"))
	act := h.view.current()

	assert.False(t, h.view.applyEvent(act.id, channel.Event{Name: channel.EventUserTyping, UserID: "me"}))
	assert.False(t, h.view.Snapshot().Typing)
}

func TestReconnectResetsPresenceAndRefetches(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), "s1"))
	act := h.view.current()
	require.Eventually(t, func() bool { return h.view.Snapshot().Loaded }, time.Second, 5*time.Millisecond)

	h.view.applyEvent(act.id, channel.Event{Name: channel.EventState, State: channel.StateConnected})
	h.view.applyEvent(act.id, channel.Event{Name: channel.EventOnlineUsers, UserIDs: []string{"u2"}})
	h.view.applyEvent(act.id, channel.Event{Name: channel.EventState, State: channel.StateReconnecting})

	snap := h.view.Snapshot()
	assert.Empty(t, snap.Online)
	assert.Equal(t, channel.StateReconnecting, snap.State)

	h.lines.mu.Lock()
	h.lines.lines["s1"] = []story.Line{line("missed", "s1", "while away")}
	h.lines.mu.Unlock()
	h.view.applyEvent(act.id, channel.Event{Name: channel.EventState, State: channel.StateConnected})

	require.Eventually(t, func() bool { return len(h.view.Snapshot().Lines) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, h.lines.fetchCount("s1"))
}

func TestSubmit(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.view.Submit(context.Background(), "hi"), ErrNotOpen)
	require.NoError(t, h.view.Open(context.Background(), "s1"))
	assert.ErrorIs(t, h.view.Submit(context.Background(), "   "), ErrEmptyLine)

	h.view.Compose("and then")
	require.NoError(t, h.view.Submit(context.Background(), "  and then  "))

	require.Len(t, h.lines.created, 1)
	assert.Equal(t, story.Line{StoryID: "s1", AuthorID: "me", Content: "and then"}, h.lines.created[0])
	// Nothing is appended locally until the channel echoes the line.
	assert.Empty(t, h.view.Snapshot().Lines)
	assert.Equal(t, []string{channel.EventTyping, channel.EventStopTyping}, h.channel("s1").signals())
}

func TestFetchErrorIsReported(t *testing.T) {
	h := newHarness(t)
	h.lines.err = errors.New("boom")
	require.NoError(t, h.view.Open(context.Background(), "s1"))

	require.Eventually(t, func() bool { return h.view.Snapshot().Err != nil }, time.Second, 5*time.Millisecond)
	assert.False(t, h.view.Snapshot().Loaded)
}

func TestCloseClearsSnapshot(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), "s1"))
	h.view.Close()

	snap := h.view.Snapshot()
	assert.Equal(t, "", snap.StoryID)
	assert.Equal(t, channel.StateClosed, snap.State)
	assert.Equal(t, "", h.view.StoryID())
}
