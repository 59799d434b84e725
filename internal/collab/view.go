// Package collab owns the state behind one open story: its channel, its line
// feed and the presence of other writers.
//
// A View holds at most one activation at a time. Opening another story tears
// the previous activation down before the new one starts, and every fetch
// result or channel event is tagged with the activation that issued it, so
// nothing from a story the user already left can reach the current one.
package collab

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fakeyudi/storyline/internal/channel"
	"github.com/fakeyudi/storyline/internal/feed"
	"github.com/fakeyudi/storyline/internal/presence"
	"github.com/fakeyudi/storyline/internal/story"
)

var (
	// ErrNotOpen is returned when no story is open.
	ErrNotOpen = errors.New("no story open")
	// ErrEmptyLine is returned by Submit for blank content.
	ErrEmptyLine = errors.New("line is empty")
)

// Lines is the request/response half of the backend. *api.Client satisfies it.
type Lines interface {
	ListLines(ctx context.Context, storyID string) ([]story.Line, error)
	CreateLine(ctx context.Context, storyID, authorID, content string) error
}

// Channel is the push half for one story. *channel.Conn satisfies it.
type Channel interface {
	Events() <-chan channel.Event
	State() channel.State
	Typing() error
	StopTyping() error
	Close()
}

// Dialer opens the channel for storyID.
type Dialer func(ctx context.Context, storyID string) (Channel, error)

// Options configure a View.
type Options struct {
	UserID        string
	TypingTimeout time.Duration
	TypingRefresh time.Duration
	FetchTimeout  time.Duration
	Logger        zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a consistent copy of the open story's state.
type Snapshot struct {
	StoryID   string
	Lines     []story.Line
	FullText  string
	WordCount int
	Online    []string
	Typing    bool
	Typer     string
	State     channel.State
	Loaded    bool
	Err       error
}

// View is safe for concurrent use.
type View struct {
	lines Lines
	dial  Dialer
	opts  Options
	log   zerolog.Logger

	// openMu serializes Open and Close; mu guards active.
	openMu  sync.Mutex
	mu      sync.Mutex
	active  *activation
	updates chan struct{}
}

type activation struct {
	id       string
	storyID  string
	ctx      context.Context
	cancel   context.CancelFunc
	conn     Channel
	feed     *feed.Store
	presence *presence.Tracker
	emitter  *channel.Emitter
	pump     sync.WaitGroup

	// guarded by View.mu
	state     channel.State
	connected bool
	loaded    bool
	err       error
	clear     *time.Timer
}

// New returns a View that fetches through lines and opens channels with dial.
func New(lines Lines, dial Dialer, opts Options) *View {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TypingTimeout == 0 {
		opts.TypingTimeout = presence.DefaultTypingTimeout
	}
	return &View{
		lines:   lines,
		dial:    dial,
		opts:    opts,
		log:     opts.Logger,
		updates: make(chan struct{}, 1),
	}
}

// Updates signals that Snapshot would return something new. Signals are
// coalesced; the channel is never closed.
func (v *View) Updates() <-chan struct{} { return v.updates }

// Open makes storyID the active story. The previous activation is fully torn
// down first. The initial fetch runs in the background.
func (v *View) Open(ctx context.Context, storyID string) error {
	if storyID == "" {
		return errors.New("collab: empty story id")
	}
	v.openMu.Lock()
	defer v.openMu.Unlock()

	v.teardown()

	conn, err := v.dial(ctx, storyID)
	if err != nil {
		return err
	}
	actCtx, cancel := context.WithCancel(ctx)
	act := &activation{
		id:       uuid.NewString(),
		storyID:  storyID,
		ctx:      actCtx,
		cancel:   cancel,
		conn:     conn,
		feed:     feed.New(storyID),
		presence: presence.New(v.opts.UserID, v.opts.TypingTimeout),
		emitter:  channel.NewEmitter(conn, v.opts.TypingRefresh),
		state:    conn.State(),
	}

	v.mu.Lock()
	v.active = act
	v.mu.Unlock()

	v.log.Debug().Str("story", storyID).Str("activation", act.id).Msg("story opened")

	act.pump.Add(1)
	go v.pumpEvents(act)
	go v.fetch(act)
	v.notify()
	return nil
}

// Close tears down the active story, if any.
func (v *View) Close() {
	v.openMu.Lock()
	defer v.openMu.Unlock()
	v.teardown()
	v.notify()
}

// teardown must be called with openMu held.
func (v *View) teardown() {
	v.mu.Lock()
	act := v.active
	v.active = nil
	if act != nil && act.clear != nil {
		act.clear.Stop()
	}
	v.mu.Unlock()
	if act == nil {
		return
	}

	act.cancel()
	act.conn.Close()
	act.pump.Wait()
	v.log.Debug().Str("story", act.storyID).Str("activation", act.id).Msg("story closed")
}

// StoryID returns the open story, or "".
func (v *View) StoryID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == nil {
		return ""
	}
	return v.active.storyID
}

// Submit posts a new line to the open story. The line is not added locally:
// it shows up when the channel echoes it back.
func (v *View) Submit(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyLine
	}
	act := v.current()
	if act == nil {
		return ErrNotOpen
	}
	if err := v.lines.CreateLine(ctx, act.storyID, v.opts.UserID, content); err != nil {
		return err
	}
	// The draft is cleared once the line is accepted.
	if err := act.emitter.Update("", v.opts.Now()); err != nil && !errors.Is(err, channel.ErrClosed) {
		v.log.Debug().Err(err).Msg("stop-typing failed")
	}
	return nil
}

// Compose reports the current draft so typing signals can be sent.
func (v *View) Compose(text string) {
	act := v.current()
	if act == nil {
		return
	}
	if err := act.emitter.Update(text, v.opts.Now()); err != nil && !errors.Is(err, channel.ErrClosed) {
		v.log.Debug().Err(err).Msg("typing signal failed")
	}
}

// Refetch reloads the open story's lines and merges them into the feed.
func (v *View) Refetch() {
	if act := v.current(); act != nil {
		go v.fetch(act)
	}
}

// Snapshot returns the open story's state. The zero Snapshot means no story
// is open.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	act := v.active
	if act == nil {
		return Snapshot{State: channel.StateClosed}
	}
	now := v.opts.Now()
	return Snapshot{
		StoryID:   act.storyID,
		Lines:     act.feed.Lines(),
		FullText:  act.feed.FullText(),
		WordCount: act.feed.WordCount(),
		Online:    act.presence.Online(),
		Typing:    act.presence.Typing(now),
		Typer:     act.presence.LastTyper(now),
		State:     act.state,
		Loaded:    act.loaded,
		Err:       act.err,
	}
}

func (v *View) current() *activation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *View) notify() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}

func (v *View) fetch(act *activation) {
	ctx := act.ctx
	if v.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.opts.FetchTimeout)
		defer cancel()
	}
	lines, err := v.lines.ListLines(ctx, act.storyID)
	v.applyFetch(act.id, lines, err)
}

// applyFetch installs a fetch result if activationID is still the active one.
func (v *View) applyFetch(activationID string, lines []story.Line, err error) bool {
	v.mu.Lock()
	act := v.active
	if act == nil || act.id != activationID {
		v.mu.Unlock()
		v.log.Debug().Str("activation", activationID).Msg("discarding stale fetch")
		return false
	}
	if err != nil {
		act.err = err
	} else {
		act.feed.Seed(lines)
		act.loaded = true
		act.err = nil
	}
	v.mu.Unlock()
	if err != nil {
		v.log.Warn().Err(err).Str("story", act.storyID).Msg("fetching lines failed")
	}
	v.notify()
	return true
}

func (v *View) pumpEvents(act *activation) {
	defer act.pump.Done()
	for ev := range act.conn.Events() {
		if v.applyEvent(act.id, ev) {
			v.notify()
		}
	}
}

// applyEvent mutates the active story for ev. Events for any other
// activation are dropped. It reports whether anything changed.
func (v *View) applyEvent(activationID string, ev channel.Event) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	act := v.active
	if act == nil || act.id != activationID {
		return false
	}

	now := v.opts.Now()
	switch ev.Name {
	case channel.EventNewLine:
		return act.feed.Append(ev.Line)
	case channel.EventUserTyping:
		changed := act.presence.StartTyping(ev.UserID, now)
		v.scheduleClear(act)
		return changed
	case channel.EventUserStopTyping:
		return act.presence.StopTyping()
	case channel.EventOnlineUsers:
		act.presence.Replace(ev.UserIDs)
		return true
	case channel.EventState:
		act.state = ev.State
		switch ev.State {
		case channel.StateReconnecting:
			act.presence.Reset()
		case channel.StateConnected:
			// Lines pushed while disconnected were missed; merge them in.
			if act.connected {
				go v.fetch(act)
			}
			act.connected = true
		}
		return true
	}
	return false
}

// scheduleClear wakes the UI when the typing indicator expires, since no
// event will arrive if the stop signal was lost. Called with mu held.
func (v *View) scheduleClear(act *activation) {
	if act.clear != nil {
		act.clear.Stop()
	}
	d := act.presence.TypingDeadline().Sub(v.opts.Now())
	if d <= 0 {
		return
	}
	act.clear = time.AfterFunc(d, v.notify)
}
