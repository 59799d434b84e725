// Package channel is the client side of a story's real-time channel.
//
// One Conn belongs to one open story. It keeps a websocket to the backend
// alive, reconnecting with exponential backoff, re-announces join-story after
// every (re)connect, and delivers decoded inbound events on Events(). Close is
// synchronous: once it returns nothing more is delivered.
package channel

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// State of the underlying connection.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "closed"
	}
}

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("channel closed")

const (
	eventBufferSize = 64
	sendBufferSize  = 16
)

// Settings tunes timeouts and the reconnect policy.
type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	// ReadTimeout must exceed PingInterval; a pong extends the deadline.
	ReadTimeout time.Duration
	// NewBackOff builds the reconnect policy for one Conn.
	NewBackOff func() backoff.BackOff
}

// DefaultSettings mirrors what a browser socket client would do.
func DefaultSettings() Settings {
	return Settings{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     20 * time.Second,
		ReadTimeout:      45 * time.Second,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 15 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Options identify the story and user a Conn is for.
type Options struct {
	URL     string // websocket endpoint, ws:// or wss://
	StoryID string
	UserID  string
	Token   string      // sent as a bearer header when set
	Header  http.Header // extra handshake headers
	Jar     http.CookieJar
	Logger  zerolog.Logger
	// Settings defaults to DefaultSettings when zero.
	Settings Settings
}

// Conn is one story's channel.
type Conn struct {
	opts   Options
	dialer *websocket.Dialer
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan Event
	send   chan []byte

	mu        sync.RWMutex
	state     State
	closed    bool
	closeOnce sync.Once
}

// Dial starts the channel for opts.StoryID and returns immediately. The
// connection is established in the background; watch Events for
// EventState to follow it.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if opts.URL == "" {
		return nil, errors.New("channel: empty url")
	}
	if opts.StoryID == "" {
		return nil, errors.New("channel: empty story id")
	}
	if opts.Settings.NewBackOff == nil {
		opts.Settings = DefaultSettings()
	}
	u, err := handshakeURL(opts.URL, opts.UserID)
	if err != nil {
		return nil, err
	}
	opts.URL = u

	runCtx, cancel := context.WithCancel(ctx)
	c := &Conn{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.Settings.HandshakeTimeout,
			Jar:              opts.Jar,
		},
		log:    opts.Logger.With().Str("story", opts.StoryID).Logger(),
		ctx:    runCtx,
		cancel: cancel,
		events: make(chan Event, eventBufferSize),
		send:   make(chan []byte, sendBufferSize),
		state:  StateConnecting,
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

func handshakeURL(raw, userID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if userID != "" {
		q := u.Query()
		q.Set("userId", userID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// StoryID returns the story this Conn was opened for.
func (c *Conn) StoryID() string { return c.opts.StoryID }

// Events delivers inbound events. It is closed by Close.
func (c *Conn) Events() <-chan Event { return c.events }

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Typing announces that the local user is composing.
func (c *Conn) Typing() error {
	return c.Send(EventTyping, c.opts.StoryID, c.opts.UserID)
}

// StopTyping announces that the local user cleared their draft.
func (c *Conn) StopTyping() error {
	return c.Send(EventStopTyping, c.opts.StoryID, c.opts.UserID)
}

// Send queues an outbound event. Presence signals are best effort: when the
// queue is full the frame is dropped.
func (c *Conn) Send(name string, args ...any) error {
	frame, err := Encode(name, args...)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- frame:
	default:
		c.log.Debug().Str("event", name).Msg("send queue full, dropping")
	}
	return nil
}

// Close disconnects and waits for the background goroutines to exit. No
// leave-story event is sent; the server drops presence when the socket
// closes.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()
		c.wg.Wait()

		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		// Nothing queued before the close may reach the consumer afterwards.
		for {
			select {
			case <-c.events:
				continue
			default:
			}
			break
		}
		close(c.events)
	})
}

func (c *Conn) run() {
	defer c.wg.Done()

	b := c.opts.Settings.NewBackOff()
	b.Reset()
	for {
		ws, err := c.connect()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Info().Err(err).Msg("channel connect failed")
			c.setState(StateReconnecting)
			if !c.wait(b) {
				return
			}
			continue
		}

		b.Reset()
		c.setState(StateConnected)
		c.serve(ws)
		if c.ctx.Err() != nil {
			return
		}
		c.setState(StateReconnecting)
		if !c.wait(b) {
			return
		}
	}
}

// wait sleeps for the next backoff interval. It returns false when the
// Conn is closing or the policy gave up.
func (c *Conn) wait(b backoff.BackOff) bool {
	d := b.NextBackOff()
	if d == backoff.Stop {
		c.log.Info().Msg("channel reconnect policy exhausted")
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Conn) connect() (*websocket.Conn, error) {
	header := http.Header{}
	for k, v := range c.opts.Header {
		header[k] = append([]string(nil), v...)
	}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	ws, _, err := c.dialer.DialContext(c.ctx, c.opts.URL, header)
	if err != nil {
		return nil, err
	}

	join, err := Encode(EventJoinStory, c.opts.StoryID)
	if err != nil {
		ws.Close()
		return nil, err
	}
	ws.SetWriteDeadline(time.Now().Add(c.opts.Settings.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, join); err != nil {
		ws.Close()
		return nil, err
	}
	c.log.Debug().Msg("joined story channel")
	return ws, nil
}

// serve pumps frames until the socket fails or the Conn is closed.
func (c *Conn) serve(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(c.ctx)
	defer handleCancel()

	settings := c.opts.Settings
	ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer handleCancel()

		ping := time.NewTicker(settings.PingInterval)
		defer ping.Stop()
		for {
			select {
			case <-handleCtx.Done():
				ws.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			case frame := <-c.send:
				ws.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
					c.log.Info().Err(err).Msg("channel write failed")
					return
				}
			case <-ping.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(settings.WriteTimeout)); err != nil {
					c.log.Info().Err(err).Msg("channel ping failed")
					return
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		defer handleCancel()

		for {
			messageType, frame, err := ws.ReadMessage()
			if err != nil {
				if handleCtx.Err() == nil {
					c.log.Info().Err(err).Msg("channel read failed")
				}
				return
			}
			ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
			if messageType != websocket.TextMessage {
				continue
			}
			ev, err := Decode(frame)
			if err != nil {
				c.log.Warn().Err(err).Msg("dropping channel frame")
				continue
			}
			if !c.deliver(handleCtx, ev) {
				return
			}
		}
	}()

	// Unblock ReadMessage once the writer or the Conn gives up.
	<-handleCtx.Done()
	ws.SetReadDeadline(time.Now())
	wg.Wait()
}

func (c *Conn) deliver(ctx context.Context, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case c.events <- ev:
		return true
	}
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s || c.closed {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.log.Debug().Str("state", s.String()).Msg("channel state")
	c.deliver(c.ctx, Event{Name: EventState, State: s})
}
