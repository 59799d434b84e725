// Package session manages the authenticated identity: a process-wide Holder
// passed explicitly to the components that need it, and its on-disk copy so
// the identity survives between commands.
package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/fakeyudi/storyline/internal/story"
)

// ErrUnauthorized is returned when an operation needs a session and none is
// held, or the held token has expired.
var ErrUnauthorized = errors.New("unauthorized")

// Credentials is what a successful login returns.
type Credentials struct {
	Token string     `json:"token"`
	User  story.User `json:"user"`
}

// Holder owns the current identity. The zero value is not usable; call
// NewHolder.
type Holder struct {
	mu      sync.RWMutex
	current *Session
	store   SessionStore
	now     func() time.Time
	subs    []chan *Session
}

// NewHolder returns a Holder that mirrors changes into store. store may be
// nil for a purely in-memory identity.
func NewHolder(store SessionStore) *Holder {
	return &Holder{store: store, now: time.Now}
}

// Restore loads the persisted session, if any. A missing or expired session
// leaves the holder logged out and is not an error.
func (h *Holder) Restore() error {
	if h.store == nil {
		return nil
	}
	s, err := h.store.Load()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil
		}
		return err
	}
	if !s.Valid(h.now()) {
		return h.store.Delete()
	}
	h.mu.Lock()
	h.current = s
	h.mu.Unlock()
	return nil
}

// Login installs creds. The new identity is persisted and observable before
// Login returns.
func (h *Holder) Login(creds Credentials) error {
	if creds.Token == "" {
		return errors.New("login returned no token")
	}
	s := &Session{Token: creds.Token, User: creds.User, SavedAt: h.now()}
	if h.store != nil {
		if err := h.store.Save(s); err != nil {
			return err
		}
	}
	h.set(s)
	return nil
}

// Logout drops the identity and its on-disk copy.
func (h *Holder) Logout() error {
	h.set(nil)
	if h.store != nil {
		return h.store.Delete()
	}
	return nil
}

// Invalidate is Logout for a token the backend rejected. Storage errors are
// ignored since the in-memory identity is already gone.
func (h *Holder) Invalidate() {
	h.mu.RLock()
	had := h.current != nil
	h.mu.RUnlock()
	if !had {
		return
	}
	_ = h.Logout()
}

// IsAuthorized reports whether a usable token is held.
func (h *Holder) IsAuthorized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Valid(h.now())
}

// Token returns the bearer token, or ErrUnauthorized.
func (h *Holder) Token() (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.current.Valid(h.now()) {
		return "", ErrUnauthorized
	}
	return h.current.Token, nil
}

// User returns the logged-in user and whether one is held.
func (h *Holder) User() (story.User, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return story.User{}, false
	}
	return h.current.User, true
}

// Current returns a copy of the held session, or nil.
func (h *Holder) Current() *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return nil
	}
	c := *h.current
	return &c
}

// Subscribe returns a channel that receives the new session (nil on logout)
// after every change, and a func that unsubscribes it. Slow subscribers miss
// intermediate values. The channel is never closed.
func (h *Holder) Subscribe() (<-chan *Session, func()) {
	ch := make(chan *Session, 1)
	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.subs = slices.DeleteFunc(h.subs, func(c chan *Session) bool { return c == ch })
	}
}

func (h *Holder) set(s *Session) {
	h.mu.Lock()
	h.current = s
	subs := append([]chan *Session(nil), h.subs...)
	h.mu.Unlock()

	for _, ch := range subs {
		var c *Session
		if s != nil {
			cp := *s
			c = &cp
		}
		select {
		case ch <- c:
		default:
			// drop the stale value and keep the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}
