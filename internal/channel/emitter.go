package channel

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Signaler sends the local user's composing signals. *Conn satisfies it.
type Signaler interface {
	Typing() error
	StopTyping() error
}

// Emitter turns draft edits into typing signals. It fires on the
// empty→non-empty and non-empty→empty edges only, plus a refresh of "typing"
// at most once per refresh interval while the draft stays non-empty, so
// peers that auto-clear a stale indicator keep seeing it.
type Emitter struct {
	mu        sync.Mutex
	sig       Signaler
	refresh   *rate.Limiter
	composing bool
}

// NewEmitter returns an Emitter for sig. refresh <= 0 disables the refresh.
func NewEmitter(sig Signaler, refresh time.Duration) *Emitter {
	e := &Emitter{sig: sig}
	if refresh > 0 {
		e.refresh = rate.NewLimiter(rate.Every(refresh), 1)
	}
	return e
}

// Update reports the current draft text at time now.
func (e *Emitter) Update(text string, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	composing := text != ""
	switch {
	case composing && !e.composing:
		e.composing = true
		if e.refresh != nil {
			e.refresh.AllowN(now, 1)
		}
		return e.sig.Typing()
	case composing && e.refresh != nil && e.refresh.AllowN(now, 1):
		return e.sig.Typing()
	case !composing && e.composing:
		e.composing = false
		return e.sig.StopTyping()
	}
	return nil
}

// Composing reports whether the last update had a non-empty draft.
func (e *Emitter) Composing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.composing
}
