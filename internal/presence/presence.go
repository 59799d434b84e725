// Package presence tracks who else is connected to a story's channel and
// whether any of them is composing a line.
package presence

import (
	"sort"
	"sync"
	"time"
)

// DefaultTypingTimeout clears a typing indicator whose stop signal was lost.
const DefaultTypingTimeout = 6 * time.Second

// Tracker is safe for concurrent use. All remote typers share one flag.
type Tracker struct {
	mu            sync.RWMutex
	localUserID   string
	typingTimeout time.Duration
	online        map[string]struct{}
	typing        bool
	typingSince   time.Time
	typingUser    string
}

// New returns a Tracker that excludes localUserID from every view.
// A non-positive typingTimeout disables auto-clear.
func New(localUserID string, typingTimeout time.Duration) *Tracker {
	return &Tracker{
		localUserID:   localUserID,
		typingTimeout: typingTimeout,
		online:        make(map[string]struct{}),
	}
}

// Replace installs a fresh online set from an online-users event.
func (t *Tracker) Replace(userIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == "" || id == t.localUserID {
			continue
		}
		t.online[id] = struct{}{}
	}
}

// Online returns the remote users, sorted.
func (t *Tracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of remote users online.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.online)
}

// StartTyping records a remote user-typing signal. Signals from the local
// user are ignored. It reports whether the flag changed.
func (t *Tracker) StartTyping(userID string, now time.Time) bool {
	if userID == t.localUserID {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.activeLocked(now)
	t.typing = true
	t.typingSince = now
	t.typingUser = userID
	return !was
}

// StopTyping clears the flag no matter who stopped.
func (t *Tracker) StopTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.typing
	t.typing = false
	t.typingUser = ""
	return was
}

// Typing reports whether someone else is composing as of now.
func (t *Tracker) Typing(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.activeLocked(now)
}

// LastTyper returns the user behind the most recent typing signal, if the
// flag is still set.
func (t *Tracker) LastTyper(now time.Time) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.activeLocked(now) {
		return ""
	}
	return t.typingUser
}

// TypingDeadline returns when the current typing flag expires on its own.
// The zero time means no expiry is pending.
func (t *Tracker) TypingDeadline() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.typing || t.typingTimeout <= 0 {
		return time.Time{}
	}
	return t.typingSince.Add(t.typingTimeout)
}

func (t *Tracker) activeLocked(now time.Time) bool {
	if !t.typing {
		return false
	}
	if t.typingTimeout > 0 && now.Sub(t.typingSince) >= t.typingTimeout {
		return false
	}
	return true
}

// Reset forgets everything; used when the channel drops or rejoins.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online = make(map[string]struct{})
	t.typing = false
	t.typingUser = ""
}
