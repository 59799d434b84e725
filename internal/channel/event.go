package channel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fakeyudi/storyline/internal/story"
)

// Event names on the wire.
const (
	EventJoinStory      = "join-story"
	EventTyping         = "typing"
	EventStopTyping     = "stop-typing"
	EventNewLine        = "new-line"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
	EventOnlineUsers    = "online-users"

	// EventState is local only: it reports a connection state change.
	EventState = "state"
)

// ErrMalformed wraps every decode failure.
var ErrMalformed = errors.New("malformed event")

// Event is a decoded inbound message. Only the fields relevant to Name are set.
type Event struct {
	Name    string
	Line    story.Line // new-line
	UserID  string     // user-typing
	UserIDs []string   // online-users
	State   State      // state
}

// envelope is the frame layout: {"event": "new-line", "args": [...]}.
type envelope struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args,omitempty"`
}

// Encode builds an outbound frame.
func Encode(name string, args ...any) ([]byte, error) {
	env := envelope{Event: name, Args: make([]json.RawMessage, 0, len(args))}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", name, err)
		}
		env.Args = append(env.Args, raw)
	}
	return json.Marshal(env)
}

// Decode parses and validates an inbound frame. Unknown event names are an
// error so callers can log and drop them.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev := Event{Name: env.Event}

	switch env.Event {
	case EventNewLine:
		if len(env.Args) < 1 {
			return Event{}, fmt.Errorf("%w: %s without line", ErrMalformed, env.Event)
		}
		if err := json.Unmarshal(env.Args[0], &ev.Line); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
		}
		if err := ev.Line.Validate(); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
		}
	case EventUserTyping:
		if len(env.Args) < 1 {
			return Event{}, fmt.Errorf("%w: %s without user", ErrMalformed, env.Event)
		}
		if err := json.Unmarshal(env.Args[0], &ev.UserID); err != nil || ev.UserID == "" {
			return Event{}, fmt.Errorf("%w: %s: bad user id", ErrMalformed, env.Event)
		}
	case EventUserStopTyping:
		// no payload
	case EventOnlineUsers:
		if len(env.Args) < 1 {
			return Event{}, fmt.Errorf("%w: %s without list", ErrMalformed, env.Event)
		}
		if err := json.Unmarshal(env.Args[0], &ev.UserIDs); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
		}
		if ev.UserIDs == nil {
			ev.UserIDs = []string{}
		}
	default:
		return Event{}, fmt.Errorf("%w: unknown event %q", ErrMalformed, env.Event)
	}
	return ev, nil
}
