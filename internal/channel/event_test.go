package channel

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeEnvelope(t *testing.T) {
	frame, err := Encode(EventTyping, "s1", "u1")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(frame, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["event"] != "typing" {
		t.Errorf("event: got %v", got["event"])
	}
	args, _ := got["args"].([]any)
	if len(args) != 2 || args[0] != "s1" || args[1] != "u1" {
		t.Errorf("args: got %v", got["args"])
	}
}

func TestDecodeInboundEvents(t *testing.T) {
	cases := []struct {
		frame string
		check func(t *testing.T, ev Event)
	}{
		{`{"event":"new-line","args":[{"id":"L1","storyId":"s1","authorId":"u2","content":"Once"}]}`, func(t *testing.T, ev Event) {
			if ev.Line.ID != "L1" || ev.Line.Content != "Once" || ev.Line.StoryID != "s1" {
				t.Errorf("line: %+v", ev.Line)
			}
		}},
		{`{"event":"user-typing","args":["u2"]}`, func(t *testing.T, ev Event) {
			if ev.UserID != "u2" {
				t.Errorf("user: %q", ev.UserID)
			}
		}},
		{`{"event":"user-stop-typing"}`, func(t *testing.T, ev Event) {}},
		{`{"event":"online-users","args":[["a","b"]]}`, func(t *testing.T, ev Event) {
			if len(ev.UserIDs) != 2 {
				t.Errorf("users: %v", ev.UserIDs)
			}
		}},
		{`{"event":"online-users","args":[null]}`, func(t *testing.T, ev Event) {
			if ev.UserIDs == nil || len(ev.UserIDs) != 0 {
				t.Errorf("want empty non-nil list, got %#v", ev.UserIDs)
			}
		}},
	}
	for _, c := range cases {
		ev, err := Decode([]byte(c.frame))
		if err != nil {
			t.Errorf("Decode(%s): %v", c.frame, err)
			continue
		}
		c.check(t, ev)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	frames := []string{
		`not json`,
		`{"event":"new-line"}`,
		`{"event":"new-line","args":["text"]}`,
		`{"event":"new-line","args":[{"content":"no id"}]}`,
		`{"event":"user-typing","args":[42]}`,
		`{"event":"user-typing","args":[""]}`,
		`{"event":"online-users","args":["a"]}`,
		`{"event":"something-else"}`,
	}
	for _, f := range frames {
		if _, err := Decode([]byte(f)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%s): want ErrMalformed, got %v", f, err)
		}
	}
}
