package tui

import "time"

const (
	tipPeriod   = 10 * time.Second
	quotePeriod = 5 * time.Second
)

var writingTips = []string{
	"✨ Pick up from the previous line to keep the flow",
	"🎭 Develop a character or situation already in play",
	"🌟 Add an unexpected twist",
	"💭 Describe emotions and sensations vividly",
	"🎪 Bring in a new element that enriches the plot",
}

type quote struct {
	text   string
	author string
}

var quotes = []quote{
	{"Words have the power to create whole worlds", "J.K. Rowling"},
	{"Writing is the only way to make time stand still", "Gabriel García Márquez"},
	{"A shared story is a story multiplied", "Isabel Allende"},
	{"Imagination is the only weapon in the war against reality", "Lewis Carroll"},
	{"Every blank page is an endless opportunity", "Maya Angelou"},
}

// rotation returns which of n items is showing at now when the display
// started at since and advances every period.
func rotation(n int, since, now time.Time, period time.Duration) int {
	if n == 0 {
		return 0
	}
	elapsed := now.Sub(since)
	if elapsed < 0 {
		elapsed = 0
	}
	return int(elapsed/period) % n
}

func tipAt(since, now time.Time) string {
	return writingTips[rotation(len(writingTips), since, now, tipPeriod)]
}

func quoteAt(since, now time.Time) quote {
	return quotes[rotation(len(quotes), since, now, quotePeriod)]
}

// likes is the set of line IDs the reader marked during this chat. It is
// local only and is not sent to the backend.
type likes map[string]struct{}

// toggle flips id and reports whether it is now liked.
func (l likes) toggle(id string) bool {
	if _, ok := l[id]; ok {
		delete(l, id)
		return false
	}
	l[id] = struct{}{}
	return true
}

func (l likes) has(id string) bool {
	_, ok := l[id]
	return ok
}
