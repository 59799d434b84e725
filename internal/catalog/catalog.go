// Package catalog is the story collection: the list of stories a writer can
// open and the form that starts a new one.
package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/storyline/internal/story"
)

var (
	// ErrTitleRequired and ErrFirstLineRequired are validation failures from
	// Create; nothing is sent to the backend.
	ErrTitleRequired     = errors.New("title is required")
	ErrFirstLineRequired = errors.New("first line is required")
	// ErrNotFound is returned by Find for an unknown story.
	ErrNotFound = errors.New("story not found")
)

// Backend is the part of the API the catalog needs. *api.Client satisfies it.
type Backend interface {
	ListStories(ctx context.Context) ([]story.Story, error)
	CreateStory(ctx context.Context, title, creatorID, firstLine string) (story.Story, error)
}

// Catalog caches the last fetched story list. Safe for concurrent use.
type Catalog struct {
	backend Backend
	log     zerolog.Logger

	mu      sync.RWMutex
	stories []story.Story
	fetched time.Time
}

// New returns an empty Catalog.
func New(backend Backend, log zerolog.Logger) *Catalog {
	return &Catalog{backend: backend, log: log}
}

// Refresh replaces the cached list with the backend's. On error the previous
// list is kept.
func (c *Catalog) Refresh(ctx context.Context) error {
	stories, err := c.backend.ListStories(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.stories = stories
	c.fetched = time.Now()
	c.mu.Unlock()
	c.log.Debug().Int("stories", len(stories)).Msg("catalog refreshed")
	return nil
}

// Stories returns a copy of the cached list, in backend order.
func (c *Catalog) Stories() []story.Story {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]story.Story(nil), c.stories...)
}

// Fetched reports when the list was last refreshed; zero if never.
func (c *Catalog) Fetched() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetched
}

// Find returns the cached story with id.
func (c *Catalog) Find(id string) (story.Story, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.stories {
		if s.ID == id {
			return s, nil
		}
	}
	return story.Story{}, ErrNotFound
}

// Create starts a story with its first line, then refreshes the list. A
// failed refresh does not fail the create.
func (c *Catalog) Create(ctx context.Context, creatorID, title, firstLine string) (story.Story, error) {
	title = strings.TrimSpace(title)
	firstLine = strings.TrimSpace(firstLine)
	if title == "" {
		return story.Story{}, ErrTitleRequired
	}
	if firstLine == "" {
		return story.Story{}, ErrFirstLineRequired
	}

	created, err := c.backend.CreateStory(ctx, title, creatorID, firstLine)
	if err != nil {
		return story.Story{}, err
	}
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("refresh after create failed")
	}
	return created, nil
}

// Greeting returns the salutation shown above the story list.
func Greeting(u story.User, now time.Time) string {
	var part string
	switch h := now.Hour(); {
	case h < 12:
		part = "morning"
	case h < 18:
		part = "afternoon"
	default:
		part = "evening"
	}
	return "Good " + part + ", " + story.DisplayName(u)
}
