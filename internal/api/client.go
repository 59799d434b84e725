// Package api is the request/response client for the storytelling backend.
//
// Every authorized call attaches the bearer token from the identity holder.
// A 401 answer invalidates that holder and comes back as an *Error of
// KindUnauthorized so the caller can send the user to login.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/storyline/internal/session"
	"github.com/fakeyudi/storyline/internal/story"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultTLSTimeout     = 5 * time.Second
	maxResponseBytes      = 8 << 20
	maxMessageRunes       = 200
)

// Identity supplies the bearer token and is told when the backend rejects it.
// *session.Holder satisfies it.
type Identity interface {
	Token() (string, error)
	Invalidate()
}

// Client talks to the backend. Safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	identity Identity
	log      zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the overall per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			hc := *cl.http
			hc.Timeout = d
			cl.http = &hc
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// New returns a Client for baseURL. identity may be nil when only
// unauthenticated calls (Register, Login) are made.
func New(baseURL string, identity Identity, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     defaultHTTPClient(),
		identity: identity,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: defaultConnectTimeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultTLSTimeout,
	}
	return &http.Client{Transport: transport, Timeout: defaultTimeout}
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

type registerArgs struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginArgs struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createStoryArgs struct {
	Title     string `json:"title"`
	CreatorID string `json:"creator_id"`
	FirstLine string `json:"first_line"`
}

type createLineArgs struct {
	StoryID  string `json:"story_id"`
	AuthorID string `json:"author_id"`
	Content  string `json:"content"`
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	_, err := post[json.RawMessage](ctx, c, "/users/create", registerArgs{
		Name:     name,
		Email:    email,
		Password: password,
	}, false)
	return err
}

// Login exchanges email and password for credentials.
func (c *Client) Login(ctx context.Context, email, password string) (session.Credentials, error) {
	creds, err := post[session.Credentials](ctx, c, "/auth/login", loginArgs{
		Email:    email,
		Password: password,
	}, false)
	if err != nil {
		return session.Credentials{}, err
	}
	if creds.Token == "" {
		return session.Credentials{}, &Error{Kind: KindTransport, Message: "login response carried no token"}
	}
	return creds, nil
}

// CreateStory starts a story with its first line.
func (c *Client) CreateStory(ctx context.Context, title, creatorID, firstLine string) (story.Story, error) {
	return post[story.Story](ctx, c, "/stories/create", createStoryArgs{
		Title:     title,
		CreatorID: creatorID,
		FirstLine: firstLine,
	}, true)
}

// ListStories returns the stories visible to the logged-in user.
func (c *Client) ListStories(ctx context.Context) ([]story.Story, error) {
	stories, err := get[[]story.Story](ctx, c, "/stories")
	if stories == nil && err == nil {
		stories = []story.Story{}
	}
	return stories, err
}

// CreateLine contributes content to storyID. The new line is not returned to
// the feed directly: it arrives through the story's channel like any other.
func (c *Client) CreateLine(ctx context.Context, storyID, authorID, content string) error {
	_, err := post[json.RawMessage](ctx, c, "/lines/"+url.PathEscape(storyID), createLineArgs{
		StoryID:  storyID,
		AuthorID: authorID,
		Content:  content,
	}, true)
	return err
}

// ListLines returns every line of storyID in server order.
func (c *Client) ListLines(ctx context.Context, storyID string) ([]story.Line, error) {
	lines, err := get[[]story.Line](ctx, c, "/lines/"+url.PathEscape(storyID))
	if err != nil {
		return nil, err
	}
	for i := range lines {
		if lines[i].StoryID == "" {
			lines[i].StoryID = storyID
		}
	}
	return lines, nil
}

func post[R any](ctx context.Context, c *Client, path string, args any, authorized bool) (R, error) {
	var empty R
	body, err := json.Marshal(args)
	if err != nil {
		return empty, &Error{Kind: KindTransport, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return empty, &Error{Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return do[R](c, req, authorized)
}

func get[R any](ctx context.Context, c *Client, path string) (R, error) {
	var empty R
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return empty, &Error{Kind: KindTransport, Err: err}
	}
	return do[R](c, req, true)
}

func do[R any](c *Client, req *http.Request, authorized bool) (R, error) {
	var empty R
	req.Header.Set("Accept", "application/json")

	if authorized {
		if c.identity == nil {
			return empty, &Error{Kind: KindUnauthorized, Message: "not logged in"}
		}
		token, err := c.identity.Token()
		if err != nil {
			return empty, &Error{Kind: KindUnauthorized, Message: "not logged in", Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("request failed")
		return empty, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")
	if err != nil {
		return empty, &Error{Kind: KindTransport, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{
			Kind:    classify(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: errorMessage(data),
		}
		// Without a token a 401 rejects the input (bad credentials), not a session.
		if apiErr.Kind == KindUnauthorized && !authorized {
			apiErr.Kind = KindValidation
		}
		if apiErr.Kind == KindUnauthorized && authorized && c.identity != nil {
			c.identity.Invalidate()
		}
		return empty, apiErr
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return empty, nil
	}
	var result R
	if err := decodeData(data, &result); err != nil {
		return empty, &Error{Kind: KindTransport, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return result, nil
}

// decodeData accepts both a bare payload and one wrapped as {"data": ...}.
func decodeData(data []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, out); err == nil {
			return nil
		}
	}
	return json.Unmarshal(data, out)
}

// errorMessage extracts the backend's message from an error body. It accepts
// {"error": "..."}, {"message": "..."}, {"errors": ["..."]} or plain text.
func errorMessage(data []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Errors  []string        `json:"errors"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if len(payload.Error) > 0 {
			var s string
			if json.Unmarshal(payload.Error, &s) == nil && s != "" {
				return s
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
		if payload.Message != "" {
			return payload.Message
		}
		if len(payload.Errors) > 0 {
			return strings.Join(payload.Errors, "; ")
		}
		return ""
	}
	text := strings.TrimSpace(string(data))
	if r := []rune(text); len(r) > maxMessageRunes {
		text = string(r[:maxMessageRunes])
	}
	return text
}

// IsUnauthorized reports whether err means the session is gone.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, session.ErrUnauthorized)
}
