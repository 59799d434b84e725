package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/storyline/internal/story"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	return executeWithInput(root, "", args...)
}

// executeWithInput is executeCommand with input fed to the prompts.
func executeWithInput(root *cobra.Command, input string, args ...string) (output string, err error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// resetFlags restores every flag to its default; cobra keeps parsed values
// between executions.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// fakeBackend is an in-memory storytelling backend with one account.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	token   string
	stories []story.Story
	lines   map[string][]story.Line
	users   map[string]string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{
		t:     t,
		token: "tok-1",
		lines: map[string][]story.Line{},
		users: map[string]string{"ada@example.com": "secret1"},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/create", b.register)
	mux.HandleFunc("POST /auth/login", b.login)
	mux.HandleFunc("GET /stories", b.authorized(b.listStories))
	mux.HandleFunc("POST /stories/create", b.authorized(b.createStory))
	mux.HandleFunc("GET /lines/{id}", b.authorized(b.listLines))
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		want := "Bearer " + b.token
		b.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			b.reply(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) register(w http.ResponseWriter, r *http.Request) {
	var body struct{ Name, Email, Password string }
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&body))
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[body.Email]; ok {
		b.reply(w, http.StatusBadRequest, map[string]string{"error": "Email already registered"})
		return
	}
	b.users[body.Email] = body.Password
	b.reply(w, http.StatusCreated, map[string]string{"id": "u-new"})
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var body struct{ Email, Password string }
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&body))
	b.mu.Lock()
	defer b.mu.Unlock()
	if pw, ok := b.users[body.Email]; !ok || pw != body.Password {
		b.reply(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
		return
	}
	name := strings.SplitN(body.Email, "@", 2)[0]
	b.reply(w, http.StatusOK, map[string]any{
		"token": b.token,
		"user":  story.User{ID: "u-" + name, Name: strings.ToUpper(name[:1]) + name[1:], Email: body.Email},
	})
}

func (b *fakeBackend) listStories(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reply(w, http.StatusOK, b.stories)
}

func (b *fakeBackend) createStory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title     string `json:"title"`
		CreatorID string `json:"creator_id"`
		FirstLine string `json:"first_line"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&body))
	b.mu.Lock()
	defer b.mu.Unlock()
	s := story.Story{ID: "s" + string(rune('1'+len(b.stories))), Title: body.Title, CreatorID: body.CreatorID, CreatedAt: time.Now().UTC()}
	b.stories = append(b.stories, s)
	b.lines[s.ID] = []story.Line{{ID: s.ID + "-l1", StoryID: s.ID, AuthorID: body.CreatorID, Content: body.FirstLine}}
	b.reply(w, http.StatusCreated, map[string]any{"data": s})
}

func (b *fakeBackend) listLines(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reply(w, http.StatusOK, b.lines[r.PathValue("id")])
}

func (b *fakeBackend) rotateToken() {
	b.mu.Lock()
	b.token = "tok-2"
	b.mu.Unlock()
}

// testEnv isolates config, session and log files and points the CLI at a
// fresh fake backend.
func testEnv(t *testing.T) *fakeBackend {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", home+"/data")
	t.Setenv("XDG_STATE_HOME", home+"/state")
	t.Chdir(t.TempDir())

	b := newFakeBackend(t)
	t.Setenv("STORYLINE_BACKEND_URL", b.srv.URL)
	t.Setenv("STORYLINE_OUTPUT_DIR", home+"/exports")
	t.Cleanup(closeRuntime)
	return b
}

func loginAda(t *testing.T) {
	t.Helper()
	out, err := executeCommand(rootCmd, "login", "--email", "ada@example.com", "--password", "secret1")
	require.NoError(t, err, out)
}
