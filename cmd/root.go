package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/storyline/internal/api"
	"github.com/fakeyudi/storyline/internal/config"
	"github.com/fakeyudi/storyline/internal/logging"
	"github.com/fakeyudi/storyline/internal/session"
	"github.com/fakeyudi/storyline/internal/story"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

var (
	logger   = zerolog.Nop()
	logFile  io.Closer
	store    session.SessionStore
	holder   *session.Holder
	debugLog bool
)

// errNotLoggedIn is returned by commands that need an identity.
var errNotLoggedIn = errors.New("not logged in, run 'storyline login'")

var rootCmd = &cobra.Command{
	Use:           "storyline",
	Short:         "Write stories together, one line at a time",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// First run: no global config yet → run the setup wizard, but only
		// when a person is at the keyboard.
		if path, err := config.GlobalPath(); err == nil && cmd.Name() != "setup" {
			if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) && term.IsTerminal(os.Stdin.Fd()) {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), "  Welcome to storyline! Looks like this is your first time.")
				if err := runSetup(cmd); err != nil {
					return err
				}
			}
		}

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		return initRuntime()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeRuntime()
	},
}

// initRuntime opens the log file and restores the saved session.
func initRuntime() error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if debugLog {
		level = zerolog.DebugLevel
	}
	l, closer, err := logging.Open(level)
	if err != nil {
		// Logging is best effort; the commands work without it.
		fmt.Fprintf(os.Stderr, "storyline: %v\n", err)
		l = zerolog.Nop()
	}
	logger, logFile = l, closer

	s, err := session.NewSessionStore()
	if err != nil {
		return err
	}
	store = s
	holder = session.NewHolder(store)
	if err := holder.Restore(); err != nil {
		logger.Warn().Err(err).Msg("restoring session failed")
	}
	return nil
}

func closeRuntime() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		closeRuntime()
		stop()
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

func newClient() *api.Client {
	return api.New(cfg.BackendURL, holder,
		api.WithTimeout(cfg.RequestTimeoutDuration()),
		api.WithLogger(logger),
	)
}

func currentUser() (story.User, error) {
	if holder == nil {
		return story.User{}, errNotLoggedIn
	}
	u, ok := holder.User()
	if !ok {
		return story.User{}, errNotLoggedIn
	}
	return u, nil
}

// apiError turns a backend failure into the message shown to the user. The
// client has already cleared the session on an unauthorized answer.
func apiError(action string, err error) error {
	if api.IsUnauthorized(err) {
		return errors.New(api.UserMessage(err))
	}
	return fmt.Errorf("%s: %s", action, api.UserMessage(err))
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "write debug output to the log file")
}
