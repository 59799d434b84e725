package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/storyline/internal/api"
	"github.com/fakeyudi/storyline/internal/catalog"
	"github.com/fakeyudi/storyline/internal/channel"
	"github.com/fakeyudi/storyline/internal/collab"
	"github.com/fakeyudi/storyline/internal/session"
	"github.com/fakeyudi/storyline/internal/story"
	"github.com/fakeyudi/storyline/internal/tui"
)

var errSessionEnded = errors.New("session ended, run 'storyline login'")

var openCmd = &cobra.Command{
	Use:   "open <story-id>",
	Short: "Open a story and write together",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := currentUser()
		if err != nil {
			return err
		}
		client := newClient()
		c := catalog.New(client, logger)
		if err := c.Refresh(cmd.Context()); err != nil {
			return apiError("loading stories", err)
		}
		s, err := c.Find(args[0])
		if err != nil {
			return fmt.Errorf("%w: %s", err, args[0])
		}
		_, err = runStory(cmd.Context(), client, u, s)
		return err
	},
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Pick a story from the list, or start one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := currentUser()
		if err != nil {
			return err
		}
		client := newClient()
		c := catalog.New(client, logger)
		for {
			picked, err := tui.RunPicker(cmd.Context(), c, u)
			if err != nil {
				return err
			}
			if picked.Expired {
				return errSessionEnded
			}
			if !picked.Chosen {
				return nil
			}
			res, err := runStory(cmd.Context(), client, u, picked.Story)
			if err != nil {
				return err
			}
			if !res.Back {
				return nil
			}
		}
	},
}

// runStory opens s in a fresh collab view and runs the chat until the user
// leaves. The chat ends early when the session disappears.
func runStory(ctx context.Context, client *api.Client, u story.User, s story.Story) (tui.ChatResult, error) {
	chURL, err := cfg.Channel()
	if err != nil {
		return tui.ChatResult{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ended atomic.Bool
	changes, unsubscribe := holder.Subscribe()
	defer unsubscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sess := <-changes:
				if sess == nil {
					ended.Store(true)
					cancel()
					return
				}
			}
		}
	}()
	go func() {
		if err := session.Watch(ctx, holder, store, logger); err != nil {
			logger.Warn().Err(err).Msg("session watch unavailable")
		}
	}()

	dial := func(ctx context.Context, storyID string) (collab.Channel, error) {
		token, err := holder.Token()
		if err != nil {
			return nil, err
		}
		conn, err := channel.Dial(ctx, channel.Options{
			URL:     chURL,
			StoryID: storyID,
			UserID:  u.ID,
			Token:   token,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	view := collab.New(client, dial, collab.Options{
		UserID:        u.ID,
		TypingTimeout: cfg.TypingTimeoutDuration(),
		TypingRefresh: cfg.TypingRefreshDuration(),
		FetchTimeout:  cfg.RequestTimeoutDuration(),
		Logger:        logger,
	})
	defer view.Close()

	if err := view.Open(ctx, s.ID); err != nil {
		return tui.ChatResult{}, fmt.Errorf("opening story: %w", err)
	}
	logger.Info().Str("story", s.ID).Msg("writing session started")

	res, err := tui.RunChat(ctx, view, titleOf(s), u)
	if ended.Load() || res.Expired {
		return res, errSessionEnded
	}
	return res, err
}

func init() {
	rootCmd.AddCommand(openCmd, browseCmd)
}
