package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/storyline/internal/prompt"
	"github.com/fakeyudi/storyline/internal/story"
)

var (
	authName     string
	authEmail    string
	authPassword string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		form := prompt.Registration{Name: authName, Email: authEmail, Password: authPassword}
		if authPassword != "" {
			form.Confirm = authPassword
		}
		p := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
		form, err := p.AskRegistration(form)
		if err != nil {
			return fmt.Errorf("register cancelled: %w", err)
		}
		if err := form.Validate(); err != nil {
			return err
		}

		client := newClient()
		if err := client.Register(cmd.Context(), form.Name, form.Email, form.Password); err != nil {
			return apiError("register", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "  ✓ Account created.")
		return login(cmd, form.Email, form.Password)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the storyline backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
		email, password, err := p.AskLogin(authEmail, authPassword)
		if err != nil {
			return fmt.Errorf("login cancelled: %w", err)
		}
		return login(cmd, email, password)
	},
}

func login(cmd *cobra.Command, email, password string) error {
	creds, err := newClient().Login(cmd.Context(), email, password)
	if err != nil {
		return apiError("login", err)
	}
	if err := holder.Login(creds); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	logger.Info().Str("user", creds.User.ID).Msg("logged in")
	fmt.Fprintf(cmd.OutOrStdout(), "  ✓ Logged in as %s.\n", story.DisplayName(creds.User))
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !holder.IsAuthorized() {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
			return nil
		}
		if err := holder.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := currentUser()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Name:    %s\n", story.DisplayName(u))
		if u.Email != "" {
			fmt.Fprintf(out, "Email:   %s\n", u.Email)
		}
		fmt.Fprintf(out, "User ID: %s\n", u.ID)
		fmt.Fprintf(out, "Backend: %s\n", cfg.BackendURL)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&authName, "name", "", "display name")
	for _, c := range []*cobra.Command{registerCmd, loginCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "account email")
		c.Flags().StringVar(&authPassword, "password", "", "account password (prompted when omitted)")
	}
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd)
}
