package cli

import (
	"fmt"
	"time"

	auth "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

var errNotLoggedIn = errors.New("not logged in, run blogctl login", errors.CategoryAuth).
	WithTextCode(auth.TextCodeUnauthorized)

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Long: `Log in with a username and password. Missing values are prompted for.

Examples:
  blogctl login
  blogctl login --username reader --password reader-password`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}

			err = askMissing(opts.prompt,
				promptField{title: "Username", value: &username},
				promptField{title: "Password", secret: true, value: &password},
			)
			if err != nil {
				return err
			}

			msg := auth.LoginMessage{Username: username, Password: password}
			if err := auth.NewLoginHandler(s.ctrl).Execute(cmd.Context(), msg); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Logged in as "+displayName(s.store.User())))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newRegisterCommand(opts *rootOptions) *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in with it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}

			err = askMissing(opts.prompt,
				promptField{title: "Username", value: &username},
				promptField{title: "Email", value: &email},
				promptField{title: "Password", secret: true, value: &password},
			)
			if err != nil {
				return err
			}

			msg := auth.RegisterMessage{Username: username, Email: email, Password: password}
			if err := auth.NewRegisterHandler(s.ctrl).Execute(cmd.Context(), msg); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Registered and logged in as "+displayName(s.store.User())))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}

			if s.store.Token() == "" {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Not logged in."))
				return nil
			}
			if err := s.ctrl.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Logged out."))
			return nil
		},
	}
}

func newWhoamiCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the profile that owns the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}

			user := s.store.User()
			if user == nil {
				return errNotLoggedIn
			}
			fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(user))
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and what it can open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			snap := s.store.Snapshot()

			fmt.Fprintln(out, titleStyle.Render("Session"))
			fmt.Fprintln(out, field("backend", s.cfg.BaseURL))
			fmt.Fprintln(out, field("status", string(snap.Status)))
			fmt.Fprintln(out, field("user", displayName(snap.User)))
			fmt.Fprintln(out, field("token", tokenSummary(s.store.Codec(), snap.Token, time.Now())))

			fmt.Fprintln(out)
			fmt.Fprintln(out, titleStyle.Render("Access"))
			for _, level := range []auth.AccessLevel{auth.LevelPublic, auth.LevelAuthenticated, auth.LevelAdmin} {
				decision := auth.EvaluateGuard(snap, level, s.store.Codec())
				fmt.Fprintln(out, labelStyle.Render(string(level))+renderDecision(decision))
			}
			return nil
		},
	}
}

func displayName(user *auth.UserProfile) string {
	if user == nil {
		return "anonymous"
	}
	return fmt.Sprintf("%s (%s)", user.Username, roleName(user))
}

func roleName(user *auth.UserProfile) string {
	if user.IsAdmin {
		return "admin"
	}
	return "member"
}

func tokenSummary(codec *auth.TokenCodec, token string, now time.Time) string {
	if token == "" {
		return "none"
	}
	claims, err := codec.Validate(token)
	if err != nil {
		if auth.IsTokenExpiredError(err) {
			return "expired"
		}
		return "unreadable"
	}
	return fmt.Sprintf("expires %s (in %s)",
		claims.Expires().Local().Format(time.RFC3339),
		claims.TTL(now).Round(time.Second))
}

func renderDecision(d auth.GuardDecision) string {
	switch d.State {
	case auth.GuardAuthorized:
		return successStyle.Render("authorized")
	case auth.GuardDenied:
		return deniedStyle.Render("denied") + mutedStyle.Render(" ("+string(d.Reason)+")")
	default:
		return mutedStyle.Render("checking")
	}
}
