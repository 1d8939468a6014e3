package cli

import (
	"fmt"
	"strconv"

	auth "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-errors"
	"github.com/spf13/cobra"
)

const maxPasswordAttempts = 3

func newReadCommand(opts *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "read <post|life> <id>",
		Short: "Print a post, asking for its password when it has one",
		Long: `Print the content of a post or life post. Protected items ask for
their password; the access token it yields is used for this one read and
then dropped. The stored session is never sent along with it.

Examples:
  blogctl read post 1
  blogctl read life 7 --password family-only`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := auth.ParseResourceKind(args[0])
			if !ok {
				return errors.New("unknown content kind "+strconv.Quote(args[0]), errors.CategoryValidation)
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return errors.Wrap(err, errors.CategoryValidation, "content id must be an integer")
			}

			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			view := s.resourceView(kind, id)
			defer view.Close()

			state, err := view.Open(ctx)
			if state == auth.ViewError {
				return err
			}

			if state == auth.ViewChallenge {
				fmt.Fprintln(out, titleStyle.Render(challengeTitle(view)))

				// a password given as a flag gets one attempt
				attempts := maxPasswordAttempts
				if password != "" {
					attempts = 1
				}
				for i := 0; i < attempts && view.State() != auth.ViewUnlocked; i++ {
					value := password
					if err := askMissing(opts.prompt, promptField{title: "Password", secret: true, value: &value}); err != nil {
						return err
					}
					if _, err := view.SubmitPassword(ctx, value); err != nil && !auth.IsAccessDeniedError(err) {
						return err
					}
					if view.State() == auth.ViewChallenge {
						fmt.Fprintln(out, deniedStyle.Render(auth.ErrorMessage(view.ChallengeError())))
					}
				}
				if view.State() != auth.ViewUnlocked {
					return view.ChallengeError()
				}
			}

			fmt.Fprintln(out, view.Content())
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "content password")
	return cmd
}

func challengeTitle(view *auth.ResourceAccessController) string {
	if meta := view.Meta(); meta != nil && meta.Title != "" {
		return meta.Title + " is password protected"
	}
	return fmt.Sprintf("%s %d is password protected", view.Kind(), view.ID())
}
