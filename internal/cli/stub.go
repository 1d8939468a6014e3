package cli

import (
	"fmt"
	"net/url"

	"github.com/goliatone/go-auth-client/internal/stubbackend"
	"github.com/goliatone/go-errors"
	"github.com/spf13/cobra"
)

func newStubBackendCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "stub-backend",
		Short: "Serve a local backend with seeded accounts and posts",
		Long: `Serve the backend API from memory for local development. The API is
mounted under the path of the configured base URL, so the other commands
work against it without extra flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.StubBackend.Addr
			}

			base, err := url.Parse(cfg.BaseURL)
			if err != nil {
				return errors.Wrap(err, errors.CategoryValidation, "invalid base URL")
			}

			ctx := cmd.Context()
			srv, err := stubbackend.New(ctx, stubbackend.Options{
				BasePath: base.Path,
				Secret:   cfg.StubBackend.Secret,
				TokenTTL: cfg.StubBackend.TokenTTL,
				Seed:     true,
				Logger:   newStderrLogger(cmd.ErrOrStderr(), cfg.Debug),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Seeded accounts"))
			fmt.Fprintln(out, field(stubbackend.SeedAdminUsername, stubbackend.SeedAdminPassword+" (admin)"))
			fmt.Fprintln(out, field(stubbackend.SeedMemberUsername, stubbackend.SeedMemberPassword))
			fmt.Fprintln(out, titleStyle.Render("Protected content"))
			fmt.Fprintln(out, field(fmt.Sprintf("post %d", stubbackend.SeedProtectedPostID), stubbackend.SeedPostPassword))
			fmt.Fprintln(out, field(fmt.Sprintf("life %d", stubbackend.SeedLifePostID), stubbackend.SeedLifePassword))

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Listen(addr)
			}()

			select {
			case <-ctx.Done():
				return srv.Shutdown()
			case err := <-errCh:
				_ = srv.Store().Close()
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
