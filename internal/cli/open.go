package cli

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"

	auth "github.com/goliatone/go-auth-client"
	"github.com/spf13/cobra"
)

// page is a frontend location resolved to its guard level and, for detail
// pages, the content item it shows.
type page struct {
	Path  string
	Level auth.AccessLevel
	Kind  auth.ResourceKind
	ID    int64
}

var detailPath = regexp.MustCompile(`^/(posts|life)/(\d+)/?$`)

var memberPages = map[string]bool{
	"/profile": true,
}

func resolvePage(routes auth.Routes, path string) page {
	p := page{Path: path, Level: auth.LevelPublic}

	switch {
	case path == routes.Login || path == routes.AdminLogin:
		return p
	case routes.IsAdminPath(path):
		p.Level = auth.LevelAdmin
		return p
	case memberPages[path]:
		p.Level = auth.LevelAuthenticated
		return p
	}

	if m := detailPath.FindStringSubmatch(path); m != nil {
		kind, _ := auth.ParseResourceKind(m[1])
		id, err := strconv.ParseInt(m[2], 10, 64)
		if err == nil {
			p.Kind = kind
			p.ID = id
		}
	}
	return p
}

func newOpenCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Navigate to a frontend path and report what it renders",
		Long: `Resolve a frontend path the way the web client does. Admin pages are
checked against the stored session and confirmed with the backend; a
rejected session is cleared and sent to the admin login. Post and life
post pages report whether they need a password.

Examples:
  blogctl open /admin/posts/new
  blogctl open /posts/42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			return s.open(cmd.Context(), cmd.OutOrStdout(), resolvePage(s.routes, args[0]))
		},
	}
}

func (s *session) open(ctx context.Context, out io.Writer, p page) error {
	s.history.Navigate(p.Path)

	guard := auth.NewRouteGuard(s.store,
		auth.WithAccessLevel(p.Level),
		auth.WithGuardRoutes(s.routes),
		auth.WithGuardLogger(s.logger),
		auth.WithGuardActivitySink(s.sink),
	)
	defer guard.Close()

	outcome, err := guard.Serve(ctx, auth.ViewFunc(func(ctx context.Context) error {
		return s.renderPage(ctx, out, p)
	}))

	if location := s.history.Location(); location != p.Path {
		fmt.Fprintln(out, deniedStyle.Render("redirect ")+valueStyle.Render(location)+
			mutedStyle.Render(" (session rejected by backend)"))
		return nil
	}
	if err != nil {
		return err
	}

	switch outcome.Kind {
	case auth.OutcomeRedirect:
		s.history.Navigate(outcome.Location)
		fmt.Fprintln(out, deniedStyle.Render("redirect ")+valueStyle.Render(outcome.Location)+
			mutedStyle.Render(" ("+string(outcome.Reason)+")"))
	case auth.OutcomeWait:
		fmt.Fprintln(out, mutedStyle.Render("checking session"))
	}
	return nil
}

func (s *session) renderPage(ctx context.Context, out io.Writer, p page) error {
	if p.Level == auth.LevelAdmin {
		// the stored session only says who we were; the backend decides
		if _, err := s.client.Me(ctx); err != nil {
			return err
		}
	}

	if p.Kind == "" {
		fmt.Fprintln(out, successStyle.Render("render ")+valueStyle.Render(p.Path))
		return nil
	}

	view := s.resourceView(p.Kind, p.ID)
	defer view.Close()

	state, err := view.Open(ctx)
	switch state {
	case auth.ViewUnlocked:
		fmt.Fprintln(out, successStyle.Render("render ")+valueStyle.Render(p.Path))
		fmt.Fprintln(out, view.Content())
		return nil
	case auth.ViewChallenge:
		fmt.Fprintln(out, deniedStyle.Render("locked ")+valueStyle.Render(p.Path)+
			mutedStyle.Render(fmt.Sprintf(" (blogctl read %s %d)", p.Kind, p.ID)))
		return nil
	}
	return err
}
