// Package cli implements the blogctl commands on top of the session and
// content access library.
package cli

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	auth "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/config"
	"github.com/goliatone/go-errors"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath  string
	baseURL     string
	sessionFile string
	debug       bool

	prompt prompter
}

// NewRootCommand builds the blogctl command tree
func NewRootCommand() *cobra.Command {
	return newRootCommand(formPrompter{})
}

func newRootCommand(p prompter) *cobra.Command {
	opts := &rootOptions{prompt: p}

	cmd := &cobra.Command{
		Use:   "blogctl",
		Short: "Session and protected content client for the blog",
		Long: `blogctl keeps a blog session on disk and uses it the way the web
frontend does: route checks for the admin area, a profile lookup on every
start, and per post passwords for protected content.

Examples:
  blogctl login --username reader
  blogctl open /admin/posts
  blogctl read post 42`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default is "+config.DefaultPath()+")")
	flags.StringVar(&opts.baseURL, "base-url", "", "backend API base URL")
	flags.StringVar(&opts.sessionFile, "session-file", "", "where the session token is stored")
	flags.BoolVar(&opts.debug, "debug", false, "log backend traffic to stderr")

	cmd.AddCommand(
		newLoginCommand(opts),
		newRegisterCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newStatusCommand(opts),
		newOpenCommand(opts),
		newReadCommand(opts),
		newStubBackendCommand(opts),
	)
	return cmd
}

// ExecuteContext runs blogctl with os.Args
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if o.debug {
		cfg.Debug = true
	}
	if o.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(o.baseURL, "/")
	}
	if o.sessionFile != "" {
		cfg.TokenPath = o.sessionFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Describe renders err for the terminal: the user facing message plus
// any field validation details.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	msg := auth.ErrorMessage(err)

	var verrs validation.Errors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return msg + ": " + verrs.Error()
	}
	return msg
}
