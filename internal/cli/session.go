package cli

import (
	"fmt"
	"io"

	auth "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/activitymap"
	"github.com/goliatone/go-auth-client/config"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

// session is the per invocation wiring: one store shared by every consumer
// of the command, fed from the token file.
type session struct {
	cfg     *config.Config
	logger  auth.Logger
	sink    auth.ActivitySink
	routes  auth.Routes
	client  *auth.APIClient
	store   *auth.SessionStore
	history *auth.History
	ctrl    *auth.AuthController
}

func openSession(cmd *cobra.Command, opts *rootOptions) (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	var logger auth.Logger = auth.NopLogger{}
	var sink auth.ActivitySink
	if cfg.Debug {
		logger = newStderrLogger(cmd.ErrOrStderr(), true)
		sink = activityPrinter(cmd.ErrOrStderr())
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		routes: auth.RoutesFromConfig(cfg),
		client: auth.NewAPIClientFromConfig(cfg, auth.WithClientLogger(logger)),
	}
	s.history = auth.NewHistory(s.routes.Home)
	s.store = auth.NewSessionStore(
		auth.NewFileTokenStorage(cfg.TokenPath),
		s.client,
		auth.WithCredentialHolder(s.client),
		auth.WithStoreLogger(logger),
		auth.WithStoreActivitySink(sink),
	)
	auth.NewUnauthorizedInterceptor(s.store, s.history, s.routes).
		WithLogger(logger).
		Install(s.client)
	s.ctrl = auth.NewAuthController(s.store, s.client,
		auth.WithControllerLogger(logger),
		auth.WithControllerActivitySink(sink),
	)

	s.store.Load(cmd.Context())
	return s, nil
}

// activityPrinter writes normalized activity records for --debug runs
func activityPrinter(w io.Writer) auth.ActivitySink {
	return activitymap.Sink(func(n activitymap.Normalized) error {
		_, err := fmt.Fprintln(w, debugStyle.Render("ACT")+" "+print.MaybePrettyJSON(n))
		return err
	}, activitymap.WithDefaultChannel(config.AppName))
}

func (s *session) resourceView(kind auth.ResourceKind, id int64) *auth.ResourceAccessController {
	return auth.NewResourceAccessController(s.client, kind, id,
		auth.WithResourceLogger(s.logger),
		auth.WithResourceActivitySink(s.sink),
	)
}

type stderrLogger struct {
	w     io.Writer
	debug bool
}

func newStderrLogger(w io.Writer, debug bool) stderrLogger {
	return stderrLogger{w: w, debug: debug}
}

func (l stderrLogger) Debug(format string, args ...any) {
	if l.debug {
		l.write(debugStyle.Render("DBG"), format, args...)
	}
}

func (l stderrLogger) Info(format string, args ...any) {
	l.write(infoStyle.Render("INF"), format, args...)
}

func (l stderrLogger) Warn(format string, args ...any) {
	l.write(warnStyle.Render("WRN"), format, args...)
}

func (l stderrLogger) Error(format string, args ...any) {
	l.write(errorStyle.Render("ERR"), format, args...)
}

func (l stderrLogger) write(level, format string, args ...any) {
	fmt.Fprintf(l.w, "%s %s\n", level, fmt.Sprintf(format, args...))
}
