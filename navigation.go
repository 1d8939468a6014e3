package auth

import (
	"context"
	"strings"
	"sync"
)

// Routes holds the redirect targets used by guards and the 401 interceptor
type Routes struct {
	Home        string
	Login       string
	AdminLogin  string
	AdminPrefix string
}

// DefaultRoutes mirrors the blog frontend paths
func DefaultRoutes() Routes {
	return Routes{
		Home:        "/",
		Login:       "/login",
		AdminLogin:  "/admin/login",
		AdminPrefix: "/admin",
	}
}

// RoutesFromConfig reads route paths from cfg, keeping defaults for blanks
func RoutesFromConfig(cfg Config) Routes {
	r := DefaultRoutes()
	if cfg == nil {
		return r
	}
	if v := cfg.GetHomePath(); v != "" {
		r.Home = v
	}
	if v := cfg.GetLoginPath(); v != "" {
		r.Login = v
	}
	if v := cfg.GetAdminLoginPath(); v != "" {
		r.AdminLogin = v
	}
	if v := cfg.GetAdminPathPrefix(); v != "" {
		r.AdminPrefix = v
	}
	return r
}

// IsAdminPath reports whether path is under the administrator prefix
func (r Routes) IsAdminPath(path string) bool {
	prefix := strings.TrimSuffix(r.AdminPrefix, "/")
	if prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// LoginFor returns the login surface for a route of the given level
func (r Routes) LoginFor(level AccessLevel) string {
	if level == LevelAdmin {
		return r.AdminLogin
	}
	return r.Login
}

// History is an in-memory Navigator
type History struct {
	mu      sync.Mutex
	entries []string
}

// NewHistory starts at path
func NewHistory(path string) *History {
	if path == "" {
		path = "/"
	}
	return &History{entries: []string{path}}
}

func (h *History) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[len(h.entries)-1]
}

// Navigate replaces the current entry when it already equals path, so
// repeated redirects stay idempotent.
func (h *History) Navigate(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.entries[len(h.entries)-1] == path {
		return
	}
	h.entries = append(h.entries, path)
}

// Entries returns a copy of the visited locations
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// UnauthorizedInterceptor is the single central handler for 401s: it
// clears the session and, inside an administrator area, sends the user to
// the administrator login.
type UnauthorizedInterceptor struct {
	store     *SessionStore
	navigator Navigator
	routes    Routes
	logger    Logger
}

// NewUnauthorizedInterceptor builds the interceptor. navigator may be nil
// for headless clients.
func NewUnauthorizedInterceptor(store *SessionStore, navigator Navigator, routes Routes) *UnauthorizedInterceptor {
	return &UnauthorizedInterceptor{
		store:     store,
		navigator: navigator,
		routes:    routes,
		logger:    defLogger{},
	}
}

// WithLogger overrides the logger
func (u *UnauthorizedInterceptor) WithLogger(logger Logger) *UnauthorizedInterceptor {
	u.logger = normalizeLogger(logger)
	return u
}

// Handle satisfies UnauthorizedHandler
func (u *UnauthorizedInterceptor) Handle(_ context.Context, token string) {
	if u.store != nil {
		u.store.HandleUnauthorized(token)
	}

	if u.navigator == nil {
		return
	}

	location := u.navigator.Location()
	if u.routes.IsAdminPath(location) && location != u.routes.AdminLogin {
		u.logger.Info("unauthorized inside admin area, redirecting from %s to %s", location, u.routes.AdminLogin)
		u.navigator.Navigate(u.routes.AdminLogin)
	}
}

// Install registers the interceptor as client's 401 hook
func (u *UnauthorizedInterceptor) Install(client *APIClient) {
	client.SetUnauthorizedHandler(u.Handle)
}
