package auth

import (
	"context"
	"sync"
)

// GuardState is the state of a RouteGuard
type GuardState string

const (
	GuardChecking   GuardState = "checking"
	GuardAuthorized GuardState = "authorized"
	GuardDenied     GuardState = "denied"
)

// DenyReason explains a GuardDenied state
type DenyReason string

const (
	DenyNone             DenyReason = ""
	DenyNoValidToken     DenyReason = "no-valid-token"
	DenyNotAdmin         DenyReason = "not-admin"
	DenyNotAuthenticated DenyReason = "not-authenticated"
)

// GuardDecision is a state plus, when denied, the reason
type GuardDecision struct {
	State  GuardState
	Reason DenyReason
}

var decisionChecking = GuardDecision{State: GuardChecking}

// OutcomeKind tells the caller what to render
type OutcomeKind string

const (
	// OutcomeWait renders a neutral waiting state
	OutcomeWait OutcomeKind = "wait"
	// OutcomeRender renders the guarded view
	OutcomeRender OutcomeKind = "render"
	// OutcomeRedirect replaces the location with Outcome.Location
	OutcomeRedirect OutcomeKind = "redirect"
)

// Outcome is the render-time result of a guard
type Outcome struct {
	Kind     OutcomeKind
	Location string
	Reason   DenyReason
}

// View is the page a guard protects
type View interface {
	Render(ctx context.Context) error
}

// ViewFunc adapts a function to the View interface.
type ViewFunc func(ctx context.Context) error

// Render implements View.
func (f ViewFunc) Render(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// GuardTransitionHook is executed after the guard changes state.
type GuardTransitionHook func(from, to GuardDecision)

// GuardOption customizes a RouteGuard
type GuardOption func(*RouteGuard)

// RequireAdmin makes the route administrator only
func RequireAdmin() GuardOption {
	return WithAccessLevel(LevelAdmin)
}

// WithAccessLevel sets the minimum level for the route
func WithAccessLevel(level AccessLevel) GuardOption {
	return func(g *RouteGuard) {
		if level.IsValid() {
			g.level = level
		}
	}
}

// WithGuardRoutes overrides the redirect targets
func WithGuardRoutes(routes Routes) GuardOption {
	return func(g *RouteGuard) {
		g.routes = routes
	}
}

// WithGuardCodec overrides the codec used for rule one
func WithGuardCodec(codec *TokenCodec) GuardOption {
	return func(g *RouteGuard) {
		if codec != nil {
			g.codec = codec
		}
	}
}

// WithGuardTransitionHook adds a hook executed after every state change
func WithGuardTransitionHook(h GuardTransitionHook) GuardOption {
	return func(g *RouteGuard) {
		if h != nil {
			g.hooks = append(g.hooks, h)
		}
	}
}

// WithGuardActivitySink records guard transitions
func WithGuardActivitySink(sink ActivitySink) GuardOption {
	return func(g *RouteGuard) {
		g.sink = normalizeActivitySink(sink)
	}
}

// WithGuardLogger overrides the logger
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *RouteGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// RouteGuard wraps one protected route instance. It starts in
// GuardChecking, settles on GuardAuthorized or GuardDenied once the store
// is ready, and re-evaluates on every session event until closed.
type RouteGuard struct {
	store  *SessionStore
	codec  *TokenCodec
	level  AccessLevel
	routes Routes
	hooks  []GuardTransitionHook
	sink   ActivitySink
	logger Logger

	mu       sync.Mutex
	decision GuardDecision
	sub      *Subscription
	closed   bool
}

// NewRouteGuard mounts a guard for an authenticated-only route, or an
// admin route with RequireAdmin.
func NewRouteGuard(store *SessionStore, opts ...GuardOption) *RouteGuard {
	g := &RouteGuard{
		store:    store,
		codec:    store.Codec(),
		level:    LevelAuthenticated,
		routes:   DefaultRoutes(),
		sink:     noopActivitySink{},
		logger:   defLogger{},
		decision: decisionChecking,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	g.sub = store.Subscribe(g)
	g.reevaluate(false)
	return g
}

// EvaluateGuard applies the transition rules to snap. Rules run in order
// and only once the session is ready.
func EvaluateGuard(snap SessionSnapshot, level AccessLevel, codec *TokenCodec) GuardDecision {
	if level == LevelPublic {
		return GuardDecision{State: GuardAuthorized}
	}

	if snap.Status != StatusReady {
		return decisionChecking
	}

	if !normalizeCodec(codec).IsValid(snap.Token) {
		return GuardDecision{State: GuardDenied, Reason: DenyNoValidToken}
	}

	if level == LevelAdmin && (snap.User == nil || !snap.User.IsAdmin) {
		return GuardDecision{State: GuardDenied, Reason: DenyNotAdmin}
	}

	if snap.User == nil {
		return GuardDecision{State: GuardDenied, Reason: DenyNotAuthenticated}
	}

	return GuardDecision{State: GuardAuthorized}
}

// OnSessionEvent implements SessionListener. Every event re-enters
// GuardChecking and then evaluates the latest snapshot rather than the event
// payload, so late deliveries converge.
func (g *RouteGuard) OnSessionEvent(SessionEvent) {
	g.reevaluate(true)
}

type guardStep struct {
	from GuardDecision
	to   GuardDecision
}

// reevaluate reads the snapshot and stores the decision in one critical
// section, so concurrent events cannot leave an older decision behind.
func (g *RouteGuard) reevaluate(recheck bool) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}

	var steps []guardStep
	prev := g.decision
	if recheck && prev != decisionChecking {
		steps = append(steps, guardStep{from: prev, to: decisionChecking})
		prev = decisionChecking
	}

	next := EvaluateGuard(g.store.Snapshot(), g.level, g.codec)
	if next != prev {
		steps = append(steps, guardStep{from: prev, to: next})
	}
	g.decision = next
	hooks := append([]GuardTransitionHook(nil), g.hooks...)
	g.mu.Unlock()

	for _, step := range steps {
		g.transitioned(step, hooks)
	}
}

func (g *RouteGuard) transitioned(step guardStep, hooks []GuardTransitionHook) {
	g.logger.Debug("route guard %s: %s -> %s %s", g.level, step.from.State, step.to.State, step.to.Reason)
	for _, h := range hooks {
		h(step.from, step.to)
	}
	recordActivity(context.Background(), g.sink, g.logger, ActivityEvent{
		EventType: ActivityEventGuardTransition,
		Metadata: map[string]any{
			"level":  string(g.level),
			"from":   string(step.from.State),
			"to":     string(step.to.State),
			"reason": string(step.to.Reason),
		},
	})
}

// Decision returns the current state and reason
func (g *RouteGuard) Decision() GuardDecision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// State returns the current state
func (g *RouteGuard) State() GuardState {
	return g.Decision().State
}

// Level returns the level the route requires
func (g *RouteGuard) Level() AccessLevel {
	return g.level
}

// Render maps the current decision to an outcome. It has no side effects
// and may be called any number of times.
func (g *RouteGuard) Render() Outcome {
	d := g.Decision()
	switch d.State {
	case GuardAuthorized:
		return Outcome{Kind: OutcomeRender}
	case GuardDenied:
		return Outcome{
			Kind:     OutcomeRedirect,
			Location: g.routes.LoginFor(g.level),
			Reason:   d.Reason,
		}
	default:
		return Outcome{Kind: OutcomeWait}
	}
}

// Serve renders view when authorized, passing the profile and claims in
// ctx. Other outcomes are returned for the caller to act on.
func (g *RouteGuard) Serve(ctx context.Context, view View) (Outcome, error) {
	out := g.Render()
	if out.Kind != OutcomeRender || view == nil {
		return out, nil
	}

	snap := g.store.Snapshot()
	if snap.User != nil {
		ctx = WithProfile(ctx, snap.User)
	}
	if snap.Claims != nil {
		ctx = WithClaimsContext(ctx, snap.Claims)
	}
	return out, view.Render(ctx)
}

// Close unmounts the guard. Later session events are ignored.
func (g *RouteGuard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	sub := g.sub
	g.mu.Unlock()

	sub.Unsubscribe()
}
