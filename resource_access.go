package auth

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
)

const TextCodeResultDiscarded = "RESULT_DISCARDED"

// ErrResultDiscarded is returned when a call finished after the view was
// closed or after a newer call superseded it.
var ErrResultDiscarded = errors.New("result discarded, resource view changed", errors.CategoryOperation).
	WithTextCode(TextCodeResultDiscarded)

// ViewState is the state of a protected content view
type ViewState string

const (
	ViewLoading   ViewState = "loading"
	ViewChallenge ViewState = "challenge"
	ViewUnlocked  ViewState = "unlocked"
	ViewError     ViewState = "error"
)

// ResourceOption customizes a ResourceAccessController
type ResourceOption func(*ResourceAccessController)

// WithResourceLogger overrides the logger
func WithResourceLogger(logger Logger) ResourceOption {
	return func(r *ResourceAccessController) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResourceActivitySink records granted and rejected challenges
func WithResourceActivitySink(sink ActivitySink) ResourceOption {
	return func(r *ResourceAccessController) {
		r.sink = normalizeActivitySink(sink)
	}
}

// ResourceAccessController drives the password challenge of one content
// item. The scoped token it obtains lives only in this value and is never
// handed to the SessionStore.
type ResourceAccessController struct {
	backend ResourceBackend
	kind    ResourceKind
	id      int64
	logger  Logger
	sink    ActivitySink

	mu           sync.Mutex
	state        ViewState
	meta         *ResourceMeta
	content      string
	grant        *ResourceAccessGrant
	challengeErr error
	loadErr      error
	generation   uint64
	closed       bool
}

// NewResourceAccessController mounts a view for kind/id. Call Open to load
// its metadata.
func NewResourceAccessController(backend ResourceBackend, kind ResourceKind, id int64, opts ...ResourceOption) *ResourceAccessController {
	r := &ResourceAccessController{
		backend: backend,
		kind:    kind,
		id:      id,
		logger:  defLogger{},
		sink:    noopActivitySink{},
		state:   ViewLoading,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Open loads the metadata. A protected item stops at ViewChallenge without
// fetching content; a public one is fetched with the session credential.
func (r *ResourceAccessController) Open(ctx context.Context) (ViewState, error) {
	gen, err := r.begin(ViewLoading)
	if err != nil {
		return ViewError, err
	}

	meta, err := r.backend.ResourceMeta(ctx, r.kind, r.id)
	if err != nil {
		return r.fail(gen, err)
	}

	if meta.IsProtected {
		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.currentLocked(gen) {
			return r.state, ErrResultDiscarded
		}
		r.meta = meta
		r.state = ViewChallenge
		return r.state, nil
	}

	content, err := r.backend.FetchContent(ctx, r.kind, r.id, "")

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.currentLocked(gen) {
		return r.state, ErrResultDiscarded
	}
	r.meta = meta
	if err != nil {
		if IsAccessDeniedError(err) {
			r.state = ViewChallenge
			r.challengeErr = err
			return r.state, err
		}
		r.state = ViewError
		r.loadErr = err
		return r.state, err
	}
	r.content = content
	r.state = ViewUnlocked
	return r.state, nil
}

// SubmitPassword exchanges password for a scoped token and uses it for
// exactly one content fetch. On any failure the challenge is presented
// again with the reason in ChallengeError.
func (r *ResourceAccessController) SubmitPassword(ctx context.Context, password string) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrResultDiscarded
	}
	r.generation++
	gen := r.generation
	r.challengeErr = nil
	r.mu.Unlock()

	if password == "" {
		err := withMessage(ErrAccessDenied, "password is required", nil)
		r.reject(gen, err)
		return "", err
	}

	token, err := r.backend.RequestAccess(ctx, r.kind, r.id, password)
	if err != nil {
		r.reject(gen, err)
		return "", err
	}

	if !r.current(gen) {
		return "", ErrResultDiscarded
	}

	content, err := r.backend.FetchContent(ctx, r.kind, r.id, token)
	if err != nil {
		r.reject(gen, err)
		return "", err
	}

	r.mu.Lock()
	if !r.currentLocked(gen) {
		r.mu.Unlock()
		return "", ErrResultDiscarded
	}
	r.grant = &ResourceAccessGrant{Kind: r.kind, ResourceID: r.id, AccessToken: token}
	r.content = content
	r.state = ViewUnlocked
	r.mu.Unlock()

	r.logger.Info("unlocked %s %d", r.kind, r.id)
	recordActivity(ctx, r.sink, r.logger, ActivityEvent{
		EventType: ActivityEventAccessGranted,
		Metadata:  map[string]any{"kind": string(r.kind), "id": r.id},
	})
	return token, nil
}

// Close unmounts the view and discards the grant and content
func (r *ResourceAccessController) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.generation++
	r.grant = nil
	r.content = ""
}

func (r *ResourceAccessController) State() ViewState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *ResourceAccessController) Meta() *ResourceMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta == nil {
		return nil
	}
	cp := *r.meta
	return &cp
}

func (r *ResourceAccessController) Content() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content
}

// Grant returns the scoped grant, or nil while locked or after Close
func (r *ResourceAccessController) Grant() *ResourceAccessGrant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grant == nil {
		return nil
	}
	cp := *r.grant
	return &cp
}

// ChallengeError is the reason the last challenge failed, for inline display
func (r *ResourceAccessController) ChallengeError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.challengeErr
}

// Err is the error that put the view in ViewError
func (r *ResourceAccessController) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErr
}

func (r *ResourceAccessController) Kind() ResourceKind { return r.kind }

func (r *ResourceAccessController) ID() int64 { return r.id }

func (r *ResourceAccessController) begin(state ViewState) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrResultDiscarded
	}
	r.generation++
	r.state = state
	r.loadErr = nil
	r.challengeErr = nil
	return r.generation, nil
}

func (r *ResourceAccessController) fail(gen uint64, err error) (ViewState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.currentLocked(gen) {
		return r.state, ErrResultDiscarded
	}
	r.state = ViewError
	r.loadErr = err
	return r.state, err
}

func (r *ResourceAccessController) reject(gen uint64, err error) {
	r.mu.Lock()
	if !r.currentLocked(gen) {
		r.mu.Unlock()
		return
	}
	r.grant = nil
	r.content = ""
	r.state = ViewChallenge
	r.challengeErr = err
	r.mu.Unlock()

	r.logger.Debug("challenge for %s %d rejected: %v", r.kind, r.id, err)
	recordActivity(context.Background(), r.sink, r.logger, ActivityEvent{
		EventType: ActivityEventAccessRejected,
		Metadata: map[string]any{
			"kind":   string(r.kind),
			"id":     r.id,
			"reason": ErrorMessage(err),
		},
	})
}

func (r *ResourceAccessController) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked(gen)
}

func (r *ResourceAccessController) currentLocked(gen uint64) bool {
	return !r.closed && gen == r.generation
}
