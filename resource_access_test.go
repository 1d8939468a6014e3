package auth_test

import (
	"context"
	"errors"
	"testing"

	auth "github.com/goliatone/go-auth-client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func protectedMeta() *auth.ResourceMeta {
	return &auth.ResourceMeta{ID: 42, Title: "Private notes", IsProtected: true}
}

func newResourceView(backend auth.ResourceBackend, sink auth.ActivitySink) *auth.ResourceAccessController {
	opts := []auth.ResourceOption{auth.WithResourceLogger(auth.NopLogger{})}
	if sink != nil {
		opts = append(opts, auth.WithResourceActivitySink(sink))
	}
	return auth.NewResourceAccessController(backend, auth.ResourcePost, 42, opts...)
}

func TestResourceAccessOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("protected item stops at the challenge", func(t *testing.T) {
		backend := new(MockResourceBackend)
		backend.On("ResourceMeta", ctx, auth.ResourcePost, int64(42)).Return(protectedMeta(), nil).Once()

		view := newResourceView(backend, nil)
		assert.Equal(t, auth.ViewLoading, view.State())

		state, err := view.Open(ctx)
		require.NoError(t, err)
		assert.Equal(t, auth.ViewChallenge, state)
		assert.Equal(t, "Private notes", view.Meta().Title)
		assert.Empty(t, view.Content())
		backend.AssertNotCalled(t, "FetchContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		backend.AssertNotCalled(t, "RequestAccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("public item is fetched with the session", func(t *testing.T) {
		backend := new(MockResourceBackend)
		backend.On("ResourceMeta", ctx, auth.ResourcePost, int64(42)).
			Return(&auth.ResourceMeta{ID: 42, Title: "Open"}, nil).Once()
		backend.On("FetchContent", ctx, auth.ResourcePost, int64(42), "").Return("<p>hi</p>", nil).Once()

		view := newResourceView(backend, nil)
		state, err := view.Open(ctx)
		require.NoError(t, err)
		assert.Equal(t, auth.ViewUnlocked, state)
		assert.Equal(t, "<p>hi</p>", view.Content())
		assert.Nil(t, view.Grant())
		backend.AssertExpectations(t)
	})

	t.Run("public item refused by the backend shows the challenge", func(t *testing.T) {
		backend := new(MockResourceBackend)
		backend.On("ResourceMeta", ctx, auth.ResourcePost, int64(42)).
			Return(&auth.ResourceMeta{ID: 42}, nil).Once()
		backend.On("FetchContent", ctx, auth.ResourcePost, int64(42), "").Return("", auth.ErrAccessDenied).Once()

		view := newResourceView(backend, nil)
		state, err := view.Open(ctx)
		require.Error(t, err)
		assert.Equal(t, auth.ViewChallenge, state)
		assert.ErrorIs(t, view.ChallengeError(), auth.ErrAccessDenied)
	})

	t.Run("metadata failure", func(t *testing.T) {
		backend := new(MockResourceBackend)
		boom := errors.New("connection refused")
		backend.On("ResourceMeta", ctx, auth.ResourcePost, int64(42)).Return(nil, boom).Once()

		view := newResourceView(backend, nil)
		state, err := view.Open(ctx)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, auth.ViewError, state)
		assert.ErrorIs(t, view.Err(), boom)
	})
}

func TestResourceAccessSubmitPassword(t *testing.T) {
	ctx := context.Background()

	backend := new(MockResourceBackend)
	backend.On("ResourceMeta", ctx, auth.ResourcePost, int64(42)).Return(protectedMeta(), nil).Once()
	backend.On("RequestAccess", ctx, auth.ResourcePost, int64(42), "open-sesame").Return("scoped-token", nil).Once()
	backend.On("FetchContent", ctx, auth.ResourcePost, int64(42), "scoped-token").Return("<p>secret</p>", nil).Once()

	sink := &capturingSink{}
	view := newResourceView(backend, sink)
	_, err := view.Open(ctx)
	require.NoError(t, err)

	token, err := view.SubmitPassword(ctx, "open-sesame")
	require.NoError(t, err)
	assert.Equal(t, "scoped-token", token)
	assert.Equal(t, auth.ViewUnlocked, view.State())
	assert.Equal(t, "<p>secret</p>", view.Content())
	require.NotNil(t, view.Grant())
	assert.Equal(t, auth.ResourceAccessGrant{Kind: auth.ResourcePost, ResourceID: 42, AccessToken: "scoped-token"}, *view.Grant())
	assert.NoError(t, view.ChallengeError())
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventAccessGranted}, sink.types())

	backend.AssertNumberOfCalls(t, "RequestAccess", 1)
	backend.AssertNumberOfCalls(t, "FetchContent", 1)
}

func TestResourceAccessWrongPassword(t *testing.T) {
	ctx := context.Background()
	denied := errors.Join(auth.ErrAccessDenied)

	backend := new(MockResourceBackend)
	backend.On("ResourceMeta", ctx, auth.ResourcePost, int64(42)).Return(protectedMeta(), nil).Once()
	backend.On("RequestAccess", ctx, auth.ResourcePost, int64(42), "wrong").Return("", denied).Once()
	backend.On("RequestAccess", ctx, auth.ResourcePost, int64(42), "open-sesame").Return("scoped-token", nil).Once()
	backend.On("FetchContent", ctx, auth.ResourcePost, int64(42), "scoped-token").Return("<p>secret</p>", nil).Once()

	sink := &capturingSink{}
	view := newResourceView(backend, sink)
	_, err := view.Open(ctx)
	require.NoError(t, err)

	_, err = view.SubmitPassword(ctx, "wrong")
	assert.ErrorIs(t, err, auth.ErrAccessDenied)
	assert.Equal(t, auth.ViewChallenge, view.State())
	assert.Same(t, denied, view.ChallengeError())
	assert.Nil(t, view.Grant())
	backend.AssertNotCalled(t, "FetchContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	_, err = view.SubmitPassword(ctx, "open-sesame")
	require.NoError(t, err)
	assert.Equal(t, auth.ViewUnlocked, view.State())
	assert.NoError(t, view.ChallengeError(), "a new attempt clears the previous reason")
	assert.Equal(t, []auth.ActivityEventType{
		auth.ActivityEventAccessRejected,
		auth.ActivityEventAccessGranted,
	}, sink.types())
}

func TestResourceAccessEmptyPassword(t *testing.T) {
	ctx := context.Background()
	backend := new(MockResourceBackend)
	backend.On("ResourceMeta", ctx, auth.ResourcePost, int64(42)).Return(protectedMeta(), nil).Once()

	view := newResourceView(backend, nil)
	_, err := view.Open(ctx)
	require.NoError(t, err)

	_, err = view.SubmitPassword(ctx, "")
	require.Error(t, err)
	assert.True(t, auth.IsAccessDeniedError(err))
	assert.Equal(t, "password is required", auth.ErrorMessage(err))
	assert.Equal(t, auth.ViewChallenge, view.State())
	backend.AssertNotCalled(t, "RequestAccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResourceAccessContentFetchFailsAfterGrant(t *testing.T) {
	ctx := context.Background()
	backend := new(MockResourceBackend)
	backend.On("ResourceMeta", ctx, auth.ResourcePost, int64(42)).Return(protectedMeta(), nil).Once()
	backend.On("RequestAccess", ctx, auth.ResourcePost, int64(42), "open-sesame").Return("scoped-token", nil).Once()
	backend.On("FetchContent", ctx, auth.ResourcePost, int64(42), "scoped-token").Return("", auth.ErrAccessDenied).Once()

	view := newResourceView(backend, nil)
	_, err := view.Open(ctx)
	require.NoError(t, err)

	_, err = view.SubmitPassword(ctx, "open-sesame")
	require.Error(t, err)
	assert.Equal(t, auth.ViewChallenge, view.State())
	assert.Nil(t, view.Grant(), "an unused grant is not kept")
	assert.Empty(t, view.Content())
}

func TestResourceAccessCloseDiscardsGrant(t *testing.T) {
	ctx := context.Background()
	backend := new(MockResourceBackend)
	backend.On("ResourceMeta", ctx, auth.ResourcePost, int64(42)).Return(protectedMeta(), nil).Once()
	backend.On("RequestAccess", ctx, auth.ResourcePost, int64(42), "open-sesame").Return("scoped-token", nil).Once()
	backend.On("FetchContent", ctx, auth.ResourcePost, int64(42), "scoped-token").Return("<p>secret</p>", nil).Once()

	view := newResourceView(backend, nil)
	_, err := view.Open(ctx)
	require.NoError(t, err)
	_, err = view.SubmitPassword(ctx, "open-sesame")
	require.NoError(t, err)

	view.Close()
	assert.Nil(t, view.Grant())
	assert.Empty(t, view.Content())

	_, err = view.SubmitPassword(ctx, "open-sesame")
	assert.ErrorIs(t, err, auth.ErrResultDiscarded)
	_, err = view.Open(ctx)
	assert.ErrorIs(t, err, auth.ErrResultDiscarded)
	backend.AssertNumberOfCalls(t, "RequestAccess", 1)
}

func TestResourceAccessLateResultIsDiscarded(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})

	backend := new(MockResourceBackend)
	backend.On("ResourceMeta", ctx, auth.ResourcePost, int64(42)).Return(protectedMeta(), nil).Once()
	backend.On("RequestAccess", ctx, auth.ResourcePost, int64(42), "open-sesame").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return("scoped-token", nil).Once()

	view := newResourceView(backend, nil)
	_, err := view.Open(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := view.SubmitPassword(ctx, "open-sesame")
		done <- err
	}()

	<-entered
	view.Close()
	close(release)

	assert.ErrorIs(t, <-done, auth.ErrResultDiscarded)
	assert.Nil(t, view.Grant())
	assert.Empty(t, view.Content())
	backend.AssertNotCalled(t, "FetchContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
