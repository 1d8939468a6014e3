// Package auth provides the client side of a blog's session and content
// access model: token inspection, a single session store, login and
// registration, route guards, and per item password challenges.
//
// Session:
//   - SessionStore owns the bearer token, its decoded claims and the user
//     profile resolved from GET /auth/me. Writes go through Load, Set and
//     Clear; every write is broadcast synchronously to subscribers.
//   - Each load cycle takes a new generation, so a profile fetch that
//     resolves after a newer Set or Clear is dropped.
//   - TokenCodec inspects the exp claim only. It is a routing fast path; the
//     backend stays authoritative and any 401 on a session call clears the
//     store through UnauthorizedInterceptor.
//
// Routes:
//   - RouteGuard wraps one protected route. It waits while the store is
//     loading, then settles on Authorized or Denied and renders Denied as a
//     redirect to the general or administrator login.
//
// Protected content:
//   - ResourceAccessController presents a password challenge for protected
//     posts, trades the password for a scoped token and uses it for exactly
//     one content fetch. The scoped token never reaches the SessionStore and
//     is dropped on Close.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the controllers to
//     describe login, logout, session clears and challenge results. Sinks run
//     best-effort (errors are logged). The activitymap package flattens them
//     into records for log shippers; blogctl prints those records with --debug.
package auth
