package testutil

import (
	"net/http"
	"time"

	id "refroute/pkg/domain"
	"refroute/pkg/requestcontext"
)

// WithActor adds the actor and role to the request context, as the auth
// middleware would for an authenticated request. Invalid IDs are ignored.
func WithActor(req *http.Request, userID, role string) *http.Request {
	ctx := req.Context()
	if parsed, err := id.ParseUserID(userID); err == nil {
		ctx = requestcontext.WithActor(ctx, parsed, role)
	}
	return req.WithContext(ctx)
}

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
