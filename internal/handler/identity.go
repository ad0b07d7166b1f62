package handler

import (
	"net/http"

	"github.com/google/uuid"
	"orderpay/internal/identity"
)

// callerFromContext pulls the authenticated user from the request context.
// The identity middleware is expected to have run already.
func callerFromContext(r *http.Request) (uuid.UUID, *AppError) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, ErrMissingIdentity
	}
	return userID, nil
}
