package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"orderpay/internal/handler"
	"orderpay/internal/identity"
	"orderpay/internal/logging"
)

// Identity extracts the opaque caller identity from the X-User-ID header.
// The value is assumed pre-validated upstream; only its shape is checked.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(identity.Header)
		if raw == "" {
			handler.RespondAppError(w, handler.ErrMissingIdentity, nil)
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			handler.RespondAppError(w, handler.ErrInvalidIdentity, nil)
			return
		}

		ctx := identity.ContextWithUserID(r.Context(), userID)
		ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
