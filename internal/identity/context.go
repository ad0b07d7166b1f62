// Package identity carries the opaque caller identity. Authentication is out
// of scope: the user id arrives pre-validated from the upstream edge.
package identity

import (
	"context"

	"github.com/google/uuid"
)

// Header is set by the caller (or the gateway) on every request.
const Header = "X-User-ID"

type userIDKey struct{}

func ContextWithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}
