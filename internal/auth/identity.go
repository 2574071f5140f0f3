package auth

import (
	"context"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the authenticated caller of a request: a verified user,
// an anonymous session, or both.
type Identity struct {
	User      *User
	SessionID string
}

// Anonymous reports whether the caller has no verified user.
func (i *Identity) Anonymous() bool {
	return i.User == nil
}

// Owner returns the topic ownership key for the caller.
func (i *Identity) Owner() models.Owner {
	o := models.Owner{SessionID: i.SessionID}
	if i.User != nil {
		id := i.User.ID
		o.UserID = &id
	}
	return o
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext retrieves the caller identity from the request context.
func FromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}
