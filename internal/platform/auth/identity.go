package auth

import (
	"context"
	"strings"
)

// Identity is the authenticated staff member behind a request.
type Identity struct {
	UID   string
	Email string
	Name  string
	Role  Role
}

// DisplayName returns the name shown on orders: the profile name, else the email.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	return strings.TrimSpace(i.Email)
}

// Can reports whether the identity's role holds capability.
func (i *Identity) Can(capability Capability) bool {
	return i != nil && i.Role.Allows(capability)
}

type identityKey struct{}

// WithIdentity stores identity on ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
