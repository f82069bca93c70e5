package services

import (
	"context"
	"strings"

	"github.com/sauber-detailing/pos-api/internal/domain"
)

// UnknownOperator is recorded on orders when no session identity is available.
const UnknownOperator = "N/A"

// Session is the signed-in operator on whose behalf a request runs.
type Session struct {
	UID  string
	Name string
	Role string
}

type sessionKey struct{}

// WithSession stores the operator session on ctx.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the session placed by the HTTP layer.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	session, ok := ctx.Value(sessionKey{}).(Session)
	return session, ok
}

// OperatorName is the name copied onto orders.
func (s Session) OperatorName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return UnknownOperator
}

// OperatorRole is the role copied onto orders.
func (s Session) OperatorRole() string {
	if role := strings.TrimSpace(s.Role); role != "" {
		return role
	}
	return UnknownOperator
}

func operatorFrom(ctx context.Context) domain.Operator {
	session, _ := SessionFromContext(ctx)
	return domain.Operator{Name: session.OperatorName(), Role: session.OperatorRole()}
}
