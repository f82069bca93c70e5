package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/sauber-detailing/pos-api/internal/platform/httpx"
	"github.com/sauber-detailing/pos-api/internal/platform/requestctx"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// StaffProfile is the stored staff record consulted for the display name and role.
type StaffProfile struct {
	Name string
	Role string
}

// ProfileLoader looks up the staff profile for uid. found is false when no record exists.
type ProfileLoader interface {
	LoadProfile(ctx context.Context, uid string) (profile StaffProfile, found bool, err error)
}

// ProfileLoaderFunc adapts a function to ProfileLoader.
type ProfileLoaderFunc func(ctx context.Context, uid string) (StaffProfile, bool, error)

// LoadProfile implements ProfileLoader.
func (f ProfileLoaderFunc) LoadProfile(ctx context.Context, uid string) (StaffProfile, bool, error) {
	return f(ctx, uid)
}

// Authenticator turns a bearer Firebase ID token into an Identity on the request context.
// The role is taken from the stored staff profile, then the "role" custom claim, then
// FallbackRole.
type Authenticator struct {
	verifier  TokenVerifier
	profiles  ProfileLoader
	roleClaim string
	timeout   time.Duration
}

// Option customises the Authenticator.
type Option func(*Authenticator)

// WithProfileLoader enables staff profile lookups.
func WithProfileLoader(loader ProfileLoader) Option {
	return func(a *Authenticator) {
		a.profiles = loader
	}
}

// WithRoleClaim overrides the custom claim consulted for the role.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout bounds token verification and profile lookups.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:  verifier,
		roleClaim: defaultRoleClaim,
		timeout:   defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate rejects requests without a valid bearer token and stores the Identity.
func (a *Authenticator) Authenticate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				writeAuthError(ctx, w, http.StatusServiceUnavailable, "auth_unavailable", "authentication service unavailable")
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			decoded, err := a.verifier.VerifyIDToken(verifyCtx, token)
			if err != nil {
				switch {
				case firebaseauth.IsIDTokenExpired(err):
					writeAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "firebase id token expired")
				default:
					writeAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
				}
				return
			}

			identity, err := a.identityFor(verifyCtx, decoded)
			if err != nil {
				requestctx.Logger(ctx).Warn("staff profile lookup failed", zap.Error(err))
				writeAuthError(ctx, w, http.StatusServiceUnavailable, "auth_unavailable", "staff profile unavailable")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func (a *Authenticator) identityFor(ctx context.Context, token *firebaseauth.Token) (*Identity, error) {
	identity := &Identity{
		UID:   token.UID,
		Email: claimString(token.Claims, "email"),
		Name:  claimString(token.Claims, "name"),
	}
	if role, ok := ParseRole(claimString(token.Claims, a.roleClaim)); ok {
		identity.Role = role
	}

	if a.profiles != nil {
		profile, found, err := a.profiles.LoadProfile(ctx, token.UID)
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, err
		}
		if found {
			if role, ok := ParseRole(profile.Role); ok {
				identity.Role = role
			}
			if name := strings.TrimSpace(profile.Name); name != "" {
				identity.Name = name
			}
		}
	}

	if identity.Role == "" {
		identity.Role = FallbackRole
	}
	return identity, nil
}

// RequireCapability rejects authenticated requests whose role lacks capability.
func RequireCapability(capability Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if !identity.Can(capability) {
				writeAuthError(r.Context(), w, http.StatusForbidden, "forbidden", "role "+string(identity.Role)+" lacks "+string(capability))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimString(claims map[string]any, key string) string {
	if value, ok := claims[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
