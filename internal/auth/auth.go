// Package auth resolves the caller's identity from a signed session token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when the request carries no valid session.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Identity is the authenticated user.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticator resolves an Identity from an inbound request.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// Claims are the session token claims. The subject is the user ID.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HS256 session tokens read from the
// Authorization bearer header or the session cookie.
type JWTAuthenticator struct {
	secret     []byte
	cookieName string
	issuer     string
	now        func() time.Time
}

// Option configures a JWTAuthenticator.
type Option func(*JWTAuthenticator)

// WithCookieName sets the session cookie consulted when no bearer header is present.
func WithCookieName(name string) Option {
	return func(a *JWTAuthenticator) {
		a.cookieName = name
	}
}

// WithIssuer requires tokens to carry this issuer.
func WithIssuer(iss string) Option {
	return func(a *JWTAuthenticator) {
		a.issuer = iss
	}
}

// NewJWTAuthenticator creates an authenticator for tokens signed with secret.
func NewJWTAuthenticator(secret string, opts ...Option) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: signing secret is required")
	}
	a := &JWTAuthenticator{
		secret:     []byte(secret),
		cookieName: "session_token",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate returns the identity carried by the request's session token.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	raw := tokenFromRequest(r, a.cookieName)
	if raw == "" {
		return Identity{}, ErrUnauthenticated
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	return Identity{ID: claims.Subject, Email: claims.Email}, nil
}

// Issue signs a session token for id valid for ttl.
func (a *JWTAuthenticator) Issue(id Identity, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Compile-time check that JWTAuthenticator implements Authenticator.
var _ Authenticator = (*JWTAuthenticator)(nil)
