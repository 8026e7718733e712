package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/jwtauth"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

// ErrUnauthenticated is returned when a bearer token is present but invalid
var ErrUnauthenticated = errors.New("authentication required")

// OwnerResolver derives the owner of a request. A verified JWT wins over an
// email supplied in the request.
type OwnerResolver struct {
	auth *jwtauth.JWTAuth
}

// NewOwnerResolver verifies HS256 tokens signed with secret. An empty secret
// disables token auth and owners come from the request email only.
func NewOwnerResolver(secret string) *OwnerResolver {
	if secret == "" {
		return &OwnerResolver{}
	}
	return &OwnerResolver{auth: jwtauth.New("HS256", []byte(secret), nil)}
}

// Auth returns the token authority, or nil when token auth is disabled.
func (o *OwnerResolver) Auth() *jwtauth.JWTAuth {
	return o.auth
}

// Verifier parses bearer tokens into the request context.
func (o *OwnerResolver) Verifier() func(http.Handler) http.Handler {
	if o.auth == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return jwtauth.Verifier(o.auth)
}

// Resolve returns the request owner. Claim "sub" maps to a user id, claim
// "email" to an email owner; without a token the given email is used.
func (o *OwnerResolver) Resolve(r *http.Request, email string) (simplevideo.OwnerRef, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	switch {
	case err == nil && len(claims) > 0:
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return simplevideo.UserID(sub), nil
		}
		if addr, ok := claims["email"].(string); ok && addr != "" {
			owner := simplevideo.Email(addr)
			return owner, owner.Validate()
		}
		return simplevideo.OwnerRef{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	case err != nil && !errors.Is(err, jwtauth.ErrNoTokenFound):
		return simplevideo.OwnerRef{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if email == "" {
		return simplevideo.OwnerRef{}, &simplevideo.ValidationError{Field: "email", Message: "email is required"}
	}
	owner := simplevideo.Email(email)
	if err := owner.Validate(); err != nil {
		return simplevideo.OwnerRef{}, err
	}
	return owner, nil
}
