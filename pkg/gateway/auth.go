package gateway

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned when a request lacks valid credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Authorizer controls incoming gateway requests.
type Authorizer interface {
	Authorize(r *http.Request) error
}

type NoopAuthorizer struct{}

func (NoopAuthorizer) Authorize(r *http.Request) error {
	_ = r
	return nil
}

// TokenAuthorizer requires "Authorization: Bearer <Token>".
type TokenAuthorizer struct {
	Token string
}

func (a TokenAuthorizer) Authorize(r *http.Request) error {
	if a.Token == "" {
		return ErrUnauthorized
	}
	scheme, credential, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(credential)), []byte(a.Token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// NewAuthorizer returns a TokenAuthorizer when enabled and a NoopAuthorizer
// otherwise.
func NewAuthorizer(enabled bool, token string) Authorizer {
	if !enabled {
		return NoopAuthorizer{}
	}
	return TokenAuthorizer{Token: token}
}
