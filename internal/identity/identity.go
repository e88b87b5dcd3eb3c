// Package identity resolves the opaque user id that scopes every journal
// record. Authentication itself is delegated to an external provider (an
// auth proxy or hosted identity service); this package only extracts its
// verdict from the request.
package identity

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated signals that no authenticated session exists for the
// request. Handlers map it to 401, never to a generic failure.
var ErrUnauthenticated = errors.New("no authenticated user")

// DefaultUserID is the single-user fallback identity.
const DefaultUserID = "Default_user"

// Provider supplies the user id for a request.
type Provider interface {
	UserID(r *http.Request) (string, error)
}

// HeaderProvider trusts a header set by an authenticating reverse proxy.
type HeaderProvider struct {
	Header string
}

func NewHeaderProvider(header string) *HeaderProvider {
	if header == "" {
		header = "X-User-ID"
	}
	return &HeaderProvider{Header: header}
}

func (p *HeaderProvider) UserID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(p.Header))
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// StaticProvider pins every request to one user id. Used for single-user
// deployments with no identity service in front.
type StaticProvider struct {
	ID string
}

func NewStaticProvider(id string) *StaticProvider {
	if id == "" {
		id = DefaultUserID
	}
	return &StaticProvider{ID: id}
}

func (p *StaticProvider) UserID(*http.Request) (string, error) {
	return p.ID, nil
}
