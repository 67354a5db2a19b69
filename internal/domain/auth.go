package domain

import "context"

type Principal struct {
	Subject   string
	Roles     []string
	Scopes    []string
	RawClaims map[string]any
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}

// Authorizer checks a permission; ownerID, when set, names the subject that
// owns the resource being accessed.
type Authorizer interface {
	Require(principal Principal, ownerID string, permission string) error
}
