package rbac

import (
	"errors"
	"slices"
	"strings"

	"zkrent/internal/domain"
)

const (
	DefaultAdminRole  = "zkrent_admin"
	DefaultAdminScope = "admin:*"

	RoleLandlord = "landlord"
	RoleTenant   = "tenant"
	RoleIssuer   = "issuer"
)

const (
	PermAttest             = "issuer:attest"
	PermAttestationsRead   = "attestations:read"
	PermApplicationsSubmit = "applications:submit"
	PermApplicationsRead   = "applications:read"
	PermProofsVerify       = "proofs:verify"
	PermPropertiesWrite    = "properties:write"
	PermApplicationsList   = "applications:list"
	PermRevoke             = "admin:revoke"
	PermAuditRead          = "admin:audit"
)

// roleScopes grants scopes implied by a role, so tokens may carry either.
var roleScopes = map[string][]string{
	RoleLandlord: {PermApplicationsSubmit, PermApplicationsRead, PermProofsVerify, PermPropertiesWrite, PermApplicationsList},
	RoleTenant:   {PermApplicationsSubmit, PermApplicationsRead, PermProofsVerify, PermAttestationsRead},
	RoleIssuer:   {PermAttest, PermAttestationsRead},
}

// Roles that may act on resources owned by another subject.
var crossSubjectRoles = []string{RoleLandlord, RoleIssuer}

type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type Authorizer struct {
	adminRole  string
	adminScope string
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{
		adminRole:  DefaultAdminRole,
		adminScope: DefaultAdminScope,
	}
}

// Require checks permission for principal. When ownerID is set, a principal
// without a cross-subject role may only touch its own resources.
func (a *Authorizer) Require(principal domain.Principal, ownerID string, permission string) error {
	if principal.Subject == "" {
		return domain.ErrUnauthorized
	}
	if permission == "" {
		return nil
	}
	if a.hasAdmin(principal) {
		return nil
	}
	if strings.HasPrefix(permission, "admin:") {
		return &AuthzError{Code: "MISSING_ROLE", Err: domain.ErrForbidden}
	}
	if !hasScope(principal, permission) {
		return &AuthzError{Code: "MISSING_SCOPE", Err: domain.ErrForbidden}
	}
	if ownerID != "" && ownerID != principal.Subject && !hasAnyRole(principal, crossSubjectRoles...) {
		return &AuthzError{Code: "SUBJECT_MISMATCH", Err: domain.ErrForbidden}
	}
	return nil
}

// IsAdmin reports whether principal holds the admin role or scope.
func (a *Authorizer) IsAdmin(principal domain.Principal) bool {
	return a.hasAdmin(principal)
}

func (a *Authorizer) hasAdmin(principal domain.Principal) bool {
	if hasAnyRole(principal, a.adminRole) {
		return true
	}
	return slices.Contains(principal.Scopes, a.adminScope)
}

func hasAnyRole(principal domain.Principal, roles ...string) bool {
	for _, r := range principal.Roles {
		if slices.Contains(roles, r) {
			return true
		}
	}
	return false
}

func hasScope(principal domain.Principal, scope string) bool {
	if scope == "" {
		return false
	}
	for _, s := range principal.Scopes {
		if s == scope || s == DefaultAdminScope {
			return true
		}
	}
	for _, r := range principal.Roles {
		if slices.Contains(roleScopes[r], scope) {
			return true
		}
	}
	return false
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}
