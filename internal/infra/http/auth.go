package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"zkrent/internal/domain"
	"zkrent/internal/infra/auth/rbac"

	"github.com/gin-gonic/gin"
)

const principalContextKey = "principal"

var adminKeyPrincipal = domain.Principal{
	Subject: "admin-key",
	Roles:   []string{rbac.DefaultAdminRole},
	Scopes:  []string{rbac.DefaultAdminScope},
}

// requireAuth authenticates the bearer token (or admin key when allowed) and
// checks permission against ownerID. It writes the error response itself.
func (s *Server) requireAuth(c *gin.Context, permission string, ownerID string, allowAdminKey bool) (domain.Principal, bool) {
	if s.cfg.AuthMode == "none" {
		if allowAdminKey {
			if s.adminKeyMatches(c) {
				c.Set(principalContextKey, adminKeyPrincipal)
				return adminKeyPrincipal, true
			}
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
			return domain.Principal{}, false
		}
		return domain.Principal{}, true
	}
	if s.authInitErr != nil || s.authenticator == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return domain.Principal{}, false
	}
	if allowAdminKey && s.adminKeyMatches(c) {
		c.Set(principalContextKey, adminKeyPrincipal)
		return adminKeyPrincipal, true
	}

	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return domain.Principal{}, false
	}
	principal, err := s.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
		return domain.Principal{}, false
	}
	if s.authorizer != nil {
		if err := s.authorizer.Require(principal, ownerID, permission); err != nil {
			writeAuthzError(c, err)
			return domain.Principal{}, false
		}
	}
	c.Set(principalContextKey, principal)
	return principal, true
}

func (s *Server) adminKeyMatches(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		return false
	}
	key := strings.TrimSpace(c.GetHeader("X-Admin-Key"))
	return key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) == 1
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) < len("bearer ") || !strings.EqualFold(value[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

func getPrincipal(c *gin.Context) (domain.Principal, bool) {
	raw, ok := c.Get(principalContextKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := raw.(domain.Principal)
	return principal, ok
}

func writeAuthzError(c *gin.Context, err error) {
	if authz, ok := rbac.IsAuthzError(err); ok {
		writeErrorCode(c, http.StatusForbidden, authz.Code, "forbidden")
		return
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
}
