package auth

import (
	"strings"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

const bearerPrefix = "Bearer "

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	if tok == "" {
		return "", false
	}
	return tok, true
}

// RequireAdmin admits only a present identity holding the admin role.
func RequireAdmin(identity *domain.Identity) error {
	if identity == nil {
		return domain.ErrForbidden
	}
	if !identity.Role.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}
