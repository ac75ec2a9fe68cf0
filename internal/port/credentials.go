package port

import "github.com/rl1809/sweet-shop/internal/core/domain"

type TokenIssuer interface {
	Issue(identity domain.Identity) (string, error)
}

type TokenVerifier interface {
	// Verify returns an error wrapping domain.ErrUnauthenticated for any
	// token that cannot be trusted
	Verify(token string) (domain.Identity, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)

	// Compare returns nil only when password matches hash
	Compare(hash, password string) error
}
