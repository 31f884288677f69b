package memory

import (
	"context"
	"strings"

	"github.com/alexedwards/argon2id"

	"github.com/snipvault/snipvault/internal/domain/auth"
)

// CredentialStore implements auth.CredentialVerifier over a fixed set of
// users loaded at startup. Immutable after construction, so reads need no
// locking.
type CredentialStore struct {
	byEmail map[string]auth.User
}

// NewCredentialStore creates a credential store from the given users.
// Emails are normalized to lowercase for lookup.
func NewCredentialStore(users []auth.User) *CredentialStore {
	byEmail := make(map[string]auth.User, len(users))
	for _, u := range users {
		byEmail[strings.ToLower(u.Email)] = u
	}
	return &CredentialStore{byEmail: byEmail}
}

// Verify checks the claimed email/password pair against the stored argon2id
// hash. Unknown emails and wrong passwords both return
// auth.ErrInvalidCredentials so callers cannot probe for account existence.
func (s *CredentialStore) Verify(ctx context.Context, email, password string) (auth.User, error) {
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		// Burn a comparison against a throwaway hash so unknown emails take
		// roughly as long as wrong passwords.
		_, _ = argon2id.ComparePasswordAndHash(password, dummyHash)
		return auth.User{}, auth.ErrInvalidCredentials
	}

	match, err := argon2id.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil || !match {
		return auth.User{}, auth.ErrInvalidCredentials
	}
	return u, nil
}

// dummyHash is a syntactically valid argon2id hash of an unguessable value,
// used only for constant-time behavior on unknown emails.
var dummyHash = func() string {
	h, err := argon2id.CreateHash("snipvault-dummy", argon2id.DefaultParams)
	if err != nil {
		// CreateHash only fails if the system RNG is broken.
		panic(err)
	}
	return h
}()

// Compile-time interface verification.
var _ auth.CredentialVerifier = (*CredentialStore)(nil)
