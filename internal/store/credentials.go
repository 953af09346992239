package store

import (
	"context"

	"showings/internal/domain"
)

// CredentialStore persists one credential per user for the deployment's
// calendar provider. Put replaces the full record; there are no partial
// updates. Implementations must be safe for concurrent use across users;
// same-user refresh serialization is the credential manager's job.
//
// Delete exists for explicit admin-driven revocation and is never called by
// the core itself; refresh failures leave the stale record in place as a
// diagnostic trace.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (domain.Credential, error)
	Put(ctx context.Context, cred domain.Credential) error
	Delete(ctx context.Context, userID string) error
}
