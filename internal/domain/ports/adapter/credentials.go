package adapter

import "context"

// IssuedCredential is a scoped, revocable access credential minted for one
// worker machine. The secret is handed to the machine via env and is never
// persisted; only the ID is kept so the credential can be revoked later.
type IssuedCredential struct {
	ID     string
	Secret string
}

// CredentialIssuer mints and revokes short-lived worker credentials.
// Revoke must be idempotent: revoking an unknown or already-revoked
// credential is a no-op.
type CredentialIssuer interface {
	Issue(ctx context.Context, ownerID string, scopes []string) (*IssuedCredential, error)
	Revoke(ctx context.Context, ownerID, credentialID string) error
}
