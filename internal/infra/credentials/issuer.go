// Package credentials mints the scoped, revocable upload credentials handed
// to worker machines. A credential is an HS256 JWT whose jti is registered in
// redis for its lifetime; the platform's upload API accepts the token only
// while the registration exists, so deleting the registration revokes it
// even if the orchestrator process died before cleanup.
package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"photovault-import/internal/domain/ports/adapter"
	red "photovault-import/internal/infra/redis"
)

var _ adapter.CredentialIssuer = (*Issuer)(nil)

type Issuer struct {
	signingKey []byte
	lifetime   time.Duration
	client     red.RedisClient
}

func NewIssuer(signingKey string, lifetime time.Duration, client red.RedisClient) *Issuer {
	if lifetime <= 0 {
		lifetime = 48 * time.Hour
	}
	return &Issuer{signingKey: []byte(signingKey), lifetime: lifetime, client: client}
}

func (i *Issuer) key(ownerID, credentialID string) string {
	return fmt.Sprintf("worker_cred:%s:%s", ownerID, credentialID)
}

func (i *Issuer) Issue(ctx context.Context, ownerID string, scopes []string) (*adapter.IssuedCredential, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	claims := jwt.MapClaims{
		"sub":    ownerID,
		"jti":    id,
		"scopes": scopes,
		"iat":    now.Unix(),
		"exp":    now.Add(i.lifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	secret, err := token.SignedString(i.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}

	if err := i.client.Set(ctx, i.key(ownerID, id), now.Format(time.RFC3339), i.lifetime); err != nil {
		return nil, fmt.Errorf("register credential: %w", err)
	}
	return &adapter.IssuedCredential{ID: id, Secret: secret}, nil
}

// Revoke deletes the registration. Deleting a missing key is a no-op, which
// makes revocation safe to repeat from re-entrant cleanup runs.
func (i *Issuer) Revoke(ctx context.Context, ownerID, credentialID string) error {
	return i.client.Del(ctx, i.key(ownerID, credentialID))
}
