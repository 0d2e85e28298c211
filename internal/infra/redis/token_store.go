package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"photovault-import/internal/domain"
	"photovault-import/internal/domain/ports/repository"
	"photovault-import/internal/infra/security"
)

var _ repository.TokenStore = (*TokenStore)(nil)

// TokenStore holds the per-user OAuth tokens written by the account-linking
// flow. Tokens are kept without TTL; unlinking deletes the key. When an
// encryption service is supplied, token records are sealed before they touch
// redis.
type TokenStore struct {
	client RedisClient
	enc    *security.EncryptionService
}

func NewTokenStore(client RedisClient, enc *security.EncryptionService) *TokenStore {
	return &TokenStore{client: client, enc: enc}
}

func (s *TokenStore) key(ownerID string) string {
	return fmt.Sprintf("oauth_token:%s", ownerID)
}

func (s *TokenStore) Save(ctx context.Context, ownerID string, tok *repository.OAuthToken) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	payload := string(data)
	if s.enc != nil {
		payload, err = s.enc.Encrypt(payload)
		if err != nil {
			return fmt.Errorf("encrypt oauth token: %w", err)
		}
	}
	return s.client.Set(ctx, s.key(ownerID), payload, 0)
}

func (s *TokenStore) Find(ctx context.Context, ownerID string) (*repository.OAuthToken, error) {
	data, err := s.client.Get(ctx, s.key(ownerID))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrNoLinkedAccount
		}
		return nil, err
	}
	if s.enc != nil {
		data, err = s.enc.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("decrypt oauth token: %w", err)
		}
	}

	var tok repository.OAuthToken
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *TokenStore) Delete(ctx context.Context, ownerID string) error {
	return s.client.Del(ctx, s.key(ownerID))
}
