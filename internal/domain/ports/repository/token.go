package repository

import (
	"context"
	"time"
)

// OAuthToken is the user's photo-provider token as stored by the account
// linking flow (which lives outside this service).
type OAuthToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// TokenStore supplies the OAuth token for a user. Find returns
// domain.ErrNoLinkedAccount when the user never linked an account.
type TokenStore interface {
	Save(ctx context.Context, ownerID string, tok *OAuthToken) error
	Find(ctx context.Context, ownerID string) (*OAuthToken, error)
	Delete(ctx context.Context, ownerID string) error
}
