//go:build !integration

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionServiceRoundTrip(t *testing.T) {
	svc, err := NewEncryptionService("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	ct, err := svc.Encrypt(`{"access_token":"ya29.secret"}`)
	require.NoError(t, err)
	assert.NotContains(t, ct, "ya29")

	pt, err := svc.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"ya29.secret"}`, pt)
}

func TestEncryptionServiceNoncesDiffer(t *testing.T) {
	svc, err := NewEncryptionService("0123456789abcdef")
	require.NoError(t, err)

	a, err := svc.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := svc.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewEncryptionServiceRejectsBadKeyLength(t *testing.T) {
	_, err := NewEncryptionService("short")
	assert.Error(t, err)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	svc, err := NewEncryptionService("0123456789abcdef")
	require.NoError(t, err)

	ct, err := svc.Encrypt("payload")
	require.NoError(t, err)

	_, err = svc.Decrypt("AAAA" + ct[4:])
	assert.Error(t, err)
}
