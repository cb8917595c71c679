package utils

import (
	"regexp"
	"testing"
	"time"

	"upilink/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOrderID(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD[A-Z0-9]{12}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := GenerateOrderID()
		require.Regexp(t, pattern, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate order id %s", id)
		seen[id] = struct{}{}
	}
}

func TestGenerateSecureCode(t *testing.T) {
	a, err := GenerateSecureCode()
	require.NoError(t, err)
	b, err := GenerateSecureCode()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"type":"user.role_changed"}`)
	sig := SignPayload("s3cret", body)

	assert.True(t, VerifySignature("s3cret", body, sig))
	assert.True(t, VerifySignature("s3cret", body, "sha256="+sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("s3cret", []byte(`{}`), sig))
	assert.False(t, VerifySignature("s3cret", body, "not-hex"))
	assert.False(t, VerifySignature("", body, sig))
	assert.False(t, VerifySignature("s3cret", body, ""))
}

func TestAccessTokenRoundTrip(t *testing.T) {
	claims := &models.UserClaims{
		UserID:       "user-1",
		Email:        "a@example.com",
		Role:         models.RoleMerchant,
		SessionID:    "sid-1",
		TokenVersion: 3,
	}
	token, expiresAt, err := GenerateAccessToken("secret", claims, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	parsed, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed.UserID)
	assert.Equal(t, models.RoleMerchant, parsed.Role)
	assert.Equal(t, "sid-1", parsed.SessionID)
	assert.Equal(t, 3, parsed.TokenVersion)

	_, err = ParseToken("wrong", token)
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	token, _, err := GenerateAccessToken("secret", &models.UserClaims{UserID: "u"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("secret", token)
	assert.Error(t, err)
}
