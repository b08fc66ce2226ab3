package models

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// TestCredential_IsValid tests the access token validity window.
func TestCredential_IsValid(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	credential := &Credential{
		IssuedAt:  issuedAt,
		ExpiresIn: 60,
	}
	slack := 5 * time.Second

	assert.True(t, credential.IsValid(issuedAt, slack))
	assert.True(t, credential.IsValid(issuedAt.Add(54*time.Second), slack))
	assert.False(t, credential.IsValid(issuedAt.Add(55*time.Second), slack))
	assert.False(t, credential.IsValid(issuedAt.Add(60*time.Second), slack))
	assert.False(t, credential.IsValid(issuedAt.Add(time.Hour), slack))
}

// TestCredential_CanRefresh tests the refresh token validity window.
func TestCredential_CanRefresh(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	credential := &Credential{
		IssuedAt:         issuedAt,
		ExpiresIn:        60,
		RefreshExpiresIn: 1800,
	}
	slack := 5 * time.Second

	assert.True(t, credential.CanRefresh(issuedAt, slack))
	assert.True(t, credential.CanRefresh(issuedAt.Add(60*time.Second), slack))
	assert.True(t, credential.CanRefresh(issuedAt.Add(1794*time.Second), slack))
	assert.False(t, credential.CanRefresh(issuedAt.Add(1795*time.Second), slack))
	assert.False(t, credential.CanRefresh(issuedAt.Add(1800*time.Second), slack))
}

// TestCredential_DecodeClaims tests decoding identity fields from the
// access token payload.
func TestCredential_DecodeClaims(t *testing.T) {
	credential := &Credential{
		AccessToken: signedTestToken(t, jwt.MapClaims{
			"sub":         "f8a1b2c3-0000-1111-2222-333344445555",
			"given_name":  "Matti",
			"family_name": "Mansikka",
			"realm_access": map[string]interface{}{
				"roles": []interface{}{"farmer", "delivery-admin"},
			},
		}),
	}

	err := credential.DecodeClaims()
	require.NoError(t, err)

	assert.Equal(t, "f8a1b2c3-0000-1111-2222-333344445555", credential.UserID)
	assert.Equal(t, "Matti", credential.FirstName)
	assert.Equal(t, "Mansikka", credential.LastName)
	assert.Equal(t, []string{"farmer", "delivery-admin"}, credential.Roles)

	assert.True(t, credential.HasRole("farmer"))
	assert.False(t, credential.HasRole("admin"))
}

// TestCredential_DecodeClaims_Invalid tests that a malformed access token
// surfaces an error.
func TestCredential_DecodeClaims_Invalid(t *testing.T) {
	credential := &Credential{AccessToken: "not-a-token"}

	err := credential.DecodeClaims()
	assert.Error(t, err)
}
