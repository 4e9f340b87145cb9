package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	token := v.Sign("student@example.com")

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "student@example.com", claims.Email)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	token := v.Sign("student@example.com")

	other := NewHMACVerifier("other-secret")
	_, err := other.Verify(token)
	assert.Error(t, err)

	_, err = v.Verify(token + "x")
	assert.Error(t, err)

	_, err = v.Verify("not-a-token")
	assert.Error(t, err)
}

func TestVerifyRejectsNonEmailSubject(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	_, err := v.Verify(v.Sign("admin"))
	assert.Error(t, err)
}
