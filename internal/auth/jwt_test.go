package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVerifier() *Verifier {
	return NewVerifier(Config{Secret: "test-secret", Issuer: "huddle", TTL: time.Hour})
}

func TestVerifier_IssueAndVerify(t *testing.T) {
	v := testVerifier()

	token, err := v.Issue("u-1", "alice")
	require.NoError(t, err)

	user, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u-1"), user.ID)
	assert.Equal(t, "alice", user.Username)
}

func TestVerifier_UsernameFallsBackToID(t *testing.T) {
	v := testVerifier()

	token, err := v.Issue("u-2", "")
	require.NoError(t, err)

	user, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-2", user.Username)
}

func TestVerifier_SubjectOnlyToken(t *testing.T) {
	v := testVerifier()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "huddle",
		Subject:   "u-3",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	user, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u-3"), user.ID)
}

func TestVerifier_LongUsernameIsTruncated(t *testing.T) {
	v := testVerifier()
	long := strings.Repeat("é", domain.MaxUsernameLen+10)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   "u-4",
		Username: long,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "huddle",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	user, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u-4"), user.ID)
	assert.Equal(t, strings.Repeat("é", domain.MaxUsernameLen), user.Username)
}

func TestVerifier_Rejects(t *testing.T) {
	v := testVerifier()
	good, err := v.Issue("u-1", "alice")
	require.NoError(t, err)

	other, err := NewVerifier(Config{Secret: "other", Issuer: "huddle", TTL: time.Hour}).Issue("u-1", "alice")
	require.NoError(t, err)

	wrongIssuer, err := NewVerifier(Config{Secret: "test-secret", Issuer: "someone", TTL: time.Hour}).Issue("u-1", "alice")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: "huddle"}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	cases := map[string]struct {
		credential string
		want       error
	}{
		"missing":       {"", ErrMissingCredential},
		"blank":         {"   ", ErrMissingCredential},
		"malformed":     {"not-a-token", ErrInvalidToken},
		"bad signature": {other, ErrInvalidToken},
		"tampered":      {good + "x", ErrInvalidToken},
		"wrong issuer":  {wrongIssuer, ErrInvalidToken},
		"alg none":      {none, ErrInvalidToken},
		"no user id":    {noUser, ErrInvalidToken},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			user, err := v.Verify(tc.credential)
			assert.Nil(t, user)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, domain.ErrAuthentication)
		})
	}
}

func TestVerifier_Expired(t *testing.T) {
	v := testVerifier()
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := v.Issue("u-1", "alice")
	require.NoError(t, err)

	v.now = time.Now
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}
