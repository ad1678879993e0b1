package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser("u1", "  alice ")
	require.NoError(t, err)
	assert.Equal(t, User{ID: "u1", Username: "alice"}, *u)

	u, err = NewUser("u2", "")
	require.NoError(t, err)
	assert.Equal(t, "u2", u.Username)

	_, err = NewUser("", "bob")
	assert.ErrorIs(t, err, ErrUserIDInvalid)

	_, err = NewUser(UserID(strings.Repeat("x", MaxUserIDLen+1)), "bob")
	assert.ErrorIs(t, err, ErrUserIDInvalid)

	u, err = NewUser("u3", strings.Repeat("b", MaxUsernameLen+1))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("b", MaxUsernameLen), u.Username)

	u, err = NewUser("u4", strings.Repeat("ж", MaxUsernameLen))
	require.NoError(t, err)
	assert.Equal(t, MaxUsernameLen, len([]rune(u.Username)))

	assert.ErrorIs(t, u.SetUsername(strings.Repeat("ж", MaxUsernameLen+1)), ErrUsernameTooLong)
	assert.ErrorIs(t, u.SetUsername(""), ErrUsernameEmpty)
}

func TestNormalizeChannelName(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"general", "general", true},
		{"  dev-ops_2 ", "dev-ops_2", true},
		{"", "", false},
		{"   ", "", false},
		{" team chat ", "team chat", true},
		{"général", "général", true},
		{"random.talk", "random.talk", true},
		{strings.Repeat("é", MaxChannelNameLen), strings.Repeat("é", MaxChannelNameLen), true},
		{strings.Repeat("a", MaxChannelNameLen+1), strings.Repeat("a", MaxChannelNameLen+1), false},
	}
	for _, tc := range cases {
		got, ok := NormalizeChannelName(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}
