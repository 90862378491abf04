package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewJWTManager("s3cret", time.Hour)
	require.NoError(t, err)

	token, expires, err := m.GenerateToken("phone-1", []string{RoleBridge})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "phone-1", claims.Subject)
	assert.Equal(t, []string{RoleBridge}, claims.Roles)
}

func TestValidateTokenRejects(t *testing.T) {
	m, err := NewJWTManager("s3cret", time.Hour)
	require.NoError(t, err)
	other, err := NewJWTManager("different", time.Hour)
	require.NoError(t, err)

	foreign, _, err := other.GenerateToken("phone-1", []string{RoleAdmin})
	require.NoError(t, err)
	_, err = m.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewJWTManager("s3cret", time.Hour)
	require.NoError(t, err)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.GenerateToken("phone-1", []string{RoleAdmin})
	require.NoError(t, err)
	_, err = m.ValidateToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTManagerNeedsSecret(t *testing.T) {
	_, err := NewJWTManager("", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestHasPermission(t *testing.T) {
	scenarios := []struct {
		roles      []string
		permission string
		expected   bool
	}{
		{[]string{RoleAdmin}, PermissionDeleteFiles, true},
		{[]string{RoleBridge}, PermissionDeleteFiles, true},
		{[]string{RoleBridge}, PermissionViewEvents, false},
		{[]string{RoleViewer}, PermissionDeleteFiles, false},
		{[]string{RoleViewer, RoleBridge}, PermissionDeleteFiles, true},
		{[]string{"unknown"}, PermissionReadFiles, false},
		{nil, PermissionReadFiles, false},
	}

	for _, s := range scenarios {
		assert.Equal(t, s.expected, HasPermission(s.roles, s.permission), "%v %s", s.roles, s.permission)
	}

	assert.ErrorIs(t, RequirePermission(PermissionDeleteFiles)(nil), ErrUnauthorized)
	assert.NoError(t, RequirePermission(PermissionReadFiles)(&Claims{Roles: []string{RoleViewer}}))
}
