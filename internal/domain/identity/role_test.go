package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"administrator", RoleAdministrator, false},
		{" Owner ", RoleOwner, false},
		{"ADMINISTRATOR", RoleAdministrator, false},
		{"admin", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, shared.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRole_BypassesOwnership(t *testing.T) {
	assert.True(t, RoleAdministrator.BypassesOwnership())
	assert.False(t, RoleOwner.BypassesOwnership())
	assert.False(t, Role("guest").BypassesOwnership())
	assert.False(t, Role("guest").IsValid())
	assert.Len(t, AllRoles(), 2)
}

func TestCaller(t *testing.T) {
	owner := NewCaller(uuid.New(), RoleOwner)
	assert.False(t, owner.IsAdministrator())
	assert.True(t, SystemCaller().IsAdministrator())
}
