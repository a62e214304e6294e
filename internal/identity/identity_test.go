package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

func TestNewStaticDefaults(t *testing.T) {
	actor, err := NewStatic(model.Actor{}).CurrentActor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, System, actor)

	actor, err = NewStatic(model.Actor{ID: "amina", Role: model.RoleClerk}).CurrentActor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "amina", actor.Label)
	assert.Equal(t, model.RoleClerk, actor.Role)
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    model.Role
		wantErr bool
	}{
		{in: "admin", want: model.RoleAdmin},
		{in: " Clerk ", want: model.RoleClerk},
		{in: "", want: model.RoleAdmin},
		{in: "owner", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequire(t *testing.T) {
	ctx := context.Background()

	admin := NewStatic(model.Actor{ID: "boss", Role: model.RoleAdmin})
	actor, err := Require(ctx, admin, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "boss", actor.ID)

	clerk := NewStatic(model.Actor{ID: "clerk", Role: model.RoleClerk})
	_, err = Require(ctx, clerk, model.RoleAdmin)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
}
