// Package identity tells the ledger who is acting and what they may do.
package identity

import (
	"context"
	"fmt"
	"os/user"
	"strings"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// System is the actor used when nothing else is configured.
var System = model.Actor{ID: "system", Label: "System", Role: model.RoleAdmin}

// Static always reports the same actor.
type Static struct {
	actor model.Actor
}

var _ service.IdentityProvider = (*Static)(nil)

// NewStatic returns a provider for actor. Empty fields fall back to System's.
func NewStatic(actor model.Actor) *Static {
	if actor.ID == "" {
		actor.ID = System.ID
	}
	if actor.Label == "" {
		actor.Label = actor.ID
	}
	if actor.Role == "" {
		actor.Role = System.Role
	}
	return &Static{actor: actor}
}

// CurrentActor implements service.IdentityProvider.
func (s *Static) CurrentActor(_ context.Context) (model.Actor, error) {
	return s.actor, nil
}

// FromOS builds a provider for the logged-in operating system user.
func FromOS(role model.Role) (*Static, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to look up current user: %w", err)
	}
	label := u.Name
	if label == "" {
		label = u.Username
	}
	return NewStatic(model.Actor{ID: u.Username, Label: label, Role: role}), nil
}

// ParseRole converts a configured role name.
func ParseRole(s string) (model.Role, error) {
	switch model.Role(strings.ToLower(strings.TrimSpace(s))) {
	case model.RoleAdmin, "":
		return model.RoleAdmin, nil
	case model.RoleClerk:
		return model.RoleClerk, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", common.ErrInvalidConfig, s)
	}
}

// Require resolves the current actor and fails with common.ErrPermissionDenied
// unless it holds role.
func Require(ctx context.Context, provider service.IdentityProvider, role model.Role) (model.Actor, error) {
	actor, err := provider.CurrentActor(ctx)
	if err != nil {
		return model.Actor{}, fmt.Errorf("failed to resolve actor: %w", err)
	}
	if actor.Role != role {
		return actor, fmt.Errorf("%w: %s (%s) needs role %s", common.ErrPermissionDenied, actor.Label, actor.Role, role)
	}
	return actor, nil
}
