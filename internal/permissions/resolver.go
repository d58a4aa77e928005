package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/accord-chat/accord/internal/domain"
)

// ownerPosition sorts the space owner above every role.
const ownerPosition = 1 << 30

// Store is the slice of the repository the resolver reads from.
type Store interface {
	Member(ctx context.Context, spaceID, userID string) (*domain.Member, error)
	RolesBySpace(ctx context.Context, spaceID string) ([]domain.Role, error)
	OverwritesByChannel(ctx context.Context, channelID string) ([]domain.PermissionOverwrite, error)
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// SpacePermissions computes the effective space-scope set: instance admins
// and the owner get {administrator}; members get @everyone unioned with
// every assigned role; non-members get Forbidden.
func (r *Resolver) SpacePermissions(ctx context.Context, p domain.Principal, space *domain.Space) (Set, error) {
	set, _, err := r.resolveSpace(ctx, p, space)
	return set, err
}

func (r *Resolver) resolveSpace(ctx context.Context, p domain.Principal, space *domain.Space) (Set, *domain.Member, error) {
	if p.Admin || space.OwnerID == p.UserID {
		return NewSet(Administrator), nil, nil
	}

	member, err := r.store.Member(ctx, space.ID, p.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.Forbidden("you are not a member of this space")
		}
		return nil, nil, fmt.Errorf("resolve member: %w", err)
	}

	roles, err := r.store.RolesBySpace(ctx, space.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve roles: %w", err)
	}

	assigned := NewSet(member.RoleIDs...)
	set := NewSet()
	for _, role := range roles {
		if role.Position == 0 || assigned.Has(role.ID) {
			set.Add(role.Permissions...)
		}
	}
	return set, member, nil
}

// ChannelPermissions layers the channel's overwrites on top of the space
// set. Precedence: @everyone overwrite, then role overwrites (allow wins
// across roles), then the member overwrite.
func (r *Resolver) ChannelPermissions(ctx context.Context, p domain.Principal, space *domain.Space, channel *domain.Channel) (Set, error) {
	base, member, err := r.resolveSpace(ctx, p, space)
	if err != nil {
		return nil, err
	}
	if base.Has(Administrator) {
		return base, nil
	}

	overwrites, err := r.store.OverwritesByChannel(ctx, channel.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve overwrites: %w", err)
	}
	if len(overwrites) == 0 {
		return base, nil
	}

	roles, err := r.store.RolesBySpace(ctx, space.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	var everyoneID string
	for _, role := range roles {
		if role.Position == 0 {
			everyoneID = role.ID
			break
		}
	}
	assigned := NewSet()
	if member != nil {
		assigned.Add(member.RoleIDs...)
	}

	set := base.Clone()

	for _, ow := range overwrites {
		if ow.TargetType == domain.OverwriteTargetRole && ow.TargetID == everyoneID {
			set.Remove(ow.Deny...)
			set.Add(ow.Allow...)
		}
	}

	roleAllow := NewSet()
	roleDeny := NewSet()
	for _, ow := range overwrites {
		if ow.TargetType != domain.OverwriteTargetRole || ow.TargetID == everyoneID {
			continue
		}
		if !assigned.Has(ow.TargetID) {
			continue
		}
		roleAllow.Add(ow.Allow...)
		roleDeny.Add(ow.Deny...)
	}
	for f := range roleAllow {
		delete(roleDeny, f)
	}
	set.Remove(roleDeny.Strings()...)
	set.Add(roleAllow.Strings()...)

	for _, ow := range overwrites {
		if ow.TargetType == domain.OverwriteTargetMember && ow.TargetID == p.UserID {
			set.Remove(ow.Deny...)
			set.Add(ow.Allow...)
		}
	}
	return set, nil
}

// HighestRolePosition returns the user's top role position in the space.
// The owner sorts above everything; a member with no roles is 0.
func (r *Resolver) HighestRolePosition(ctx context.Context, space *domain.Space, userID string) (int, error) {
	if space.OwnerID == userID {
		return ownerPosition, nil
	}
	member, err := r.store.Member(ctx, space.ID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("resolve member: %w", err)
	}
	if len(member.RoleIDs) == 0 {
		return 0, nil
	}
	roles, err := r.store.RolesBySpace(ctx, space.ID)
	if err != nil {
		return 0, fmt.Errorf("resolve roles: %w", err)
	}
	assigned := NewSet(member.RoleIDs...)
	highest := 0
	for _, role := range roles {
		if assigned.Has(role.ID) && role.Position > highest {
			highest = role.Position
		}
	}
	return highest, nil
}

// RequireHierarchy rejects unless the actor's highest role position is
// strictly above the target's. The owner always passes.
func (r *Resolver) RequireHierarchy(ctx context.Context, space *domain.Space, actorID, targetID string) error {
	actorPos, err := r.HighestRolePosition(ctx, space, actorID)
	if err != nil {
		return err
	}
	targetPos, err := r.HighestRolePosition(ctx, space, targetID)
	if err != nil {
		return err
	}
	if actorPos <= targetPos {
		return domain.Forbidden("target has an equal or higher role")
	}
	return nil
}

// RequireRoleHierarchy rejects unless the actor sorts strictly above the
// given role position.
func (r *Resolver) RequireRoleHierarchy(ctx context.Context, space *domain.Space, actorID string, rolePosition int) error {
	actorPos, err := r.HighestRolePosition(ctx, space, actorID)
	if err != nil {
		return err
	}
	if actorPos <= rolePosition {
		return domain.Forbidden("role is equal to or higher than your highest role")
	}
	return nil
}

// ValidateGrant enforces grant-only-what-you-have: every requested flag must
// be known and already held by the actor. Administrators bypass the held
// check but not the known check.
func ValidateGrant(actor Set, requested []string) error {
	for _, flag := range requested {
		if !Known[flag] {
			return domain.BadRequestf("unknown permission: %s", flag)
		}
		if !actor.Allows(flag) {
			return domain.Forbiddenf("cannot grant permission you do not hold: %s", flag)
		}
	}
	return nil
}
