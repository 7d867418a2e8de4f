// Copyright (c) 2025 Justin Cranford
//
// Package rbac resolves a user's effective permission set over the
// composite-role DAG and group hierarchy, and caches the result per
// spec §4.4.
package rbac

import (
	"context"
	"strings"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"
	reauthRepository "github.com/reauth/reauth/internal/repository"

	lru "github.com/hashicorp/golang-lru/v2"
	googleUuid "github.com/google/uuid"
)

// Resolver computes and caches effective permissions per user_id. The
// cache is a bounded LRU (spec §5 "the permission cache is a bounded
// LRU keyed by user_id") and is only ever consulted through this type;
// callers never read role/group tables directly for a permission check.
type Resolver struct {
	repo  *reauthRepository.RbacRepository
	cache *lru.Cache[googleUuid.UUID, []string]
}

// NewResolver builds a resolver with an LRU of the given capacity.
func NewResolver(repo *reauthRepository.RbacRepository, cacheSize int) (*Resolver, error) {
	cache, err := lru.New[googleUuid.UUID, []string](cacheSize)
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &Resolver{repo: repo, cache: cache}, nil
}

// EffectivePermissions returns the union of permissions reachable from
// userID through direct roles, group-inherited roles (including
// ancestor groups), and composite-role closure (spec §4.4 steps 1-3),
// computing on cache miss.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID googleUuid.UUID) ([]string, error) {
	if cached, ok := r.cache.Get(userID); ok {
		return cached, nil
	}

	directAndGroup, err := r.repo.DirectRoleIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	closure, err := r.compositeClosure(ctx, directAndGroup)
	if err != nil {
		return nil, err
	}

	perms, err := r.repo.PermissionsForRoles(ctx, closure)
	if err != nil {
		return nil, err
	}

	r.cache.Add(userID, perms)
	return perms, nil
}

// Has reports whether userID's effective permissions satisfy p by exact
// match, the global wildcard "*", or a namespace wildcard "<ns>:*"
// (spec §4.4 Permission check, §8 testable property).
func (r *Resolver) Has(ctx context.Context, userID googleUuid.UUID, p string) (bool, error) {
	perms, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return matches(perms, p), nil
}

func matches(perms []string, p string) bool {
	ns, _, hasNamespace := strings.Cut(p, ":")
	for _, perm := range perms {
		switch {
		case perm == "*":
			return true
		case perm == p:
			return true
		case hasNamespace && perm == ns+":*":
			return true
		}
	}
	return false
}

// compositeClosure walks child edges outward from seeds (direct and
// group-inherited role ids) and returns seeds plus every descendant
// reachable through composite-role edges.
func (r *Resolver) compositeClosure(ctx context.Context, seeds []googleUuid.UUID) ([]googleUuid.UUID, error) {
	visited := make(map[googleUuid.UUID]struct{}, len(seeds))
	for _, id := range seeds {
		visited[id] = struct{}{}
	}
	frontier := append([]googleUuid.UUID{}, seeds...)

	for len(frontier) > 0 {
		edges, err := r.repo.ListChildEdges(ctx, frontier)
		if err != nil {
			return nil, err
		}
		var next []googleUuid.UUID
		for _, edge := range edges {
			if _, seen := visited[edge.ChildRoleID]; !seen {
				visited[edge.ChildRoleID] = struct{}{}
				next = append(next, edge.ChildRoleID)
			}
		}
		frontier = next
	}

	out := make([]googleUuid.UUID, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	return out, nil
}

// AddCompositeEdge inserts a (parentRoleID, childRoleID) edge after a
// descendant probe confirms it would not close a cycle (spec §3
// "cycles are forbidden and must be rejected at assignment time via a
// descendant probe", §8 scenario 6).
func (r *Resolver) AddCompositeEdge(ctx context.Context, parentRoleID, childRoleID googleUuid.UUID) error {
	if parentRoleID == childRoleID {
		return reauthApperr.Validation("would create a cycle", nil)
	}

	descendants, err := r.compositeClosure(ctx, []googleUuid.UUID{childRoleID})
	if err != nil {
		return err
	}
	for _, id := range descendants {
		if id == parentRoleID {
			return reauthApperr.Validation("would create a cycle", nil)
		}
	}

	return r.repo.AddCompositeEdge(ctx, parentRoleID, childRoleID)
}

// RoleAndGroupNames resolves the display names minted into the `roles`
// and `groups` token claims (spec §4.2 step 6): roles are the full
// direct-and-group-inherited set (not the composite closure, which has
// no display identity of its own), groups are the user's direct
// memberships.
func (r *Resolver) RoleAndGroupNames(ctx context.Context, userID googleUuid.UUID) (roles []string, groups []string, err error) {
	roleIDs, err := r.repo.DirectRoleIDsForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	roles, err = r.repo.RoleNamesForUser(ctx, roleIDs)
	if err != nil {
		return nil, nil, err
	}
	groups, err = r.repo.GroupNamesForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return roles, groups, nil
}

// ClearUser evicts userID's cached permission set.
func (r *Resolver) ClearUser(userID googleUuid.UUID) { r.cache.Remove(userID) }

// ClearUsers evicts every userID in the batch; domain events that can
// change a permission set carry the affected user set explicitly (spec
// §4.4 Invariant, e.g. RoleDeleted{affected_user_ids}).
func (r *Resolver) ClearUsers(userIDs []googleUuid.UUID) {
	for _, id := range userIDs {
		r.cache.Remove(id)
	}
}

// ValidateCustomPermission enforces spec §4.4's create_custom_permission
// guard: the name must be namespaced and must not collide with a
// reserved system permission or namespace.
func ValidateCustomPermission(name string) error {
	if !reauthDomain.ValidateCustomPermissionName(name) {
		return reauthApperr.Validation("invalid or reserved permission name", nil)
	}
	return nil
}
