// Copyright (c) 2025 Justin Cranford

package repository

import (
	"context"
	"errors"

	reauthApperr "github.com/reauth/reauth/internal/apperr"
	reauthDomain "github.com/reauth/reauth/internal/domain"

	googleUuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// RbacRepository persists roles, groups, their relations and custom
// permissions (spec §3 Role/Group/Relations, grounded in
// original_source/src/ports/rbac_repository.rs).
type RbacRepository struct{ db *gorm.DB }

// --- Roles ---

func (r *RbacRepository) CreateRole(ctx context.Context, role *reauthDomain.Role) error {
	if err := dbFromContext(ctx, r.db).Create(role).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RbacRepository) FindRoleByID(ctx context.Context, id googleUuid.UUID) (*reauthDomain.Role, error) {
	var role reauthDomain.Role
	err := dbFromContext(ctx, r.db).First(&role, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("role not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &role, nil
}

func (r *RbacRepository) FindRoleByName(ctx context.Context, realmID googleUuid.UUID, name string) (*reauthDomain.Role, error) {
	var role reauthDomain.Role
	err := dbFromContext(ctx, r.db).First(&role, "realm_id = ? AND name = ?", realmID, name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("role not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &role, nil
}

func (r *RbacRepository) ListRoles(ctx context.Context, realmID googleUuid.UUID, req PageRequest) (PageResponse[reauthDomain.Role], error) {
	req = req.Normalize()
	db := dbFromContext(ctx, r.db).Model(&reauthDomain.Role{}).Where("realm_id = ?", realmID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return PageResponse[reauthDomain.Role]{}, reauthApperr.Unexpected(err)
	}
	var roles []reauthDomain.Role
	if err := db.Order("name").Offset(req.offset()).Limit(req.limit()).Find(&roles).Error; err != nil {
		return PageResponse[reauthDomain.Role]{}, reauthApperr.Unexpected(err)
	}
	return NewPageResponse(roles, total, req), nil
}

func (r *RbacRepository) DeleteRole(ctx context.Context, id googleUuid.UUID) error {
	if err := dbFromContext(ctx, r.db).Delete(&reauthDomain.Role{}, "id = ?", id).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// --- Composite-role edges ---

// ListChildEdges returns every (parent,child) edge whose parent is one
// of roleIDs; used by both the RBAC resolver's BFS closure and the
// cycle-prevention descendant probe.
func (r *RbacRepository) ListChildEdges(ctx context.Context, parentRoleIDs []googleUuid.UUID) ([]reauthDomain.RoleComposite, error) {
	if len(parentRoleIDs) == 0 {
		return nil, nil
	}
	var edges []reauthDomain.RoleComposite
	err := dbFromContext(ctx, r.db).Where("parent_role_id IN ?", parentRoleIDs).Find(&edges).Error
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return edges, nil
}

func (r *RbacRepository) AddCompositeEdge(ctx context.Context, parentRoleID, childRoleID googleUuid.UUID) error {
	edge := reauthDomain.RoleComposite{ParentRoleID: parentRoleID, ChildRoleID: childRoleID}
	if err := dbFromContext(ctx, r.db).Create(&edge).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RbacRepository) RemoveCompositeEdge(ctx context.Context, parentRoleID, childRoleID googleUuid.UUID) error {
	err := dbFromContext(ctx, r.db).
		Delete(&reauthDomain.RoleComposite{}, "parent_role_id = ? AND child_role_id = ?", parentRoleID, childRoleID).Error
	if err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// --- Groups ---

func (r *RbacRepository) CreateGroup(ctx context.Context, group *reauthDomain.Group) error {
	if err := dbFromContext(ctx, r.db).Create(group).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RbacRepository) FindGroupByID(ctx context.Context, id googleUuid.UUID) (*reauthDomain.Group, error) {
	var group reauthDomain.Group
	err := dbFromContext(ctx, r.db).First(&group, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, reauthApperr.NotFound("group not found", nil)
	}
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return &group, nil
}

func (r *RbacRepository) ListGroups(ctx context.Context, realmID googleUuid.UUID, req PageRequest) (PageResponse[reauthDomain.Group], error) {
	req = req.Normalize()
	db := dbFromContext(ctx, r.db).Model(&reauthDomain.Group{}).Where("realm_id = ?", realmID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return PageResponse[reauthDomain.Group]{}, reauthApperr.Unexpected(err)
	}
	var groups []reauthDomain.Group
	if err := db.Order("sort_order, name").Offset(req.offset()).Limit(req.limit()).Find(&groups).Error; err != nil {
		return PageResponse[reauthDomain.Group]{}, reauthApperr.Unexpected(err)
	}
	return NewPageResponse(groups, total, req), nil
}

// ListChildren returns the immediate children of parentID ordered by
// sort_order.
func (r *RbacRepository) ListChildren(ctx context.Context, parentID googleUuid.UUID) ([]reauthDomain.Group, error) {
	var groups []reauthDomain.Group
	err := dbFromContext(ctx, r.db).Where("parent_id = ?", parentID).Order("sort_order").Find(&groups).Error
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return groups, nil
}

// SetGroupOrders atomically rewrites the sort_order of every group in
// orderedIDs to its index in the slice (spec §3 Group "reorder
// operations rewrite the sibling list atomically", supplement grounded
// on original_source's set_group_orders).
func (r *RbacRepository) SetGroupOrders(ctx context.Context, orderedIDs []googleUuid.UUID) error {
	return dbFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		for index, id := range orderedIDs {
			if err := tx.Model(&reauthDomain.Group{}).Where("id = ?", id).Update("sort_order", index).Error; err != nil {
				return reauthApperr.Unexpected(err)
			}
		}
		return nil
	})
}

// --- Relations ---

func (r *RbacRepository) AssignRoleToGroup(ctx context.Context, groupID, roleID googleUuid.UUID) error {
	if err := dbFromContext(ctx, r.db).Create(&reauthDomain.GroupRole{GroupID: groupID, RoleID: roleID}).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RbacRepository) RemoveRoleFromGroup(ctx context.Context, groupID, roleID googleUuid.UUID) error {
	err := dbFromContext(ctx, r.db).Delete(&reauthDomain.GroupRole{}, "group_id = ? AND role_id = ?", groupID, roleID).Error
	if err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RbacRepository) AssignUserToGroup(ctx context.Context, userID, groupID googleUuid.UUID) error {
	if err := dbFromContext(ctx, r.db).Create(&reauthDomain.UserGroup{UserID: userID, GroupID: groupID}).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RbacRepository) RemoveUserFromGroup(ctx context.Context, userID, groupID googleUuid.UUID) error {
	err := dbFromContext(ctx, r.db).Delete(&reauthDomain.UserGroup{}, "user_id = ? AND group_id = ?", userID, groupID).Error
	if err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RbacRepository) AssignRoleToUser(ctx context.Context, userID, roleID googleUuid.UUID) error {
	if err := dbFromContext(ctx, r.db).Create(&reauthDomain.UserRole{UserID: userID, RoleID: roleID}).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RbacRepository) RemoveRoleFromUser(ctx context.Context, userID, roleID googleUuid.UUID) error {
	err := dbFromContext(ctx, r.db).Delete(&reauthDomain.UserRole{}, "user_id = ? AND role_id = ?", userID, roleID).Error
	if err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RbacRepository) AssignPermissionToRole(ctx context.Context, roleID googleUuid.UUID, permission string) error {
	row := reauthDomain.RolePermission{RoleID: roleID, Permission: permission}
	if err := dbFromContext(ctx, r.db).Create(&row).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

// DirectRoleIDsForUser returns a user's directly-assigned role ids plus
// the role ids inherited from every group the user belongs to (spec
// §4.4 step 1's "user_roles ∪ group_roles over user's groups").
func (r *RbacRepository) DirectRoleIDsForUser(ctx context.Context, userID googleUuid.UUID) ([]googleUuid.UUID, error) {
	db := dbFromContext(ctx, r.db)

	var direct []googleUuid.UUID
	if err := db.Model(&reauthDomain.UserRole{}).Where("user_id = ?", userID).Pluck("role_id", &direct).Error; err != nil {
		return nil, reauthApperr.Unexpected(err)
	}

	var groupIDs []googleUuid.UUID
	if err := db.Model(&reauthDomain.UserGroup{}).Where("user_id = ?", userID).Pluck("group_id", &groupIDs).Error; err != nil {
		return nil, reauthApperr.Unexpected(err)
	}

	ancestry, err := r.groupAncestry(ctx, groupIDs)
	if err != nil {
		return nil, err
	}

	if len(ancestry) > 0 {
		var fromGroups []googleUuid.UUID
		if err := db.Model(&reauthDomain.GroupRole{}).Where("group_id IN ?", ancestry).Pluck("role_id", &fromGroups).Error; err != nil {
			return nil, reauthApperr.Unexpected(err)
		}
		direct = append(direct, fromGroups...)
	}

	return dedupeUUIDs(direct), nil
}

// groupAncestry walks ParentID upward from every seed group, returning
// the seeds plus every ancestor (spec §4.4 "ancestor groups").
func (r *RbacRepository) groupAncestry(ctx context.Context, seeds []googleUuid.UUID) ([]googleUuid.UUID, error) {
	db := dbFromContext(ctx, r.db)
	visited := make(map[googleUuid.UUID]struct{}, len(seeds))
	frontier := append([]googleUuid.UUID{}, seeds...)

	for _, id := range seeds {
		visited[id] = struct{}{}
	}

	for len(frontier) > 0 {
		var groups []reauthDomain.Group
		if err := db.Where("id IN ?", frontier).Find(&groups).Error; err != nil {
			return nil, reauthApperr.Unexpected(err)
		}
		var next []googleUuid.UUID
		for _, g := range groups {
			if parent := g.ParentID.Ptr(); parent != nil {
				if _, seen := visited[*parent]; !seen {
					visited[*parent] = struct{}{}
					next = append(next, *parent)
				}
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

// PermissionsForRoles returns the union of role_permissions rows for
// roleIDs (spec §4.4 step 3).
func (r *RbacRepository) PermissionsForRoles(ctx context.Context, roleIDs []googleUuid.UUID) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var perms []string
	err := dbFromContext(ctx, r.db).Model(&reauthDomain.RolePermission{}).
		Where("role_id IN ?", roleIDs).Pluck("permission", &perms).Error
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return perms, nil
}

// RoleNamesForUser resolves display names for the user's direct-and-
// group-inherited role set, used for the `roles` claim minted into
// access/id tokens (spec §4.2 step 6).
func (r *RbacRepository) RoleNamesForUser(ctx context.Context, roleIDs []googleUuid.UUID) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var names []string
	err := dbFromContext(ctx, r.db).Model(&reauthDomain.Role{}).
		Where("id IN ?", roleIDs).Pluck("name", &names).Error
	if err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return names, nil
}

// GroupNamesForUser resolves display names for every group the user
// directly belongs to (not the ancestor closure), used for the
// `groups` claim (spec §4.2 step 6).
func (r *RbacRepository) GroupNamesForUser(ctx context.Context, userID googleUuid.UUID) ([]string, error) {
	db := dbFromContext(ctx, r.db)

	var groupIDs []googleUuid.UUID
	if err := db.Model(&reauthDomain.UserGroup{}).Where("user_id = ?", userID).Pluck("group_id", &groupIDs).Error; err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	if len(groupIDs) == 0 {
		return nil, nil
	}

	var names []string
	if err := db.Model(&reauthDomain.Group{}).Where("id IN ?", groupIDs).Pluck("name", &names).Error; err != nil {
		return nil, reauthApperr.Unexpected(err)
	}
	return names, nil
}

// --- Custom permissions ---

func (r *RbacRepository) CreateCustomPermission(ctx context.Context, perm *reauthDomain.CustomPermission) error {
	if err := dbFromContext(ctx, r.db).Create(perm).Error; err != nil {
		return reauthApperr.Unexpected(err)
	}
	return nil
}

func (r *RbacRepository) ListCustomPermissions(ctx context.Context, realmID googleUuid.UUID, req PageRequest) (PageResponse[reauthDomain.CustomPermission], error) {
	req = req.Normalize()
	db := dbFromContext(ctx, r.db).Model(&reauthDomain.CustomPermission{}).Where("realm_id = ?", realmID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return PageResponse[reauthDomain.CustomPermission]{}, reauthApperr.Unexpected(err)
	}
	var perms []reauthDomain.CustomPermission
	if err := db.Order("permission").Offset(req.offset()).Limit(req.limit()).Find(&perms).Error; err != nil {
		return PageResponse[reauthDomain.CustomPermission]{}, reauthApperr.Unexpected(err)
	}
	return NewPageResponse(perms, total, req), nil
}

func dedupeUUIDs(ids []googleUuid.UUID) []googleUuid.UUID {
	seen := make(map[googleUuid.UUID]struct{}, len(ids))
	out := make([]googleUuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
