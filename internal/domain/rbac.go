// Copyright (c) 2025 Justin Cranford

package domain

import (
	"strings"
	"time"

	googleUuid "github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is realm-wide when ClientID is absent, client-scoped otherwise
// (spec §3 Role).
type Role struct {
	ID          googleUuid.UUID `gorm:"type:text;primaryKey"`
	RealmID     googleUuid.UUID `gorm:"type:text;not null;index"`
	ClientID    NullableUUID    `gorm:"type:text"`
	Name        string          `gorm:"not null"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Role) TableName() string { return "roles" }

func (r *Role) BeforeCreate(_ *gorm.DB) error {
	if r.ID == googleUuid.Nil {
		r.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

func (r *Role) IsRealmWide() bool { return !r.ClientID.Valid }

// RoleComposite is a (parent_role_id, child_role_id) edge; the set must
// remain acyclic (spec §3 Composite-role edge, §4.4 Cycle prevention).
type RoleComposite struct {
	ParentRoleID googleUuid.UUID `gorm:"type:text;primaryKey"`
	ChildRoleID  googleUuid.UUID `gorm:"type:text;primaryKey"`
}

func (RoleComposite) TableName() string { return "role_composites" }

// Group forms a forest per realm via ParentID; SortOrder is contiguous
// within a sibling set (spec §3 Group).
type Group struct {
	ID        googleUuid.UUID `gorm:"type:text;primaryKey"`
	RealmID   googleUuid.UUID `gorm:"type:text;not null;index"`
	ParentID  NullableUUID    `gorm:"type:text;index"`
	Name      string          `gorm:"not null"`
	SortOrder int             `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Group) TableName() string { return "groups" }

func (g *Group) BeforeCreate(_ *gorm.DB) error {
	if g.ID == googleUuid.Nil {
		g.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

// UserGroup, GroupRole, UserRole, RolePermission are the many-to-many
// relation tables from spec §3 "Relations".
type UserGroup struct {
	UserID  googleUuid.UUID `gorm:"type:text;primaryKey"`
	GroupID googleUuid.UUID `gorm:"type:text;primaryKey"`
}

func (UserGroup) TableName() string { return "user_groups" }

type GroupRole struct {
	GroupID googleUuid.UUID `gorm:"type:text;primaryKey"`
	RoleID  googleUuid.UUID `gorm:"type:text;primaryKey"`
}

func (GroupRole) TableName() string { return "group_roles" }

type UserRole struct {
	UserID googleUuid.UUID `gorm:"type:text;primaryKey"`
	RoleID googleUuid.UUID `gorm:"type:text;primaryKey"`
}

func (UserRole) TableName() string { return "user_roles" }

type RolePermission struct {
	RoleID     googleUuid.UUID `gorm:"type:text;primaryKey"`
	Permission string          `gorm:"primaryKey"`
}

func (RolePermission) TableName() string { return "role_permissions" }

// CustomPermission is a realm-scoped, optionally client-scoped permission
// string namespaced "<ns>:<action>" (spec §3 custom_permissions).
type CustomPermission struct {
	ID          googleUuid.UUID `gorm:"type:text;primaryKey"`
	RealmID     googleUuid.UUID `gorm:"type:text;not null;index"`
	ClientID    NullableUUID    `gorm:"type:text"`
	Permission  string          `gorm:"not null"`
	Description string
	CreatedAt   time.Time
}

func (CustomPermission) TableName() string { return "custom_permissions" }

func (c *CustomPermission) BeforeCreate(_ *gorm.DB) error {
	if c.ID == googleUuid.Nil {
		c.ID = googleUuid.Must(googleUuid.NewV7())
	}
	return nil
}

// SystemPermissions enumerates the concrete system permission strings;
// SystemNamespaces is the set of namespaces those permissions live under.
// Both are "reserved" per spec §4.4: a custom permission may neither equal
// a system permission nor be created under a system namespace.
var SystemPermissions = map[string]struct{}{
	"realm:manage": {}, "realm:view": {},
	"users:manage": {}, "users:view": {},
	"roles:manage": {}, "roles:view": {},
	"groups:manage": {}, "groups:view": {},
	"clients:manage": {}, "clients:view": {},
	"flows:manage": {}, "flows:view": {},
	"webhooks:manage": {}, "webhooks:view": {},
	"events:view": {},
}

var SystemNamespaces = map[string]struct{}{
	"realm": {}, "users": {}, "roles": {}, "groups": {},
	"clients": {}, "flows": {}, "webhooks": {}, "events": {},
}

// ValidateCustomPermissionName enforces spec §8's invariant: exactly one
// ":" and a namespace prefix that is not a reserved system namespace.
func ValidateCustomPermissionName(name string) bool {
	if strings.Count(name, ":") != 1 {
		return false
	}
	parts := strings.SplitN(name, ":", 2)
	if parts[0] == "" || parts[1] == "" {
		return false
	}
	if _, reserved := SystemNamespaces[parts[0]]; reserved {
		return false
	}
	if _, reserved := SystemPermissions[name]; reserved {
		return false
	}
	return true
}
