// Copyright (c) 2025 Justin Cranford
//
// Package domain holds the GORM-mapped entities from spec §3, plus the
// small scalar adapter types SQLite needs (it has no native BOOLEAN and
// GORM's sql.NullString doesn't round-trip through JSON the way callers
// want). These mirror cryptoutil/internal/identity/domain's IntBool and
// NullableUUID.
package domain

import (
	"database/sql/driver"
	"fmt"

	googleUuid "github.com/google/uuid"
)

// IntBool stores a bool as SQLite INTEGER 0/1.
type IntBool bool

func (b *IntBool) Scan(value any) error {
	if value == nil {
		*b = false
		return nil
	}
	switch v := value.(type) {
	case int64:
		*b = v != 0
	case int:
		*b = v != 0
	case bool:
		*b = IntBool(v)
	default:
		return fmt.Errorf("cannot scan type %T into IntBool", value)
	}
	return nil
}

func (b IntBool) Value() (driver.Value, error) {
	if b {
		return int64(1), nil
	}
	return int64(0), nil
}

func (b IntBool) Bool() bool { return bool(b) }

// NullableUUID is a pointer-backed UUID that scans NULL cleanly and
// marshals to JSON null when absent, used for optional foreign keys like
// Role.ClientID and Group.ParentID.
type NullableUUID struct {
	UUID  googleUuid.UUID
	Valid bool
}

func NewNullableUUID(id *googleUuid.UUID) NullableUUID {
	if id == nil {
		return NullableUUID{}
	}
	return NullableUUID{UUID: *id, Valid: true}
}

func (n *NullableUUID) Scan(value any) error {
	if value == nil {
		n.UUID, n.Valid = googleUuid.Nil, false
		return nil
	}
	switch v := value.(type) {
	case string:
		id, err := googleUuid.Parse(v)
		if err != nil {
			return err
		}
		n.UUID, n.Valid = id, true
	case []byte:
		id, err := googleUuid.ParseBytes(v)
		if err != nil {
			return err
		}
		n.UUID, n.Valid = id, true
	default:
		return fmt.Errorf("cannot scan type %T into NullableUUID", value)
	}
	return nil
}

func (n NullableUUID) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.UUID.String(), nil
}

func (n NullableUUID) Ptr() *googleUuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

func (n NullableUUID) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(`"` + n.UUID.String() + `"`), nil
}

func (n *NullableUUID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		n.UUID, n.Valid = googleUuid.Nil, false
		return nil
	}
	id, err := googleUuid.Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	n.UUID, n.Valid = id, true
	return nil
}
