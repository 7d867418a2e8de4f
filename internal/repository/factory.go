// Copyright (c) 2025 Justin Cranford

// Package repository is the GORM-backed credential store (spec §2 C1):
// every persistent model plus the per-aggregate repositories a service
// composes into atomic units via RepositoryFactory.Transaction.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	reauthDomain "github.com/reauth/reauth/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

type txKey struct{}

// withTx stashes the transaction handle a nested repository call should
// use instead of the factory's base connection.
func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func dbFromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback.WithContext(ctx)
}

// RepositoryFactory owns the single SQLite connection pool (spec §5
// "A single SQLite pool (WAL mode) is the primary resource") and hands
// out per-aggregate repositories bound to it.
type RepositoryFactory struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// NewRepositoryFactory opens dsn (spec §6 "database.url") in WAL mode
// against the CGO-free modernc.org/sqlite driver.
func NewRepositoryFactory(ctx context.Context, dsn string) (*RepositoryFactory, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context must be non-nil")
	}
	if dsn == "" {
		return nil, fmt.Errorf("dsn must be non-empty")
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, "PRAGMA busy_timeout = 30000;"); err != nil {
		return nil, fmt.Errorf("setting busy_timeout: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("enabling foreign_keys: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening gorm: %w", err)
	}

	return &RepositoryFactory{db: db, sqlDB: sqlDB}, nil
}

// AutoMigrate creates/updates every table this port defines.
func (f *RepositoryFactory) AutoMigrate(ctx context.Context) error {
	return f.db.WithContext(ctx).AutoMigrate(
		&reauthDomain.Realm{},
		&reauthDomain.User{},
		&reauthDomain.Role{},
		&reauthDomain.RoleComposite{},
		&reauthDomain.Group{},
		&reauthDomain.UserGroup{},
		&reauthDomain.GroupRole{},
		&reauthDomain.UserRole{},
		&reauthDomain.RolePermission{},
		&reauthDomain.CustomPermission{},
		&reauthDomain.OidcClient{},
		&reauthDomain.AuthorizationCode{},
		&reauthDomain.RefreshToken{},
		&reauthDomain.FlowDraft{},
		&reauthDomain.FlowVersion{},
		&reauthDomain.FlowDeployment{},
		&reauthDomain.AuthenticationSession{},
		&reauthDomain.AuthSessionAction{},
		&reauthDomain.LoginAttempt{},
		&reauthDomain.EventOutbox{},
		&reauthDomain.WebhookEndpoint{},
		&reauthDomain.WebhookSubscription{},
		&reauthDomain.DeliveryLog{},
	)
}

func (f *RepositoryFactory) Close() error { return f.sqlDB.Close() }

// Transaction runs fn with a tx-bound context; every repository obtained
// from the factory and used with that context participates in the same
// transaction (spec §5 "Transaction discipline").
func (f *RepositoryFactory) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(withTx(ctx, tx))
	})
}

func (f *RepositoryFactory) RealmRepository() *RealmRepository   { return &RealmRepository{db: f.db} }
func (f *RepositoryFactory) UserRepository() *UserRepository     { return &UserRepository{db: f.db} }
func (f *RepositoryFactory) RbacRepository() *RbacRepository     { return &RbacRepository{db: f.db} }
func (f *RepositoryFactory) OidcRepository() *OidcRepository     { return &OidcRepository{db: f.db} }
func (f *RepositoryFactory) FlowRepository() *FlowRepository     { return &FlowRepository{db: f.db} }
func (f *RepositoryFactory) SessionRepository() *SessionRepository {
	return &SessionRepository{db: f.db}
}
func (f *RepositoryFactory) OutboxRepository() *OutboxRepository {
	return &OutboxRepository{db: f.db}
}
func (f *RepositoryFactory) WebhookRepository() *WebhookRepository {
	return &WebhookRepository{db: f.db}
}
