// Package gormstore provides a MySQL-backed implementation of every
// persistence contract the engine consumes: accounts, sessions, verification
// codes, subscriptions, and an audit sink. One *gorm.DB serves all of them.
package gormstore

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Store wraps a gorm connection and hands out the per-contract adapters.
type Store struct {
	db *gorm.DB
}

// Open connects to MySQL with error translation enabled, so duplicate-key
// violations surface as gorm.ErrDuplicatedKey.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an existing connection. The caller is responsible for enabling
// TranslateError when the connection was opened elsewhere.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates every table this package owns.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&accountRecord{},
		&sessionRecord{},
		&codeRecord{},
		&subscriptionRecord{},
		&auditRecord{},
	)
}

// Accounts returns the account store adapter.
func (s *Store) Accounts() *AccountStore {
	return &AccountStore{db: s.db}
}

// Sessions returns the session store adapter.
func (s *Store) Sessions() *SessionStore {
	return &SessionStore{db: s.db}
}

// Codes returns the durable verification-code adapter.
func (s *Store) Codes() *CodeStore {
	return &CodeStore{db: s.db}
}

// Subscriptions returns the billing reader adapter.
func (s *Store) Subscriptions() *SubscriptionStore {
	return &SubscriptionStore{db: s.db}
}

// AuditSink returns a sink that appends audit events to the audit_events
// table.
func (s *Store) AuditSink() *AuditSink {
	return &AuditSink{db: s.db}
}
