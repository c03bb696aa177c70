package gormstore

import (
	"time"
)

type accountRecord struct {
	ID           string `gorm:"type:char(36);primaryKey"`
	Email        string `gorm:"size:250;not null;uniqueIndex"`
	Username     string `gorm:"size:100;not null;uniqueIndex"`
	PasswordHash string `gorm:"size:250;not null"`
	Phone        string `gorm:"size:20;index"`
	Tier         string `gorm:"size:50;default:''"`

	Verified bool `gorm:"default:false"`
	Active   bool `gorm:"default:true"`
	Disabled bool `gorm:"default:false"`

	FailedLoginAttempts int        `gorm:"default:0"`
	LockedUntil         *time.Time `gorm:"index"`
	LockoutCount        int        `gorm:"default:0"`
	LastLoginAt         *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (accountRecord) TableName() string { return "accounts" }

type sessionRecord struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	AccountID string `gorm:"type:char(36);not null;index"`

	IPAddress   string `gorm:"size:50"`
	UserAgent   string `gorm:"size:250"`
	Fingerprint []byte `gorm:"size:64"`
	RefreshHash []byte `gorm:"size:32;not null"`

	Status uint8 `gorm:"not null;index"`

	CreatedAt    time.Time
	LastActiveAt time.Time `gorm:"index"`
	ExpiresAt    time.Time `gorm:"index"`
}

func (sessionRecord) TableName() string { return "sessions" }

// codeRecord keys on account+purpose, so a fresh issue for the same purpose
// replaces the previous row.
type codeRecord struct {
	AccountID string `gorm:"type:char(36);primaryKey"`
	Purpose   uint8  `gorm:"primaryKey"`
	Code      string `gorm:"size:10;not null"`
	ExpiresAt time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (codeRecord) TableName() string { return "verification_codes" }

type subscriptionRecord struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	AccountID string `gorm:"type:char(36);not null;index"`
	Status    string `gorm:"size:20;not null"`
	EndDate   time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (subscriptionRecord) TableName() string { return "subscriptions" }

type auditRecord struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index"`
	EventType string    `gorm:"size:50;not null;index"`
	AccountID string    `gorm:"type:char(36);index"`
	SessionID string    `gorm:"type:char(36)"`
	IP        string    `gorm:"size:50"`
	Success   bool
	Error     string `gorm:"size:250"`
	Metadata  string `gorm:"type:text"`
}

func (auditRecord) TableName() string { return "audit_events" }
