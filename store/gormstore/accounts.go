package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/meridianlabs/authgate"
)

// AccountStore implements authgate.AccountStore on MySQL.
type AccountStore struct {
	db *gorm.DB
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*authgate.Account, error) {
	return s.getBy(ctx, "email = ?", email)
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*authgate.Account, error) {
	return s.getBy(ctx, "id = ?", id)
}

func (s *AccountStore) GetByUsername(ctx context.Context, username string) (*authgate.Account, error) {
	return s.getBy(ctx, "username = ?", username)
}

func (s *AccountStore) GetByPhone(ctx context.Context, phone string) (*authgate.Account, error) {
	if phone == "" {
		return nil, authgate.ErrAccountNotFound
	}
	return s.getBy(ctx, "phone = ?", phone)
}

func (s *AccountStore) getBy(ctx context.Context, query string, arg any) (*authgate.Account, error) {
	var rec accountRecord
	err := s.db.WithContext(ctx).Where(query, arg).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authgate.ErrAccountNotFound
		}
		return nil, err
	}
	return recordToAccount(&rec), nil
}

func (s *AccountStore) Create(ctx context.Context, account *authgate.Account) error {
	rec := accountToRecord(account)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return authgate.ErrDuplicateAccount
		}
		return err
	}
	return nil
}

func (s *AccountStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateColumns(ctx, id, map[string]any{"password_hash": hash})
}

func (s *AccountStore) UpdatePhone(ctx context.Context, id, phone string) error {
	return s.updateColumns(ctx, id, map[string]any{"phone": phone})
}

// UpdateSecurityState writes all four security columns in one statement, so
// a lockout escalation is either fully applied or not at all.
func (s *AccountStore) UpdateSecurityState(ctx context.Context, id string, state authgate.SecurityState) error {
	return s.updateColumns(ctx, id, map[string]any{
		"failed_login_attempts": state.FailedLoginAttempts,
		"locked_until":          state.LockedUntil,
		"lockout_count":         state.LockoutCount,
		"disabled":              state.Disabled,
	})
}

// RecordLogin resets the failure counter, clears the lock, and stamps the
// login time in one statement.
func (s *AccountStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return s.updateColumns(ctx, id, map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         at,
	})
}

func (s *AccountStore) updateColumns(ctx context.Context, id string, cols map[string]any) error {
	result := s.db.WithContext(ctx).Model(&accountRecord{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return authgate.ErrAccountNotFound
	}
	return nil
}

func recordToAccount(rec *accountRecord) *authgate.Account {
	return &authgate.Account{
		ID:                  rec.ID,
		Email:               rec.Email,
		Username:            rec.Username,
		PasswordHash:        rec.PasswordHash,
		Phone:               rec.Phone,
		Tier:                rec.Tier,
		Verified:            rec.Verified,
		Active:              rec.Active,
		Disabled:            rec.Disabled,
		FailedLoginAttempts: rec.FailedLoginAttempts,
		LockedUntil:         rec.LockedUntil,
		LockoutCount:        rec.LockoutCount,
		LastLoginAt:         rec.LastLoginAt,
	}
}

func accountToRecord(account *authgate.Account) *accountRecord {
	return &accountRecord{
		ID:                  account.ID,
		Email:               account.Email,
		Username:            account.Username,
		PasswordHash:        account.PasswordHash,
		Phone:               account.Phone,
		Tier:                account.Tier,
		Verified:            account.Verified,
		Active:              account.Active,
		Disabled:            account.Disabled,
		FailedLoginAttempts: account.FailedLoginAttempts,
		LockedUntil:         account.LockedUntil,
		LockoutCount:        account.LockoutCount,
		LastLoginAt:         account.LastLoginAt,
	}
}
