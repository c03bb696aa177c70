package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meridianlabs/authgate/verification"
)

// CodeStore implements verification.PersistentStore on MySQL.
type CodeStore struct {
	db *gorm.DB
}

// Put upserts on the (account, purpose) primary key, so reissuing a code
// replaces the previous one in a single statement.
func (s *CodeStore) Put(ctx context.Context, record verification.Record) error {
	rec := codeRecord{
		AccountID: record.AccountID,
		Purpose:   uint8(record.Purpose),
		Code:      record.Code,
		ExpiresAt: record.ExpiresAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "purpose"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "expires_at"}),
	}).Create(&rec).Error
}

func (s *CodeStore) Get(ctx context.Context, accountID string, purpose verification.Purpose) (*verification.Record, error) {
	var rec codeRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND purpose = ?", accountID, uint8(purpose)).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, verification.ErrCodeNotFound
		}
		return nil, err
	}
	return &verification.Record{
		AccountID: rec.AccountID,
		Code:      rec.Code,
		Purpose:   verification.Purpose(rec.Purpose),
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func (s *CodeStore) Delete(ctx context.Context, accountID string, purpose verification.Purpose) error {
	return s.db.WithContext(ctx).
		Where("account_id = ? AND purpose = ?", accountID, uint8(purpose)).
		Delete(&codeRecord{}).Error
}

// DeleteMatching deletes only the row whose stored code equals code. The
// row count tells concurrent redeemers apart: exactly one sees 1.
func (s *CodeStore) DeleteMatching(ctx context.Context, accountID string, purpose verification.Purpose, code string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("account_id = ? AND purpose = ? AND code = ?", accountID, uint8(purpose), code).
		Delete(&codeRecord{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
