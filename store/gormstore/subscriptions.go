package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/meridianlabs/authgate"
)

// SubscriptionStore implements authgate.SubscriptionReader on MySQL.
type SubscriptionStore struct {
	db *gorm.DB
}

// Latest returns the account's most recent subscription row by end date.
func (s *SubscriptionStore) Latest(ctx context.Context, accountID string) (*authgate.Subscription, error) {
	var rec subscriptionRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("end_date DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authgate.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &authgate.Subscription{
		ID:        rec.ID,
		AccountID: rec.AccountID,
		Status:    authgate.SubscriptionStatus(rec.Status),
		EndDate:   rec.EndDate,
	}, nil
}

func (s *SubscriptionStore) MarkExpired(ctx context.Context, subscriptionID string) error {
	result := s.db.WithContext(ctx).Model(&subscriptionRecord{}).
		Where("id = ?", subscriptionID).
		Update("status", string(authgate.SubscriptionExpired))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return authgate.ErrSubscriptionNotFound
	}
	return nil
}
