package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/meridianlabs/authgate/session"
)

// SessionStore implements session.Store on MySQL.
type SessionStore struct {
	db *gorm.DB
}

func (s *SessionStore) Insert(ctx context.Context, sess *session.Session) error {
	rec := sessionRecord{
		ID:           sess.ID,
		AccountID:    sess.AccountID,
		IPAddress:    sess.IPAddress,
		UserAgent:    sess.UserAgent,
		Fingerprint:  sess.Fingerprint,
		RefreshHash:  sess.RefreshHash[:],
		Status:       uint8(sess.Status),
		CreatedAt:    sess.CreatedAt,
		LastActiveAt: sess.LastActiveAt,
		ExpiresAt:    sess.ExpiresAt,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrSessionNotFound
		}
		return nil, err
	}
	return recordToSession(&rec), nil
}

func (s *SessionStore) ListByAccount(ctx context.Context, accountID string) ([]*session.Session, error) {
	var recs []sessionRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	sessions := make([]*session.Session, len(recs))
	for i := range recs {
		sessions[i] = recordToSession(&recs[i])
	}
	return sessions, nil
}

func (s *SessionStore) SetStatus(ctx context.Context, id string, status session.Status) error {
	result := s.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("id = ?", id).
		Update("status", uint8(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) ExpireActive(ctx context.Context, accountID string) (int, error) {
	result := s.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("account_id = ? AND status = ?", accountID, uint8(session.StatusActive)).
		Update("status", uint8(session.StatusExpired))
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (s *SessionStore) DeactivateAll(ctx context.Context, accountID string) (int, error) {
	result := s.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("account_id = ? AND status <> ?", accountID, uint8(session.StatusInactive)).
		Update("status", uint8(session.StatusInactive))
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (s *SessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("id = ?", id).
		Update("last_active_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) LatestExpired(ctx context.Context, accountID string) (*session.Session, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, uint8(session.StatusExpired)).
		Order("last_active_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrSessionNotFound
		}
		return nil, err
	}
	return recordToSession(&rec), nil
}

func recordToSession(rec *sessionRecord) *session.Session {
	sess := &session.Session{
		ID:           rec.ID,
		AccountID:    rec.AccountID,
		IPAddress:    rec.IPAddress,
		UserAgent:    rec.UserAgent,
		Fingerprint:  rec.Fingerprint,
		Status:       session.Status(rec.Status),
		CreatedAt:    rec.CreatedAt,
		LastActiveAt: rec.LastActiveAt,
		ExpiresAt:    rec.ExpiresAt,
	}
	copy(sess.RefreshHash[:], rec.RefreshHash)
	return sess
}
