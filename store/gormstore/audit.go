package gormstore

import (
	"context"
	"encoding/json"
	"log"

	"gorm.io/gorm"

	"github.com/meridianlabs/authgate"
)

// AuditSink appends audit events to the audit_events table. Emit never
// returns an error to the dispatcher; a failed insert is logged and dropped.
type AuditSink struct {
	db *gorm.DB
}

func (s *AuditSink) Emit(ctx context.Context, event authgate.AuditEvent) {
	metadata := ""
	if len(event.Metadata) > 0 {
		if data, err := json.Marshal(event.Metadata); err == nil {
			metadata = string(data)
		}
	}

	rec := auditRecord{
		Timestamp: event.Timestamp,
		EventType: event.EventType,
		AccountID: event.AccountID,
		SessionID: event.SessionID,
		IP:        event.IP,
		Success:   event.Success,
		Error:     event.Error,
		Metadata:  metadata,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		log.Print("authgate: audit event insert failed")
	}
}
