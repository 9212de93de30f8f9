package services

import (
	"encoding/json"
	"log/slog"

	"github.com/comunika-app/comunika-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditService records admin actions. Recording is best-effort: a failed
// insert is logged and never propagated to the calling flow.
type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

func (s *AuditService) Record(userID *uuid.UUID, action, module string, details map[string]interface{}, ip, userAgent string) {
	entry := models.AuditLog{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Module:    module,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			entry.Details = datatypes.JSON(b)
		}
	}
	if err := s.db.Create(&entry).Error; err != nil {
		slog.Error("audit log insert failed", "module", module, "action", action, "error", err)
	}
}
