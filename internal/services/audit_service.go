package services

import (
	"encoding/json"

	"gorm.io/gorm"

	"github.com/Creecly/cleaninvest/internal/logger"
	"github.com/Creecly/cleaninvest/internal/models"
)

// Audit actions recorded for privileged operations.
const (
	AuditActionAdjustBalance = "ADJUST_BALANCE"
	AuditActionAssignAdmin   = "ASSIGN_ADMIN"
	AuditActionRemoveAdmin   = "REMOVE_ADMIN"
	AuditActionChatGrant     = "CHAT_GRANT"
	AuditActionUpdateProfile = "UPDATE_PROFILE"
)

// auditService handles audit log recording.
type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// Log records an audit event. Errors are logged but never propagate
// to avoid disrupting the main operation.
func (s *auditService) Log(actorID, action, resourceType, resourceID, ipAddress string, changes map[string]any) {
	var changesJSON string
	if changes != nil {
		data, err := json.Marshal(changes)
		if err != nil {
			logger.Get().Errorw("failed to marshal audit log changes", "error", err, "action", action)
			changesJSON = "{}"
		} else {
			changesJSON = string(data)
		}
	}

	entry := &models.AuditLog{
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Changes:      changesJSON,
	}

	if err := s.db.Create(entry).Error; err != nil {
		logger.Get().Errorw("failed to create audit log entry",
			"error", err,
			"actor_id", actorID,
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
		)
	}
}
