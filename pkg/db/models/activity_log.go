package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

// ActivityLog is the audit trail of notable actions, including automated ones.
type ActivityLog struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type       enums.ActivityLogType `gorm:"column:type;type:text;not null"`
	Action     string                `gorm:"column:action;not null"`
	ActorID    *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	EntityType string                `gorm:"column:entity_type;not null"`
	EntityID   *uuid.UUID            `gorm:"column:entity_id;type:uuid"`
	Message    string                `gorm:"column:message;not null"`
	Metadata   types.JSONMap         `gorm:"column:metadata;type:jsonb;serializer:json"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}
