// Package activitylog writes the audit trail of notable user and system actions.
package activitylog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

// Entry is one audit record.
type Entry struct {
	Type       enums.ActivityLogType
	Action     string
	ActorID    *uuid.UUID
	EntityType string
	EntityID   *uuid.UUID
	Message    string
	Metadata   map[string]any
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, log *models.ActivityLog) error
	ListForEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.ActivityLog, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, log *models.ActivityLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repository) ListForEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.ActivityLog, error) {
	var rows []models.ActivityLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// Recorder appends entries inside the caller's transaction.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) (*Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("activity log repository required")
	}
	return &Recorder{repo: repo}, nil
}

func (r *Recorder) RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if !validType(entry.Type) {
		return fmt.Errorf("invalid activity log type %q", entry.Type)
	}
	if entry.Action == "" || entry.EntityType == "" {
		return fmt.Errorf("activity log action and entity type are required")
	}
	row := &models.ActivityLog{
		ID:         uuid.New(),
		Type:       entry.Type,
		Action:     entry.Action,
		ActorID:    entry.ActorID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Message:    entry.Message,
		Metadata:   types.JSONMap(entry.Metadata),
	}
	return r.repo.WithTx(tx).Create(ctx, row)
}

func validType(t enums.ActivityLogType) bool {
	switch t {
	case enums.ActivityLogSystemEvent, enums.ActivityLogUserAction, enums.ActivityLogAdminAction:
		return true
	}
	return false
}
