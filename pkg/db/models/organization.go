package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Organization is a seller tenant on the marketplace.
type Organization struct {
	ID                          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                        string           `gorm:"column:name;not null"`
	Slug                        string           `gorm:"column:slug;not null;uniqueIndex"`
	PayoutEmail                 *string          `gorm:"column:payout_email"`
	CustomPlatformFeePercentage *decimal.Decimal `gorm:"column:custom_platform_fee_percentage;type:numeric(5,2)"`
	IsDeleted                   bool             `gorm:"column:is_deleted;not null;default:false"`
	CreatedAt                   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
