package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/closetapp/marketplace-backend/pkg/enums"
)

// Listing is a seller's offer to sell one wardrobe item.
type Listing struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	SellerID    uuid.UUID              `gorm:"column:seller_id;type:uuid;not null"`
	ItemID      uuid.UUID              `gorm:"column:item_id;type:uuid;not null"`
	Title       string                 `gorm:"column:title;type:text;not null"`
	Description *string                `gorm:"column:description;type:text"`
	Price       decimal.Decimal        `gorm:"column:price;type:numeric(12,2);not null"`
	Condition   enums.ListingCondition `gorm:"column:condition;type:text;not null"`
	Status      enums.ListingStatus    `gorm:"column:status;type:text;not null"`
	ReservedAt  *time.Time             `gorm:"column:reserved_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (Listing) TableName() string {
	return "marketplace_listings"
}

func (l *Listing) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = enums.ListingStatusAvailable
	}
	return nil
}
