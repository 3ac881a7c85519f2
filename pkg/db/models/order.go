package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/closetapp/marketplace-backend/pkg/enums"
)

// Order is one buyer's attempt to purchase a listing. Amount is a snapshot of
// the listing price taken when the listing was reserved.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ListingID     uuid.UUID           `gorm:"column:listing_id;type:uuid;not null"`
	BuyerID       uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	BuyerEmail    string              `gorm:"column:buyer_email;type:text;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Reference     string              `gorm:"column:reference;type:text;not null"`
	BuyerNotes    *string             `gorm:"column:buyer_notes;type:text"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string {
	return "marketplace_orders"
}

func (o *Order) BeforeCreate(_ *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
