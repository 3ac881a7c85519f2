package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	"github.com/closetapp/marketplace-backend/pkg/pagination"
)

// Repository owns marketplace_orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
	// FindActiveOrder returns the buyer's pending or paid order for the listing, or nil.
	FindActiveOrder(ctx context.Context, listingID, buyerID uuid.UUID) (*models.Order, error)
	// FindPendingForListing returns the pending order holding the listing, or nil.
	FindPendingForListing(ctx context.Context, listingID uuid.UUID) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, query ListQuery) ([]models.Order, *pagination.Cursor, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
}

// ListQuery pages through a buyer's orders.
type ListQuery struct {
	Status *enums.PaymentStatus
	Limit  int
	Cursor *pagination.Cursor
}

// ListingStore is the slice of the listings repository order transitions need.
type ListingStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	MarkSold(ctx context.Context, id uuid.UUID, from ...enums.ListingStatus) (bool, error)
	ReleaseReserved(ctx context.Context, id uuid.UUID, reservedBefore time.Time) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
