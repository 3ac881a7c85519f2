package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	"github.com/closetapp/marketplace-backend/pkg/pagination"
)

// Repository owns marketplace_listings. Every status change is a single-row
// conditional update that reports whether it applied.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.Listing) (*models.Listing, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	List(ctx context.Context, query ListQuery) ([]models.Listing, *pagination.Cursor, error)
	HasActiveForItem(ctx context.Context, itemID uuid.UUID) (bool, error)
	// Delete removes a seller's listing unless it is reserved or any order references it.
	Delete(ctx context.Context, id, sellerID uuid.UUID) (bool, error)

	// TryReserve flips available to reserved. It is the only way a listing becomes reserved.
	TryReserve(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// Release sets a reserved listing back to available. Compensation only.
	// It returns gorm.ErrRecordNotFound when no reserved listing matches.
	Release(ctx context.Context, id uuid.UUID) error
	// ReleaseReserved flips reserved to available when the reservation predates
	// reservedBefore and no pending or paid order holds the listing.
	ReleaseReserved(ctx context.Context, id uuid.UUID, reservedBefore time.Time) (bool, error)
	MarkSold(ctx context.Context, id uuid.UUID, from ...enums.ListingStatus) (bool, error)
	// SellReserved flips reserved to sold under the same guard as ReleaseReserved.
	SellReserved(ctx context.Context, id uuid.UUID, reservedBefore time.Time) (bool, error)
	Reactivate(ctx context.Context, id uuid.UUID) (bool, error)
	ListStaleReservations(ctx context.Context, reservedBefore time.Time, limit int) ([]models.Listing, error)
}

// ListQuery filters the public listing feed.
type ListQuery struct {
	Status   *enums.ListingStatus
	SellerID *uuid.UUID
	Limit    int
	Cursor   *pagination.Cursor
}

// OrderSettler settles the order holding a reserved listing when its seller
// marks it sold.
type OrderSettler interface {
	SettleListing(ctx context.Context, listingID uuid.UUID) (bool, error)
}
