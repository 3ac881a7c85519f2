package listings

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
)

const (
	maxTitleLength       = 120
	maxDescriptionLength = 2000
)

// CreateListingInput carries a seller's request to list a wardrobe item.
type CreateListingInput struct {
	ItemID      uuid.UUID
	ItemName    string
	Title       string
	Description string
	Price       decimal.Decimal
	Condition   enums.ListingCondition
}

// ListParams filters the listing feed.
type ListParams struct {
	Status   *enums.ListingStatus
	SellerID *uuid.UUID
	Limit    int
	Cursor   string
}

// ListResult is one page of listings.
type ListResult struct {
	Items      []models.Listing
	NextCursor string
}
