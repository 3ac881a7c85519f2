package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/closetapp/marketplace-backend/pkg/db"
	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	pkgerrors "github.com/closetapp/marketplace-backend/pkg/errors"
	"github.com/closetapp/marketplace-backend/pkg/pagination"
)

const activeItemIndex = "ux_marketplace_listings_active_item"

// Service covers the seller side of the marketplace.
type Service interface {
	Create(ctx context.Context, sellerID uuid.UUID, input CreateListingInput) (*models.Listing, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	ChangeStatus(ctx context.Context, sellerID, listingID uuid.UUID, target enums.ListingStatus) (*models.Listing, error)
	Delete(ctx context.Context, sellerID, listingID uuid.UUID) error
}

// Config tunes seller-driven transitions.
type Config struct {
	// CommitTimeout is the purchase commit window. Sellers cannot touch a
	// reservation younger than two windows.
	CommitTimeout time.Duration
}

type service struct {
	repo    Repository
	settler OrderSettler
	cfg     Config
	now     func() time.Time
}

// NewService builds the listings service.
func NewService(repo Repository, settler OrderSettler, cfg Config) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if settler == nil {
		return nil, fmt.Errorf("order settler required")
	}
	if cfg.CommitTimeout <= 0 {
		return nil, fmt.Errorf("commit timeout must be positive")
	}
	return &service{
		repo:    repo,
		settler: settler,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, sellerID uuid.UUID, input CreateListingInput) (*models.Listing, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to list an item")
	}
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item_id is required")
	}
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	if !input.Price.Equal(input.Price.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must have at most two decimal places")
	}
	if !input.Condition.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid condition")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSpace(input.ItemName)
	}
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if len([]rune(title)) > maxTitleLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "title must be at most %d characters", maxTitleLength)
	}
	var description *string
	if trimmed := strings.TrimSpace(input.Description); trimmed != "" {
		if len([]rune(trimmed)) > maxDescriptionLength {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "description must be at most %d characters", maxDescriptionLength)
		}
		description = &trimmed
	}

	active, err := s.repo.HasActiveForItem(ctx, input.ItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing listing")
	}
	if active {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "this item is already listed for sale")
	}

	listing, err := s.repo.Create(ctx, &models.Listing{
		SellerID:    sellerID,
		ItemID:      input.ItemID,
		Title:       title,
		Description: description,
		Price:       input.Price,
		Condition:   input.Condition,
		Status:      enums.ListingStatusAvailable,
	})
	if err != nil {
		if pkgdb.IsUniqueViolationOn(err, activeItemIndex, "marketplace_listings.item_id") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "this item is already listed for sale")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
	}
	return listing, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	return listing, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := ListQuery{
		Status:   params.Status,
		SellerID: params.SellerID,
		Limit:    params.Limit,
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.Cursor = cursor

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list listings")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// ChangeStatus applies a seller-driven transition. Reserving is not offered:
// only a purchase may move a listing to reserved.
func (s *service) ChangeStatus(ctx context.Context, sellerID, listingID uuid.UUID, target enums.ListingStatus) (*models.Listing, error) {
	listing, err := s.ownedListing(ctx, sellerID, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status == target {
		return listing, nil
	}

	// A purchase may hold a fresh reservation for one commit window while it
	// writes the order and one more while it releases after a failure.
	settledBefore := s.now().Add(-2 * s.cfg.CommitTimeout)

	var applied bool
	switch {
	case target == enums.ListingStatusSold && listing.Status == enums.ListingStatusReserved:
		applied, err = s.settler.SettleListing(ctx, listingID)
		if err == nil && !applied {
			applied, err = s.repo.SellReserved(ctx, listingID, settledBefore)
			if err == nil && !applied {
				return nil, errPurchaseInProgress(listing.Status)
			}
		}
	case target == enums.ListingStatusSold && listing.Status == enums.ListingStatusAvailable:
		applied, err = s.repo.MarkSold(ctx, listingID, enums.ListingStatusAvailable)
	case target == enums.ListingStatusAvailable && listing.Status == enums.ListingStatusReserved:
		applied, err = s.repo.ReleaseReserved(ctx, listingID, settledBefore)
		if err == nil && !applied {
			return nil, errPurchaseInProgress(listing.Status)
		}
	case target == enums.ListingStatusAvailable && listing.Status == enums.ListingStatusSold:
		applied, err = s.repo.Reactivate(ctx, listingID)
		if err == nil && !applied {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a paid order holds this listing")
		}
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move listing from %s to %s", listing.Status, target).
			WithDetails(map[string]any{"from": listing.Status, "to": target})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update listing status")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "listing changed while updating, reload and try again")
	}
	return s.Get(ctx, listingID)
}

func errPurchaseInProgress(status enums.ListingStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "a purchase is in progress for this listing").
		WithDetails(map[string]any{"status": status})
}

func (s *service) Delete(ctx context.Context, sellerID, listingID uuid.UUID) error {
	listing, err := s.ownedListing(ctx, sellerID, listingID)
	if err != nil {
		return err
	}
	if listing.Status == enums.ListingStatusReserved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "a reserved listing cannot be deleted")
	}
	deleted, err := s.repo.Delete(ctx, listingID, sellerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete listing")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "listings with orders cannot be deleted")
	}
	return nil
}

func (s *service) ownedListing(ctx context.Context, sellerID, listingID uuid.UUID) (*models.Listing, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	listing, err := s.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can change this listing")
	}
	return listing, nil
}
