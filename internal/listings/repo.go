package listings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	"github.com/closetapp/marketplace-backend/pkg/pagination"
)

const noOrdersClause = `NOT EXISTS (
	SELECT 1 FROM marketplace_orders o
	WHERE o.listing_id = marketplace_listings.id
)`

const noActiveOrderClause = `NOT EXISTS (
	SELECT 1 FROM marketplace_orders o
	WHERE o.listing_id = marketplace_listings.id
	AND o.payment_status IN ?
)`

type repository struct {
	db *gorm.DB
}

// NewRepository builds a listings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	if err := r.db.WithContext(ctx).Create(listing).Error; err != nil {
		return nil, err
	}
	return listing, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.Listing, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).Model(&models.Listing{})
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.SellerID != nil {
		q = q.Where("seller_id = ?", *query.SellerID)
	}
	if query.Cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var rows []models.Listing
	if err := q.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(query.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, query.Limit, func(l models.Listing) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return page, next, nil
}

func (r *repository) HasActiveForItem(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("item_id = ? AND status IN ?", itemID, []enums.ListingStatus{enums.ListingStatusAvailable, enums.ListingStatusReserved}).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Delete(ctx context.Context, id, sellerID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND seller_id = ? AND status <> ?", id, sellerID, enums.ListingStatusReserved).
		Where(noOrdersClause).
		Delete(&models.Listing{})
	return result.RowsAffected == 1, result.Error
}

func (r *repository) TryReserve(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, enums.ListingStatusAvailable).
		Updates(map[string]any{
			"status":      enums.ListingStatusReserved,
			"reserved_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) Release(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, enums.ListingStatusReserved).
		Updates(map[string]any{
			"status":      enums.ListingStatusAvailable,
			"reserved_at": nil,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ReleaseReserved(ctx context.Context, id uuid.UUID, reservedBefore time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ? AND reserved_at < ?", id, enums.ListingStatusReserved, reservedBefore).
		Where(noActiveOrderClause, enums.ActivePaymentStatuses).
		Updates(map[string]any{
			"status":      enums.ListingStatusAvailable,
			"reserved_at": nil,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) MarkSold(ctx context.Context, id uuid.UUID, from ...enums.ListingStatus) (bool, error) {
	if len(from) == 0 {
		from = []enums.ListingStatus{enums.ListingStatusReserved}
	}
	for _, status := range from {
		if status == enums.ListingStatusSold {
			return false, errors.New("sold is not a valid source status")
		}
	}
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":      enums.ListingStatusSold,
			"reserved_at": nil,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) SellReserved(ctx context.Context, id uuid.UUID, reservedBefore time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ? AND reserved_at < ?", id, enums.ListingStatusReserved, reservedBefore).
		Where(noActiveOrderClause, enums.ActivePaymentStatuses).
		Updates(map[string]any{
			"status":      enums.ListingStatusSold,
			"reserved_at": nil,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) Reactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, enums.ListingStatusSold).
		Where(noActiveOrderClause, enums.ActivePaymentStatuses).
		Updates(map[string]any{
			"status":     enums.ListingStatusAvailable,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListStaleReservations(ctx context.Context, reservedBefore time.Time, limit int) ([]models.Listing, error) {
	var rows []models.Listing
	err := r.db.WithContext(ctx).
		Where("status = ? AND reserved_at < ?", enums.ListingStatusReserved, reservedBefore).
		Where(noActiveOrderClause, enums.ActivePaymentStatuses).
		Order("reserved_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
