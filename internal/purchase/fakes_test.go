package purchase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
)

type fakeListings struct {
	mu           sync.Mutex
	rows         map[uuid.UUID]models.Listing
	findCalls    int
	tryCalls     int
	tryWins      int
	releaseCalls int
	releaseErr   error
	releaseCtx   error
}

func newFakeListings() *fakeListings {
	return &fakeListings{rows: map[uuid.UUID]models.Listing{}}
}

func (f *fakeListings) add(sellerID uuid.UUID, price string, status enums.ListingStatus) models.Listing {
	f.mu.Lock()
	defer f.mu.Unlock()
	listing := models.Listing{
		ID:        uuid.New(),
		SellerID:  sellerID,
		ItemID:    uuid.New(),
		Title:     "Silk scarf",
		Price:     decimal.RequireFromString(price),
		Condition: enums.ListingConditionLikeNew,
		Status:    status,
	}
	f.rows[listing.ID] = listing
	return listing
}

func (f *fakeListings) status(id uuid.UUID) enums.ListingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Status
}

func (f *fakeListings) FindByID(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (f *fakeListings) TryReserve(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tryCalls++
	row, ok := f.rows[id]
	if !ok || row.Status != enums.ListingStatusAvailable {
		return false, nil
	}
	row.Status = enums.ListingStatusReserved
	row.ReservedAt = &now
	f.rows[id] = row
	f.tryWins++
	return true, nil
}

func (f *fakeListings) Release(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	f.releaseCtx = ctx.Err()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	row, ok := f.rows[id]
	if !ok || row.Status != enums.ListingStatusReserved {
		return gorm.ErrRecordNotFound
	}
	row.Status = enums.ListingStatusAvailable
	row.ReservedAt = nil
	f.rows[id] = row
	return nil
}

type fakeOrders struct {
	mu         sync.Mutex
	orders     []models.Order
	findCalls  int
	placeCalls int
	placeErr   error
	beforeFind func()
	onPlace    func(ctx context.Context)
}

func (f *fakeOrders) FindActiveOrder(_ context.Context, listingID, buyerID uuid.UUID) (*models.Order, error) {
	if f.beforeFind != nil {
		f.beforeFind()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	for _, order := range f.orders {
		if order.ListingID == listingID && order.BuyerID == buyerID && order.PaymentStatus.IsActive() {
			found := order
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeOrders) Place(ctx context.Context, order *models.Order) (*models.Order, error) {
	if f.onPlace != nil {
		f.onPlace(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeCalls++
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	f.orders = append(f.orders, *order)
	return order, nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fixedRefs struct {
	ref string
	err error
}

func (r fixedRefs) New() (string, error) {
	return r.ref, r.err
}
