package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/closetapp/marketplace-backend/internal/listings"
	"github.com/closetapp/marketplace-backend/internal/orders"
	pkgdb "github.com/closetapp/marketplace-backend/pkg/db"
	"github.com/closetapp/marketplace-backend/pkg/db/dbtest"
	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	"github.com/closetapp/marketplace-backend/pkg/logger"
	"github.com/closetapp/marketplace-backend/pkg/metrics"
	"github.com/closetapp/marketplace-backend/pkg/outbox"
)

type reconcileFixture struct {
	db       *gorm.DB
	listings listings.Repository
	outbox   *outbox.Repository
	reg      *prometheus.Registry
	job      Job
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	db := dbtest.Open(t)
	runner := pkgdb.NewFromGorm(db)
	listingRepo := listings.NewRepository(db)
	outboxRepo := outbox.NewRepository(db)
	emitter := outbox.NewService(outboxRepo, nil)
	orderRepo := orders.NewRepository(db)
	orderSvc, err := orders.NewService(orderRepo, runner, emitter, listingRepo, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	job, err := NewReservationReconcileJob(ReservationReconcileJobParams{
		Logger:        logger.Nop(),
		DB:            runner,
		Listings:      listingRepo,
		Orders:        orderRepo,
		Expirer:       orderSvc,
		Outbox:        emitter,
		Metrics:       m,
		Grace:         15 * time.Minute,
		PaymentWindow: 72 * time.Hour,
		BatchSize:     10,
	})
	require.NoError(t, err)
	return &reconcileFixture{db: db, listings: listingRepo, outbox: outboxRepo, reg: reg, job: job}
}

func (f *reconcileFixture) reservedListing(t *testing.T, reservedAgo time.Duration) *models.Listing {
	t.Helper()
	reservedAt := time.Now().UTC().Add(-reservedAgo)
	listing := &models.Listing{
		SellerID:   uuid.New(),
		ItemID:     uuid.New(),
		Title:      "Linen blazer",
		Price:      decimal.RequireFromString("120.00"),
		Condition:  enums.ListingConditionLikeNew,
		Status:     enums.ListingStatusReserved,
		ReservedAt: &reservedAt,
	}
	require.NoError(t, f.db.Create(listing).Error)
	return listing
}

func (f *reconcileFixture) pendingOrder(t *testing.T, listing *models.Listing, age time.Duration) *models.Order {
	t.Helper()
	order := &models.Order{
		ListingID:     listing.ID,
		BuyerID:       uuid.New(),
		BuyerEmail:    "buyer@example.com",
		PaymentMethod: enums.PaymentMethodPix,
		PaymentStatus: enums.PaymentStatusPending,
		Amount:        listing.Price,
		Reference:     uuid.NewString(),
		CreatedAt:     time.Now().UTC().Add(-age),
	}
	require.NoError(t, f.db.Create(order).Error)
	return order
}

func (f *reconcileFixture) status(t *testing.T, id uuid.UUID) enums.ListingStatus {
	t.Helper()
	listing, err := f.listings.FindByID(context.Background(), id)
	require.NoError(t, err)
	return listing.Status
}

func (f *reconcileFixture) eventTypes(t *testing.T) []enums.OutboxEventType {
	t.Helper()
	rows, err := f.outbox.FetchUnpublished(context.Background(), 100, 0)
	require.NoError(t, err)
	var types []enums.OutboxEventType
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}

func TestReservationReconcileReleasesZombieReservation(t *testing.T) {
	f := newReconcileFixture(t)
	zombie := f.reservedListing(t, time.Hour)
	fresh := f.reservedListing(t, time.Minute)

	require.NoError(t, f.job.Run(context.Background()))

	require.Equal(t, enums.ListingStatusAvailable, f.status(t, zombie.ID))
	require.Equal(t, enums.ListingStatusReserved, f.status(t, fresh.ID))
	require.Equal(t, []enums.OutboxEventType{enums.EventReservationReleased}, f.eventTypes(t))
	require.Equal(t, float64(1), f.items(t, "reservation_released"))
}

func TestReservationReconcileKeepsListingHeldByPendingOrder(t *testing.T) {
	f := newReconcileFixture(t)
	held := f.reservedListing(t, time.Hour)
	f.pendingOrder(t, held, time.Hour)

	require.NoError(t, f.job.Run(context.Background()))

	require.Equal(t, enums.ListingStatusReserved, f.status(t, held.ID))
	require.Empty(t, f.eventTypes(t))
}

func TestReservationReconcileExpiresAbandonedOrders(t *testing.T) {
	f := newReconcileFixture(t)
	listing := f.reservedListing(t, 80*time.Hour)
	order := f.pendingOrder(t, listing, 80*time.Hour)

	require.NoError(t, f.job.Run(context.Background()))

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.PaymentStatusCancelled, stored.PaymentStatus)
	require.Equal(t, enums.ListingStatusAvailable, f.status(t, listing.ID))
	require.Equal(t, []enums.OutboxEventType{enums.EventOrderExpired}, f.eventTypes(t))
	require.Equal(t, float64(1), f.items(t, "order_expired"))
}

func TestReservationReconcileIsIdempotent(t *testing.T) {
	f := newReconcileFixture(t)
	f.reservedListing(t, time.Hour)

	require.NoError(t, f.job.Run(context.Background()))
	require.NoError(t, f.job.Run(context.Background()))

	require.Len(t, f.eventTypes(t), 1)
}

func TestNewReservationReconcileJobValidation(t *testing.T) {
	db := dbtest.Open(t)
	base := ReservationReconcileJobParams{
		Logger:   logger.Nop(),
		DB:       pkgdb.NewFromGorm(db),
		Listings: listings.NewRepository(db),
		Orders:   orders.NewRepository(db),
		Expirer:  stubExpirer{},
		Outbox:   outbox.NewService(outbox.NewRepository(db), nil),
	}

	_, err := NewReservationReconcileJob(base)
	require.NoError(t, err)

	missing := base
	missing.Outbox = nil
	_, err = NewReservationReconcileJob(missing)
	require.Error(t, err)

	inverted := base
	inverted.Grace = time.Hour
	inverted.PaymentWindow = time.Minute
	_, err = NewReservationReconcileJob(inverted)
	require.Error(t, err)
}

type stubExpirer struct{}

func (stubExpirer) Expire(context.Context, *models.Order) (bool, error) { return false, nil }

func (f *reconcileFixture) items(t *testing.T, action string) float64 {
	t.Helper()
	families, err := f.reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "closet_cron_job_items_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "action" && label.GetValue() == action {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
