package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/closetapp/marketplace-backend/internal/listings"
	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	"github.com/closetapp/marketplace-backend/pkg/logger"
	"github.com/closetapp/marketplace-backend/pkg/metrics"
	"github.com/closetapp/marketplace-backend/pkg/outbox"
	"github.com/closetapp/marketplace-backend/pkg/outbox/payloads"
)

const (
	reservationReconcileJobName = "reservation_reconcile"

	defaultReservationGrace = 15 * time.Minute
	defaultPaymentWindow    = 72 * time.Hour
	defaultSweepBatchSize   = 100

	releaseReasonStale = "stale_reservation"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type staleOrderLister interface {
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
}

type orderExpirer interface {
	Expire(ctx context.Context, order *models.Order) (bool, error)
}

// ReservationReconcileJobParams wires the reservation sweep.
type ReservationReconcileJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Listings      listings.Repository
	Orders        staleOrderLister
	Expirer       orderExpirer
	Outbox        outboxEmitter
	Metrics       *metrics.CronJobMetrics
	Grace         time.Duration
	PaymentWindow time.Duration
	BatchSize     int
}

type reservationReconcileJob struct {
	logg          *logger.Logger
	db            txRunner
	listings      listings.Repository
	orders        staleOrderLister
	expirer       orderExpirer
	outbox        outboxEmitter
	metrics       *metrics.CronJobMetrics
	grace         time.Duration
	paymentWindow time.Duration
	batchSize     int
	now           func() time.Time
}

// NewReservationReconcileJob builds the job that frees reservations nobody
// will pay for: zombie reservations left by a crashed purchase, and listings
// held by pending orders past the payment window.
func NewReservationReconcileJob(params ReservationReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if params.Orders == nil || params.Expirer == nil {
		return nil, fmt.Errorf("order lister and expirer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultReservationGrace
	}
	window := params.PaymentWindow
	if window <= 0 {
		window = defaultPaymentWindow
	}
	if window < grace {
		return nil, fmt.Errorf("payment window %s shorter than reservation grace %s", window, grace)
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &reservationReconcileJob{
		logg:          params.Logger,
		db:            params.DB,
		listings:      params.Listings,
		orders:        params.Orders,
		expirer:       params.Expirer,
		outbox:        params.Outbox,
		metrics:       params.Metrics,
		grace:         grace,
		paymentWindow: window,
		batchSize:     batch,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

func (j *reservationReconcileJob) Name() string { return reservationReconcileJobName }

func (j *reservationReconcileJob) Run(ctx context.Context) error {
	now := j.now()

	expired, expireErr := j.expireAbandonedOrders(ctx, now.Add(-j.paymentWindow))
	released, releaseErr := j.releaseZombies(ctx, now.Add(-j.grace))

	j.metrics.AddItems(j.Name(), "order_expired", expired)
	j.metrics.AddItems(j.Name(), "reservation_released", released)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"orders_expired":        expired,
		"reservations_released": released,
	}), "reservation reconcile complete")

	return multierr.Combine(expireErr, releaseErr)
}

// expireAbandonedOrders runs first so the listings it frees are not counted as zombies.
func (j *reservationReconcileJob) expireAbandonedOrders(ctx context.Context, createdBefore time.Time) (int, error) {
	stale, err := j.orders.ListStalePending(ctx, createdBefore, j.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale pending orders: %w", err)
	}

	var (
		count int
		errs  error
	)
	for i := range stale {
		order := &stale[i]
		ok, err := j.expirer.Expire(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if ok {
			count++
		}
	}
	return count, errs
}

func (j *reservationReconcileJob) releaseZombies(ctx context.Context, reservedBefore time.Time) (int, error) {
	stale, err := j.listings.ListStaleReservations(ctx, reservedBefore, j.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale reservations: %w", err)
	}

	var (
		count int
		errs  error
	)
	for i := range stale {
		listing := stale[i]
		released := false
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := j.listings.WithTx(tx).ReleaseReserved(ctx, listing.ID, reservedBefore)
			if err != nil || !ok {
				return err
			}
			released = true
			return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReservationReleased,
				AggregateType: enums.AggregateListing,
				AggregateID:   listing.ID,
				Data: payloads.ReservationReleasedEvent{
					ListingID: listing.ID,
					SellerID:  listing.SellerID,
					Reason:    releaseReasonStale,
				},
			})
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release listing %s: %w", listing.ID, err))
			continue
		}
		if released {
			count++
			j.logg.Warn(j.logg.WithListingID(ctx, listing.ID.String()), "released stale reservation")
		}
	}
	return count, errs
}
