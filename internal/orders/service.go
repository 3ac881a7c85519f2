package orders

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
	"github.com/closetapp/marketplace-backend/pkg/logger"
	"github.com/closetapp/marketplace-backend/pkg/outbox"
	"github.com/closetapp/marketplace-backend/pkg/pagination"
)

const activeBuyerIndex = "ux_marketplace_orders_active_buyer"

var errStatusChanged = errors.New("order status changed concurrently")

var _ interface {
	SettleListing(ctx context.Context, listingID uuid.UUID) (bool, error)
} = (*service)(nil)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service covers the order lifecycle after a listing has been reserved.
type Service interface {
	Place(ctx context.Context, order *models.Order) (*models.Order, error)
	FindActiveOrder(ctx context.Context, listingID, buyerID uuid.UUID) (*models.Order, error)
	ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
	Expire(ctx context.Context, order *models.Order) (bool, error)
	SettleListing(ctx context.Context, listingID uuid.UUID) (bool, error)
	Get(ctx context.Context, viewer Viewer, orderID uuid.UUID) (*models.Order, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params ListParams) (*ListResult, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	listings ListingStore
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, listings ListingStore, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if listings == nil {
		return nil, fmt.Errorf("listing store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   publisher,
		listings: listings,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Place inserts a pending order and queues order_created in the same local
// transaction. Both rows belong to the order; the listing is not touched.
func (s *service) Place(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order == nil || order.ListingID == uuid.Nil || order.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing and buyer are required")
	}
	if strings.TrimSpace(order.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if !order.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if order.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount cannot be negative")
	}
	order.PaymentStatus = enums.PaymentStatusPending

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.BuyerID, Role: string(enums.UserRoleMember)},
			Data:          orderEventPayload(order),
		})
	})
	if err != nil {
		if pkgdb.IsUniqueViolationOn(err, activeBuyerIndex, "marketplace_orders.listing_id", "marketplace_orders.buyer_id") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "you already have an active order for this listing")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return order, nil
}

func (s *service) FindActiveOrder(ctx context.Context, listingID, buyerID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindActiveOrder(ctx, listingID, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active order")
	}
	return order, nil
}

// ConfirmPayment records an out-of-band payment confirmation and marks the
// listing sold. Confirming an already paid order is a no-op.
func (s *service) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch order.PaymentStatus {
	case enums.PaymentStatusPaid:
		return order, nil
	case enums.PaymentStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a cancelled order cannot be paid").
			WithDetails(map[string]any{"payment_status": order.PaymentStatus})
	}

	if _, err := s.confirm(ctx, order); err != nil {
		return nil, err
	}
	return s.load(ctx, orderID)
}

func (s *service) confirm(ctx context.Context, order *models.Order) (bool, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.WithTx(tx).UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusPaid)
		if err != nil {
			return err
		}
		if !applied {
			return errStatusChanged
		}
		order.PaymentStatus = enums.PaymentStatusPaid
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          orderEventPayload(order),
		})
	})
	if err != nil {
		if errors.Is(err, errStatusChanged) {
			return false, pkgerrors.New(pkgerrors.CodeConflict, "order changed while confirming, reload and try again")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
	}

	logCtx := s.logg.WithOrderID(s.logg.WithListingID(ctx, order.ListingID.String()), order.ID.String())
	sold, err := s.listings.MarkSold(ctx, order.ListingID, enums.ListingStatusReserved)
	if err != nil {
		s.logg.Error(logCtx, "mark listing sold after payment", err)
		return false, nil
	}
	if !sold {
		s.logg.Warn(logCtx, "listing was not reserved when payment was confirmed")
	}
	return sold, nil
}

// SettleListing confirms the pending order holding listingID. It reports false
// when no pending order exists or the listing could not be marked sold.
func (s *service) SettleListing(ctx context.Context, listingID uuid.UUID) (bool, error) {
	order, err := s.repo.FindPendingForListing(ctx, listingID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find pending order")
	}
	if order == nil {
		return false, nil
	}
	return s.confirm(ctx, order)
}

func (s *service) Cancel(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can cancel this order")
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled").
			WithDetails(map[string]any{"payment_status": order.PaymentStatus})
	}

	actor := &outbox.ActorRef{UserID: buyerID, Role: string(enums.UserRoleMember)}
	applied, err := s.close(ctx, order, enums.EventOrderCancelled, actor)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed while cancelling, reload and try again")
	}
	return s.load(ctx, orderID)
}

// Expire cancels an abandoned pending order and frees its listing. It reports
// false when the order had already left pending.
func (s *service) Expire(ctx context.Context, order *models.Order) (bool, error) {
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	return s.close(ctx, order, enums.EventOrderExpired, nil)
}

func (s *service) close(ctx context.Context, order *models.Order, eventType enums.OutboxEventType, actor *outbox.ActorRef) (bool, error) {
	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusCancelled)
		if err != nil || !ok {
			return err
		}
		order.PaymentStatus = enums.PaymentStatusCancelled
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data:          orderEventPayload(order),
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !applied {
		return false, nil
	}

	// A failed release leaves a zombie reservation for the reconcile job.
	logCtx := s.logg.WithOrderID(s.logg.WithListingID(ctx, order.ListingID.String()), order.ID.String())
	released, err := s.listings.ReleaseReserved(ctx, order.ListingID, s.now().Add(time.Second))
	if err != nil {
		s.logg.Error(logCtx, "release listing after order closed", err)
	} else if !released {
		s.logg.Warn(logCtx, "listing was not reserved when order closed")
	}
	return true, nil
}

// Get returns the order to its buyer, the listing's seller or an operator.
func (s *service) Get(ctx context.Context, viewer Viewer, orderID uuid.UUID) (*models.Order, error) {
	if viewer.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if viewer.IsOperator() || order.BuyerID == viewer.UserID {
		return order, nil
	}
	listing, err := s.listings.FindByID(ctx, order.ListingID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if listing != nil && listing.SellerID == viewer.UserID {
		return order, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you cannot view this order")
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params ListParams) (*ListResult, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.ListByBuyer(ctx, buyerID, ListQuery{
		Status: params.Status,
		Limit:  params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
