package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	pkgerrors "github.com/closetapp/marketplace-backend/pkg/errors"
	"github.com/closetapp/marketplace-backend/pkg/logger"
	"github.com/closetapp/marketplace-backend/pkg/metrics"
	"github.com/closetapp/marketplace-backend/pkg/reference"
)

// ListingStore is the slice of the listings repository the saga drives.
type ListingStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	TryReserve(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Release(ctx context.Context, id uuid.UUID) error
}

// OrderStore creates and looks up orders. Errors are expected to be coded.
type OrderStore interface {
	FindActiveOrder(ctx context.Context, listingID, buyerID uuid.UUID) (*models.Order, error)
	Place(ctx context.Context, order *models.Order) (*models.Order, error)
}

// Service runs the purchase workflow.
type Service interface {
	Purchase(ctx context.Context, input PurchaseInput) (*Confirmation, error)
}

// Config tunes the workflow.
type Config struct {
	CommitTimeout   time.Duration
	CheckoutBaseURL string
}

type service struct {
	listings ListingStore
	orders   OrderStore
	refs     reference.Generator
	metrics  *metrics.PurchaseMetrics
	logg     *logger.Logger
	cfg      Config
	now      func() time.Time
}

// NewService wires the purchase workflow. A nil generator falls back to UUIDv4
// references; nil metrics and logger are no-ops.
func NewService(listings ListingStore, orders OrderStore, refs reference.Generator, m *metrics.PurchaseMetrics, logg *logger.Logger, cfg Config) (Service, error) {
	if listings == nil {
		return nil, fmt.Errorf("listing store required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if cfg.CommitTimeout <= 0 {
		return nil, fmt.Errorf("commit timeout must be positive")
	}
	if refs == nil {
		refs = reference.UUIDGenerator{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		listings: listings,
		orders:   orders,
		refs:     refs,
		metrics:  m,
		logg:     logg,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*Confirmation, error) {
	started := time.Now()
	confirmation, outcome, err := s.purchase(ctx, input)
	s.metrics.Observe(outcome, time.Since(started))
	return confirmation, err
}

func (s *service) purchase(ctx context.Context, input PurchaseInput) (*Confirmation, string, error) {
	if input.BuyerID == uuid.Nil {
		return nil, metrics.OutcomeRejected, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to buy this item")
	}
	if input.ListingID == uuid.Nil {
		return nil, metrics.OutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "listing_id is required")
	}

	ctx = s.logg.WithListingID(s.logg.WithUserID(ctx, input.BuyerID.String()), input.ListingID.String())
	listing, err := s.listings.FindByID(ctx, input.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, metrics.OutcomeRejected, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, metrics.OutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}

	// Identity outranks the body: a seller is refused whatever they sent.
	if listing.SellerID == input.BuyerID {
		return nil, metrics.OutcomeRejected, pkgerrors.New(pkgerrors.CodeForbidden, "you cannot buy your own listing")
	}
	notes, err := normalizeInput(&input)
	if err != nil {
		return nil, metrics.OutcomeRejected, err
	}
	if listing.Status != enums.ListingStatusAvailable {
		return nil, metrics.OutcomeRejected, pkgerrors.New(pkgerrors.CodeConflict, "this listing is no longer available").
			WithDetails(map[string]any{"status": listing.Status})
	}

	existing, err := s.orders.FindActiveOrder(ctx, listing.ID, input.BuyerID)
	if err != nil {
		return nil, metrics.OutcomeFailed, asDependency(err, "check active order")
	}
	if existing != nil {
		return nil, metrics.OutcomeRejected, pkgerrors.New(pkgerrors.CodeConflict, "you already have an active order for this listing").
			WithDetails(map[string]any{"reference": existing.Reference})
	}

	// From the reservation on, the caller hanging up must not strand the listing.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CommitTimeout)
	defer cancel()

	reserved, err := s.listings.TryReserve(commitCtx, listing.ID, s.now())
	if err != nil {
		return nil, metrics.OutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve listing")
	}
	if !reserved {
		return nil, metrics.OutcomeLostRace, pkgerrors.New(pkgerrors.CodeConflict, "another buyer just reserved this item, try again later")
	}

	ref, err := s.refs.New()
	if err != nil {
		return nil, metrics.OutcomeFailed, s.compensate(ctx, listing.ID, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate reference"))
	}

	order, err := s.orders.Place(commitCtx, &models.Order{
		ListingID:     listing.ID,
		BuyerID:       input.BuyerID,
		BuyerEmail:    input.BuyerEmail,
		PaymentMethod: input.PaymentMethod,
		PaymentStatus: enums.PaymentStatusPending,
		Amount:        listing.Price,
		Reference:     ref,
		BuyerNotes:    notes,
	})
	if err != nil {
		outcome := metrics.OutcomeFailed
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			outcome = metrics.OutcomeRejected
		}
		return nil, outcome, s.compensate(ctx, listing.ID, ref, asDependency(err, "create order"))
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "listing reserved and order placed")
	return &Confirmation{
		Reference:     order.Reference,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.Amount,
		OrderID:       order.ID,
		ListingID:     listing.ID,
		Instructions:  InstructionsFor(order.PaymentMethod, order.Reference, order.Amount, s.cfg.CheckoutBaseURL),
	}, metrics.OutcomeSuccess, nil
}

// compensate returns the listing to available after a failed order insert and
// hands back cause. The release gets its own commit window: the insert may have
// failed by running out of the first one. A failed release is escalated to
// COMPENSATION_FAILED so the zombie reservation is visible.
func (s *service) compensate(ctx context.Context, listingID uuid.UUID, ref string, cause error) error {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CommitTimeout)
	defer cancel()

	releaseErr := s.listings.Release(releaseCtx, listingID)
	if releaseErr == nil {
		s.metrics.IncCompensation(metrics.CompensationOK)
		s.logg.Warn(s.logg.WithField(ctx, "cause", cause.Error()), "order not created, reservation released")
		return cause
	}
	if errors.Is(releaseErr, gorm.ErrRecordNotFound) {
		// Already moved on by the seller or the sweep; nothing is stranded.
		s.metrics.IncCompensation(metrics.CompensationOK)
		s.logg.Warn(s.logg.WithField(ctx, "cause", cause.Error()), "order not created, listing no longer reserved")
		return cause
	}

	s.metrics.IncCompensation(metrics.CompensationFailure)
	s.logg.Error(s.logg.WithField(ctx, "reference", ref), "compensating release failed, listing left reserved", multierr.Combine(cause, releaseErr))
	return pkgerrors.Wrap(pkgerrors.CodeCompensationFailed, multierr.Combine(cause, releaseErr), "release reservation after failed order").
		WithDetails(map[string]any{"listing_id": listingID, "reference": ref})
}

func normalizeInput(input *PurchaseInput) (*string, error) {
	if input.PaymentMethod == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "choose a payment method")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", input.PaymentMethod)
	}
	input.BuyerEmail = strings.TrimSpace(input.BuyerEmail)

	trimmed := strings.TrimSpace(input.Notes)
	if trimmed == "" {
		return nil, nil
	}
	if len([]rune(trimmed)) > maxNotesLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "notes must be at most %d characters", maxNotesLength)
	}
	return &trimmed, nil
}

func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
