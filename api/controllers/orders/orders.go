package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/closetapp/marketplace-backend/api/middleware"
	"github.com/closetapp/marketplace-backend/api/responses"
	"github.com/closetapp/marketplace-backend/api/validators"
	internalorders "github.com/closetapp/marketplace-backend/internal/orders"
	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	pkgerrors "github.com/closetapp/marketplace-backend/pkg/errors"
	"github.com/closetapp/marketplace-backend/pkg/logger"
	"github.com/closetapp/marketplace-backend/pkg/pagination"
)

type orderView struct {
	ID            uuid.UUID           `json:"id"`
	ListingID     uuid.UUID           `json:"listing_id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Amount        string              `json:"amount"`
	Reference     string              `json:"reference"`
	BuyerNotes    *string             `json:"buyer_notes,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type orderPage struct {
	Items      []orderView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func toOrderView(o *models.Order) orderView {
	return orderView{
		ID:            o.ID,
		ListingID:     o.ListingID,
		BuyerID:       o.BuyerID,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Amount:        o.Amount.StringFixed(2),
		Reference:     o.Reference,
		BuyerNotes:    o.BuyerNotes,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// List returns the caller's purchase history, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := internalorders.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := validators.QueryString(r, "payment_status"); raw != nil {
			status, err := enums.ParsePaymentStatus(*raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status filter"))
				return
			}
			params.Status = &status
		}

		result, err := svc.ListForBuyer(r.Context(), middleware.UserUUIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page := orderPage{Items: make([]orderView, 0, len(result.Items)), NextCursor: result.NextCursor}
		for i := range result.Items {
			page.Items = append(page.Items, toOrderView(&result.Items[i]))
		}
		responses.WriteSuccess(w, page)
	}
}

// Detail returns one order to its buyer, the seller or an operator.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		viewer := internalorders.Viewer{
			UserID: middleware.UserUUIDFromContext(r.Context()),
			Role:   middleware.RoleFromContext(r.Context()),
		}
		order, err := svc.Get(r.Context(), viewer, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}

// Cancel withdraws a pending order and frees the listing.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), middleware.UserUUIDFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}

// ConfirmPayment records an operator-verified payment and sells the listing.
func ConfirmPayment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.ConfirmPayment(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"order_id":    order.ID.String(),
				"operator_id": middleware.UserIDFromContext(r.Context()),
			})
			logg.Info(ctx, "order.payment_confirmed")
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}
