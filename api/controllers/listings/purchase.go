package listings

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/closetapp/marketplace-backend/api/middleware"
	"github.com/closetapp/marketplace-backend/api/responses"
	"github.com/closetapp/marketplace-backend/api/validators"
	"github.com/closetapp/marketplace-backend/internal/purchase"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	pkgerrors "github.com/closetapp/marketplace-backend/pkg/errors"
	"github.com/closetapp/marketplace-backend/pkg/logger"
)

const maxEmailLength = 254

type purchaseRequest struct {
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes"`
	BuyerEmail    string `json:"buyer_email" validate:"omitempty,email"`
}

type purchaseResponse struct {
	Reference     string                `json:"reference"`
	PaymentMethod enums.PaymentMethod   `json:"payment_method"`
	Amount        string                `json:"amount"`
	OrderID       uuid.UUID             `json:"order_id"`
	ListingID     uuid.UUID             `json:"listing_id"`
	Instructions  purchase.Instructions `json:"instructions"`
}

// Purchase reserves the listing for the caller and returns the payment
// instructions for the pending order.
func Purchase(svc purchase.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		buyerID := middleware.UserUUIDFromContext(r.Context())
		if buyerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to buy this item"))
			return
		}

		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req purchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		email := validators.SanitizeString(req.BuyerEmail, maxEmailLength)
		if email == "" {
			email = middleware.EmailFromContext(r.Context())
		}

		confirmation, err := svc.Purchase(r.Context(), purchase.PurchaseInput{
			ListingID:     listingID,
			BuyerID:       buyerID,
			BuyerEmail:    email,
			PaymentMethod: enums.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
			Notes:         req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, purchaseResponse{
			Reference:     confirmation.Reference,
			PaymentMethod: confirmation.PaymentMethod,
			Amount:        confirmation.Amount.StringFixed(2),
			OrderID:       confirmation.OrderID,
			ListingID:     confirmation.ListingID,
			Instructions:  confirmation.Instructions,
		})
	}
}
