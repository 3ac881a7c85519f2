package listings

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/closetapp/marketplace-backend/api/middleware"
	"github.com/closetapp/marketplace-backend/api/responses"
	"github.com/closetapp/marketplace-backend/api/validators"
	internallistings "github.com/closetapp/marketplace-backend/internal/listings"
	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	pkgerrors "github.com/closetapp/marketplace-backend/pkg/errors"
	"github.com/closetapp/marketplace-backend/pkg/logger"
	"github.com/closetapp/marketplace-backend/pkg/pagination"
)

type createListingRequest struct {
	ItemID      string           `json:"item_id" validate:"required,uuid"`
	ItemName    string           `json:"item_name" validate:"omitempty,max=120"`
	Title       string           `json:"title" validate:"omitempty,max=120"`
	Description string           `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price" validate:"required,money"`
	Condition   string           `json:"condition" validate:"required,listing_condition"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required,listing_status"`
}

type listingView struct {
	ID          uuid.UUID              `json:"id"`
	SellerID    uuid.UUID              `json:"seller_id"`
	ItemID      uuid.UUID              `json:"item_id"`
	Title       string                 `json:"title"`
	Description *string                `json:"description,omitempty"`
	Price       string                 `json:"price"`
	Condition   enums.ListingCondition `json:"condition"`
	Status      enums.ListingStatus    `json:"status"`
	ReservedAt  *time.Time             `json:"reserved_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

type listingPage struct {
	Items      []listingView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func toListingView(l *models.Listing) listingView {
	return listingView{
		ID:          l.ID,
		SellerID:    l.SellerID,
		ItemID:      l.ItemID,
		Title:       l.Title,
		Description: l.Description,
		Price:       l.Price.StringFixed(2),
		Condition:   l.Condition,
		Status:      l.Status,
		ReservedAt:  l.ReservedAt,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

// Create lists one of the caller's wardrobe items for sale.
func Create(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}

		var req createListingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := uuid.Parse(req.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item_id"))
			return
		}
		condition, err := enums.ParseListingCondition(req.Condition)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid condition"))
			return
		}

		listing, err := svc.Create(r.Context(), middleware.UserUUIDFromContext(r.Context()), internallistings.CreateListingInput{
			ItemID:      itemID,
			ItemName:    req.ItemName,
			Title:       req.Title,
			Description: req.Description,
			Price:       *req.Price,
			Condition:   condition,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toListingView(listing))
	}
}

// List pages through listings, optionally filtered by status or seller.
func List(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := internallistings.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := validators.QueryString(r, "status"); raw != nil {
			status, err := enums.ParseListingStatus(*raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}
		sellerID, err := validators.ParseQueryUUID(r, "seller_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.SellerID = sellerID

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page := listingPage{Items: make([]listingView, 0, len(result.Items)), NextCursor: result.NextCursor}
		for i := range result.Items {
			page.Items = append(page.Items, toListingView(&result.Items[i]))
		}
		responses.WriteSuccess(w, page)
	}
}

func Detail(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.Get(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toListingView(listing))
	}
}

// ChangeStatus lets the seller mark a listing sold or put it back on sale.
func ChangeStatus(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req changeStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseListingStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		if target == enums.ListingStatusReserved {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "listings are reserved by purchasing them"))
			return
		}

		listing, err := svc.ChangeStatus(r.Context(), middleware.UserUUIDFromContext(r.Context()), listingID, target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toListingView(listing))
	}
}

func Delete(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), middleware.UserUUIDFromContext(r.Context()), listingID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
