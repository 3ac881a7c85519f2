package listings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/closetapp/marketplace-backend/api/middleware"
	internallistings "github.com/closetapp/marketplace-backend/internal/listings"
	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	pkgerrors "github.com/closetapp/marketplace-backend/pkg/errors"
)

type stubListingsService struct {
	create       func(ctx context.Context, sellerID uuid.UUID, input internallistings.CreateListingInput) (*models.Listing, error)
	get          func(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	list         func(ctx context.Context, params internallistings.ListParams) (*internallistings.ListResult, error)
	changeStatus func(ctx context.Context, sellerID, listingID uuid.UUID, target enums.ListingStatus) (*models.Listing, error)
	remove       func(ctx context.Context, sellerID, listingID uuid.UUID) error
}

func (s *stubListingsService) Create(ctx context.Context, sellerID uuid.UUID, input internallistings.CreateListingInput) (*models.Listing, error) {
	return s.create(ctx, sellerID, input)
}

func (s *stubListingsService) Get(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return s.get(ctx, id)
}

func (s *stubListingsService) List(ctx context.Context, params internallistings.ListParams) (*internallistings.ListResult, error) {
	return s.list(ctx, params)
}

func (s *stubListingsService) ChangeStatus(ctx context.Context, sellerID, listingID uuid.UUID, target enums.ListingStatus) (*models.Listing, error) {
	return s.changeStatus(ctx, sellerID, listingID, target)
}

func (s *stubListingsService) Delete(ctx context.Context, sellerID, listingID uuid.UUID) error {
	return s.remove(ctx, sellerID, listingID)
}

func sampleListing(sellerID uuid.UUID) *models.Listing {
	return &models.Listing{
		ID:        uuid.New(),
		SellerID:  sellerID,
		ItemID:    uuid.New(),
		Title:     "Denim jacket",
		Price:     decimal.RequireFromString("120"),
		Condition: enums.ListingConditionLikeNew,
		Status:    enums.ListingStatusAvailable,
	}
}

func withListingParam(req *http.Request, listingID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("listingId", listingID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type listingEnvelope struct {
	Data struct {
		ID     uuid.UUID `json:"id"`
		Price  string    `json:"price"`
		Status string    `json:"status"`
	} `json:"data"`
}

func TestCreateListing(t *testing.T) {
	sellerID := uuid.New()
	itemID := uuid.New()
	svc := &stubListingsService{
		create: func(ctx context.Context, incoming uuid.UUID, input internallistings.CreateListingInput) (*models.Listing, error) {
			if incoming != sellerID {
				t.Fatalf("unexpected seller %s", incoming)
			}
			if input.ItemID != itemID || input.Condition != enums.ListingConditionLikeNew {
				t.Fatalf("unexpected input %+v", input)
			}
			if !input.Price.Equal(decimal.RequireFromString("120.5")) {
				t.Fatalf("unexpected price %s", input.Price)
			}
			listing := sampleListing(incoming)
			listing.Price = input.Price
			return listing, nil
		},
	}

	body := `{"item_id":"` + itemID.String() + `","title":"Denim jacket","price":"120.5","condition":"like_new"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", strings.NewReader(body))
	req = req.WithContext(middleware.WithIdentity(req.Context(), sellerID, enums.UserRoleMember, ""))
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code)

	var envelope listingEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, "120.50", envelope.Data.Price)
	require.Equal(t, "available", envelope.Data.Status)
}

func TestCreateListingValidation(t *testing.T) {
	cases := map[string]string{
		"missing price":     `{"item_id":"` + uuid.NewString() + `","condition":"new"}`,
		"bad item id":       `{"item_id":"nope","price":"10","condition":"new"}`,
		"unknown condition": `{"item_id":"` + uuid.NewString() + `","price":"10","condition":"torn"}`,
		"unknown field":     `{"item_id":"` + uuid.NewString() + `","price":"10","condition":"new","color":"red"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", strings.NewReader(body))
			resp := httptest.NewRecorder()
			Create(&stubListingsService{}, nil).ServeHTTP(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", resp.Code, resp.Body.String())
			}
		})
	}
}

func TestListListingsFilters(t *testing.T) {
	sellerID := uuid.New()
	svc := &stubListingsService{
		list: func(ctx context.Context, params internallistings.ListParams) (*internallistings.ListResult, error) {
			if params.Status == nil || *params.Status != enums.ListingStatusAvailable {
				t.Fatalf("status filter not parsed")
			}
			if params.SellerID == nil || *params.SellerID != sellerID {
				t.Fatalf("seller filter not parsed")
			}
			if params.Limit != 10 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			return &internallistings.ListResult{Items: []models.Listing{*sampleListing(sellerID)}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/listings?status=available&seller_id="+sellerID.String()+"&limit=10", nil)
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data struct {
			Items []json.RawMessage `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Len(t, envelope.Data.Items, 1)
}

func TestListListingsRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/listings?limit=500", nil)
	resp := httptest.NewRecorder()
	List(&stubListingsService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDetailNotFound(t *testing.T) {
	svc := &stubListingsService{
		get: func(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		},
	}
	id := uuid.NewString()
	req := withListingParam(httptest.NewRequest(http.MethodGet, "/api/v1/listings/"+id, nil), id)
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestChangeStatus(t *testing.T) {
	sellerID := uuid.New()
	listing := sampleListing(sellerID)
	listing.Status = enums.ListingStatusSold
	svc := &stubListingsService{
		changeStatus: func(ctx context.Context, incoming, listingID uuid.UUID, target enums.ListingStatus) (*models.Listing, error) {
			require.Equal(t, sellerID, incoming)
			require.Equal(t, listing.ID, listingID)
			require.Equal(t, enums.ListingStatusSold, target)
			return listing, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/listings/"+listing.ID.String()+"/status", strings.NewReader(`{"status":"sold"}`))
	req = withListingParam(req, listing.ID.String())
	req = req.WithContext(middleware.WithIdentity(req.Context(), sellerID, enums.UserRoleMember, ""))
	resp := httptest.NewRecorder()
	ChangeStatus(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope listingEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, "sold", envelope.Data.Status)
}

func TestChangeStatusRejectsReserved(t *testing.T) {
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/listings/"+id+"/status", strings.NewReader(`{"status":"reserved"}`))
	req = withListingParam(req, id)
	resp := httptest.NewRecorder()
	ChangeStatus(&stubListingsService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDeleteListing(t *testing.T) {
	sellerID := uuid.New()
	id := uuid.New()
	called := false
	svc := &stubListingsService{
		remove: func(ctx context.Context, incoming, listingID uuid.UUID) error {
			called = incoming == sellerID && listingID == id
			return nil
		},
	}
	req := withListingParam(httptest.NewRequest(http.MethodDelete, "/api/v1/listings/"+id.String(), nil), id.String())
	req = req.WithContext(middleware.WithIdentity(req.Context(), sellerID, enums.UserRoleMember, ""))
	resp := httptest.NewRecorder()
	Delete(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusNoContent, resp.Code)
	require.True(t, called)
}

func TestDeleteReservedListingConflicts(t *testing.T) {
	svc := &stubListingsService{
		remove: func(ctx context.Context, sellerID, listingID uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a reserved listing cannot be deleted")
		},
	}
	id := uuid.NewString()
	req := withListingParam(httptest.NewRequest(http.MethodDelete, "/api/v1/listings/"+id, nil), id)
	resp := httptest.NewRecorder()
	Delete(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}
