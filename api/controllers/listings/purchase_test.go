package listings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/closetapp/marketplace-backend/api/middleware"
	"github.com/closetapp/marketplace-backend/internal/purchase"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	pkgerrors "github.com/closetapp/marketplace-backend/pkg/errors"
)

type stubPurchaseService struct {
	purchase func(ctx context.Context, input purchase.PurchaseInput) (*purchase.Confirmation, error)
}

func (s *stubPurchaseService) Purchase(ctx context.Context, input purchase.PurchaseInput) (*purchase.Confirmation, error) {
	return s.purchase(ctx, input)
}

func purchaseRequestFor(listingID, buyerID uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings/"+listingID.String()+"/purchase", strings.NewReader(body))
	req = withListingParam(req, listingID.String())
	if buyerID != uuid.Nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), buyerID, enums.UserRoleMember, "token@closet.app"))
	}
	return req
}

func TestPurchaseCreatesOrder(t *testing.T) {
	listingID := uuid.New()
	buyerID := uuid.New()
	orderID := uuid.New()
	svc := &stubPurchaseService{
		purchase: func(ctx context.Context, input purchase.PurchaseInput) (*purchase.Confirmation, error) {
			require.Equal(t, listingID, input.ListingID)
			require.Equal(t, buyerID, input.BuyerID)
			require.Equal(t, enums.PaymentMethodPix, input.PaymentMethod)
			require.Equal(t, "token@closet.app", input.BuyerEmail)
			require.Equal(t, "leave at door", input.Notes)
			return &purchase.Confirmation{
				Reference:     "ref-1",
				PaymentMethod: input.PaymentMethod,
				Amount:        decimal.RequireFromString("80"),
				OrderID:       orderID,
				ListingID:     listingID,
				Instructions:  purchase.InstructionsFor(input.PaymentMethod, "ref-1", decimal.RequireFromString("80"), ""),
			}, nil
		},
	}

	resp := httptest.NewRecorder()
	Purchase(svc, nil).ServeHTTP(resp, purchaseRequestFor(listingID, buyerID, `{"payment_method":"pix","notes":"leave at door"}`))
	require.Equal(t, http.StatusCreated, resp.Code)

	var envelope struct {
		Data struct {
			Reference     string    `json:"reference"`
			PaymentMethod string    `json:"payment_method"`
			Amount        string    `json:"amount"`
			OrderID       uuid.UUID `json:"order_id"`
			ListingID     uuid.UUID `json:"listing_id"`
			Instructions  struct {
				Title string `json:"title"`
				Code  string `json:"code"`
			} `json:"instructions"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, "ref-1", envelope.Data.Reference)
	require.Equal(t, "pix", envelope.Data.PaymentMethod)
	require.Equal(t, "80.00", envelope.Data.Amount)
	require.Equal(t, orderID, envelope.Data.OrderID)
	require.Equal(t, listingID, envelope.Data.ListingID)
	require.NotEmpty(t, envelope.Data.Instructions.Title)
}

func TestPurchasePrefersBodyEmail(t *testing.T) {
	svc := &stubPurchaseService{
		purchase: func(ctx context.Context, input purchase.PurchaseInput) (*purchase.Confirmation, error) {
			require.Equal(t, "other@closet.app", input.BuyerEmail)
			return &purchase.Confirmation{Amount: decimal.Zero}, nil
		},
	}
	resp := httptest.NewRecorder()
	Purchase(svc, nil).ServeHTTP(resp, purchaseRequestFor(uuid.New(), uuid.New(), `{"payment_method":"boleto","buyer_email":"other@closet.app"}`))
	require.Equal(t, http.StatusCreated, resp.Code)
}

func TestPurchaseRequiresIdentity(t *testing.T) {
	svc := &stubPurchaseService{
		purchase: func(ctx context.Context, input purchase.PurchaseInput) (*purchase.Confirmation, error) {
			t.Fatal("service must not run for anonymous callers")
			return nil, nil
		},
	}
	resp := httptest.NewRecorder()
	Purchase(svc, nil).ServeHTTP(resp, purchaseRequestFor(uuid.New(), uuid.Nil, `{"payment_method":"pix"}`))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestPurchaseMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"self purchase", pkgerrors.New(pkgerrors.CodeForbidden, "you cannot buy your own listing"), http.StatusForbidden},
		{"lost race", pkgerrors.New(pkgerrors.CodeConflict, "another buyer just reserved this item, try again later"), http.StatusConflict},
		{"validation", pkgerrors.New(pkgerrors.CodeValidation, "choose a payment method"), http.StatusBadRequest},
		{"compensation", pkgerrors.New(pkgerrors.CodeCompensationFailed, "release reservation after failed order"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPurchaseService{
				purchase: func(ctx context.Context, input purchase.PurchaseInput) (*purchase.Confirmation, error) {
					return nil, tc.err
				},
			}
			resp := httptest.NewRecorder()
			Purchase(svc, nil).ServeHTTP(resp, purchaseRequestFor(uuid.New(), uuid.New(), `{"payment_method":"pix"}`))
			require.Equal(t, tc.status, resp.Code)

			var envelope struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
			require.Equal(t, string(pkgerrors.As(tc.err).Code()), envelope.Error.Code)
			if tc.status == http.StatusServiceUnavailable {
				require.NotContains(t, envelope.Error.Message, "release reservation")
			}
		})
	}
}

func TestPurchaseRejectsBadEmail(t *testing.T) {
	resp := httptest.NewRecorder()
	Purchase(&stubPurchaseService{}, nil).ServeHTTP(resp, purchaseRequestFor(uuid.New(), uuid.New(), `{"payment_method":"pix","buyer_email":"not-an-email"}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
