package purchase

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/closetapp/marketplace-backend/pkg/enums"
)

const maxNotesLength = 1000

// PurchaseInput is one buyer's request to buy a listing.
type PurchaseInput struct {
	ListingID     uuid.UUID
	BuyerID       uuid.UUID
	BuyerEmail    string
	PaymentMethod enums.PaymentMethod
	Notes         string
}

// Confirmation is returned once the listing is reserved and the order is pending.
type Confirmation struct {
	Reference     string
	PaymentMethod enums.PaymentMethod
	Amount        decimal.Decimal
	OrderID       uuid.UUID
	ListingID     uuid.UUID
	Instructions  Instructions
}

// Instructions tells the buyer how to complete payment outside the app.
type Instructions struct {
	Title       string   `json:"title"`
	Steps       []string `json:"steps"`
	Code        string   `json:"code,omitempty"`
	Note        string   `json:"note,omitempty"`
	CheckoutURL string   `json:"checkout_url,omitempty"`
}
