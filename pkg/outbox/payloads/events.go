package payloads

import (
	"github.com/google/uuid"

	"github.com/closetapp/marketplace-backend/pkg/enums"
)

// OrderEvent describes an order at the moment one of its lifecycle events fired.
type OrderEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	ListingID     uuid.UUID           `json:"listing_id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Amount        string              `json:"amount"`
	Reference     string              `json:"reference"`
}

// ReservationReleasedEvent is emitted when the sweep frees a zombie reservation.
type ReservationReleasedEvent struct {
	ListingID uuid.UUID `json:"listing_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	Reason    string    `json:"reason"`
}
