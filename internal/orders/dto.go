package orders

import (
	"github.com/google/uuid"

	"github.com/closetapp/marketplace-backend/pkg/db/models"
	"github.com/closetapp/marketplace-backend/pkg/enums"
	"github.com/closetapp/marketplace-backend/pkg/outbox/payloads"
)

// Viewer identifies who is reading an order.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsOperator reports whether the viewer may act on any order.
func (v Viewer) IsOperator() bool {
	return v.Role == enums.UserRoleOperator
}

// ListParams filters a buyer's order history.
type ListParams struct {
	Status *enums.PaymentStatus
	Limit  int
	Cursor string
}

// ListResult is one page of orders.
type ListResult struct {
	Items      []models.Order
	NextCursor string
}

func orderEventPayload(order *models.Order) payloads.OrderEvent {
	return payloads.OrderEvent{
		OrderID:       order.ID,
		ListingID:     order.ListingID,
		BuyerID:       order.BuyerID,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		Amount:        order.Amount.StringFixed(2),
		Reference:     order.Reference,
	}
}
