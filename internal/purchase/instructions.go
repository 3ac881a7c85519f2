package purchase

import (
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/closetapp/marketplace-backend/pkg/enums"
)

// InstructionsFor renders the payment steps for method. The result depends only
// on its arguments.
func InstructionsFor(method enums.PaymentMethod, reference string, amount decimal.Decimal, checkoutBaseURL string) Instructions {
	total := "R$ " + amount.StringFixed(2)
	switch method {
	case enums.PaymentMethodPix:
		return Instructions{
			Title: "Finish paying with Pix",
			Steps: []string{
				"Copy the Pix code shown below.",
				"Open your bank app and choose Pix, then Paste code.",
				fmt.Sprintf("Paste the code, check that the amount is %s and confirm.", total),
			},
			Code: reference,
			Note: "Pix payments clear within 5 minutes. You will get an email once it is confirmed.",
		}
	case enums.PaymentMethodCreditCard:
		return Instructions{
			Title: "Finish paying by card",
			Steps: []string{
				"Open the secure checkout with the link below.",
				fmt.Sprintf("Enter your card details and confirm the %s charge.", total),
				"Your order updates automatically once the payment is approved.",
			},
			Code:        reference,
			CheckoutURL: checkoutURL(checkoutBaseURL, reference),
		}
	case enums.PaymentMethodBoleto:
		return Instructions{
			Title: "Finish paying with boleto",
			Steps: []string{
				"Copy the boleto code shown below.",
				fmt.Sprintf("Pay %s in your bank app or at any branch before the due date.", total),
				"Once the payment clears the seller is notified and ships the item.",
			},
			Code: reference,
			Note: "Boleto payments can take up to 3 business days to clear. Unpaid reservations are cancelled automatically.",
		}
	default:
		return Instructions{}
	}
}

func checkoutURL(base, reference string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return ""
	}
	q := u.Query()
	q.Set("ref", reference)
	u.RawQuery = q.Encode()
	return u.String()
}
