package enums

import "testing"

func TestParsePaymentMethod(t *testing.T) {
	for _, raw := range []string{"pix", "credit_card", "boleto"} {
		got, err := ParsePaymentMethod(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got.String() != raw {
			t.Fatalf("expected %q got %q", raw, got)
		}
	}
	if _, err := ParsePaymentMethod("cash"); err == nil {
		t.Fatalf("expected cash to be rejected")
	}
	if PaymentMethod("").IsValid() {
		t.Fatalf("empty payment method must be invalid")
	}
}

func TestPaymentStatusPredicates(t *testing.T) {
	cases := []struct {
		status   PaymentStatus
		active   bool
		terminal bool
	}{
		{PaymentStatusPending, true, false},
		{PaymentStatusPaid, true, true},
		{PaymentStatusCancelled, false, true},
	}
	for _, tc := range cases {
		if tc.status.IsActive() != tc.active {
			t.Fatalf("%s: expected active=%v", tc.status, tc.active)
		}
		if tc.status.IsTerminal() != tc.terminal {
			t.Fatalf("%s: expected terminal=%v", tc.status, tc.terminal)
		}
	}
}

func TestListingStatusIsActive(t *testing.T) {
	if !ListingStatusAvailable.IsActive() || !ListingStatusReserved.IsActive() {
		t.Fatalf("available and reserved listings occupy their item")
	}
	if ListingStatusSold.IsActive() {
		t.Fatalf("sold listings free their item")
	}
	if _, err := ParseListingStatus("deleted"); err == nil {
		t.Fatalf("expected unknown status to be rejected")
	}
}

func TestParseListingCondition(t *testing.T) {
	if _, err := ParseListingCondition("like_new"); err != nil {
		t.Fatalf("like_new should parse: %v", err)
	}
	if _, err := ParseListingCondition("Como novo"); err == nil {
		t.Fatalf("display labels are not stored values")
	}
}
