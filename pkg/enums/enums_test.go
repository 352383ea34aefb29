package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("in_transit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != OrderStatusInTransit {
		t.Fatalf("expected in_transit, got %s", got)
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, status := range validOrderStatuses {
		want := status == OrderStatusDelivered || status == OrderStatusCancelled || status == OrderStatusFailed
		if status.IsTerminal() != want {
			t.Fatalf("status %s terminal=%v", status, status.IsTerminal())
		}
	}
}

func TestPaymentMethodValidity(t *testing.T) {
	for _, raw := range []string{"wallet", "card", "eft"} {
		if !PaymentMethod(raw).IsValid() {
			t.Fatalf("expected %s to be valid", raw)
		}
	}
	if PaymentMethod("cash").IsValid() {
		t.Fatal("cash is not a supported method")
	}
}
