package enums

import "testing"

func TestParseDiscountTypeIsCaseInsensitive(t *testing.T) {
	got, err := ParseDiscountType(" percentage ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != DiscountTypePercentage {
		t.Fatalf("expected Percentage, got %q", got)
	}
	if _, err := ParseDiscountType("bogo"); err == nil {
		t.Fatal("expected unknown discount type to fail")
	}
}

func TestSessionStateValidity(t *testing.T) {
	if !SessionStateGuest.IsValid() || !SessionStateAuthenticated.IsValid() {
		t.Fatal("expected known states to be valid")
	}
	if SessionState("anonymous").IsValid() {
		t.Fatal("unexpected valid state")
	}
	if _, err := ParseSessionState("authenticated"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
