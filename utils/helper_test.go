package utils

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateTrackingNumber_Format(t *testing.T) {
	tn := GenerateTrackingNumber()
	if !strings.HasPrefix(tn, "TRK-") {
		t.Fatalf("tracking number %q missing TRK- prefix", tn)
	}
	parts := strings.Split(tn, "-")
	if len(parts) != 3 {
		t.Fatalf("tracking number %q: want TRK-YYYYMMDD-SUFFIX", tn)
	}
	if _, err := time.Parse("20060102", parts[1]); err != nil {
		t.Errorf("tracking number %q: date segment invalid: %v", tn, err)
	}
	if len(parts[2]) != 10 {
		t.Errorf("tracking number %q: suffix length %d, want 10", tn, len(parts[2]))
	}
}

func TestGenerateTrackingNumber_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		tn := GenerateTrackingNumber()
		if seen[tn] {
			t.Fatalf("duplicate tracking number %q", tn)
		}
		seen[tn] = true
	}
}

func TestGenerateUnitSerial_EncodesVariation(t *testing.T) {
	serial := GenerateUnitSerial("TSHIRT-01", "Black", "XL")
	if !strings.HasPrefix(serial, "TSHIRT-01-BLACK-XL-") {
		t.Fatalf("serial %q missing sku/color/size prefix", serial)
	}
	suffix := serial[len("TSHIRT-01-BLACK-XL-"):]
	if len(suffix) != 8 {
		t.Errorf("serial %q: suffix length %d, want 8", serial, len(suffix))
	}
}

func TestGenerateUnitSerial_Unique(t *testing.T) {
	a := GenerateUnitSerial("SKU", "Red", "M")
	b := GenerateUnitSerial("SKU", "Red", "M")
	if a == b {
		t.Fatalf("two serials for the same variation collided: %q", a)
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "staff.user@example.com"}
	invalid := []string{"", "no-at-sign", "a@", "@b.co"}
	for _, email := range valid {
		if !IsValidEmail(email) {
			t.Errorf("expected %q to be valid", email)
		}
	}
	for _, email := range invalid {
		if IsValidEmail(email) {
			t.Errorf("expected %q to be invalid", email)
		}
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	if len(got) != 3 {
		t.Fatalf("got %v, want 3 unique elements", got)
	}
	seen := map[int]bool{}
	for _, v := range got {
		if seen[v] {
			t.Errorf("duplicate %d in %v", v, got)
		}
		seen[v] = true
	}
}
