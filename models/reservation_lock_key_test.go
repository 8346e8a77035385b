package models

import "testing"

func TestReservationLockKey(t *testing.T) {
	cases := []struct {
		name  string
		lines []NewOrderLine
		want  string
	}{
		{"single variation", []NewOrderLine{{VariationId: 7, Qty: 1}}, "variations:7"},
		{"sorted regardless of line order",
			[]NewOrderLine{{VariationId: 12, Qty: 1}, {VariationId: 3, Qty: 2}},
			"variations:3:12"},
		{"duplicate variations collapse",
			[]NewOrderLine{{VariationId: 5, Qty: 1}, {VariationId: 5, Qty: 1}, {VariationId: 2, Qty: 1}},
			"variations:2:5"},
	}
	for _, tc := range cases {
		if got := reservationLockKey(tc.lines); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

// Two orders over the same variations must contend on the same key no
// matter how the lines are arranged.
func TestReservationLockKey_OrderIndependent(t *testing.T) {
	a := reservationLockKey([]NewOrderLine{{VariationId: 9, Qty: 1}, {VariationId: 4, Qty: 3}})
	b := reservationLockKey([]NewOrderLine{{VariationId: 4, Qty: 1}, {VariationId: 9, Qty: 2}})
	if a != b {
		t.Fatalf("keys differ for the same variation set: %q vs %q", a, b)
	}
}
