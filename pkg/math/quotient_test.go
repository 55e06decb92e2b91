package math

import "testing"

func TestQuotientCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Quotient
		want int
	}{
		{"equal unreduced", Q(1, 2), Q(2, 4), 0},
		{"less", Q(1, 3), Q(1, 2), -1},
		{"greater", Q(3, 2), Q(1, 1), 1},
		{"negative denominator", Q(1, -2), Q(0, 1), -1},
		{"zero denominator is infinite", Q(1, 0), Q(1e30, 1e-30), 1},
		{"zero over zero", Q(0, 0), Q(0, 1), 0},
		{"tiny denominators", Q(1e-20, 1e-40), Q(1, 1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestQuotientHelpers(t *testing.T) {
	a, b := Q(3, 4), Q(1, 1)
	if !b.Greater(a) || !a.Less(b) || !b.GreaterEq(Q(2, 2)) {
		t.Error("ordering helpers disagree with Compare")
	}
	if got := MaxQuotient(a, b); got != b {
		t.Errorf("MaxQuotient() = %v, want %v", got, b)
	}
	if Q(1, 0).Float() != 0 {
		t.Error("Float() with zero denominator should be 0")
	}
	if Q(3, 4).Float() != 0.75 {
		t.Errorf("Float() = %v, want 0.75", Q(3, 4).Float())
	}
}
