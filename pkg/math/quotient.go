package math

import "math"

// Quotient is an unreduced fraction Num/Den. Comparisons cross-multiply so
// ratios with tiny or zero denominators never divide.
type Quotient struct {
	Num, Den float64
}

// Q builds a quotient.
func Q(num, den float64) Quotient {
	return Quotient{Num: num, Den: den}
}

// normalized returns q with a non-negative denominator.
func (q Quotient) normalized() Quotient {
	if q.Den < 0 {
		return Quotient{-q.Num, -q.Den}
	}
	return q
}

// Compare returns -1, 0 or 1 as q is less than, equal to or greater than o.
// A zero denominator ranks as +Inf, -Inf or 0 depending on the sign of Num.
func (q Quotient) Compare(o Quotient) int {
	a, b := q.normalized(), o.normalized()
	if a.Den == 0 || b.Den == 0 {
		return cmpFloat(a.rank(), b.rank())
	}
	return cmpFloat(a.Num*b.Den, b.Num*a.Den)
}

func (q Quotient) rank() float64 {
	if q.Den != 0 {
		return q.Num / q.Den
	}
	switch {
	case q.Num > 0:
		return math.Inf(1)
	case q.Num < 0:
		return math.Inf(-1)
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Less reports q < o.
func (q Quotient) Less(o Quotient) bool { return q.Compare(o) < 0 }

// Greater reports q > o.
func (q Quotient) Greater(o Quotient) bool { return q.Compare(o) > 0 }

// GreaterEq reports q >= o.
func (q Quotient) GreaterEq(o Quotient) bool { return q.Compare(o) >= 0 }

// Float returns the value of q, or 0 when the denominator is zero.
func (q Quotient) Float() float64 {
	if q.Den == 0 {
		return 0
	}
	return q.Num / q.Den
}

// MaxQuotient returns the larger of a and b.
func MaxQuotient(a, b Quotient) Quotient {
	if b.Greater(a) {
		return b
	}
	return a
}
