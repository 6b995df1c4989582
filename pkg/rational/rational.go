// Package rational implements exact int64 fractions used for stream
// timebases and presentation clocks.
package rational

import (
	"fmt"
	"math"
)

// Rational is a normalized fraction with a positive denominator.
// The zero value is 0/1.
type Rational struct {
	num, den int64
}

var (
	Zero = Rational{0, 1}
	One  = Rational{1, 1}
)

// New returns n/d reduced. A zero denominator yields zero.
func New(n, d int64) Rational {
	if d == 0 {
		return Zero
	}
	if d < 0 {
		n, d = -n, -d
	}
	if g := gcd(abs(n), d); g > 1 {
		n, d = n/g, d/g
	}
	return Rational{num: n, den: d}
}

// Int returns n/1.
func Int(n int64) Rational { return Rational{num: n, den: 1} }

// FromPair builds a rational from a (num, den) tuple as it travels over the wire.
func FromPair(p [2]int64) Rational { return New(p[0], p[1]) }

func (r Rational) Num() int64 { return r.num }

func (r Rational) Den() int64 {
	if r.den == 0 {
		return 1
	}
	return r.den
}

func (r Rational) Pair() [2]int64 { return [2]int64{r.num, r.Den()} }

func (r Rational) Add(o Rational) Rational {
	return New(r.num*o.Den()+o.num*r.Den(), r.Den()*o.Den())
}

func (r Rational) Sub(o Rational) Rational {
	return New(r.num*o.Den()-o.num*r.Den(), r.Den()*o.Den())
}

func (r Rational) Mul(o Rational) Rational {
	// cross reduce first to keep the intermediates small
	a, b := New(r.num, o.Den()), New(o.num, r.Den())
	return New(a.num*b.num, a.Den()*b.Den())
}

func (r Rational) Div(o Rational) Rational { return r.Mul(o.Invert()) }

// Invert returns d/n, or zero for a zero value.
func (r Rational) Invert() Rational {
	if r.num == 0 {
		return Zero
	}
	return New(r.Den(), r.num)
}

// Cmp returns -1, 0 or +1.
func (r Rational) Cmp(o Rational) int {
	// compare a/b with c/d via the sign of the difference
	switch d := r.Sub(o).num; {
	case d < 0:
		return -1
	case d > 0:
		return 1
	}
	return 0
}

func (r Rational) Less(o Rational) bool { return r.Cmp(o) < 0 }
func (r Rational) IsZero() bool         { return r.num == 0 }
func (r Rational) Sign() int            { return r.Cmp(Zero) }

// Floor returns the largest integer not greater than r.
func (r Rational) Floor() int64 {
	q := r.num / r.Den()
	if r.num%r.Den() != 0 && r.num < 0 {
		q--
	}
	return q
}

func (r Rational) Float64() float64 { return float64(r.num) / float64(r.Den()) }

func (r Rational) String() string { return fmt.Sprintf("%d/%d", r.num, r.Den()) }

// FromFloat approximates f with continued fractions, bounding the
// denominator to keep later arithmetic inside int64.
func FromFloat(f float64) Rational {
	const maxDen = 1 << 24
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Zero
	}
	neg := f < 0
	if neg {
		f = -f
	}
	var (
		h0, h1 int64 = 0, 1
		k0, k1 int64 = 1, 0
		x            = f
	)
	for i := 0; i < 64; i++ {
		a := int64(math.Floor(x))
		h2, k2 := a*h1+h0, a*k1+k0
		if k2 > maxDen {
			break
		}
		h0, h1, k0, k1 = h1, h2, k1, k2
		frac := x - float64(a)
		if frac < 1e-12 {
			break
		}
		x = 1 / frac
	}
	if neg {
		h1 = -h1
	}
	return New(h1, k1)
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
