package circuit

import (
	"math"
	"math/bits"
)

// mulDiv returns a*b/c with a 128-bit intermediate product, truncating. A
// quotient that does not fit in 64 bits saturates at MaxUint64. c must be
// non-zero.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// addSat adds without wrapping.
func addSat(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// average is (a+b)/2 without overflow.
func average(a, b uint64) uint64 {
	return a/2 + b/2 + (a & b & 1)
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
