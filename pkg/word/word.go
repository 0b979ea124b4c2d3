// Package word provides overflow-checked arithmetic and shift primitives on
// machine words.
//
// Sizes and addresses in the simulator are unsigned 64-bit words. Add and Mul
// refuse to wrap; Shr and Sar take the shift amount modulo the word width,
// the way a native shift instruction does.
package word

import (
	"errors"
	"fmt"
	"math/bits"
)

const (
	Bits = 64              // width of a machine word
	Max  = ^uint64(0)      // largest unsigned word
	Sign = uint64(1) << 63 // sign bit of the two's complement view
)

// ErrOverflow is returned when a result does not fit in a word.
var ErrOverflow = errors.New("integer overflow")

// Add returns a+b, or ErrOverflow if the sum exceeds Max.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// Mul returns x*n, or ErrOverflow if the product exceeds Max.
func Mul(x, n uint64) (uint64, error) {
	hi, lo := bits.Mul64(x, n)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, x, n)
	}
	return lo, nil
}

// Shr is a logical right shift: zeros come in from the top.
func Shr(val, nbits uint64) uint64 {
	return val >> (nbits & (Bits - 1))
}

// Sar is an arithmetic right shift: the sign bit is replicated.
func Sar(val, nbits uint64) uint64 {
	return uint64(int64(val) >> (nbits & (Bits - 1)))
}

// Shl is a left shift with the same modulo rule as Shr.
func Shl(val, nbits uint64) uint64 {
	return val << (nbits & (Bits - 1))
}
