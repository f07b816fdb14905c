// Package wideint implements the fixed-width 256-bit unsigned integer used for
// proofs and combined values.
//
// An Int is stored as four 64-bit limbs, least significant limb first, the same
// layout github.com/holiman/uint256 uses. All arithmetic wraps modulo 2^256.
// Comparison walks the limbs most significant first, and the wire form is 32
// bytes big-endian.
package wideint

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
)

const (
	// Limbs is the number of 64-bit limbs in an Int.
	Limbs = 4

	// Words is the number of 32-bit words in an Int. Word 0 is the most significant.
	Words = 8

	// Size is the length of the big-endian byte encoding.
	Size = 32

	// Bits is the width of an Int.
	Bits = 256
)

// Int is a 256-bit unsigned integer. The zero value is 0.
type Int [Limbs]uint64

// Max is 2^256-1.
var Max = Int{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}

// FromUint64 returns v as an Int.
func FromUint64(v uint64) Int {
	return Int{v}
}

// FromWords builds an Int from eight 32-bit words, most significant first.
func FromWords(w [Words]uint32) Int {
	var z Int
	for i := 0; i < Limbs; i++ {
		hi := w[Words-2-2*i]
		lo := w[Words-1-2*i]
		z[i] = uint64(hi)<<32 | uint64(lo)
	}
	return z
}

// FromBytes decodes a 32 byte big-endian value.
func FromBytes(b []byte) (Int, error) {
	var z Int
	if len(b) != Size {
		return z, fmt.Errorf("invalid `bytes` length; expected: %d, given: %d", Size, len(b))
	}
	for i := 0; i < Limbs; i++ {
		z[i] = binary.BigEndian.Uint64(b[Size-8*(i+1):])
	}
	return z, nil
}

// Bytes returns the 32 byte big-endian encoding of x.
func (x Int) Bytes() [Size]byte {
	var b [Size]byte
	for i := 0; i < Limbs; i++ {
		binary.BigEndian.PutUint64(b[Size-8*(i+1):], x[i])
	}
	return b
}

// Words returns the eight 32-bit words of x, most significant first.
func (x Int) Words() [Words]uint32 {
	var w [Words]uint32
	for i := 0; i < Words; i++ {
		w[i] = x.Word(i)
	}
	return w
}

// Word returns the 32-bit word at position w, where 0 is the most significant word.
func (x Int) Word(w int) uint32 {
	limb := x[Limbs-1-w/2]
	if w%2 == 0 {
		return uint32(limb >> 32)
	}
	return uint32(limb)
}

// Window returns the n bits of x starting offset bits below the most
// significant bit, as the low bits of the result. n must be in 1..32 and
// offset+n must not exceed 256.
func (x Int) Window(offset, n int) uint32 {
	limb := offset / 64
	shift := offset % 64
	v := x[Limbs-1-limb] << shift
	if shift+n > 64 {
		v |= x[Limbs-2-limb] >> (64 - shift)
	}
	return uint32(v >> (64 - n))
}

// Add returns a+b mod 2^256.
func Add(a, b Int) Int {
	var z Int
	var carry uint64
	for i := 0; i < Limbs; i++ {
		z[i], carry = bits.Add64(a[i], b[i], carry)
	}
	return z
}

// MulAcc returns the full 512-bit product a*b split into its high and low halves.
//
// It is a schoolbook multiply: every partial product is accumulated into the
// result with the carry propagated through all limbs.
func MulAcc(a, b Int) (hi, lo Int) {
	var r [2 * Limbs]uint64
	for i := 0; i < Limbs; i++ {
		if a[i] == 0 {
			continue
		}
		var carry uint64
		for j := 0; j < Limbs; j++ {
			h, l := bits.Mul64(a[i], b[j])
			var c uint64
			l, c = bits.Add64(l, r[i+j], 0)
			h += c
			l, c = bits.Add64(l, carry, 0)
			h += c
			r[i+j] = l
			carry = h
		}
		r[i+Limbs] = carry
	}
	copy(lo[:], r[:Limbs])
	copy(hi[:], r[Limbs:])
	return hi, lo
}

// Mul returns a*b mod 2^256.
func Mul(a, b Int) Int {
	_, lo := MulAcc(a, b)
	return lo
}

// Lo128 returns x with the upper 128 bits cleared.
func (x Int) Lo128() Int {
	return Int{x[0], x[1]}
}

// Hi128 returns the upper 128 bits of x shifted down to the low half.
func (x Int) Hi128() Int {
	return Int{x[2], x[3]}
}

// Xor returns a^b.
func Xor(a, b Int) Int {
	return Int{a[0] ^ b[0], a[1] ^ b[1], a[2] ^ b[2], a[3] ^ b[3]}
}

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to or
// greater than b.
func Cmp(a, b Int) int {
	for i := Limbs - 1; i >= 0; i-- {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Less reports whether a < b.
func Less(a, b Int) bool {
	return Cmp(a, b) < 0
}

// Less reports whether x < y.
func (x Int) Less(y Int) bool {
	return Cmp(x, y) < 0
}

// IsZero reports whether x == 0.
func (x Int) IsZero() bool {
	return x[0]|x[1]|x[2]|x[3] == 0
}

// LeadingZeros returns the number of leading zero bits in x; 256 for zero.
func (x Int) LeadingZeros() int {
	for i := Limbs - 1; i >= 0; i-- {
		if x[i] != 0 {
			return (Limbs-1-i)*64 + bits.LeadingZeros64(x[i])
		}
	}
	return Bits
}

// LeadingZeroWords returns the number of leading 32-bit words of x that are zero.
func (x Int) LeadingZeroWords() int {
	return x.LeadingZeros() / 32
}

// String returns x as 0x-prefixed, zero padded, big-endian hex.
func (x Int) String() string {
	b := x.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}
