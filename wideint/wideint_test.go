package wideint

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func randInt(rng *rand.Rand) Int {
	var z Int
	for i := range z {
		z[i] = rng.Uint64()
	}
	// exercise short values as well.
	switch rng.Intn(4) {
	case 0:
		z[3], z[2] = 0, 0
	case 1:
		z = Max
	}
	return z
}

func toBig(x Int) *big.Int {
	b := x.Bytes()
	return new(big.Int).SetBytes(b[:])
}

func toU256(x Int) *uint256.Int {
	u := uint256.Int(x)
	return &u
}

func TestAddMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		a, b := randInt(rng), randInt(rng)
		want := new(uint256.Int).Add(toU256(a), toU256(b))
		require.Equal(t, Int(*want), Add(a, b))
	}
}

func TestAddWraps(t *testing.T) {
	require.True(t, Add(Max, FromUint64(1)).IsZero())
	require.Equal(t, FromUint64(4), Add(Max, FromUint64(5)))
}

func TestMulAccMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), Bits), big.NewInt(1))
	for i := 0; i < 1000; i++ {
		a, b := randInt(rng), randInt(rng)
		hi, lo := MulAcc(a, b)

		product := new(big.Int).Mul(toBig(a), toBig(b))
		require.Equal(t, 0, new(big.Int).And(product, mask).Cmp(toBig(lo)), "lo a=%v b=%v", a, b)
		require.Equal(t, 0, new(big.Int).Rsh(product, Bits).Cmp(toBig(hi)), "hi a=%v b=%v", a, b)

		want := new(uint256.Int).Mul(toU256(a), toU256(b))
		require.Equal(t, Int(*want), Mul(a, b))
	}
}

func TestMulAccCarryChain(t *testing.T) {
	// (2^256-1)^2 = 2^512 - 2^257 + 1
	hi, lo := MulAcc(Max, Max)
	require.Equal(t, FromUint64(1), lo)
	require.Equal(t, Int{^uint64(0) - 1, ^uint64(0), ^uint64(0), ^uint64(0)}, hi)
}

func TestXorAndCmp(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		a, b := randInt(rng), randInt(rng)
		require.Equal(t, Int(*new(uint256.Int).Xor(toU256(a), toU256(b))), Xor(a, b))
		require.Equal(t, toU256(a).Cmp(toU256(b)), Cmp(a, b))
		require.Equal(t, toU256(a).Lt(toU256(b)), a.Less(b))
		require.True(t, Xor(a, a).IsZero())
	}
}

func TestBytesRoundTrip(t *testing.T) {
	x := Int{0x0102030405060708, 0x1112131415161718, 0x2122232425262728, 0x3132333435363738}
	b := x.Bytes()
	require.Equal(t, byte(0x31), b[0])
	require.Equal(t, byte(0x08), b[Size-1])
	require.Equal(t, toU256(x).Bytes32(), b)

	y, err := FromBytes(b[:])
	require.NoError(t, err)
	require.Equal(t, x, y)

	_, err = FromBytes(b[:31])
	require.Error(t, err)
}

func TestWords(t *testing.T) {
	x := Int{0x0000000700000008, 0x0000000500000006, 0x0000000300000004, 0x0000000100000002}
	require.Equal(t, [Words]uint32{1, 2, 3, 4, 5, 6, 7, 8}, x.Words())
	require.Equal(t, x, FromWords(x.Words()))
	require.Equal(t, uint32(1), x.Word(0))
	require.Equal(t, uint32(8), x.Word(Words-1))
}

func TestWindow(t *testing.T) {
	x := Int{0x0000000700000008, 0x0000000500000006, 0x0000000300000004, 0x0000000100000002}
	for w := 0; w < Words; w++ {
		require.Equal(t, x.Word(w), x.Window(32*w, 32))
	}
	require.Equal(t, uint32(0), x.Window(0, 16))
	require.Equal(t, uint32(1), x.Window(16, 16))

	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 1000; i++ {
		x := randInt(rng)
		n := 1 + rng.Intn(32)
		offset := rng.Intn(Bits - n + 1)

		want := new(uint256.Int).Rsh(toU256(x), uint(Bits-offset-n)).Uint64() & (1<<n - 1)
		require.Equal(t, uint32(want), x.Window(offset, n), "x=%v offset=%d n=%d", x, offset, n)
	}
}

func TestLeadingZeros(t *testing.T) {
	require.Equal(t, Bits, Int{}.LeadingZeros())
	require.Equal(t, Words, Int{}.LeadingZeroWords())
	require.Equal(t, 0, Max.LeadingZeros())
	require.Equal(t, 255, FromUint64(1).LeadingZeros())
	require.Equal(t, 7, FromUint64(1).LeadingZeroWords())
	require.Equal(t, 64, Int{0, 0, 1 << 63}.LeadingZeros())
}

func TestString(t *testing.T) {
	require.Equal(t, "0x"+"00000000000000000000000000000000000000000000000000000000000000ff", FromUint64(255).String())
}

func BenchmarkMulAcc(b *testing.B) {
	rng := rand.New(rand.NewSource(4))
	x, y := randInt(rng), randInt(rng)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x, _ = MulAcc(x, y)
	}
}
