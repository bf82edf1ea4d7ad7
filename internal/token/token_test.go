package token

import (
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrToTwei(t *testing.T) {
	twei, err := StrToTwei(decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000000", twei.String())

	twei, err = StrToTwei(decimal.RequireFromString("0.000000000000000001"))
	require.NoError(t, err)
	assert.Equal(t, "1", twei.String())

	_, err = StrToTwei(decimal.RequireFromString("0.0000000000000000001"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = StrToTwei(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTweiToStr(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.True(t, TweiToStr(v).Equal(decimal.RequireFromString("1.5")))
}

func TestParseTwei(t *testing.T) {
	v, err := ParseTwei("1000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000000", v.String())

	maxUint := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	v, err = ParseTwei(maxUint.String())
	require.NoError(t, err)
	assert.Equal(t, maxUint, v)

	overflow := new(big.Int).Lsh(big.NewInt(1), 256).String()
	for _, bad := range []string{"0", "-5", "1.5", "abc", "", "+5", "1e30", "1e4000000", "2^256", "0x10", overflow, strings.Repeat("9", 100000)} {
		_, err := ParseTwei(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestParseUint(t *testing.T) {
	v, err := ParseUint("1700000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), v.Int64())

	zero, err := ParseUint("0")
	require.NoError(t, err)
	assert.Zero(t, zero.Sign())

	for _, bad := range []string{"-1", "1e9", "1.0", "", new(big.Int).Lsh(big.NewInt(1), 256).String()} {
		_, err = ParseUint(bad)
		assert.Error(t, err, bad)
	}
}

func TestSplitSignature(t *testing.T) {
	r := strings.Repeat("11", 32)
	s := strings.Repeat("22", 32)
	sig, err := SplitSignature("0x" + r + s + "1b")
	require.NoError(t, err)

	assert.Equal(t, byte(0x11), sig.R[0])
	assert.Equal(t, byte(0x11), sig.R[31])
	assert.Equal(t, byte(0x22), sig.S[0])
	assert.Equal(t, uint8(27), sig.V)
	assert.Len(t, sig.Bytes(), 65)

	sig, err = SplitSignature(r + s + "1c")
	require.NoError(t, err)
	assert.Equal(t, uint8(28), sig.V)

	_, err = SplitSignature("0x" + r + s)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = SplitSignature("0xzz")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
