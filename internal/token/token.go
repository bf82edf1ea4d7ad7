// Package token 处理 STR 金额换算与签名拆分
package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals STR 精度
const Decimals = 18

var strToTwei = decimal.New(1, Decimals)

var (
	ErrInvalidAmount    = errors.New("amount must be a positive integer number of twei")
	ErrInvalidSignature = errors.New("signature must be 65 bytes of hex")
)

// StrToTwei STR 转 twei, 超出精度的小数部分视为无效
func StrToTwei(value decimal.Decimal) (*big.Int, error) {
	twei := value.Mul(strToTwei)
	if !IsValidTwei(twei) {
		return nil, ErrInvalidAmount
	}
	v := twei.BigInt()
	if v.BitLen() > 256 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// TweiToStr twei 转 STR
func TweiToStr(twei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(twei, 0).Div(strToTwei)
}

// IsValidTwei 大于 0 且没有小数
func IsValidTwei(value decimal.Decimal) bool {
	return value.IsPositive() && value.Equal(value.Truncate(0))
}

// maxUint256Digits 2^256-1 的十进制位数
const maxUint256Digits = 78

// ParseTwei 解析十进制 twei 字符串, 只接受不超过 uint256 的正整数
func ParseTwei(value string) (*big.Int, error) {
	v, err := parseUint256(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if v.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// ParseUint 解析十进制非负整数, 用于 expiration 与 nonce
func ParseUint(value string) (*big.Int, error) {
	return parseUint256(value)
}

// parseUint256 纯十进制数字, 不接受符号、小数点与指数
func parseUint256(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxUint256Digits {
		return nil, fmt.Errorf("%q is not a uint256 decimal", value)
	}
	for _, c := range value {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%q is not a uint256 decimal", value)
		}
	}
	v, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", value, err)
	}
	return v.ToBig(), nil
}

// Signature ECDSA 签名拆分结果
type Signature struct {
	R [32]byte
	S [32]byte
	V uint8
}

// SplitSignature 拆分 65 字节签名: r = [0,32), s = [32,64), v = [64]
func SplitSignature(signature string) (Signature, error) {
	var sig Signature
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}
	raw, err := hexutil.Decode(signature)
	if err != nil || len(raw) != 65 {
		return sig, ErrInvalidSignature
	}
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64]
	return sig, nil
}

// Bytes 重新拼接为 r||s||v
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, 65)
	out = append(out, s.R[:]...)
	out = append(out, s.S[:]...)
	return append(out, s.V)
}

// ValidAddress 是否为合法十六进制地址
func ValidAddress(address string) bool {
	return common.IsHexAddress(address)
}
