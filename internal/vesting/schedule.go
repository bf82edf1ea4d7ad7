// Package vesting 按日线性释放的锁仓计算, 与链上 LinearDailyVesting 合约逐位一致
package vesting

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SecondsPerDay 一天的秒数
const SecondsPerDay = 86400

var (
	ErrZeroToken       = errors.New("vesting: token is the zero address")
	ErrZeroBeneficiary = errors.New("vesting: beneficiary is the zero address")
	ErrZeroVestingDays = errors.New("vesting: vesting period must be at least one day")
	ErrCliffTooLong    = errors.New("vesting: cliff is longer than the vesting period")
	ErrZeroRevoker     = errors.New("vesting: revoker is the zero address")
	ErrZeroDestination = errors.New("vesting: revoked tokens destination is the zero address")
	ErrZeroChanger     = errors.New("vesting: revoked tokens destination changer is the zero address")
)

// Schedule 锁仓合约的构造参数
type Schedule struct {
	Token        common.Address
	Beneficiary  common.Address
	VestingStart uint64 // unix 秒
	VestingDays  uint64
	CliffDays    uint64

	Revocable                       bool
	Revoker                         common.Address
	RevokedTokensDestination        common.Address
	RevokedTokensDestinationChanger common.Address
}

// Validate 构造校验
func (s Schedule) Validate() error {
	if s.Token == (common.Address{}) {
		return ErrZeroToken
	}
	if s.Beneficiary == (common.Address{}) {
		return ErrZeroBeneficiary
	}
	if s.VestingDays == 0 {
		return ErrZeroVestingDays
	}
	if s.CliffDays > s.VestingDays {
		return ErrCliffTooLong
	}
	if !s.Revocable {
		return nil
	}
	if s.Revoker == (common.Address{}) {
		return ErrZeroRevoker
	}
	if s.RevokedTokensDestination == (common.Address{}) {
		return ErrZeroDestination
	}
	if s.RevokedTokensDestinationChanger == (common.Address{}) {
		return ErrZeroChanger
	}
	return nil
}

// State 合约在某一时刻的可变状态
type State struct {
	Balance       *uint256.Int // 合约当前持有的代币
	Released      *uint256.Int
	RevokedTokens *uint256.Int
	Revoked       bool
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// DaysSinceVestingStart 开始前为 0, 之后按整天向下取整
func (s Schedule) DaysSinceVestingStart(now uint64) uint64 {
	if now <= s.VestingStart {
		return 0
	}
	return (now - s.VestingStart) / SecondsPerDay
}

// TotalTokens 累计转入量 = 余额 + 已释放 + 已撤销
func (s Schedule) TotalTokens(st State) *uint256.Int {
	total := new(uint256.Int).Add(orZero(st.Balance), orZero(st.Released))
	return total.Add(total, orZero(st.RevokedTokens))
}

// VestedTokens 撤销后固定为 total - revokedTokens
func (s Schedule) VestedTokens(st State, now uint64) *uint256.Int {
	total := s.TotalTokens(st)
	if st.Revoked {
		return total.Sub(total, orZero(st.RevokedTokens))
	}

	days := s.DaysSinceVestingStart(now)
	if days < s.CliffDays {
		return new(uint256.Int)
	}
	if days >= s.VestingDays {
		return total
	}

	vested, _ := new(uint256.Int).MulDivOverflow(total, uint256.NewInt(days), uint256.NewInt(s.VestingDays))
	return vested
}

// ReleasableTokens 已归属未释放
func (s Schedule) ReleasableTokens(st State, now uint64) *uint256.Int {
	vested := s.VestedTokens(st, now)
	released := orZero(st.Released)
	if vested.Lt(released) {
		return new(uint256.Int)
	}
	return vested.Sub(vested, released)
}

// LockedTokens 未归属, 撤销后为 0
func (s Schedule) LockedTokens(st State, now uint64) *uint256.Int {
	if st.Revoked {
		return new(uint256.Int)
	}
	total := s.TotalTokens(st)
	return total.Sub(total, s.VestedTokens(st, now))
}

// Report 合约全部只读访问器的取值
type Report struct {
	DaysSinceVestingStart uint64
	TotalTokens           *uint256.Int
	VestedTokens          *uint256.Int
	ReleasableTokens      *uint256.Int
	LockedTokens          *uint256.Int
	ReleasedTokens        *uint256.Int
	RevokedTokens         *uint256.Int
	Revoked               bool
}

// Compute 按给定状态与时间计算全部访问器
func (s Schedule) Compute(st State, now uint64) Report {
	return Report{
		DaysSinceVestingStart: s.DaysSinceVestingStart(now),
		TotalTokens:           s.TotalTokens(st),
		VestedTokens:          s.VestedTokens(st, now),
		ReleasableTokens:      s.ReleasableTokens(st, now),
		LockedTokens:          s.LockedTokens(st, now),
		ReleasedTokens:        new(uint256.Int).Set(orZero(st.Released)),
		RevokedTokens:         new(uint256.Int).Set(orZero(st.RevokedTokens)),
		Revoked:               st.Revoked,
	}
}

// Mismatch 链上值与本地计算值不一致的字段
type Mismatch struct {
	Field    string `json:"field"`
	OnChain  string `json:"onChain"`
	Computed string `json:"computed"`
}

// Diff 比较两份报告
func Diff(onChain, computed Report) []Mismatch {
	var out []Mismatch
	cmp := func(field string, a, b *uint256.Int) {
		a, b = orZero(a), orZero(b)
		if !a.Eq(b) {
			out = append(out, Mismatch{Field: field, OnChain: a.Dec(), Computed: b.Dec()})
		}
	}

	if onChain.DaysSinceVestingStart != computed.DaysSinceVestingStart {
		out = append(out, Mismatch{
			Field:    "daysSinceVestingStart",
			OnChain:  uint256.NewInt(onChain.DaysSinceVestingStart).Dec(),
			Computed: uint256.NewInt(computed.DaysSinceVestingStart).Dec(),
		})
	}
	cmp("totalTokens", onChain.TotalTokens, computed.TotalTokens)
	cmp("vestedTokens", onChain.VestedTokens, computed.VestedTokens)
	cmp("releasableTokens", onChain.ReleasableTokens, computed.ReleasableTokens)
	cmp("lockedTokens", onChain.LockedTokens, computed.LockedTokens)
	cmp("releasedTokens", onChain.ReleasedTokens, computed.ReleasedTokens)
	cmp("revokedTokens", onChain.RevokedTokens, computed.RevokedTokens)
	if onChain.Revoked != computed.Revoked {
		out = append(out, Mismatch{Field: "revoked", OnChain: boolString(onChain.Revoked), Computed: boolString(computed.Revoked)})
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
