package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/blues/stream/internal/metrics"
	"github.com/blues/stream/internal/vesting"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// VestingSnapshot 同一区块上读取的锁仓合约参数、状态与访问器取值
type VestingSnapshot struct {
	Address     common.Address
	BlockNumber uint64
	BlockTime   uint64
	Schedule    vesting.Schedule
	State       vesting.State
	Report      vesting.Report
}

// VestingContract LinearDailyVesting 只读绑定
type VestingContract struct {
	*Contract
	backend Backend
	token   *TokenContract
}

// Snapshot 以最新区块为准读取全部访问器
func (v *VestingContract) Snapshot(ctx context.Context) (snap *VestingSnapshot, err error) {
	started := time.Now()
	defer func() { metrics.ObserveChain("vesting_snapshot", err, started) }()

	header, err := v.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	opts := &bind.CallOpts{Context: ctx, BlockNumber: header.Number}

	r := &reader{c: v.Contract, opts: opts}
	schedule := vesting.Schedule{
		Token:                           r.address("token"),
		Beneficiary:                     r.address("beneficiary"),
		VestingStart:                    r.uint64("vestingStart"),
		VestingDays:                     r.uint64("vestingDays"),
		CliffDays:                       r.uint64("cliffDays"),
		Revocable:                       r.bool("revocable"),
		Revoker:                         r.address("revoker"),
		RevokedTokensDestination:        r.address("revokedTokensDestination"),
		RevokedTokensDestinationChanger: r.address("revokedTokensDestinationChanger"),
	}
	report := vesting.Report{
		DaysSinceVestingStart: r.uint64("daysSinceVestingStart"),
		TotalTokens:           r.uint256("totalTokens"),
		VestedTokens:          r.uint256("vestedTokens"),
		ReleasableTokens:      r.uint256("releasableTokens"),
		LockedTokens:          r.uint256("lockedTokens"),
		// 合约里的拼写
		ReleasedTokens: r.uint256("relasedTokens"),
		RevokedTokens:  r.uint256("revokedTokens"),
		Revoked:        r.bool("revoked"),
	}
	if r.err != nil {
		return nil, r.err
	}

	balance, err := v.token.callBig(opts, "balanceOf", v.address)
	if err != nil {
		return nil, err
	}

	return &VestingSnapshot{
		Address:     v.address,
		BlockNumber: header.Number.Uint64(),
		BlockTime:   header.Time,
		Schedule:    schedule,
		State: vesting.State{
			Balance:       toUint256(balance),
			Released:      report.ReleasedTokens,
			RevokedTokens: report.RevokedTokens,
			Revoked:       report.Revoked,
		},
		Report: report,
	}, nil
}

// reader 连续读取访问器, 记录第一个错误
type reader struct {
	c    *Contract
	opts *bind.CallOpts
	err  error
}

func (r *reader) address(method string) common.Address {
	if r.err != nil {
		return common.Address{}
	}
	v, err := r.c.callAddress(r.opts, method)
	r.err = err
	return v
}

func (r *reader) bool(method string) bool {
	if r.err != nil {
		return false
	}
	v, err := r.c.callBool(r.opts, method)
	r.err = err
	return v
}

func (r *reader) uint256(method string) *uint256.Int {
	if r.err != nil {
		return new(uint256.Int)
	}
	v, err := r.c.callBig(r.opts, method)
	r.err = err
	return toUint256(v)
}

func (r *reader) uint64(method string) uint64 {
	n := r.uint256(method)
	if r.err == nil && !n.IsUint64() {
		r.err = fmt.Errorf("%s.%s: value %s overflows uint64", r.c.name, method, n.Dec())
	}
	return n.Uint64()
}

func toUint256(v *big.Int) *uint256.Int {
	if v == nil || v.Sign() < 0 {
		return new(uint256.Int)
	}
	n, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return n
}
