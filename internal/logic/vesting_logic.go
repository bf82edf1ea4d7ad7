package logic

import (
	"context"
	"errors"

	"github.com/blues/stream/internal/apperr"
	"github.com/blues/stream/internal/chain"
	"github.com/blues/stream/internal/logger"
	"github.com/blues/stream/internal/vesting"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// VestingReader 读取锁仓合约快照, *chain.Manager 满足
type VestingReader interface {
	VestingSnapshot(ctx context.Context, address common.Address) (*chain.VestingSnapshot, error)
}

// VestingReportView 访问器取值, 金额为十进制字符串
type VestingReportView struct {
	DaysSinceVestingStart uint64 `json:"daysSinceVestingStart"`
	TotalTokens           string `json:"totalTokens"`
	VestedTokens          string `json:"vestedTokens"`
	ReleasableTokens      string `json:"releasableTokens"`
	LockedTokens          string `json:"lockedTokens"`
	ReleasedTokens        string `json:"releasedTokens"`
	RevokedTokens         string `json:"revokedTokens"`
	Revoked               bool   `json:"revoked"`
}

// VestingAudit 链上取值与本地重算的对比结果
type VestingAudit struct {
	Address       string             `json:"address"`
	BlockNumber   uint64             `json:"blockNumber"`
	BlockTime     uint64             `json:"blockTime"`
	Beneficiary   string             `json:"beneficiary"`
	VestingStart  uint64             `json:"vestingStart"`
	VestingDays   uint64             `json:"vestingDays"`
	CliffDays     uint64             `json:"cliffDays"`
	Revocable     bool               `json:"revocable"`
	ScheduleError string             `json:"scheduleError,omitempty"`
	OnChain       VestingReportView  `json:"onChain"`
	Computed      VestingReportView  `json:"computed"`
	Mismatches    []vesting.Mismatch `json:"mismatches"`
	Consistent    bool               `json:"consistent"`
}

// VestingLogic 锁仓合约核对
type VestingLogic struct {
	reader VestingReader
}

func NewVestingLogic(reader VestingReader) *VestingLogic {
	return &VestingLogic{reader: reader}
}

// Audit 在同一区块读取合约访问器, 用本地实现重算并列出不一致的字段
func (v *VestingLogic) Audit(ctx context.Context, address string) (*VestingAudit, error) {
	if !common.IsHexAddress(address) {
		return nil, apperr.Wrap(apperr.BadRequest, errors.New("invalid vesting contract address"))
	}

	snap, err := v.reader.VestingSnapshot(ctx, common.HexToAddress(address))
	if err != nil {
		logger.Error("Failed to read vesting contract %s: %v", address, err)
		return nil, apperr.Unavailable(apperr.ChainUnavailable, err)
	}

	computed := snap.Schedule.Compute(snap.State, snap.BlockTime)
	mismatches := vesting.Diff(snap.Report, computed)
	if mismatches == nil {
		mismatches = []vesting.Mismatch{}
	}

	audit := &VestingAudit{
		Address:      snap.Address.Hex(),
		BlockNumber:  snap.BlockNumber,
		BlockTime:    snap.BlockTime,
		Beneficiary:  snap.Schedule.Beneficiary.Hex(),
		VestingStart: snap.Schedule.VestingStart,
		VestingDays:  snap.Schedule.VestingDays,
		CliffDays:    snap.Schedule.CliffDays,
		Revocable:    snap.Schedule.Revocable,
		OnChain:      reportView(snap.Report),
		Computed:     reportView(computed),
		Mismatches:   mismatches,
		Consistent:   len(mismatches) == 0,
	}
	if err := snap.Schedule.Validate(); err != nil {
		audit.ScheduleError = err.Error()
		audit.Consistent = false
	}
	if !audit.Consistent {
		logger.Warn("Vesting contract %s diverges from the local model at block %d: %d mismatches",
			audit.Address, audit.BlockNumber, len(mismatches))
	}
	return audit, nil
}

func reportView(r vesting.Report) VestingReportView {
	return VestingReportView{
		DaysSinceVestingStart: r.DaysSinceVestingStart,
		TotalTokens:           dec(r.TotalTokens),
		VestedTokens:          dec(r.VestedTokens),
		ReleasableTokens:      dec(r.ReleasableTokens),
		LockedTokens:          dec(r.LockedTokens),
		ReleasedTokens:        dec(r.ReleasedTokens),
		RevokedTokens:         dec(r.RevokedTokens),
		Revoked:               r.Revoked,
	}
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
