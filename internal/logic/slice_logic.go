package logic

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/blues/stream/internal/logger"
	"github.com/blues/stream/internal/metrics"
	"github.com/blues/stream/internal/model"
	"github.com/blues/stream/internal/mutex"
	"github.com/blues/stream/internal/repository"
	"github.com/panjf2000/ants/v2"
)

const (
	sliceWindow = 24 * time.Hour
	// 当天的锁在分发开始后持有到过期, 防止多副本或重启后重复分发
	sliceLockTTL = 20 * time.Hour
)

// ErrSlicesAlreadyRun 当天已由其他实例分发
var ErrSlicesAlreadyRun = errors.New("slices already distributed for this day")

// Slice 单个平台身份当天应得的份额
type Slice struct {
	UserId       string
	Address      *string
	PlatformType string
	PlatformId   string
	Count        int64
	Amount       *big.Int // twei
}

// ComputeSlices 按观看占比切分每日总量: count * supply / sum 向下取整, 余数留在哨兵.
// 未关联用户的分组计入总数但不分配; sum 为 0 时不分配
func ComputeSlices(groups []model.SliceGroup, supply *big.Int) []Slice {
	var sum int64
	for _, g := range groups {
		if g.Count > 0 {
			sum += g.Count
		}
	}
	if sum == 0 || supply == nil || supply.Sign() <= 0 {
		return nil
	}

	total := big.NewInt(sum)
	slices := make([]Slice, 0, len(groups))
	for _, g := range groups {
		if g.UserId == nil || *g.UserId == "" || g.Count <= 0 {
			continue
		}
		amount := new(big.Int).Mul(big.NewInt(g.Count), supply)
		amount.Quo(amount, total)
		if amount.Sign() == 0 {
			continue
		}
		slices = append(slices, Slice{
			UserId:       *g.UserId,
			Address:      g.Address,
			PlatformType: g.PlatformType,
			PlatformId:   g.PlatformId,
			Count:        g.Count,
			Amount:       amount,
		})
	}
	return slices
}

// SliceLogic 每日奖励分发
type SliceLogic struct {
	txs         *repository.TxRepository
	txLogic     *TxLogic
	locker      mutex.Locker
	dailySupply *big.Int
	poolSize    int
}

// NewSliceLogic dailySupply 单位为 twei
func NewSliceLogic(txs *repository.TxRepository, txLogic *TxLogic, locker mutex.Locker, dailySupply *big.Int, poolSize int) *SliceLogic {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &SliceLogic{
		txs:         txs,
		txLogic:     txLogic,
		locker:      locker,
		dailySupply: dailySupply,
		poolSize:    poolSize,
	}
}

// DistributeSlices 分发截至 now 的 24 小时奖励, 每个接收方独立转账, 单笔失败不影响其余
func (s *SliceLogic) DistributeSlices(ctx context.Context, now time.Time) (records []*model.TxModel, err error) {
	var succeeded, failed int
	defer func() { metrics.ObserveSliceRun(err, succeeded, failed) }()

	day := now.UTC().Format("2006-01-02")
	guard, err := s.locker.Acquire(ctx, "slices/"+day, sliceLockTTL)
	if errors.Is(err, mutex.ErrLocked) {
		return nil, fmt.Errorf("%w: %s", ErrSlicesAlreadyRun, day)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire slices lock: %w", err)
	}
	// 开始转账后锁持有到过期; 之前失败则释放, 当天可以重试
	distributing := false
	defer func() {
		if distributing || err == nil {
			guard.Abandon()
			return
		}
		release(guard)
	}()

	groups, err := s.txs.CalculateSlices(ctx, now.Add(-sliceWindow))
	if err != nil {
		return nil, err
	}
	slices := ComputeSlices(groups, s.dailySupply)
	if len(slices) == 0 {
		logger.Info("No attributable views in the 24h before %s, skipping slice distribution", now.UTC().Format(time.RFC3339))
		return nil, nil
	}

	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create slice worker pool: %w", err)
	}
	defer pool.Release()

	distributing = true
	sentinel := s.txLogic.Sentinel()
	results := make([]*model.TxModel, len(slices))
	var wg sync.WaitGroup
	for i := range slices {
		slice := slices[i]
		idx := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[idx] = s.transferSlice(ctx, sentinel, slice)
		})
		if submitErr != nil {
			wg.Done()
			logger.Error("Failed to schedule slice for user %s: %v", slice.UserId, submitErr)
		}
	}
	wg.Wait()

	for _, rec := range results {
		switch {
		case rec == nil:
			failed++
			continue
		case rec.TxStatus == model.TxStatusFailed:
			failed++
		default:
			succeeded++
		}
		records = append(records, rec)
	}
	logger.Info("Distributed %d slices for %s (%d failed)", len(records), day, failed)
	return records, nil
}

func (s *SliceLogic) transferSlice(ctx context.Context, sentinel model.Sentinel, slice Slice) *model.TxModel {
	recipient := sentinel.Address
	if slice.Address != nil && *slice.Address != "" {
		recipient = *slice.Address
	}
	userId := slice.UserId
	platformType := slice.PlatformType
	platformId := slice.PlatformId

	rec, err := s.txLogic.Transfer(ctx, TransferRequest{
		TxType:                model.TxTypePromoSlice,
		Value:                 slice.Amount,
		SenderAddress:         sentinel.Address,
		RecipientUserId:       &userId,
		RecipientAddress:      recipient,
		RecipientPlatformType: &platformType,
		RecipientPlatformId:   &platformId,
	})
	if err != nil {
		logger.Error("Slice transfer of %s twei to user %s failed: %v", slice.Amount, slice.UserId, err)
		return nil
	}
	return rec
}
