package logic

import (
	"context"
	"errors"
	"time"

	"github.com/blues/stream/internal/logger"
	"github.com/blues/stream/internal/metrics"
	"github.com/blues/stream/internal/model"
	"github.com/blues/stream/internal/repository"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const reconcileBatch = 200

// ReconcileReport 一次对账的结果
type ReconcileReport struct {
	Resolved  int // 回执成功
	Failed    int // 回执失败
	Abandoned int // 超过放弃时限且节点不认识该交易
	Waiting   int
	Errors    int
}

// ReconcileLogic 处理确认超时或进程中断后遗留的 PENDING 记录
type ReconcileLogic struct {
	txs        *repository.TxRepository
	txLogic    *TxLogic
	token      TokenClient
	pendingAge time.Duration
	abandonAge time.Duration
}

// NewReconcileLogic 创建对账逻辑
func NewReconcileLogic(txs *repository.TxRepository, txLogic *TxLogic, token TokenClient, pendingAge, abandonAge time.Duration) *ReconcileLogic {
	return &ReconcileLogic{
		txs:        txs,
		txLogic:    txLogic,
		token:      token,
		pendingAge: pendingAge,
		abandonAge: abandonAge,
	}
}

// Sweep 按哈希查询回执, 把早于 now-pendingAge 的 PENDING 记录推进到终态
func (r *ReconcileLogic) Sweep(ctx context.Context, now time.Time) (ReconcileReport, error) {
	var report ReconcileReport

	pending, err := r.txs.FindPendingBefore(ctx, now.Add(-r.pendingAge), reconcileBatch)
	if err != nil {
		return report, err
	}

	for i := range pending {
		rec := &pending[i]
		outcome := r.reconcile(ctx, rec, now)
		metrics.ObserveReconcile(outcome)
		switch outcome {
		case "resolved":
			report.Resolved++
		case "failed":
			report.Failed++
		case "abandoned":
			report.Abandoned++
		case "waiting":
			report.Waiting++
		default:
			report.Errors++
		}
	}

	if len(pending) > 0 {
		logger.Info("Reconciled %d pending txs: %d resolved, %d failed, %d abandoned, %d waiting, %d errors",
			len(pending), report.Resolved, report.Failed, report.Abandoned, report.Waiting, report.Errors)
	}
	return report, nil
}

func (r *ReconcileLogic) reconcile(ctx context.Context, rec *model.TxModel, now time.Time) string {
	if model.IsPlaceholderHash(rec.TxHash) {
		return r.abandon(ctx, rec)
	}

	hash := common.HexToHash(rec.TxHash)
	receipt, err := r.token.Receipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return r.unmined(ctx, rec, hash, now)
	}
	if err != nil {
		logger.Warn("Receipt lookup for pending tx %s failed: %v", rec.TxHash, err)
		return "error"
	}

	settled, err := r.txLogic.Settle(ctx, rec, receipt)
	if err != nil {
		logger.Error("Failed to settle tx %s: %v", rec.TxHash, err)
		return "error"
	}
	if settled.TxStatus == model.TxStatusFailed {
		// 回执失败是链上终局, 付款不会再执行
		r.reopenEscrow(ctx, settled)
		return "failed"
	}
	return "resolved"
}

// unmined 无回执: 节点仍知道该交易时继续等待, 节点不认识且超过放弃时限才标记 FAILED
func (r *ReconcileLogic) unmined(ctx context.Context, rec *model.TxModel, hash common.Hash, now time.Time) string {
	age := now.Sub(rec.Datetime)
	_, isPending, err := r.token.TransactionByHash(ctx, hash)
	switch {
	case err == nil:
		if age >= r.abandonAge {
			logger.Warn("Tx %s is still known to the node after %s (pending=%t), waiting", rec.TxHash, age.Round(time.Second), isPending)
		}
		return "waiting"
	case !errors.Is(err, ethereum.NotFound):
		logger.Warn("Transaction lookup for pending tx %s failed: %v", rec.TxHash, err)
		return "error"
	case age < r.abandonAge:
		return "waiting"
	}

	logger.Warn("Tx %s is unknown to the node after %s, marking FAILED", rec.TxHash, age.Round(time.Second))
	return r.abandon(ctx, rec)
}

// abandon 标记 FAILED; 对应托管保持 CLAIMED, 交易仍可能被其他节点打包, 需人工核对
func (r *ReconcileLogic) abandon(ctx context.Context, rec *model.TxModel) string {
	if _, err := r.txLogic.finish(ctx, rec, model.TxStatusFailed); err != nil {
		logger.Error("Failed to mark tx %s FAILED: %v", rec.TxHash, err)
		return "error"
	}
	if meta, ok := model.ParseClaimMetadata(rec.Metadata); ok {
		metrics.ObserveEscrowClaim("review")
		logger.Error("Escrow tx %s stays CLAIMED after its payout %s was abandoned, manual review required",
			meta.EscrowTxHash, rec.TxHash)
	}
	return "abandoned"
}

// reopenEscrow 回执失败的领取付款把对应托管记录恢复为 UNCLAIMED
func (r *ReconcileLogic) reopenEscrow(ctx context.Context, payout *model.TxModel) {
	meta, ok := model.ParseClaimMetadata(payout.Metadata)
	if !ok {
		return
	}
	moved, err := r.txs.CompareAndSetStatus(ctx, meta.EscrowTxHash, model.TxStatusClaimed, model.TxStatusUnclaimed)
	if err != nil {
		logger.Error("Failed to reopen escrow tx %s: %v", meta.EscrowTxHash, err)
		return
	}
	if moved {
		logger.Info("Escrow tx %s reopened after payout %s failed", meta.EscrowTxHash, payout.TxHash)
	}
}
