package logic

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/blues/stream/internal/apperr"
	"github.com/blues/stream/internal/logger"
	"github.com/blues/stream/internal/metrics"
	"github.com/blues/stream/internal/model"
	"github.com/blues/stream/internal/mq"
	"github.com/blues/stream/internal/repository"
	"github.com/blues/stream/internal/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// TokenClient 代币合约操作, *chain.TokenContract 满足
type TokenClient interface {
	HotWallet() common.Address
	Transfer(ctx context.Context, from, to common.Address, value *big.Int) (common.Hash, error)
	SignedTransfer(ctx context.Context, from, to common.Address, value, expiration, nonce *big.Int, sig token.Signature) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// TransferRequest 一次转账的账本字段
type TransferRequest struct {
	TxType                model.TxType
	Value                 *big.Int // twei
	SenderUserId          *string
	SenderAddress         string
	RecipientUserId       *string
	RecipientAddress      string
	RecipientPlatformType *string
	RecipientPlatformId   *string
	Message               *string
	Metadata              *string
}

// SignedTransferRequest 代发签名转账
type SignedTransferRequest struct {
	TransferRequest
	Signature  string
	Expiration *big.Int
	Nonce      *big.Int
}

func (r TransferRequest) validate() error {
	if !r.TxType.Valid() {
		return apperr.Wrap(apperr.BadRequest, fmt.Errorf("unknown tx type %q", r.TxType))
	}
	if r.Value == nil || r.Value.Sign() <= 0 {
		return apperr.New(apperr.InvalidAmount)
	}
	if !token.ValidAddress(r.SenderAddress) {
		return apperr.New(apperr.FromAddressMissing)
	}
	if !token.ValidAddress(r.RecipientAddress) {
		return apperr.New(apperr.ToAddressMissing)
	}
	return nil
}

func (r TransferRequest) record() *model.TxModel {
	return &model.TxModel{
		TxType:                r.TxType,
		Value:                 r.Value.String(),
		SenderUserId:          r.SenderUserId,
		SenderAddress:         common.HexToAddress(r.SenderAddress).Hex(),
		RecipientUserId:       r.RecipientUserId,
		RecipientAddress:      common.HexToAddress(r.RecipientAddress).Hex(),
		RecipientPlatformType: r.RecipientPlatformType,
		RecipientPlatformId:   r.RecipientPlatformId,
		Message:               r.Message,
		Metadata:              r.Metadata,
	}
}

// TxLogic 代币转账执行器, 每次调用恰好产生一条账本记录
type TxLogic struct {
	txs            *repository.TxRepository
	token          TokenClient
	publisher      mq.Publisher
	sentinel       model.Sentinel
	confirmTimeout time.Duration
}

// NewTxLogic 创建转账执行器
func NewTxLogic(txs *repository.TxRepository, token TokenClient, publisher mq.Publisher, confirmTimeout time.Duration) *TxLogic {
	return &TxLogic{
		txs:            txs,
		token:          token,
		publisher:      publisher,
		sentinel:       model.NewSentinel(token.HotWallet().Hex()),
		confirmTimeout: confirmTimeout,
	}
}

// Sentinel 托管哨兵
func (l *TxLogic) Sentinel() model.Sentinel {
	return l.sentinel
}

// Transfer 热钱包直接转账
func (l *TxLogic) Transfer(ctx context.Context, req TransferRequest) (*model.TxModel, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	return l.execute(ctx, req, func(ctx context.Context) (common.Hash, error) {
		return l.token.Transfer(ctx,
			common.HexToAddress(req.SenderAddress),
			common.HexToAddress(req.RecipientAddress),
			req.Value)
	})
}

// SignedTransfer 代发用户离线签名的转账, 过期或重复 nonce 由合约拒绝
func (l *TxLogic) SignedTransfer(ctx context.Context, req SignedTransferRequest) (*model.TxModel, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	return l.execute(ctx, req.TransferRequest, func(ctx context.Context) (common.Hash, error) {
		sig, err := token.SplitSignature(req.Signature)
		if err != nil {
			return common.Hash{}, err
		}
		if req.Expiration == nil || req.Nonce == nil {
			return common.Hash{}, fmt.Errorf("expiration and nonce are required")
		}
		return l.token.SignedTransfer(ctx,
			common.HexToAddress(req.SenderAddress),
			common.HexToAddress(req.RecipientAddress),
			req.Value, req.Expiration, req.Nonce, sig)
	})
}

func (l *TxLogic) execute(ctx context.Context, req TransferRequest, submit func(context.Context) (common.Hash, error)) (*model.TxModel, error) {
	record := req.record()

	hash, err := submit(ctx)
	// 提交之后的写入不能随请求取消
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		logger.Error("%s transfer of %s twei from %s to %s failed before a hash was obtained: %v",
			req.TxType, record.Value, record.SenderAddress, record.RecipientAddress, err)
		record.TxHash = uuid.NewString()
		record.TxStatus = model.TxStatusFailed
		if err := l.txs.AddTx(ctx, record); err != nil {
			return nil, err
		}
		l.emit(ctx, record)
		return record, nil
	}

	record.TxHash = hash.Hex()
	record.TxStatus = model.TxStatusPending
	persisted := true
	if err := l.txs.AddTx(ctx, record); err != nil {
		// 终态写入使用 upsert, 仍会补上这条记录
		logger.Error("Failed to persist pending tx %s: %v", record.TxHash, err)
		persisted = false
	} else {
		l.emit(ctx, record)
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()

	receipt, err := l.token.WaitMined(waitCtx, hash)
	if err != nil {
		logger.Warn("Tx %s not confirmed within %s, left PENDING for reconciliation: %v", record.TxHash, l.confirmTimeout, err)
		if !persisted {
			// 对账只能看到已落库的 PENDING 记录
			return l.finish(ctx, record, model.TxStatusPending)
		}
		return record, nil
	}
	return l.Settle(ctx, record, receipt)
}

// Settle 按回执写入终态: 回执失败为 FAILED, 否则按类型与接收方决定
func (l *TxLogic) Settle(ctx context.Context, record *model.TxModel, receipt *types.Receipt) (*model.TxModel, error) {
	status := model.TxStatusFailed
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = model.ResolvedStatus(record.TxType, record.RecipientAddress, l.sentinel.Address)
	}
	return l.finish(ctx, record, status)
}

func (l *TxLogic) finish(ctx context.Context, record *model.TxModel, status model.TxStatus) (*model.TxModel, error) {
	record.TxStatus = status
	if err := l.txs.UpsertTx(ctx, record); err != nil {
		return nil, err
	}
	logger.Info("Tx %s (%s) is now %s", record.TxHash, record.TxType, status)
	l.emit(ctx, record)
	return record, nil
}

// emit 记录指标并推送账本事件, 推送失败不影响账本
func (l *TxLogic) emit(ctx context.Context, record *model.TxModel) {
	metrics.ObserveTransfer(string(record.TxType), string(record.TxStatus))
	if err := l.publisher.PublishTx(ctx, record); err != nil {
		logger.Warn("Failed to publish tx %s event: %v", record.TxHash, err)
	}
}

// Publish 推送非转账引起的状态变化, 如托管领取
func (l *TxLogic) Publish(ctx context.Context, record *model.TxModel) {
	l.emit(ctx, record)
}
