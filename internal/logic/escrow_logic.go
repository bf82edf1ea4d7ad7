package logic

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/blues/stream/internal/apperr"
	"github.com/blues/stream/internal/logger"
	"github.com/blues/stream/internal/metrics"
	"github.com/blues/stream/internal/model"
	"github.com/blues/stream/internal/mutex"
	"github.com/blues/stream/internal/repository"
	"github.com/blues/stream/internal/token"
)

// claimLockKey 领取与全部领取共用同一把用户锁
func claimLockKey(userId string) string {
	return "claimEscrow/" + userId
}

// EscrowLogic 托管领取、发送与推广奖励
type EscrowLogic struct {
	txs        *repository.TxRepository
	users      *repository.UserRepository
	platforms  *repository.PlatformRepository
	promo      *repository.PromoRepository
	txLogic    *TxLogic
	locker     mutex.Locker
	lockTTL    time.Duration
	promoValue *big.Int
}

// EscrowDeps EscrowLogic 的依赖
type EscrowDeps struct {
	Txs        *repository.TxRepository
	Users      *repository.UserRepository
	Platforms  *repository.PlatformRepository
	Promo      *repository.PromoRepository
	TxLogic    *TxLogic
	Locker     mutex.Locker
	LockTTL    time.Duration
	PromoValue *big.Int // twei
}

// NewEscrowLogic 创建托管业务逻辑
func NewEscrowLogic(deps EscrowDeps) *EscrowLogic {
	return &EscrowLogic{
		txs:        deps.Txs,
		users:      deps.Users,
		platforms:  deps.Platforms,
		promo:      deps.Promo,
		txLogic:    deps.TxLogic,
		locker:     deps.Locker,
		lockTTL:    deps.LockTTL,
		promoValue: deps.PromoValue,
	}
}

func (e *EscrowLogic) lock(ctx context.Context, userId string) (*mutex.Guard, error) {
	guard, err := e.locker.Acquire(ctx, claimLockKey(userId), e.lockTTL)
	if errors.Is(err, mutex.ErrLocked) {
		logger.Warn("Claim lock for user %s is busy", userId)
		metrics.ObserveEscrowClaim("locked")
		return nil, apperr.Conflict(apperr.Locked, err)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}
	return guard, nil
}

func release(guard *mutex.Guard) {
	if err := guard.Release(context.Background()); err != nil {
		logger.Warn("Failed to release lock %s: %v", guard.Key(), err)
	}
}

// claimant 领取人及其平台绑定
type claimant struct {
	user      *model.UserModel
	platforms []model.PlatformModel
}

func (e *EscrowLogic) loadClaimant(ctx context.Context, userId string) (*claimant, error) {
	user, err := e.users.FindUser(ctx, userId)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperr.New(apperr.ToAddressMissing)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}
	if !user.HasAddress() || !token.ValidAddress(*user.Address) {
		return nil, apperr.New(apperr.ToAddressMissing)
	}

	platforms, err := e.platforms.FindPlatformsByUserId(ctx, userId)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}
	return &claimant{user: user, platforms: platforms}, nil
}

func (c *claimant) owns(tx *model.TxModel) bool {
	for _, p := range c.platforms {
		if p.Owns(tx) {
			return true
		}
	}
	return false
}

// ClaimEscrow 领取一笔发往自己平台身份的托管转账
func (e *EscrowLogic) ClaimEscrow(ctx context.Context, userId, txHash string) (*model.TxModel, error) {
	guard, err := e.lock(ctx, userId)
	if err != nil {
		return nil, err
	}
	defer release(guard)

	tx, err := e.txs.FindTxByHash(ctx, txHash)
	if errors.Is(err, repository.ErrTxNotFound) {
		return nil, apperr.New(apperr.TxHashNotFound)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}

	c, err := e.loadClaimant(ctx, userId)
	if err != nil {
		return nil, err
	}
	return e.claim(ctx, guard, c, tx)
}

// ClaimEscrowAll 逐笔领取全部托管转账, 单笔失败不影响其余; 有失败时返回第一个错误
func (e *EscrowLogic) ClaimEscrowAll(ctx context.Context, userId string) ([]*model.TxModel, error) {
	guard, err := e.lock(ctx, userId)
	if err != nil {
		return nil, err
	}
	defer release(guard)

	c, err := e.loadClaimant(ctx, userId)
	if err != nil {
		return nil, err
	}

	var (
		payouts  []*model.TxModel
		firstErr error
	)
	for _, p := range c.platforms {
		unclaimed, err := e.txs.FindTxByPlatform(ctx, model.TxStatusUnclaimed, model.TxTypeEscrow, p.PlatformType, p.PlatformId)
		if err != nil {
			if firstErr == nil {
				firstErr = apperr.Wrap(apperr.TransferFailed, err)
			}
			continue
		}
		for i := range unclaimed {
			payout, err := e.claim(ctx, guard, c, &unclaimed[i])
			if err != nil {
				logger.Warn("Claim of escrow tx %s by user %s failed: %v", unclaimed[i].TxHash, userId, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			payouts = append(payouts, payout)
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return payouts, nil
}

// claim 先把托管记录 UNCLAIMED->CLAIMED, 再从热钱包付款; 付款失败则回滚
func (e *EscrowLogic) claim(ctx context.Context, guard *mutex.Guard, c *claimant, tx *model.TxModel) (*model.TxModel, error) {
	if !c.owns(tx) || tx.TxType != model.TxTypeEscrow || tx.TxStatus != model.TxStatusUnclaimed {
		metrics.ObserveEscrowClaim("rejected")
		return nil, apperr.New(apperr.TransferFailed)
	}
	value, err := token.ParseTwei(tx.Value)
	if err != nil {
		metrics.ObserveEscrowClaim("rejected")
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}

	moved, err := e.txs.CompareAndSetStatus(ctx, tx.TxHash, model.TxStatusUnclaimed, model.TxStatusClaimed)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}
	if !moved {
		metrics.ObserveEscrowClaim("rejected")
		return nil, apperr.New(apperr.TransferFailed)
	}
	if guard.Lost() {
		logger.Warn("Lock %s was lost before paying out escrow tx %s", guard.Key(), tx.TxHash)
	}

	payout, err := e.txLogic.Transfer(ctx, TransferRequest{
		TxType:                model.TxTypeDefault,
		Value:                 value,
		SenderAddress:         e.txLogic.Sentinel().Address,
		RecipientUserId:       &c.user.Id,
		RecipientAddress:      *c.user.Address,
		RecipientPlatformType: tx.RecipientPlatformType,
		RecipientPlatformId:   tx.RecipientPlatformId,
		Message:               tx.Message,
		Metadata:              model.ClaimMetadata{EscrowTxHash: tx.TxHash}.Encode(),
	})
	if err != nil || payout.TxStatus == model.TxStatusFailed {
		e.rollback(context.WithoutCancel(ctx), tx)
		metrics.ObserveEscrowClaim("failed")
		if err == nil {
			err = fmt.Errorf("payout %s failed", payout.TxHash)
		}
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}

	tx.TxStatus = model.TxStatusClaimed
	e.txLogic.Publish(ctx, tx)
	metrics.ObserveEscrowClaim("claimed")
	logger.Info("User %s claimed escrow tx %s with payout %s", c.user.Id, tx.TxHash, payout.TxHash)
	return payout, nil
}

func (e *EscrowLogic) rollback(ctx context.Context, tx *model.TxModel) {
	moved, err := e.txs.CompareAndSetStatus(ctx, tx.TxHash, model.TxStatusClaimed, model.TxStatusUnclaimed)
	if err != nil {
		logger.Error("Failed to roll escrow tx %s back to UNCLAIMED: %v", tx.TxHash, err)
		return
	}
	if moved {
		logger.Info("Escrow tx %s rolled back to UNCLAIMED", tx.TxHash)
	}
}

// ListTxs 用户自己的记录, 加上发往其平台身份的未领取托管记录
func (e *EscrowLogic) ListTxs(ctx context.Context, userId string) ([]model.TxResponse, error) {
	own, err := e.txs.FindTxByUserWithUsernames(ctx, userId)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}
	platforms, err := e.platforms.FindPlatformsByUserId(ctx, userId)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}

	seen := make(map[string]bool, len(own))
	out := make([]model.TxResponse, 0, len(own))
	for _, tx := range own {
		seen[tx.TxHash] = true
		out = append(out, model.Serialize(tx))
	}
	for _, p := range platforms {
		unclaimed, err := e.txs.FindTxByPlatform(ctx, model.TxStatusUnclaimed, model.TxTypeEscrow, p.PlatformType, p.PlatformId)
		if err != nil {
			return nil, apperr.Wrap(apperr.TransferFailed, err)
		}
		for _, tx := range unclaimed {
			if seen[tx.TxHash] {
				continue
			}
			seen[tx.TxHash] = true
			out = append(out, model.Serialize(model.TxWithUsernames{TxModel: tx}))
		}
	}
	return out, nil
}

// GetTx 按哈希查询
func (e *EscrowLogic) GetTx(ctx context.Context, txHash string) (*model.TxModel, error) {
	tx, err := e.txs.FindTxByHash(ctx, txHash)
	if errors.Is(err, repository.ErrTxNotFound) {
		return nil, apperr.NotFound(apperr.TxHashNotFound)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}
	return tx, nil
}

// SendRequest 用户发起的签名转账
type SendRequest struct {
	UserId                string
	SignedTransfer        string
	ToUserId              string
	Value                 string // twei
	Expiration            string
	Nonce                 string
	Message               *string
	RecipientPlatformType *string
	RecipientPlatformId   *string
}

// Send 代发签名转账; 接收方为哨兵时作为托管转账, 必须指明接收平台身份
func (e *EscrowLogic) Send(ctx context.Context, req SendRequest) (*model.TxModel, error) {
	value, err := token.ParseTwei(req.Value)
	if err != nil {
		return nil, apperr.New(apperr.InvalidAmount)
	}
	expiration, err := token.ParseUint(req.Expiration)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, err)
	}
	nonce, err := token.ParseUint(req.Nonce)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, err)
	}

	sender, err := e.users.FindUser(ctx, req.UserId)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}
	if sender == nil || !sender.HasAddress() {
		return nil, apperr.New(apperr.FromAddressMissing)
	}

	txType := model.TxTypeDefault
	var toAddress string
	if model.IsSentinel(req.ToUserId) {
		txType = model.TxTypeEscrow
		toAddress = e.txLogic.Sentinel().Address
		if req.RecipientPlatformType == nil || req.RecipientPlatformId == nil ||
			!model.PlatformType(*req.RecipientPlatformType).Valid() {
			return nil, apperr.Wrap(apperr.BadRequest, errors.New("escrow transfers must name the recipient platform"))
		}
	} else {
		recipient, err := e.users.FindUser(ctx, req.ToUserId)
		if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.Wrap(apperr.TransferFailed, err)
		}
		if recipient == nil || !recipient.HasAddress() {
			return nil, apperr.New(apperr.ToAddressMissing)
		}
		toAddress = *recipient.Address
	}

	toUserId := req.ToUserId
	return e.txLogic.SignedTransfer(ctx, SignedTransferRequest{
		TransferRequest: TransferRequest{
			TxType:                txType,
			Value:                 value,
			SenderUserId:          &sender.Id,
			SenderAddress:         *sender.Address,
			RecipientUserId:       &toUserId,
			RecipientAddress:      toAddress,
			RecipientPlatformType: req.RecipientPlatformType,
			RecipientPlatformId:   req.RecipientPlatformId,
			Message:               req.Message,
		},
		Signature:  req.SignedTransfer,
		Expiration: expiration,
		Nonce:      nonce,
	})
}

// PromoStatus 用户是否已领取推广奖励
func (e *EscrowLogic) PromoStatus(ctx context.Context, userId string) (bool, error) {
	redeemed, err := e.promo.FindUserPromo(ctx, userId)
	if err != nil {
		return false, apperr.Wrap(apperr.TransferFailed, err)
	}
	return redeemed, nil
}

// RedeemPromo 每个用户一次, 需已验证手机并绑定钱包
func (e *EscrowLogic) RedeemPromo(ctx context.Context, userId string) (*model.TxModel, error) {
	user, err := e.users.FindUser(ctx, userId)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}
	if user.Phone == nil || *user.Phone == "" || !user.HasAddress() {
		return nil, apperr.New(apperr.TransferFailed)
	}

	// 先占位黑名单, 并发请求只有一个能通过
	added, err := e.promo.AddUserPromoBlacklist(ctx, userId)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}
	if !added {
		return nil, apperr.New(apperr.TransferFailed)
	}

	sentinel := e.txLogic.Sentinel()
	tx, err := e.txLogic.Transfer(ctx, TransferRequest{
		TxType:           model.TxTypePromoReferral,
		Value:            e.promoValue,
		SenderAddress:    sentinel.Address,
		RecipientUserId:  &user.Id,
		RecipientAddress: *user.Address,
	})
	if err != nil || tx.TxStatus == model.TxStatusFailed {
		if rmErr := e.promo.RemoveUserPromoBlacklist(context.WithoutCancel(ctx), userId); rmErr != nil {
			logger.Error("Failed to remove user %s from promo blacklist: %v", userId, rmErr)
		}
		if err == nil {
			err = fmt.Errorf("promo transfer %s failed", tx.TxHash)
		}
		return nil, apperr.Wrap(apperr.TransferFailed, err)
	}
	return tx, nil
}
