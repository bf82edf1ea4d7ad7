package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/blues/stream/internal/logger"
	"github.com/blues/stream/internal/metrics"
	"github.com/blues/stream/internal/token"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrForeignSender 只能以热钱包身份签名
var ErrForeignSender = errors.New("chain: sender is not the hot wallet")

// DefaultPollInterval 回执轮询间隔
const DefaultPollInterval = 2 * time.Second

// TokenContract STR 代币合约, 所有交易由热钱包签名发出
type TokenContract struct {
	*Contract

	backend  Backend
	auth     *bind.TransactOpts
	gasLimit uint64
	gasPrice *big.Int

	// 同一热钱包的提交必须串行, 否则 nonce 会冲突
	sendMu       sync.Mutex
	pollInterval time.Duration
}

// NewTokenContract auth.From 即热钱包地址
func NewTokenContract(backend Backend, contract *Contract, auth *bind.TransactOpts, gasLimit uint64, gasPrice *big.Int) *TokenContract {
	return &TokenContract{
		Contract:     contract,
		backend:      backend,
		auth:         auth,
		gasLimit:     gasLimit,
		gasPrice:     gasPrice,
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval 修改回执轮询间隔
func (t *TokenContract) SetPollInterval(d time.Duration) {
	if d > 0 {
		t.pollInterval = d
	}
}

// HotWallet 热钱包地址
func (t *TokenContract) HotWallet() common.Address {
	return t.auth.From
}

func (t *TokenContract) transactOpts(ctx context.Context) *bind.TransactOpts {
	opts := *t.auth
	opts.Context = ctx
	opts.GasLimit = t.gasLimit
	if t.gasPrice != nil && t.gasPrice.Sign() > 0 {
		opts.GasPrice = new(big.Int).Set(t.gasPrice)
	}
	return &opts
}

func (t *TokenContract) transact(ctx context.Context, operation, method string, params ...interface{}) (hash common.Hash, err error) {
	started := time.Now()
	defer func() { metrics.ObserveChain(operation, err, started) }()

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	tx, err := t.bound.Transact(t.transactOpts(ctx), method, params...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s.%s: %w", t.name, method, err)
	}
	logger.Info("Submitted %s transaction %s (nonce %d)", method, tx.Hash().Hex(), tx.Nonce())
	return tx.Hash(), nil
}

// Transfer 热钱包直接转账
func (t *TokenContract) Transfer(ctx context.Context, from, to common.Address, value *big.Int) (common.Hash, error) {
	if from != t.HotWallet() {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrForeignSender, from.Hex())
	}
	return t.transact(ctx, "transfer", "transfer", to, value)
}

// SignedTransfer 代 from 提交其离线签名的转账, gas 由热钱包支付
func (t *TokenContract) SignedTransfer(ctx context.Context, from, to common.Address, value, expiration, nonce *big.Int, sig token.Signature) (common.Hash, error) {
	return t.transact(ctx, "signed_transfer", "signedTransfer", from, to, value, expiration, nonce, sig.V, sig.R, sig.S)
}

// Receipt 查询回执, 未上链时返回 ethereum.NotFound
func (t *TokenContract) Receipt(ctx context.Context, hash common.Hash) (receipt *types.Receipt, err error) {
	started := time.Now()
	defer func() {
		if !errors.Is(err, ethereum.NotFound) {
			metrics.ObserveChain("receipt", err, started)
		}
	}()
	return t.backend.TransactionReceipt(ctx, hash)
}

// TransactionByHash 查询节点是否知道该交易, isPending 表示仍在交易池中; 节点不认识时返回 ethereum.NotFound
func (t *TokenContract) TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error) {
	started := time.Now()
	defer func() {
		if !errors.Is(err, ethereum.NotFound) {
			metrics.ObserveChain("transaction", err, started)
		}
	}()
	return t.backend.TransactionByHash(ctx, hash)
}

// WaitMined 轮询直到交易上链或 ctx 结束
func (t *TokenContract) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.Receipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logger.Warn("Receipt lookup for %s failed, retrying: %v", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// BalanceOf 查询余额
func (t *TokenContract) BalanceOf(ctx context.Context, owner common.Address) (balance *big.Int, err error) {
	started := time.Now()
	defer func() { metrics.ObserveChain("balance_of", err, started) }()
	return t.callBig(&bind.CallOpts{Context: ctx}, "balanceOf", owner)
}

// IsSignedTransferNonceUsed 签名转账的 nonce 是否已使用
func (t *TokenContract) IsSignedTransferNonceUsed(ctx context.Context, signer common.Address, nonce *big.Int) (used bool, err error) {
	started := time.Now()
	defer func() { metrics.ObserveChain("nonce_used", err, started) }()
	return t.callBool(&bind.CallOpts{Context: ctx}, "isSignedTransferNonceUsed", signer, nonce)
}
