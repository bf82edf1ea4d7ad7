package logic

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blues/stream/internal/apperr"
	"github.com/blues/stream/internal/database"
	"github.com/blues/stream/internal/model"
	"github.com/blues/stream/internal/mutex"
	"github.com/blues/stream/internal/repository"
	"github.com/blues/stream/internal/token"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	hotWallet    = common.HexToAddress("0x5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e5e")
	aliceAddress = common.HexToAddress("0x1111111111111111111111111111111111111111").Hex()
	bobAddress   = common.HexToAddress("0x2222222222222222222222222222222222222222").Hex()
)

type sentTransfer struct {
	Signed bool
	From   common.Address
	To     common.Address
	Value  *big.Int
}

// fakeToken 内存中的代币合约, 立即出块
type fakeToken struct {
	mu        sync.Mutex
	seq       int64
	sent      []sentTransfer
	receipts  map[common.Hash]*types.Receipt
	known     map[common.Hash]bool
	submitErr error
	revertTo  map[common.Address]bool
	neverMine bool
}

func newFakeToken() *fakeToken {
	return &fakeToken{
		receipts: make(map[common.Hash]*types.Receipt),
		known:    make(map[common.Hash]bool),
		revertTo: make(map[common.Address]bool),
	}
}

func (f *fakeToken) HotWallet() common.Address { return hotWallet }

func (f *fakeToken) submit(signed bool, from, to common.Address, value *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, sentTransfer{Signed: signed, From: from, To: to, Value: new(big.Int).Set(value)})
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	f.seq++
	hash := common.BigToHash(big.NewInt(f.seq))
	f.known[hash] = true
	if !f.neverMine {
		status := types.ReceiptStatusSuccessful
		if f.revertTo[to] {
			status = types.ReceiptStatusFailed
		}
		f.receipts[hash] = &types.Receipt{TxHash: hash, Status: status}
	}
	return hash, nil
}

func (f *fakeToken) Transfer(ctx context.Context, from, to common.Address, value *big.Int) (common.Hash, error) {
	return f.submit(false, from, to, value)
}

func (f *fakeToken) SignedTransfer(ctx context.Context, from, to common.Address, value, expiration, nonce *big.Int, sig token.Signature) (common.Hash, error) {
	return f.submit(true, from, to, value)
}

func (f *fakeToken) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeToken) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[hash] {
		return nil, false, ethereum.NotFound
	}
	_, mined := f.receipts[hash]
	return types.NewTx(&types.LegacyTx{}), !mined, nil
}

func (f *fakeToken) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for {
		if r, err := f.Receipt(ctx, hash); err == nil {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (f *fakeToken) setReceipt(hash string, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := common.HexToHash(hash)
	f.receipts[h] = &types.Receipt{TxHash: h, Status: status}
}

// drop 模拟交易被节点丢弃
func (f *fakeToken) drop(hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.known, common.HexToHash(hash))
}

func (f *fakeToken) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// recordingPublisher 记录推送的账本事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.TxStatus
}

func (p *recordingPublisher) PublishTx(ctx context.Context, tx *model.TxModel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, tx.TxStatus)
	return nil
}

func (p *recordingPublisher) Close() {}

type testEnv struct {
	db        *gorm.DB
	txs       *repository.TxRepository
	token     *fakeToken
	publisher *recordingPublisher
	locker    *mutex.RedisLocker
	mr        *miniredis.Miniredis
	txLogic   *TxLogic
	escrow    *EscrowLogic
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		db:        db,
		txs:       repository.NewTxRepository(db),
		token:     newFakeToken(),
		publisher: &recordingPublisher{},
		locker:    mutex.NewRedisLocker(client, 0),
		mr:        mr,
	}
	env.txLogic = NewTxLogic(env.txs, env.token, env.publisher, time.Second)
	env.escrow = NewEscrowLogic(EscrowDeps{
		Txs:        env.txs,
		Users:      repository.NewUserRepository(db),
		Platforms:  repository.NewPlatformRepository(db),
		Promo:      repository.NewPromoRepository(db),
		TxLogic:    env.txLogic,
		Locker:     env.locker,
		LockTTL:    20 * time.Second,
		PromoValue: mustTwei(t, "500"),
	})
	return env
}

func mustTwei(t *testing.T, str string) *big.Int {
	t.Helper()
	v, err := token.ParseTwei(str + "000000000000000000")
	require.NoError(t, err)
	return v
}

func ptr(s string) *string { return &s }

func (e *testEnv) addUser(t *testing.T, id string, address, phone *string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.UserModel{Id: id, Username: ptr(id + "_name"), Address: address, Phone: phone}).Error)
}

func (e *testEnv) linkPlatform(t *testing.T, userId string, platformType model.PlatformType, platformId string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.PlatformModel{UserId: userId, PlatformType: platformType, PlatformId: platformId}).Error)
}

func (e *testEnv) addEscrow(t *testing.T, hash string, platformType model.PlatformType, platformId, value string) {
	t.Helper()
	require.NoError(t, e.txs.AddTx(context.Background(), &model.TxModel{
		TxHash:                hash,
		TxStatus:              model.TxStatusUnclaimed,
		TxType:                model.TxTypeEscrow,
		Value:                 value,
		SenderUserId:          ptr("bob"),
		SenderAddress:         bobAddress,
		RecipientUserId:       ptr(model.EscrowUserId),
		RecipientAddress:      hotWallet.Hex(),
		RecipientPlatformType: ptr(string(platformType)),
		RecipientPlatformId:   ptr(platformId),
		Message:               ptr("gg"),
	}))
}

func (e *testEnv) status(t *testing.T, hash string) model.TxStatus {
	t.Helper()
	tx, err := e.txs.FindTxByHash(context.Background(), hash)
	require.NoError(t, err)
	return tx.TxStatus
}

func (e *testEnv) countTxs(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.TxModel{}).Count(&n).Error)
	return n
}

func requireCode(t *testing.T, err error, code apperr.Code) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr), "expected *apperr.Error, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code)
	return appErr
}
