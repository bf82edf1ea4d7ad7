package logic

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blues/stream/internal/apperr"
	"github.com/blues/stream/internal/model"
	"github.com/blues/stream/internal/mutex"
	"github.com/blues/stream/internal/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	escrowHash1 = "0x00000000000000000000000000000000000000000000000000000000000e5c01"
	escrowHash2 = "0x00000000000000000000000000000000000000000000000000000000000e5c02"
)

func newClaimEnv(t *testing.T) *testEnv {
	env := newTestEnv(t)
	env.addUser(t, "alice", ptr(aliceAddress), ptr("+15550001"))
	env.addUser(t, "bob", ptr(bobAddress), nil)
	env.linkPlatform(t, "alice", model.PlatformTwitch, "alice_tv")
	env.linkPlatform(t, "alice", model.PlatformYoutube, "alice_yt")
	return env
}

func TestClaimEscrowPaysOut(t *testing.T) {
	env := newClaimEnv(t)
	env.addEscrow(t, escrowHash1, model.PlatformTwitch, "alice_tv", "5000")

	payout, err := env.escrow.ClaimEscrow(context.Background(), "alice", escrowHash1)
	require.NoError(t, err)

	assert.Equal(t, model.TxStatusSent, payout.TxStatus)
	assert.Equal(t, model.TxTypeDefault, payout.TxType)
	assert.Equal(t, "5000", payout.Value)
	assert.Equal(t, aliceAddress, payout.RecipientAddress)
	assert.Equal(t, hotWallet.Hex(), payout.SenderAddress)
	meta, ok := model.ParseClaimMetadata(payout.Metadata)
	require.True(t, ok)
	assert.Equal(t, escrowHash1, meta.EscrowTxHash)

	assert.Equal(t, model.TxStatusClaimed, env.status(t, escrowHash1))
	require.Len(t, env.token.sent, 1)
	assert.Equal(t, common.HexToAddress(aliceAddress), env.token.sent[0].To)
	assert.Equal(t, big.NewInt(5000), env.token.sent[0].Value)
}

func TestClaimEscrowRejections(t *testing.T) {
	ctx := context.Background()
	env := newClaimEnv(t)
	env.addEscrow(t, escrowHash1, model.PlatformTwitch, "someone_else", "5000")

	_, err := env.escrow.ClaimEscrow(ctx, "alice", "0xdeadbeef")
	requireCode(t, err, apperr.TxHashNotFound)

	_, err = env.escrow.ClaimEscrow(ctx, "alice", escrowHash1)
	requireCode(t, err, apperr.TransferFailed)
	assert.Equal(t, model.TxStatusUnclaimed, env.status(t, escrowHash1))

	env.addUser(t, "carol", nil, nil)
	_, err = env.escrow.ClaimEscrow(ctx, "carol", escrowHash1)
	requireCode(t, err, apperr.ToAddressMissing)

	assert.Zero(t, env.token.sentCount())
}

func TestClaimEscrowIsSingleUse(t *testing.T) {
	ctx := context.Background()
	env := newClaimEnv(t)
	env.addEscrow(t, escrowHash1, model.PlatformTwitch, "alice_tv", "5000")

	_, err := env.escrow.ClaimEscrow(ctx, "alice", escrowHash1)
	require.NoError(t, err)

	_, err = env.escrow.ClaimEscrow(ctx, "alice", escrowHash1)
	requireCode(t, err, apperr.TransferFailed)
	assert.Equal(t, 1, env.token.sentCount())
}

func TestClaimEscrowRollsBackFailedPayout(t *testing.T) {
	env := newClaimEnv(t)
	env.addEscrow(t, escrowHash1, model.PlatformTwitch, "alice_tv", "5000")
	env.token.revertTo[common.HexToAddress(aliceAddress)] = true

	_, err := env.escrow.ClaimEscrow(context.Background(), "alice", escrowHash1)
	requireCode(t, err, apperr.TransferFailed)

	assert.Equal(t, model.TxStatusUnclaimed, env.status(t, escrowHash1))
	// 托管记录 + 失败的付款记录
	assert.Equal(t, int64(2), env.countTxs(t))
}

func TestClaimEscrowWhileLocked(t *testing.T) {
	ctx := context.Background()
	env := newClaimEnv(t)
	env.addEscrow(t, escrowHash1, model.PlatformTwitch, "alice_tv", "5000")

	guard, err := env.locker.Acquire(ctx, claimLockKey("alice"), time.Minute)
	require.NoError(t, err)

	_, err = env.escrow.ClaimEscrow(ctx, "alice", escrowHash1)
	appErr := requireCode(t, err, apperr.Locked)
	assert.Equal(t, 409, appErr.Status)

	_, err = env.escrow.ClaimEscrowAll(ctx, "alice")
	requireCode(t, err, apperr.Locked)

	require.NoError(t, guard.Release(ctx))
	_, err = env.escrow.ClaimEscrow(ctx, "alice", escrowHash1)
	require.NoError(t, err)
}

func TestConcurrentClaimsPayOnce(t *testing.T) {
	env := newClaimEnv(t)
	env.addEscrow(t, escrowHash1, model.PlatformTwitch, "alice_tv", "5000")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	escrow := NewEscrowLogic(EscrowDeps{
		Txs:       env.txs,
		Users:     repository.NewUserRepository(env.db),
		Platforms: repository.NewPlatformRepository(env.db),
		Promo:     repository.NewPromoRepository(env.db),
		TxLogic:   env.txLogic,
		Locker:    mutex.NewRedisLocker(client, 5*time.Second),
		LockTTL:   20 * time.Second,
	})

	const workers = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := escrow.ClaimEscrow(context.Background(), "alice", escrowHash1); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, env.token.sentCount())
	assert.Equal(t, model.TxStatusClaimed, env.status(t, escrowHash1))
}

func TestClaimEscrowAll(t *testing.T) {
	ctx := context.Background()
	env := newClaimEnv(t)
	env.addEscrow(t, escrowHash1, model.PlatformTwitch, "alice_tv", "100")
	env.addEscrow(t, escrowHash2, model.PlatformYoutube, "alice_yt", "200")

	payouts, err := env.escrow.ClaimEscrowAll(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	assert.Equal(t, model.TxStatusClaimed, env.status(t, escrowHash1))
	assert.Equal(t, model.TxStatusClaimed, env.status(t, escrowHash2))

	payouts, err = env.escrow.ClaimEscrowAll(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, payouts)
}

func TestListTxsIncludesUnclaimedEscrow(t *testing.T) {
	ctx := context.Background()
	env := newClaimEnv(t)
	env.addEscrow(t, escrowHash1, model.PlatformTwitch, "alice_tv", "100")
	env.addEscrow(t, escrowHash2, model.PlatformTwitch, "someone_else", "100")

	_, err := env.txLogic.Transfer(ctx, TransferRequest{
		TxType:           model.TxTypeDefault,
		Value:            big.NewInt(7),
		SenderUserId:     ptr("bob"),
		SenderAddress:    bobAddress,
		RecipientUserId:  ptr("alice"),
		RecipientAddress: aliceAddress,
	})
	require.NoError(t, err)

	txs, err := env.escrow.ListTxs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	hashes := []string{txs[0].TxHash, txs[1].TxHash}
	assert.Contains(t, hashes, escrowHash1)
	assert.NotContains(t, hashes, escrowHash2)
	assert.Equal(t, "bob_name", txs[0].SenderUsername)
}

func TestGetTx(t *testing.T) {
	env := newClaimEnv(t)
	env.addEscrow(t, escrowHash1, model.PlatformTwitch, "alice_tv", "100")

	tx, err := env.escrow.GetTx(context.Background(), escrowHash1)
	require.NoError(t, err)
	assert.Equal(t, "100", tx.Value)

	_, err = env.escrow.GetTx(context.Background(), escrowHash2)
	appErr := requireCode(t, err, apperr.TxHashNotFound)
	assert.Equal(t, 404, appErr.Status)
}

const testSignature = "0x" +
	"1111111111111111111111111111111111111111111111111111111111111111" +
	"2222222222222222222222222222222222222222222222222222222222222222" +
	"1c"

func TestSend(t *testing.T) {
	ctx := context.Background()
	env := newClaimEnv(t)
	env.addUser(t, "carol", nil, nil)

	base := SendRequest{
		UserId:         "bob",
		SignedTransfer: testSignature,
		ToUserId:       "alice",
		Value:          "1000",
		Expiration:     "1900000000",
		Nonce:          "1",
	}

	tx, err := env.escrow.Send(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusSent, tx.TxStatus)
	assert.Equal(t, model.TxTypeDefault, tx.TxType)
	require.Len(t, env.token.sent, 1)
	assert.True(t, env.token.sent[0].Signed)
	assert.Equal(t, common.HexToAddress(bobAddress), env.token.sent[0].From)

	escrow := base
	escrow.ToUserId = model.EscrowUserId
	escrow.Nonce = "2"
	escrow.RecipientPlatformType = ptr("TWITCH")
	escrow.RecipientPlatformId = ptr("newcomer")
	tx, err = env.escrow.Send(ctx, escrow)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusUnclaimed, tx.TxStatus)
	assert.Equal(t, model.TxTypeEscrow, tx.TxType)
	assert.Equal(t, hotWallet.Hex(), tx.RecipientAddress)

	noPlatform := escrow
	noPlatform.RecipientPlatformType = nil
	_, err = env.escrow.Send(ctx, noPlatform)
	requireCode(t, err, apperr.BadRequest)

	sentBefore, rowsBefore := env.token.sentCount(), env.countTxs(t)
	for _, value := range []string{"12.5", "1e30", "2^256", "115792089237316195423570985008687907853269984665640564039457584007913129639936"} {
		badValue := base
		badValue.Value = value
		_, err = env.escrow.Send(ctx, badValue)
		requireCode(t, err, apperr.InvalidAmount)
	}
	assert.Equal(t, sentBefore, env.token.sentCount())
	assert.Equal(t, rowsBefore, env.countTxs(t))

	badNonce := base
	badNonce.Nonce = "1e9"
	_, err = env.escrow.Send(ctx, badNonce)
	requireCode(t, err, apperr.BadRequest)

	noSender := base
	noSender.UserId = "carol"
	_, err = env.escrow.Send(ctx, noSender)
	requireCode(t, err, apperr.FromAddressMissing)

	noRecipient := base
	noRecipient.ToUserId = "carol"
	_, err = env.escrow.Send(ctx, noRecipient)
	requireCode(t, err, apperr.ToAddressMissing)

	assert.Equal(t, 2, env.token.sentCount())
}

func TestRedeemPromo(t *testing.T) {
	ctx := context.Background()
	env := newClaimEnv(t)

	redeemed, err := env.escrow.PromoStatus(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, redeemed)

	tx, err := env.escrow.RedeemPromo(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TxTypePromoReferral, tx.TxType)
	assert.Equal(t, "500000000000000000000", tx.Value)
	assert.Equal(t, model.TxStatusSent, tx.TxStatus)

	redeemed, err = env.escrow.PromoStatus(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, redeemed)

	_, err = env.escrow.RedeemPromo(ctx, "alice")
	requireCode(t, err, apperr.TransferFailed)

	// 未验证手机
	_, err = env.escrow.RedeemPromo(ctx, "bob")
	requireCode(t, err, apperr.TransferFailed)
	assert.Equal(t, 1, env.token.sentCount())
}

func TestRedeemPromoFailureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	env := newClaimEnv(t)
	env.token.submitErr = assert.AnError

	_, err := env.escrow.RedeemPromo(ctx, "alice")
	requireCode(t, err, apperr.TransferFailed)

	redeemed, err := env.escrow.PromoStatus(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, redeemed)

	env.token.submitErr = nil
	_, err = env.escrow.RedeemPromo(ctx, "alice")
	require.NoError(t, err)
}
