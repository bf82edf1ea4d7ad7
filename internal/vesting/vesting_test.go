package vesting

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	vestingAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	beneficiary   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	revoker       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	destination   = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	changer       = common.HexToAddress("0x00000000000000000000000000000000000000b4")
	otherAccount  = common.HexToAddress("0x00000000000000000000000000000000000000b5")
	vestingStart  = uint64(1_700_000_000)
	zeroAddress   = common.Address{}
	thousandToken = uint256.NewInt(1000)
)

func day(n uint64) uint64 {
	return vestingStart + n*SecondsPerDay
}

func newSchedule(vestingDays, cliffDays uint64, revocable bool) Schedule {
	return Schedule{
		Token:                           tokenAddr,
		Beneficiary:                     beneficiary,
		VestingStart:                    vestingStart,
		VestingDays:                     vestingDays,
		CliffDays:                       cliffDays,
		Revocable:                       revocable,
		Revoker:                         revoker,
		RevokedTokensDestination:        destination,
		RevokedTokensDestinationChanger: changer,
	}
}

func deployFunded(t *testing.T, vestingDays, cliffDays uint64, revocable bool, amount *uint256.Int) (*Contract, *MemoryLedger) {
	t.Helper()
	ledger := NewMemoryLedger()
	c, err := Deploy(vestingAddr, newSchedule(vestingDays, cliffDays, revocable), ledger)
	require.NoError(t, err)
	if amount != nil {
		ledger.Mint(vestingAddr, amount)
	}
	return c, ledger
}

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func TestScheduleValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Schedule)
		want   error
	}{
		{"valid", func(s *Schedule) {}, nil},
		{"zero token", func(s *Schedule) { s.Token = zeroAddress }, ErrZeroToken},
		{"zero beneficiary", func(s *Schedule) { s.Beneficiary = zeroAddress }, ErrZeroBeneficiary},
		{"zero days", func(s *Schedule) { s.VestingDays = 0; s.CliffDays = 0 }, ErrZeroVestingDays},
		{"cliff equal to period", func(s *Schedule) { s.VestingDays = 1; s.CliffDays = 1 }, nil},
		{"cliff shorter than period", func(s *Schedule) { s.VestingDays = 2; s.CliffDays = 1 }, nil},
		{"cliff longer than period", func(s *Schedule) { s.VestingDays = 1; s.CliffDays = 2 }, ErrCliffTooLong},
		{"zero revoker", func(s *Schedule) { s.Revoker = zeroAddress }, ErrZeroRevoker},
		{"zero destination", func(s *Schedule) { s.RevokedTokensDestination = zeroAddress }, ErrZeroDestination},
		{"zero changer", func(s *Schedule) { s.RevokedTokensDestinationChanger = zeroAddress }, ErrZeroChanger},
		{"non revocable accepts zero roles", func(s *Schedule) {
			s.Revocable = false
			s.Revoker = zeroAddress
			s.RevokedTokensDestination = zeroAddress
			s.RevokedTokensDestinationChanger = zeroAddress
		}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSchedule(1, 0, true)
			tc.mutate(&s)
			err := s.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestDaysSinceVestingStart(t *testing.T) {
	s := newSchedule(4, 0, true)
	assert.Equal(t, uint64(0), s.DaysSinceVestingStart(vestingStart-SecondsPerDay))
	assert.Equal(t, uint64(0), s.DaysSinceVestingStart(vestingStart))
	assert.Equal(t, uint64(0), s.DaysSinceVestingStart(day(1)-1))
	assert.Equal(t, uint64(1), s.DaysSinceVestingStart(day(1)))
	assert.Equal(t, uint64(10), s.DaysSinceVestingStart(day(10)+5))
}

func TestVestedLinearWithoutCliff(t *testing.T) {
	c, _ := deployFunded(t, 4, 0, true, thousandToken)

	want := []uint64{0, 250, 500, 750, 1000, 1000}
	for d, w := range want {
		assert.Equal(t, u(w), c.Report(day(uint64(d))).VestedTokens, "day %d", d)
	}
	// no change within a day
	assert.Equal(t, u(250), c.Report(day(2)-1).VestedTokens)
}

func TestVestedLinearWithCliff(t *testing.T) {
	c, _ := deployFunded(t, 5, 2, true, thousandToken)

	want := []uint64{0, 0, 400, 600, 800, 1000, 1000}
	for d, w := range want {
		assert.Equal(t, u(w), c.Report(day(uint64(d))).VestedTokens, "day %d", d)
	}
}

func TestCliffSuppressesAnyDeposit(t *testing.T) {
	s := newSchedule(10, 3, true)
	huge := new(uint256.Int).Lsh(u(1), 200)
	st := State{Balance: huge}
	for d := uint64(0); d < 3; d++ {
		assert.True(t, s.VestedTokens(st, day(d)+SecondsPerDay-1).IsZero(), "day %d", d)
	}
	assert.False(t, s.VestedTokens(st, day(3)).IsZero())
}

func TestVestedMonotonicAndCompleteAfterPeriod(t *testing.T) {
	s := newSchedule(7, 2, true)
	st := State{Balance: u(999_999_999_999), Released: u(1)}
	prev := new(uint256.Int)
	for ts := vestingStart - SecondsPerDay; ts < day(12); ts += SecondsPerDay / 6 {
		v := s.VestedTokens(st, ts)
		assert.False(t, v.Lt(prev), "vested decreased at %d", ts)
		prev = v
		if ts >= day(7) {
			assert.Equal(t, s.TotalTokens(st), v)
		}
	}
}

func TestVestedCountsMidPeriodDeposits(t *testing.T) {
	c, ledger := deployFunded(t, 4, 0, true, thousandToken)
	assert.Equal(t, u(250), c.Report(day(1)).VestedTokens)

	ledger.Mint(vestingAddr, thousandToken)
	r := c.Report(day(1))
	assert.Equal(t, u(2000), r.TotalTokens)
	assert.Equal(t, u(500), r.VestedTokens)
	assert.Equal(t, u(1500), r.LockedTokens)
}

func TestVestedUnaffectedByRelease(t *testing.T) {
	c, ledger := deployFunded(t, 4, 0, true, thousandToken)

	amount, err := c.Release(day(1))
	require.NoError(t, err)
	assert.Equal(t, u(250), amount)
	assert.Equal(t, u(250), ledger.BalanceOf(beneficiary))

	r := c.Report(day(2))
	assert.Equal(t, u(1000), r.TotalTokens)
	assert.Equal(t, u(500), r.VestedTokens)
	assert.Equal(t, u(250), r.ReleasableTokens)
	assert.Equal(t, u(500), r.LockedTokens)
}

func TestReleaseIdempotentWithinDay(t *testing.T) {
	c, _ := deployFunded(t, 4, 0, true, thousandToken)

	_, err := c.Release(day(1))
	require.NoError(t, err)
	_, err = c.Release(day(1) + 3600)
	assert.ErrorIs(t, err, ErrNothingToRelease)

	amount, err := c.Release(day(2))
	require.NoError(t, err)
	assert.Equal(t, u(250), amount)
}

func TestReleaseFailures(t *testing.T) {
	c, _ := deployFunded(t, 4, 0, true, thousandToken)
	_, err := c.Release(vestingStart)
	assert.ErrorIs(t, err, ErrNothingToRelease)

	withCliff, _ := deployFunded(t, 5, 2, true, thousandToken)
	_, err = withCliff.Release(day(1))
	assert.ErrorIs(t, err, ErrNothingToRelease)

	done, _ := deployFunded(t, 4, 0, true, thousandToken)
	_, err = done.Release(day(5))
	require.NoError(t, err)
	_, err = done.Release(day(9))
	assert.ErrorIs(t, err, ErrNothingToRelease)
}

func TestReleaseEmitsEvent(t *testing.T) {
	c, ledger := deployFunded(t, 5, 2, true, thousandToken)

	_, err := c.Release(day(2))
	require.NoError(t, err)
	_, err = c.Release(day(4))
	require.NoError(t, err)

	events := c.Events()
	require.Len(t, events, 2)
	assert.Equal(t, TokensReleased{Amount: u(400)}, events[0])
	assert.Equal(t, TokensReleased{Amount: u(400)}, events[1])
	assert.Equal(t, u(800), ledger.BalanceOf(beneficiary))
	assert.Equal(t, u(200), ledger.BalanceOf(vestingAddr))
}

func TestRevokeSplit(t *testing.T) {
	c, ledger := deployFunded(t, 5, 2, true, thousandToken)

	require.NoError(t, c.Revoke(revoker, day(2)))
	assert.Equal(t, u(400), ledger.BalanceOf(beneficiary))
	assert.Equal(t, u(600), ledger.BalanceOf(destination))
	assert.True(t, ledger.BalanceOf(vestingAddr).IsZero())

	events := c.Events()
	require.Len(t, events, 1)
	assert.Equal(t, Revoked{TotalTokens: u(1000), RevokedTokens: u(600), RevokedTokensDestination: destination}, events[0])

	r := c.Report(day(10))
	assert.True(t, r.Revoked)
	assert.Equal(t, u(1000), r.TotalTokens)
	assert.Equal(t, u(400), r.VestedTokens)
	assert.True(t, r.ReleasableTokens.IsZero())
	assert.True(t, r.LockedTokens.IsZero())
	assert.Equal(t, u(600), r.RevokedTokens)
}

func TestRevokeAfterRelease(t *testing.T) {
	c, ledger := deployFunded(t, 5, 2, true, thousandToken)

	_, err := c.Release(day(2))
	require.NoError(t, err)
	require.NoError(t, c.Revoke(revoker, day(3)))

	assert.Equal(t, u(600), ledger.BalanceOf(beneficiary))
	assert.Equal(t, u(400), ledger.BalanceOf(destination))
	events := c.Events()
	assert.Equal(t, Revoked{TotalTokens: u(1000), RevokedTokens: u(400), RevokedTokensDestination: destination}, events[len(events)-1])
}

func TestRevokeWithNothingVested(t *testing.T) {
	c, ledger := deployFunded(t, 5, 2, true, thousandToken)

	require.NoError(t, c.Revoke(revoker, day(1)))
	assert.True(t, ledger.BalanceOf(beneficiary).IsZero())
	assert.Equal(t, u(1000), ledger.BalanceOf(destination))
	assert.True(t, c.Report(day(1)).VestedTokens.IsZero())
}

func TestRevokeUsesChangedDestination(t *testing.T) {
	c, ledger := deployFunded(t, 5, 2, true, thousandToken)

	require.NoError(t, c.ChangeRevokedTokensDestination(changer, otherAccount))
	require.NoError(t, c.Revoke(revoker, day(2)))
	assert.Equal(t, u(600), ledger.BalanceOf(otherAccount))
	assert.True(t, ledger.BalanceOf(destination).IsZero())
}

func TestRevokeRejections(t *testing.T) {
	empty, _ := deployFunded(t, 5, 2, true, nil)
	assert.ErrorIs(t, empty.Revoke(revoker, day(1)), ErrNoTokens)

	c, _ := deployFunded(t, 5, 2, true, thousandToken)
	assert.ErrorIs(t, c.Revoke(otherAccount, day(1)), ErrNotRevoker)
	require.NoError(t, c.Revoke(revoker, day(1)))
	assert.ErrorIs(t, c.Revoke(revoker, day(1)), ErrRevoked)

	ended, _ := deployFunded(t, 5, 2, true, thousandToken)
	assert.ErrorIs(t, ended.Revoke(revoker, day(5)), ErrNothingLocked)

	fixed, _ := deployFunded(t, 5, 2, false, thousandToken)
	assert.ErrorIs(t, fixed.Revoke(revoker, day(1)), ErrNotRevocable)
}

func TestReleaseAfterRevoke(t *testing.T) {
	c, ledger := deployFunded(t, 4, 0, true, thousandToken)
	_, err := c.Release(day(1))
	require.NoError(t, err)

	require.NoError(t, c.Revoke(revoker, day(1)))
	_, err = c.Release(day(1))
	assert.ErrorIs(t, err, ErrRevoked)

	ledger.Mint(vestingAddr, thousandToken)
	_, err = c.Release(day(8))
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestChangeRevokedTokensDestination(t *testing.T) {
	c, _ := deployFunded(t, 5, 2, true, thousandToken)

	assert.ErrorIs(t, c.ChangeRevokedTokensDestination(otherAccount, otherAccount), ErrNotChanger)
	assert.ErrorIs(t, c.ChangeRevokedTokensDestination(changer, zeroAddress), ErrZeroAddress)
	assert.ErrorIs(t, c.ChangeRevokedTokensDestination(changer, destination), ErrSameAddress)

	require.NoError(t, c.ChangeRevokedTokensDestination(changer, otherAccount))
	assert.Equal(t, otherAccount, c.Schedule().RevokedTokensDestination)
	assert.Equal(t, RevokedTokensDestinationChanged{Previous: destination, Current: otherAccount}, c.Events()[0])

	require.NoError(t, c.Revoke(revoker, day(1)))
	assert.ErrorIs(t, c.ChangeRevokedTokensDestination(changer, destination), ErrRevoked)
}

func TestChangeRevokedTokensDestinationChanger(t *testing.T) {
	c, _ := deployFunded(t, 5, 2, true, thousandToken)

	assert.ErrorIs(t, c.ChangeRevokedTokensDestinationChanger(otherAccount, otherAccount), ErrNotChanger)
	assert.ErrorIs(t, c.ChangeRevokedTokensDestinationChanger(changer, zeroAddress), ErrZeroAddress)
	assert.ErrorIs(t, c.ChangeRevokedTokensDestinationChanger(changer, changer), ErrSameAddress)

	require.NoError(t, c.ChangeRevokedTokensDestinationChanger(changer, otherAccount))
	assert.Equal(t, RevokedTokensDestinationChangerChanged{Previous: changer, Current: otherAccount}, c.Events()[0])

	// the previous changer lost its rights
	assert.ErrorIs(t, c.ChangeRevokedTokensDestination(changer, revoker), ErrNotChanger)
	require.NoError(t, c.ChangeRevokedTokensDestination(otherAccount, revoker))

	require.NoError(t, c.Revoke(revoker, day(1)))
	assert.ErrorIs(t, c.ChangeRevokedTokensDestinationChanger(otherAccount, changer), ErrRevoked)
}

func TestNonRevocableRejectsChanges(t *testing.T) {
	c, _ := deployFunded(t, 5, 2, false, thousandToken)
	assert.ErrorIs(t, c.ChangeRevokedTokensDestination(changer, otherAccount), ErrNotRevocable)
	assert.ErrorIs(t, c.ChangeRevokedTokensDestinationChanger(changer, otherAccount), ErrNotRevocable)
}

func TestDiff(t *testing.T) {
	s := newSchedule(4, 0, true)
	st := State{Balance: thousandToken}
	computed := s.Compute(st, day(1))
	assert.Empty(t, Diff(computed, s.Compute(st, day(1))))

	onChain := s.Compute(st, day(1))
	onChain.VestedTokens = u(251)
	onChain.Revoked = true
	mismatches := Diff(onChain, computed)
	require.Len(t, mismatches, 2)
	assert.Equal(t, Mismatch{Field: "vestedTokens", OnChain: "251", Computed: "250"}, mismatches[0])
	assert.Equal(t, "revoked", mismatches[1].Field)
}
