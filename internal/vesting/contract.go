package vesting

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrNothingToRelease = errors.New("vesting: no tokens to release")
	ErrRevoked          = errors.New("vesting: contract is revoked")
	ErrNotRevocable     = errors.New("vesting: contract is not revocable")
	ErrNotRevoker       = errors.New("vesting: caller is not the revoker")
	ErrNoTokens         = errors.New("vesting: contract holds no tokens")
	ErrNothingLocked    = errors.New("vesting: no locked tokens to revoke")
	ErrNotChanger       = errors.New("vesting: caller is not the revoked tokens destination changer")
	ErrZeroAddress      = errors.New("vesting: zero address")
	ErrSameAddress      = errors.New("vesting: address is unchanged")
	ErrInsufficient     = errors.New("vesting: insufficient balance")
)

// Ledger 代币余额账本
type Ledger interface {
	BalanceOf(owner common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
}

// MemoryLedger 内存账本
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[common.Address]*uint256.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[common.Address]*uint256.Int)}
}

// Mint 增发到指定地址
func (l *MemoryLedger) Mint(to common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] = new(uint256.Int).Add(l.balanceOf(to), amount)
}

func (l *MemoryLedger) BalanceOf(owner common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.balanceOf(owner))
}

func (l *MemoryLedger) balanceOf(owner common.Address) *uint256.Int {
	if b, ok := l.balances[owner]; ok {
		return b
	}
	return new(uint256.Int)
}

func (l *MemoryLedger) Transfer(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBalance := l.balanceOf(from)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficient, from.Hex(), fromBalance.Dec(), amount.Dec())
	}
	l.balances[from] = new(uint256.Int).Sub(fromBalance, amount)
	l.balances[to] = new(uint256.Int).Add(l.balanceOf(to), amount)
	return nil
}

// Event 合约事件
type Event interface {
	EventName() string
}

type TokensReleased struct {
	Amount *uint256.Int
}

type Revoked struct {
	TotalTokens              *uint256.Int
	RevokedTokens            *uint256.Int
	RevokedTokensDestination common.Address
}

type RevokedTokensDestinationChanged struct {
	Previous common.Address
	Current  common.Address
}

type RevokedTokensDestinationChangerChanged struct {
	Previous common.Address
	Current  common.Address
}

func (TokensReleased) EventName() string                          { return "TokensReleased" }
func (Revoked) EventName() string                                { return "Revoked" }
func (RevokedTokensDestinationChanged) EventName() string        { return "RevokedTokensDestinationChanged" }
func (RevokedTokensDestinationChangerChanged) EventName() string { return "RevokedTokensDestinationChangerChanged" }

// Contract 锁仓合约的状态机, 代币存放在 Ledger 中 Address 名下
type Contract struct {
	mu sync.Mutex

	Address  common.Address
	schedule Schedule
	ledger   Ledger

	released      *uint256.Int
	revokedTokens *uint256.Int
	revoked       bool
	events        []Event
}

// Deploy 校验参数并创建合约
func Deploy(address common.Address, schedule Schedule, ledger Ledger) (*Contract, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return &Contract{
		Address:       address,
		schedule:      schedule,
		ledger:        ledger,
		released:      new(uint256.Int),
		revokedTokens: new(uint256.Int),
	}, nil
}

// Schedule 当前参数, 包含变更后的撤销目标
func (c *Contract) Schedule() Schedule {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule
}

// State 当前状态
func (c *Contract) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *Contract) state() State {
	return State{
		Balance:       c.ledger.BalanceOf(c.Address),
		Released:      new(uint256.Int).Set(c.released),
		RevokedTokens: new(uint256.Int).Set(c.revokedTokens),
		Revoked:       c.revoked,
	}
}

// Report 当前时刻的访问器取值
func (c *Contract) Report(now uint64) Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule.Compute(c.state(), now)
}

// Events 已发出的事件
func (c *Contract) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Release 任何人可调用, 把可释放部分转给受益人
func (c *Contract) Release(now uint64) (*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revoked {
		return nil, ErrRevoked
	}
	amount := c.schedule.ReleasableTokens(c.state(), now)
	if amount.IsZero() {
		return nil, ErrNothingToRelease
	}

	if err := c.ledger.Transfer(c.Address, c.schedule.Beneficiary, amount); err != nil {
		return nil, err
	}
	c.released.Add(c.released, amount)
	c.events = append(c.events, TokensReleased{Amount: new(uint256.Int).Set(amount)})
	return amount, nil
}

// Revoke 仅 revoker 可调用且只能一次: 已归属未释放部分给受益人, 未归属部分给撤销目标
func (c *Contract) Revoke(caller common.Address, now uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.schedule.Revocable {
		return ErrNotRevocable
	}
	if caller != c.schedule.Revoker {
		return ErrNotRevoker
	}
	if c.revoked {
		return ErrRevoked
	}

	st := c.state()
	total := c.schedule.TotalTokens(st)
	if total.IsZero() {
		return ErrNoTokens
	}
	locked := c.schedule.LockedTokens(st, now)
	if locked.IsZero() {
		return ErrNothingLocked
	}
	toBeneficiary := c.schedule.ReleasableTokens(st, now)

	if !toBeneficiary.IsZero() {
		if err := c.ledger.Transfer(c.Address, c.schedule.Beneficiary, toBeneficiary); err != nil {
			return err
		}
		c.released.Add(c.released, toBeneficiary)
	}
	if err := c.ledger.Transfer(c.Address, c.schedule.RevokedTokensDestination, locked); err != nil {
		return err
	}

	c.revokedTokens = locked
	c.revoked = true
	c.events = append(c.events, Revoked{
		TotalTokens:              total,
		RevokedTokens:            new(uint256.Int).Set(locked),
		RevokedTokensDestination: c.schedule.RevokedTokensDestination,
	})
	return nil
}

func (c *Contract) checkChange(caller, current, next common.Address) error {
	if !c.schedule.Revocable {
		return ErrNotRevocable
	}
	if caller != c.schedule.RevokedTokensDestinationChanger {
		return ErrNotChanger
	}
	if c.revoked {
		return ErrRevoked
	}
	if next == (common.Address{}) {
		return ErrZeroAddress
	}
	if next == current {
		return ErrSameAddress
	}
	return nil
}

// ChangeRevokedTokensDestination 修改撤销目标地址
func (c *Contract) ChangeRevokedTokensDestination(caller, destination common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.schedule.RevokedTokensDestination
	if err := c.checkChange(caller, previous, destination); err != nil {
		return err
	}
	c.schedule.RevokedTokensDestination = destination
	c.events = append(c.events, RevokedTokensDestinationChanged{Previous: previous, Current: destination})
	return nil
}

// ChangeRevokedTokensDestinationChanger 修改有权变更撤销目标的地址
func (c *Contract) ChangeRevokedTokensDestinationChanger(caller, changer common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.schedule.RevokedTokensDestinationChanger
	if err := c.checkChange(caller, previous, changer); err != nil {
		return err
	}
	c.schedule.RevokedTokensDestinationChanger = changer
	c.events = append(c.events, RevokedTokensDestinationChangerChanged{Previous: previous, Current: changer})
	return nil
}
