package votingescrow

import (
	"errors"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "liquiditygauge/native/common"
	"liquiditygauge/storage"
)

// DefaultMaxLock is the longest lock duration (four years).
const DefaultMaxLock uint64 = 4 * 365 * 86400

var (
	ErrInvalidAmount   = errors.New("votingescrow: amount must be positive")
	ErrLockExists      = errors.New("votingescrow: withdraw old tokens first")
	ErrNoLock          = errors.New("votingescrow: no existing lock found")
	ErrLockExpired     = errors.New("votingescrow: lock expired, withdraw first")
	ErrLockNotExpired  = errors.New("votingescrow: lock did not expire")
	ErrUnlockInPast    = errors.New("votingescrow: can only lock until a time in the future")
	ErrUnlockTooLong   = errors.New("votingescrow: voting lock exceeds the maximum duration")
	ErrUnlockNotLonger = errors.New("votingescrow: can only increase lock duration")
)

// Lock is a single user's vote-locked position.
type Lock struct {
	Amount *big.Int
	End    uint64
	Slope  *big.Int
	// UpdatedAt is when the lock was last created or extended.
	UpdatedAt uint64
}

// Escrow converts time-locked tokens into a boost balance that decays
// linearly to zero at the unlock time.
type Escrow struct {
	mu      sync.RWMutex
	maxLock uint64
	logger  *slog.Logger
	db      storage.Database
	locks   map[common.Address]*Lock
	supply  *big.Int
}

// New creates an escrow with the supplied maximum lock duration. A zero value
// selects DefaultMaxLock.
func New(maxLock uint64) *Escrow {
	if maxLock == 0 {
		maxLock = DefaultMaxLock
	}
	return &Escrow{
		maxLock: maxLock,
		logger:  slog.Default(),
		locks:   make(map[common.Address]*Lock),
		supply:  big.NewInt(0),
	}
}

// SetLogger overrides the logger used for lock changes.
func (e *Escrow) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.mu.Lock()
	e.logger = logger
	e.mu.Unlock()
}

func (e *Escrow) slopeFor(amount *big.Int) *big.Int {
	return new(big.Int).Quo(amount, new(big.Int).SetUint64(e.maxLock))
}

// CreateLock locks amount until unlock, rounded down to whole weeks.
func (e *Escrow) CreateLock(user common.Address, amount *big.Int, unlock, now uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	unlock = nativecommon.WeekStart(unlock)
	if unlock <= now {
		return ErrUnlockInPast
	}
	if unlock > now+e.maxLock {
		return ErrUnlockTooLong
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.locks[user]; ok && existing.Amount.Sign() > 0 {
		return ErrLockExists
	}
	lock := &Lock{Amount: new(big.Int).Set(amount), End: unlock, UpdatedAt: now}
	lock.Slope = e.slopeFor(lock.Amount)
	if err := e.saveLocked(user, lock); err != nil {
		return err
	}
	e.locks[user] = lock
	e.supply.Add(e.supply, amount)
	e.logger.Info("votingescrow: lock created", slog.String("user", user.Hex()), slog.String("amount", amount.String()), slog.Uint64("end", unlock))
	return nil
}

// IncreaseAmount adds tokens to an unexpired lock without changing its end.
func (e *Escrow) IncreaseAmount(user common.Address, amount *big.Int, now uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[user]
	if !ok || lock.Amount.Sign() == 0 {
		return ErrNoLock
	}
	if lock.End <= now {
		return ErrLockExpired
	}
	next := &Lock{Amount: new(big.Int).Add(lock.Amount, amount), End: lock.End, UpdatedAt: now}
	next.Slope = e.slopeFor(next.Amount)
	if err := e.saveLocked(user, next); err != nil {
		return err
	}
	e.locks[user] = next
	e.supply.Add(e.supply, amount)
	return nil
}

// IncreaseUnlockTime extends an unexpired lock.
func (e *Escrow) IncreaseUnlockTime(user common.Address, unlock, now uint64) error {
	unlock = nativecommon.WeekStart(unlock)
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[user]
	if !ok || lock.Amount.Sign() == 0 {
		return ErrNoLock
	}
	if lock.End <= now {
		return ErrLockExpired
	}
	if unlock <= lock.End {
		return ErrUnlockNotLonger
	}
	if unlock > now+e.maxLock {
		return ErrUnlockTooLong
	}
	next := &Lock{Amount: lock.Amount, End: unlock, Slope: lock.Slope, UpdatedAt: now}
	if err := e.saveLocked(user, next); err != nil {
		return err
	}
	e.locks[user] = next
	return nil
}

// Withdraw releases an expired lock and returns the unlocked amount.
func (e *Escrow) Withdraw(user common.Address, now uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[user]
	if !ok || lock.Amount.Sign() == 0 {
		return nil, ErrNoLock
	}
	if now < lock.End {
		return nil, ErrLockNotExpired
	}
	amount := new(big.Int).Set(lock.Amount)
	if err := e.saveLocked(user, nil); err != nil {
		return nil, err
	}
	e.supply.Sub(e.supply, amount)
	delete(e.locks, user)
	e.logger.Info("votingescrow: lock withdrawn", slog.String("user", user.Hex()), slog.String("amount", amount.String()))
	return amount, nil
}

// Locked returns a copy of the user's lock, if any.
func (e *Escrow) Locked(user common.Address) (Lock, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lock, ok := e.locks[user]
	if !ok {
		return Lock{Amount: big.NewInt(0), Slope: big.NewInt(0)}, false
	}
	return Lock{Amount: new(big.Int).Set(lock.Amount), End: lock.End, Slope: new(big.Int).Set(lock.Slope), UpdatedAt: lock.UpdatedAt}, true
}

// LockUpdatedAt returns when the user's lock last changed, or zero without a
// lock.
func (e *Escrow) LockUpdatedAt(user common.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if lock, ok := e.locks[user]; ok {
		return lock.UpdatedAt
	}
	return 0
}

// LockedSupply returns the total amount of tokens held in locks.
func (e *Escrow) LockedSupply() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.supply)
}

func decayed(lock *Lock, t uint64) *big.Int {
	if lock == nil || t >= lock.End {
		return big.NewInt(0)
	}
	remaining := new(big.Int).SetUint64(lock.End - t)
	return remaining.Mul(remaining, lock.Slope)
}

// BalanceOf returns the user's boost balance at t.
func (e *Escrow) BalanceOf(user common.Address, t uint64) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return decayed(e.locks[user], t)
}

// TotalSupply returns the sum of all boost balances at t.
func (e *Escrow) TotalSupply(t uint64) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	total := big.NewInt(0)
	for _, lock := range e.locks {
		total.Add(total, decayed(lock, t))
	}
	return total
}
