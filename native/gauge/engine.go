package gauge

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "liquiditygauge/native/common"
	"liquiditygauge/observability/metrics"
)

const moduleName = "gauge"

// Config captures the static parameters of a gauge.
type Config struct {
	// Address identifies the gauge towards the controller.
	Address common.Address
	// Admin may kill and revive the gauge.
	Admin common.Address
	// TokenlessProduction is the unboosted share of a deposit in percent.
	TokenlessProduction uint64
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if c.Address == (common.Address{}) {
		return fmt.Errorf("%w: gauge address required", ErrInvalidConfig)
	}
	if c.TokenlessProduction == 0 || c.TokenlessProduction > 100 {
		return fmt.Errorf("%w: tokenless production must be within 1..100", ErrInvalidConfig)
	}
	return nil
}

// Engine is the gauge ledger. It exclusively owns the gauge and user state;
// every mutation runs under a single lock as one checkpoint-then-mutate
// transaction.
type Engine struct {
	mu sync.RWMutex

	address   common.Address
	admin     common.Address
	tokenless uint64

	rates   RateSource
	weights *weightResolver
	boosts  BoostSource
	clock   nativecommon.Clock
	pauses  nativecommon.PauseView
	logger  *slog.Logger
	metrics *metrics.GaugeMetrics
	store   *Store

	state   *GaugeState
	periods []PeriodCheckpoint
	users   map[common.Address]*UserState
}

// NewEngine deploys a gauge at the clock's current time.
func NewEngine(cfg Config, rates RateSource, weights WeightSource, boosts BoostSource, clock nativecommon.Clock) (*Engine, error) {
	if cfg.TokenlessProduction == 0 {
		cfg.TokenlessProduction = DefaultTokenlessProduction
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rates == nil || weights == nil || clock == nil {
		return nil, ErrNilState
	}
	now := clock.Now()
	start, err := rates.StartEpochTimeWrite(now)
	if err != nil {
		return nil, fmt.Errorf("gauge: read epoch start: %w", err)
	}
	e := &Engine{
		address:   cfg.Address,
		admin:     cfg.Admin,
		tokenless: cfg.TokenlessProduction,
		rates:     rates,
		weights:   newWeightResolver(cfg.Address, weights),
		boosts:    boosts,
		clock:     clock,
		logger:    slog.Default(),
		users:     make(map[common.Address]*UserState),
	}
	e.state = &GaugeState{
		WorkingSupply:     big.NewInt(0),
		TotalStaked:       big.NewInt(0),
		Integral:          big.NewInt(0),
		IntegralTimestamp: now,
		InflationRate:     copyBigInt(rates.Rate()),
		EpochStart:        start,
	}
	e.periods = []PeriodCheckpoint{{Timestamp: now, Integral: big.NewInt(0)}}
	return e, nil
}

// SetLogger overrides the logger used for checkpoints and admin actions.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.mu.Lock()
	e.logger = logger
	e.mu.Unlock()
}

// SetPauses wires the governance pause switch.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.pauses = p
	e.mu.Unlock()
}

// SetMetrics wires the prometheus collectors.
func (e *Engine) SetMetrics(m *metrics.GaugeMetrics) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.metrics = m
	e.mu.Unlock()
}

// SetStore attaches persistent storage. A snapshot already held by the store
// replaces the in-memory state; otherwise the deployment state is written so
// that later commits extend it.
func (e *Engine) SetStore(s *Store) error {
	if e == nil || s == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok, err := s.load(e.address)
	if err != nil {
		return err
	}
	if ok {
		e.state = snap.state
		e.periods = snap.periods
		e.users = snap.users
		e.logger.Info("gauge: restored snapshot",
			slog.String("gauge", e.address.Hex()),
			slog.Uint64("period", e.state.Period),
			slog.Int("users", len(e.users)))
	} else if err := s.saveGenesis(e.address, e.state, e.periods[0]); err != nil {
		return fmt.Errorf("gauge: persist genesis: %w", err)
	}
	e.store = s
	return nil
}

// LoadEngine builds an engine backed by store, resuming from its snapshot when
// one exists.
func LoadEngine(cfg Config, rates RateSource, weights WeightSource, boosts BoostSource, clock nativecommon.Clock, store *Store) (*Engine, error) {
	e, err := NewEngine(cfg, rates, weights, boosts, clock)
	if err != nil {
		return nil, err
	}
	if err := e.SetStore(store); err != nil {
		return nil, err
	}
	return e, nil
}

// Address returns the gauge identifier.
func (e *Engine) Address() common.Address {
	return e.address
}

func (e *Engine) lastPeriodTimestamp() uint64 {
	return e.periods[len(e.periods)-1].Timestamp
}

// begin opens a transaction for the supplied user.
func (e *Engine) begin(user common.Address) *txn {
	tx := &txn{engine: e, gauge: e.state.Clone()}
	if existing, ok := e.users[user]; ok {
		tx.user = existing.Clone()
	} else {
		tx.user = newUserState(user)
		tx.newUser = true
	}
	return tx
}

// commit persists and then publishes the transaction.
func (e *Engine) commit(tx *txn) error {
	if e.store != nil {
		if err := e.store.save(e.address, tx); err != nil {
			return fmt.Errorf("gauge: persist: %w", err)
		}
	}
	e.state = tx.gauge
	if !tx.global {
		e.users[tx.user.Address] = tx.user
	}
	if tx.period != nil {
		if tx.appendLog {
			e.periods = append(e.periods, *tx.period)
		} else {
			e.periods[len(e.periods)-1] = *tx.period
		}
	}
	e.metrics.ObserveState(e.address.Hex(), e.state.Integral, e.state.WorkingSupply, e.state.TotalStaked)
	return nil
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrAmountOverflow
	}
	return nil
}

// run executes fn inside a transaction for user and records the outcome. The
// caller must not hold the engine lock.
func (e *Engine) run(op string, user common.Address, fn func(tx *txn, now uint64) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execute(op, e.begin(user), fn)
}

// runGlobal checkpoints the gauge without settling any user.
func (e *Engine) runGlobal(op string, fn func(tx *txn, now uint64) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx := &txn{engine: e, gauge: e.state.Clone(), user: newUserState(common.Address{}), global: true}
	return e.execute(op, tx, fn)
}

func (e *Engine) execute(op string, tx *txn, fn func(tx *txn, now uint64) error) (err error) {
	defer func() { e.metrics.ObserveOperation(op, err) }()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	now := e.clock.Now()
	if err := tx.checkpoint(now); err != nil {
		return err
	}
	if err := fn(tx, now); err != nil {
		return err
	}
	if err := e.commit(tx); err != nil {
		return err
	}
	e.logger.Debug("gauge: checkpoint",
		slog.String("op", op),
		slog.String("user", tx.user.Address.Hex()),
		slog.Uint64("period", tx.gauge.Period),
		slog.String("integral", tx.gauge.Integral.String()),
		slog.String("workingBalance", tx.user.WorkingBalance.String()),
		slog.String("integrateFraction", tx.user.IntegrateFraction.String()))
	return nil
}

// Deposit stakes amount for user. The user is checkpointed with the working
// balance held before the deposit.
func (e *Engine) Deposit(user common.Address, amount *big.Int) error {
	if err := validateAmount(amount); err != nil {
		e.metrics.ObserveOperation("deposit", err)
		return err
	}
	return e.run("deposit", user, func(tx *txn, now uint64) error {
		staked := new(big.Int).Add(tx.user.StakedBalance, amount)
		total := new(big.Int).Add(tx.gauge.TotalStaked, amount)
		if _, overflow := uint256.FromBig(total); overflow {
			return ErrAmountOverflow
		}
		tx.user.StakedBalance = staked
		tx.gauge.TotalStaked = total
		tx.updateLiquidityLimit(now)
		return nil
	})
}

// Withdraw unstakes amount for user.
func (e *Engine) Withdraw(user common.Address, amount *big.Int) error {
	if err := validateAmount(amount); err != nil {
		e.metrics.ObserveOperation("withdraw", err)
		return err
	}
	return e.run("withdraw", user, func(tx *txn, now uint64) error {
		if tx.user.StakedBalance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		tx.user.StakedBalance = new(big.Int).Sub(tx.user.StakedBalance, amount)
		tx.gauge.TotalStaked = new(big.Int).Sub(tx.gauge.TotalStaked, amount)
		tx.updateLiquidityLimit(now)
		return nil
	})
}

// UserCheckpoint settles the user's accrual up to now and refreshes their
// working balance from the current boost.
func (e *Engine) UserCheckpoint(user common.Address) error {
	return e.run("checkpoint", user, func(tx *txn, now uint64) error {
		tx.updateLiquidityLimit(now)
		return nil
	})
}

// Kick refreshes the working balance of a user whose boost has lapsed, or
// who changed their lock since their last checkpoint. Anyone may call it.
func (e *Engine) Kick(user common.Address) error {
	return e.run("kick", user, func(tx *txn, now uint64) error {
		if e.boosts != nil && e.boosts.BalanceOf(user, now).Sign() > 0 {
			// The transaction has already moved the checkpoint to now.
			var last uint64
			if committed, ok := e.users[user]; ok {
				last = committed.IntegrateCheckpoint
			}
			if e.boosts.LockUpdatedAt(user) <= last {
				return ErrKickNotAllowed
			}
		}
		floor := new(big.Int).Mul(tx.user.StakedBalance, new(big.Int).SetUint64(e.tokenless))
		floor.Quo(floor, big.NewInt(100))
		if tx.user.WorkingBalance.Cmp(floor) <= 0 {
			return ErrKickNotNeeded
		}
		tx.updateLiquidityLimit(now)
		return nil
	})
}

// SetKilled stops (or resumes) emissions to the gauge. Admin only. The gauge
// is checkpointed first so that time already elapsed keeps its rate.
func (e *Engine) SetKilled(caller common.Address, killed bool) error {
	if caller != e.admin {
		e.metrics.ObserveOperation("kill", ErrUnauthorized)
		return ErrUnauthorized
	}
	err := e.runGlobal("kill", func(tx *txn, _ uint64) error {
		tx.gauge.Killed = killed
		return nil
	})
	if err == nil {
		e.logger.Info("gauge: kill switch changed", slog.String("gauge", e.address.Hex()), slog.Bool("killed", killed))
	}
	return err
}

// BalanceOf returns the raw staked balance of user.
func (e *Engine) BalanceOf(user common.Address) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if u, ok := e.users[user]; ok {
		return copyBigInt(u.StakedBalance)
	}
	return big.NewInt(0)
}

// TotalSupply returns the total raw stake.
func (e *Engine) TotalSupply() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyBigInt(e.state.TotalStaked)
}

// WorkingBalance returns the boost-adjusted balance of user.
func (e *Engine) WorkingBalance(user common.Address) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if u, ok := e.users[user]; ok {
		return copyBigInt(u.WorkingBalance)
	}
	return big.NewInt(0)
}

// WorkingSupply returns the sum of working balances.
func (e *Engine) WorkingSupply() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyBigInt(e.state.WorkingSupply)
}

// IntegrateFraction returns the cumulative reward claim of user as of their
// last checkpoint. Callers needing a live value checkpoint first.
func (e *Engine) IntegrateFraction(user common.Address) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if u, ok := e.users[user]; ok {
		return copyBigInt(u.IntegrateFraction)
	}
	return big.NewInt(0)
}

// ClaimableReward is an alias of IntegrateFraction.
func (e *Engine) ClaimableReward(user common.Address) *big.Int {
	return e.IntegrateFraction(user)
}

// UserState returns a snapshot of the user's accounting state.
func (e *Engine) UserState(user common.Address) *UserState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if u, ok := e.users[user]; ok {
		return u.Clone()
	}
	return newUserState(user)
}

// State returns a snapshot of the gauge state.
func (e *Engine) State() *GaugeState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Period returns the index of the latest period.
func (e *Engine) Period() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Period
}

// PeriodCheckpoint returns the log entry at index period.
func (e *Engine) PeriodCheckpoint(period uint64) (PeriodCheckpoint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if period >= uint64(len(e.periods)) {
		return PeriodCheckpoint{}, ErrPeriodOutOfRange
	}
	entry := e.periods[period]
	return PeriodCheckpoint{Timestamp: entry.Timestamp, Integral: copyBigInt(entry.Integral)}, nil
}

// Users returns the number of users that have ever interacted with the gauge.
func (e *Engine) Users() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.users)
}
