package minter

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "liquiditygauge/native/common"
	"liquiditygauge/observability/metrics"
	"liquiditygauge/storage"
)

const moduleName = "minter"

// MaxBatch bounds the number of gauges settled by DistributeMany.
const MaxBatch = 8

var (
	ErrGaugeNotAdded   = errors.New("minter: gauge not added")
	ErrNotApproved     = errors.New("minter: caller not approved to distribute for user")
	ErrBatchTooLarge   = errors.New("minter: too many gauges in batch")
	ErrNilDependencies = errors.New("minter: missing dependency")
)

// Gauge is the accrual view of a gauge.
type Gauge interface {
	Address() common.Address
	UserCheckpoint(user common.Address) error
	IntegrateFraction(user common.Address) *big.Int
}

// Registry reports which gauges the controller knows about.
type Registry interface {
	IsGauge(gauge common.Address) bool
}

// Source records payouts against the emission schedule.
type Source interface {
	Distribute(caller, to common.Address, amount *big.Int, now uint64) error
}

// Bank holds the reward token balances.
type Bank interface {
	Credit(to common.Address, amount *big.Int) error
	Debit(from common.Address, amount *big.Int) error
}

// Minter pays users the rewards their gauges accrued for them. It is the only
// caller the distributor accepts, and it pays each user at most once for
// every unit of accrued reward.
type Minter struct {
	mu sync.Mutex

	address  common.Address
	registry Registry
	source   Source
	bank     Bank
	clock    nativecommon.Clock
	pauses   nativecommon.PauseView
	logger   *slog.Logger
	metrics  *metrics.GaugeMetrics
	db       storage.Database
	stagers  []Stager

	gauges    map[common.Address]Gauge
	minted    map[common.Address]map[common.Address]*big.Int
	approvals map[common.Address]map[common.Address]bool
}

// New returns a minter acting as address towards the distributor.
func New(address common.Address, registry Registry, source Source, bank Bank, clock nativecommon.Clock) (*Minter, error) {
	if registry == nil || source == nil || bank == nil || clock == nil {
		return nil, ErrNilDependencies
	}
	return &Minter{
		address:   address,
		registry:  registry,
		source:    source,
		bank:      bank,
		clock:     clock,
		logger:    slog.Default(),
		gauges:    make(map[common.Address]Gauge),
		minted:    make(map[common.Address]map[common.Address]*big.Int),
		approvals: make(map[common.Address]map[common.Address]bool),
	}, nil
}

func (m *Minter) SetLogger(logger *slog.Logger) {
	if m == nil || logger == nil {
		return
	}
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

func (m *Minter) SetPauses(p nativecommon.PauseView) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.pauses = p
	m.mu.Unlock()
}

func (m *Minter) SetMetrics(gm *metrics.GaugeMetrics) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.metrics = gm
	m.mu.Unlock()
}

// Address is the identity the minter presents to the distributor.
func (m *Minter) Address() common.Address {
	return m.address
}

// AddGauge makes a gauge payable. The controller must already list it.
func (m *Minter) AddGauge(g Gauge) error {
	if g == nil {
		return ErrNilDependencies
	}
	if !m.registry.IsGauge(g.Address()) {
		return fmt.Errorf("%w: %s", ErrGaugeNotAdded, g.Address().Hex())
	}
	m.mu.Lock()
	m.gauges[g.Address()] = g
	m.mu.Unlock()
	return nil
}

// ToggleApproveDistribute allows or forbids operator to trigger payouts on
// behalf of user and returns the new approval.
func (m *Minter) ToggleApproveDistribute(user, operator common.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := !m.approvals[user][operator]
	if err := m.persistApprovalLocked(user, operator, next); err != nil {
		return !next, fmt.Errorf("minter: persist approval: %w", err)
	}
	approved, ok := m.approvals[user]
	if !ok {
		approved = make(map[common.Address]bool)
		m.approvals[user] = approved
	}
	approved[operator] = next
	return next, nil
}

// Approved reports whether operator may distribute for user.
func (m *Minter) Approved(user, operator common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.approvals[user][operator]
}

// Minted returns the amount already paid to user from gauge.
func (m *Minter) Minted(user, gauge common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mintedLocked(user, gauge)
}

func (m *Minter) mintedLocked(user, gauge common.Address) *big.Int {
	if byGauge, ok := m.minted[user]; ok {
		if v, ok := byGauge[gauge]; ok {
			return new(big.Int).Set(v)
		}
	}
	return big.NewInt(0)
}

// Distribute checkpoints user on gauge and pays out everything accrued since
// the last payout. It returns the amount paid.
func (m *Minter) Distribute(user, gauge common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.distributeLocked(user, gauge)
}

// DistributeFor pays user on behalf of an approved operator.
func (m *Minter) DistributeFor(operator, user, gauge common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if operator != user && !m.approvals[user][operator] {
		return nil, ErrNotApproved
	}
	return m.distributeLocked(user, gauge)
}

// DistributeMany settles up to MaxBatch gauges in order. It stops at the first
// failure; payouts made before it stand and are included in the total.
func (m *Minter) DistributeMany(user common.Address, gauges []common.Address) (*big.Int, error) {
	if len(gauges) > MaxBatch {
		return nil, ErrBatchTooLarge
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	total := big.NewInt(0)
	for _, gauge := range gauges {
		if gauge == (common.Address{}) {
			break
		}
		paid, err := m.distributeLocked(user, gauge)
		if err != nil {
			return total, err
		}
		total.Add(total, paid)
	}
	return total, nil
}

func (m *Minter) distributeLocked(user, gauge common.Address) (paid *big.Int, err error) {
	defer func() { m.metrics.ObserveOperation("distribute", err) }()
	if err := nativecommon.Guard(m.pauses, moduleName); err != nil {
		return nil, err
	}
	g, ok := m.gauges[gauge]
	if !ok || !m.registry.IsGauge(gauge) {
		return nil, fmt.Errorf("%w: %s", ErrGaugeNotAdded, gauge.Hex())
	}
	if err := g.UserCheckpoint(user); err != nil {
		return nil, fmt.Errorf("minter: checkpoint %s: %w", gauge.Hex(), err)
	}
	total := g.IntegrateFraction(user)
	amount := new(big.Int).Sub(total, m.mintedLocked(user, gauge))
	if amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	if err := m.bank.Credit(user, amount); err != nil {
		return nil, fmt.Errorf("minter: credit: %w", err)
	}
	if err := m.source.Distribute(m.address, user, amount, m.clock.Now()); err != nil {
		if rbErr := m.bank.Debit(user, amount); rbErr != nil {
			m.logger.Error("minter: failed to reverse credit",
				slog.String("user", user.Hex()),
				slog.String("amount", amount.String()),
				slog.Any("error", rbErr))
		}
		return nil, fmt.Errorf("minter: distribute: %w", err)
	}
	if err := m.persistPayoutLocked(user, gauge, total); err != nil {
		// The distributor keeps the recorded payout in memory, which only
		// narrows what it will release until the next restart.
		if rbErr := m.bank.Debit(user, amount); rbErr != nil {
			m.logger.Error("minter: failed to reverse credit",
				slog.String("user", user.Hex()),
				slog.String("amount", amount.String()),
				slog.Any("error", rbErr))
		}
		return nil, fmt.Errorf("minter: persist payout: %w", err)
	}
	byGauge, ok := m.minted[user]
	if !ok {
		byGauge = make(map[common.Address]*big.Int)
		m.minted[user] = byGauge
	}
	byGauge[gauge] = new(big.Int).Set(total)
	m.metrics.ObservePayout(gauge.Hex())
	m.logger.Info("minter: distributed",
		slog.String("user", user.Hex()),
		slog.String("gauge", gauge.Hex()),
		slog.String("amount", amount.String()))
	return amount, nil
}
