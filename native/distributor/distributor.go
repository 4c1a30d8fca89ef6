package distributor

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquiditygauge/storage"
)

const (
	// DefaultEpochDuration is the fixed emission epoch length (186 days).
	DefaultEpochDuration uint64 = 86400 * 186
	// DefaultInitialDelay postpones the first emission epoch after deployment.
	DefaultInitialDelay uint64 = 86400
)

var (
	ErrEpochStillRunning = errors.New("distributor: epoch still running")
	ErrUnauthorized      = errors.New("distributor: unauthorized")
	ErrInvalidRate       = errors.New("distributor: rate must be non-negative")
	ErrInvalidAmount     = errors.New("distributor: amount must be positive")
	ErrDistributionCap   = errors.New("distributor: amount exceeds available emission")
	ErrInvalidConfig     = errors.New("distributor: invalid configuration")
)

// Config controls the emission schedule of a distributor.
type Config struct {
	Admin         common.Address
	InitialRate   *big.Int
	EpochDuration uint64
	InitialDelay  uint64
}

// DefaultConfig returns the production schedule with a zero initial rate.
func DefaultConfig() Config {
	return Config{
		InitialRate:   big.NewInt(0),
		EpochDuration: DefaultEpochDuration,
		InitialDelay:  DefaultInitialDelay,
	}
}

// Validate ensures the configuration is internally consistent.
func (c Config) Validate() error {
	if c.EpochDuration == 0 {
		return fmt.Errorf("%w: epoch duration must be positive", ErrInvalidConfig)
	}
	if c.InitialDelay > c.EpochDuration {
		return fmt.Errorf("%w: initial delay exceeds epoch duration", ErrInvalidConfig)
	}
	if c.InitialRate != nil && c.InitialRate.Sign() < 0 {
		return ErrInvalidRate
	}
	return nil
}

// Epoch summarises the emission state for the running epoch.
type Epoch struct {
	StartTime                uint64
	Rate                     *big.Int
	PendingRate              *big.Int
	EpochStartingDistributed *big.Int
	TotalDistributed         *big.Int
}

// Distributor is the emission-rate authority. The rate is constant within an
// epoch; a pending rate set by the admin becomes active at the next epoch
// boundary.
type Distributor struct {
	mu sync.RWMutex

	admin    common.Address
	proxy    common.Address
	duration uint64
	logger   *slog.Logger
	db       storage.Database

	startEpochTime           uint64
	rate                     *big.Int
	pendingRate              *big.Int
	epochStartingDistributed *big.Int
	totalDistributed         *big.Int
}

// New deploys a distributor at the supplied timestamp. The first epoch only
// begins InitialDelay seconds after deployment; until then the rate is zero.
func New(cfg Config, deployedAt uint64) (*Distributor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	initial := big.NewInt(0)
	if cfg.InitialRate != nil {
		initial.Set(cfg.InitialRate)
	}
	start := deployedAt + cfg.InitialDelay
	if start >= cfg.EpochDuration {
		start -= cfg.EpochDuration
	} else {
		start = 0
	}
	return &Distributor{
		admin:                    cfg.Admin,
		duration:                 cfg.EpochDuration,
		logger:                   slog.Default(),
		startEpochTime:           start,
		rate:                     big.NewInt(0),
		pendingRate:              initial,
		epochStartingDistributed: big.NewInt(0),
		totalDistributed:         big.NewInt(0),
	}, nil
}

// SetLogger overrides the logger used for epoch transitions.
func (d *Distributor) SetLogger(logger *slog.Logger) {
	if d == nil || logger == nil {
		return
	}
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// Rate returns the emission per second of the running epoch.
func (d *Distributor) Rate() *big.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return new(big.Int).Set(d.rate)
}

// PendingRate returns the rate that activates at the next epoch boundary.
func (d *Distributor) PendingRate() *big.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return new(big.Int).Set(d.pendingRate)
}

// StartEpochTime returns the start of the last recorded epoch without advancing
// it.
func (d *Distributor) StartEpochTime() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.startEpochTime
}

// FutureEpochTime returns the timestamp at which the recorded epoch ends.
func (d *Distributor) FutureEpochTime() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.startEpochTime + d.duration
}

// EpochDuration returns the configured epoch length in seconds.
func (d *Distributor) EpochDuration() uint64 {
	return d.duration
}

// StartEpochTimeWrite advances the epoch when it has elapsed and returns the
// resulting epoch start. Calling it within a running epoch is harmless.
func (d *Distributor) StartEpochTimeWrite(now uint64) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if now >= d.startEpochTime+d.duration {
		d.advanceLocked(now)
		if err := d.saveLocked(); err != nil {
			return d.startEpochTime, err
		}
	}
	return d.startEpochTime, nil
}

// UpdateDistributionParameters moves to the next epoch. It fails while the
// current epoch is still running.
func (d *Distributor) UpdateDistributionParameters(now uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if now < d.startEpochTime+d.duration {
		return ErrEpochStillRunning
	}
	d.advanceLocked(now)
	return d.saveLocked()
}

func (d *Distributor) advanceLocked(now uint64) {
	emitted := new(big.Int).Mul(d.rate, new(big.Int).SetUint64(d.duration))
	d.epochStartingDistributed.Add(d.epochStartingDistributed, emitted)
	d.startEpochTime += d.duration
	d.rate = new(big.Int).Set(d.pendingRate)
	d.logger.Info("distributor: epoch advanced",
		slog.Uint64("startEpochTime", d.startEpochTime),
		slog.String("rate", d.rate.String()),
		slog.Uint64("now", now))
}

// SetPendingRate schedules the rate for the next epoch. Admin only.
func (d *Distributor) SetPendingRate(caller common.Address, rate *big.Int) error {
	if rate == nil || rate.Sign() < 0 {
		return ErrInvalidRate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if caller != d.admin {
		return ErrUnauthorized
	}
	prev := d.pendingRate
	d.pendingRate = new(big.Int).Set(rate)
	if err := d.saveLocked(); err != nil {
		d.pendingRate = prev
		return err
	}
	d.logger.Info("distributor: pending rate set", slog.String("rate", rate.String()))
	return nil
}

// SetDistributorProxy authorises the contract allowed to call Distribute.
// Admin only.
func (d *Distributor) SetDistributorProxy(caller, proxy common.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if caller != d.admin {
		return ErrUnauthorized
	}
	d.proxy = proxy
	return nil
}

// DistributorProxy returns the address permitted to call Distribute.
func (d *Distributor) DistributorProxy() common.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.proxy
}

// AvailableToDistribute reports the cumulative emission unlocked up to now.
func (d *Distributor) AvailableToDistribute(now uint64) *big.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.availableLocked(now)
}

func (d *Distributor) availableLocked(now uint64) *big.Int {
	available := new(big.Int).Set(d.epochStartingDistributed)
	if now > d.startEpochTime {
		elapsed := new(big.Int).SetUint64(now - d.startEpochTime)
		available.Add(available, elapsed.Mul(elapsed, d.rate))
	}
	return available
}

// EpochStartingDistributed returns the emission unlocked before the current
// epoch started.
func (d *Distributor) EpochStartingDistributed() *big.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return new(big.Int).Set(d.epochStartingDistributed)
}

// TotalDistributed returns the amount already paid out through Distribute.
func (d *Distributor) TotalDistributed() *big.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return new(big.Int).Set(d.totalDistributed)
}

// Distribute records a payout requested by the distributor proxy. The amount
// may not exceed what has been unlocked and not yet paid. The caller persists
// the result with StagePayout.
func (d *Distributor) Distribute(caller, to common.Address, amount *big.Int, now uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if caller != d.proxy || d.proxy == (common.Address{}) {
		return ErrUnauthorized
	}
	if now >= d.startEpochTime+d.duration {
		d.advanceLocked(now)
	}
	remaining := d.availableLocked(now)
	remaining.Sub(remaining, d.totalDistributed)
	if amount.Cmp(remaining) > 0 {
		return ErrDistributionCap
	}
	d.totalDistributed.Add(d.totalDistributed, amount)
	d.logger.Debug("distributor: distributed",
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()))
	return nil
}

// Snapshot returns a copy of the emission state.
func (d *Distributor) Snapshot() Epoch {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Epoch{
		StartTime:                d.startEpochTime,
		Rate:                     new(big.Int).Set(d.rate),
		PendingRate:              new(big.Int).Set(d.pendingRate),
		EpochStartingDistributed: new(big.Int).Set(d.epochStartingDistributed),
		TotalDistributed:         new(big.Int).Set(d.totalDistributed),
	}
}
