package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "liquiditygauge/native/common"
)

// Unit is the fixed-point scale of relative weights (1e18 == 100%).
var Unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var (
	ErrUnauthorized  = errors.New("controller: unauthorized")
	ErrTypeNotFound  = errors.New("controller: gauge type not found")
	ErrGaugeNotFound = errors.New("controller: gauge not found")
	ErrGaugeExists   = errors.New("controller: gauge already added")
	ErrInvalidWeight = errors.New("controller: weight must be non-negative")
	ErrInvalidName   = errors.New("controller: type name required")
	ErrZeroAddress   = errors.New("controller: zero gauge address")
	ErrFutureWeight  = errors.New("controller: weight requested beyond the current week")
	errNilController = errors.New("controller: not configured")
)

type gaugeType struct {
	name   string
	weight weightLog
}

type gaugeEntry struct {
	typeID int
	weight weightLog
}

// Controller assigns each gauge a weight within its type and each type a
// weight within the whole system. Weight changes always take effect at the
// next week boundary so that a finished week never changes retroactively.
type Controller struct {
	mu     sync.RWMutex
	admin  common.Address
	logger *slog.Logger

	types  []*gaugeType
	gauges map[common.Address]*gaugeEntry
	order  []common.Address

	// totals caches the system weight of weeks that can no longer change.
	totals map[uint64]*big.Int
}

// New creates an empty controller administered by admin.
func New(admin common.Address) *Controller {
	return &Controller{
		admin:  admin,
		logger: slog.Default(),
		gauges: make(map[common.Address]*gaugeEntry),
		totals: make(map[uint64]*big.Int),
	}
}

// SetLogger overrides the logger used for weight changes.
func (c *Controller) SetLogger(logger *slog.Logger) {
	if c == nil || logger == nil {
		return
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Admin returns the controller administrator.
func (c *Controller) Admin() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admin
}

func nextWeek(now uint64) uint64 {
	return nativecommon.WeekStart(now) + nativecommon.Week
}

// AddType registers a gauge type with an initial weight and returns its id.
func (c *Controller) AddType(caller common.Address, name string, weight *big.Int, now uint64) (int, error) {
	if c == nil {
		return 0, errNilController
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrInvalidName
	}
	if weight == nil {
		weight = big.NewInt(0)
	}
	if weight.Sign() < 0 {
		return 0, ErrInvalidWeight
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.admin {
		return 0, ErrUnauthorized
	}
	t := &gaugeType{name: name}
	t.weight.schedule(nextWeek(now), weight)
	c.types = append(c.types, t)
	id := len(c.types) - 1
	c.logger.Info("controller: type added", slog.Int("type", id), slog.String("name", name), slog.String("weight", weight.String()))
	return id, nil
}

// ChangeTypeWeight schedules a new weight for a type from the next week.
func (c *Controller) ChangeTypeWeight(caller common.Address, typeID int, weight *big.Int, now uint64) error {
	if c == nil {
		return errNilController
	}
	if weight == nil || weight.Sign() < 0 {
		return ErrInvalidWeight
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.admin {
		return ErrUnauthorized
	}
	if typeID < 0 || typeID >= len(c.types) {
		return ErrTypeNotFound
	}
	t := c.types[typeID]
	t.weight.fill(now)
	t.weight.schedule(nextWeek(now), weight)
	c.logger.Info("controller: type weight changed", slog.Int("type", typeID), slog.String("weight", weight.String()))
	return nil
}

// AddGauge registers a gauge under a type with an initial weight effective
// from the next week.
func (c *Controller) AddGauge(caller, gauge common.Address, typeID int, weight *big.Int, now uint64) error {
	if c == nil {
		return errNilController
	}
	if gauge == (common.Address{}) {
		return ErrZeroAddress
	}
	if weight == nil {
		weight = big.NewInt(0)
	}
	if weight.Sign() < 0 {
		return ErrInvalidWeight
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.admin {
		return ErrUnauthorized
	}
	if typeID < 0 || typeID >= len(c.types) {
		return ErrTypeNotFound
	}
	if _, ok := c.gauges[gauge]; ok {
		return ErrGaugeExists
	}
	entry := &gaugeEntry{typeID: typeID}
	entry.weight.schedule(nextWeek(now), weight)
	c.gauges[gauge] = entry
	c.order = append(c.order, gauge)
	c.logger.Info("controller: gauge added", slog.String("gauge", gauge.Hex()), slog.Int("type", typeID), slog.String("weight", weight.String()))
	return nil
}

// ChangeGaugeWeight schedules a new weight for a gauge from the next week.
func (c *Controller) ChangeGaugeWeight(caller, gauge common.Address, weight *big.Int, now uint64) error {
	if c == nil {
		return errNilController
	}
	if weight == nil || weight.Sign() < 0 {
		return ErrInvalidWeight
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.admin {
		return ErrUnauthorized
	}
	entry, ok := c.gauges[gauge]
	if !ok {
		return ErrGaugeNotFound
	}
	entry.weight.fill(now)
	entry.weight.schedule(nextWeek(now), weight)
	c.logger.Info("controller: gauge weight changed", slog.String("gauge", gauge.Hex()), slog.String("weight", weight.String()))
	return nil
}

// GaugeType returns the type id of a registered gauge.
func (c *Controller) GaugeType(gauge common.Address) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.gauges[gauge]
	if !ok {
		return 0, ErrGaugeNotFound
	}
	return entry.typeID, nil
}

// IsGauge reports whether the gauge has been registered.
func (c *Controller) IsGauge(gauge common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.gauges[gauge]
	return ok
}

// NumTypes returns the number of registered types.
func (c *Controller) NumTypes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types)
}

// NumGauges returns the number of registered gauges.
func (c *Controller) NumGauges() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Gauges lists registered gauges in registration order.
func (c *Controller) Gauges() []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]common.Address(nil), c.order...)
}

// CheckpointGauge writes carried-forward weekly points for the gauge, its type
// and the system total up to the week containing now. An unregistered gauge
// only checkpoints the total.
func (c *Controller) CheckpointGauge(gauge common.Address, now uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.gauges[gauge]; ok {
		entry.weight.fill(now)
		c.types[entry.typeID].weight.fill(now)
	}
	week := nativecommon.WeekStart(now)
	if _, cached := c.totals[week]; !cached {
		c.totals[week] = c.totalAtLocked(week)
	}
	return nil
}

// GaugeRelativeWeight returns the share of total emissions directed at the
// gauge during the week containing t, in 1e18 fixed point. Unregistered
// gauges weigh zero.
func (c *Controller) GaugeRelativeWeight(gauge common.Address, t uint64) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relativeWeightLocked(gauge, t)
}

// GaugeRelativeWeightWrite checkpoints the gauge at now and then returns its
// relative weight for the week containing t. Weeks after the current one are
// rejected because they may still change.
func (c *Controller) GaugeRelativeWeightWrite(gauge common.Address, t, now uint64) (*big.Int, error) {
	if nativecommon.WeekStart(t) > nativecommon.WeekStart(now) {
		return nil, ErrFutureWeight
	}
	if err := c.CheckpointGauge(gauge, now); err != nil {
		return nil, err
	}
	return c.GaugeRelativeWeight(gauge, t)
}

func (c *Controller) relativeWeightLocked(gauge common.Address, t uint64) (*big.Int, error) {
	entry, ok := c.gauges[gauge]
	if !ok {
		return big.NewInt(0), nil
	}
	week := nativecommon.WeekStart(t)
	total, ok := c.totals[week]
	if !ok {
		total = c.totalAtLocked(week)
	}
	if total.Sign() == 0 {
		return big.NewInt(0), nil
	}
	weight := c.types[entry.typeID].weight.at(week)
	weight.Mul(weight, entry.weight.at(week))
	weight.Mul(weight, Unit)
	return weight.Quo(weight, total), nil
}

// totalAtLocked sums typeWeight * gaugeWeight over all gauges for a week.
func (c *Controller) totalAtLocked(week uint64) *big.Int {
	sums := make([]*big.Int, len(c.types))
	for i := range sums {
		sums[i] = big.NewInt(0)
	}
	for _, addr := range c.order {
		entry := c.gauges[addr]
		sums[entry.typeID].Add(sums[entry.typeID], entry.weight.at(week))
	}
	total := big.NewInt(0)
	for i, t := range c.types {
		total.Add(total, new(big.Int).Mul(sums[i], t.weight.at(week)))
	}
	return total
}

// TypeWeight returns the weight of a type during the week containing t.
func (c *Controller) TypeWeight(typeID int, t uint64) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if typeID < 0 || typeID >= len(c.types) {
		return nil, ErrTypeNotFound
	}
	return c.types[typeID].weight.at(t), nil
}

// GaugeWeight returns the raw weight of a gauge during the week containing t.
func (c *Controller) GaugeWeight(gauge common.Address, t uint64) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.gauges[gauge]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGaugeNotFound, gauge.Hex())
	}
	return entry.weight.at(t), nil
}
