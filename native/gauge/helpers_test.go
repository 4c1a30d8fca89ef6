package gauge

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "liquiditygauge/native/common"
)

const genesis uint64 = 1_700_000_000

var (
	gaugeAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	adminAddr = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol     = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
	dave      = common.HexToAddress("0x0000000000000000000000000000000000000da7")
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), unit)
}

// fractionOf returns num/den of unit as a 1e18 fixed-point weight.
func fractionOf(num, den int64) *big.Int {
	w := new(big.Int).Mul(unit, big.NewInt(num))
	return w.Quo(w, big.NewInt(den))
}

// epochRate switches from before to after once the boundary is observed.
type epochRate struct {
	mu       sync.Mutex
	start    uint64
	boundary uint64
	before   *big.Int
	after    *big.Int
	advanced bool
}

func fixedRate(rate *big.Int) *epochRate {
	return &epochRate{before: rate, after: rate, boundary: ^uint64(0)}
}

func (r *epochRate) Rate() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.advanced {
		return r.after
	}
	return r.before
}

func (r *epochRate) StartEpochTimeWrite(now uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now >= r.boundary {
		r.advanced = true
		return r.boundary, nil
	}
	return r.start, nil
}

// weeklyWeights answers a per-week relative weight through fn.
type weeklyWeights struct {
	mu          sync.Mutex
	fn          func(week uint64) *big.Int
	err         error
	queries     int
	checkpoints int
}

func constantWeight(w *big.Int) *weeklyWeights {
	return &weeklyWeights{fn: func(uint64) *big.Int { return w }}
}

func (w *weeklyWeights) CheckpointGauge(common.Address, uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkpoints++
	return w.err
}

func (w *weeklyWeights) GaugeRelativeWeight(_ common.Address, t uint64) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	w.queries++
	return w.fn(nativecommon.WeekStart(t)), nil
}

func (w *weeklyWeights) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

// boostTable is a static vote-locked balance oracle.
type boostTable struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	updated  map[common.Address]uint64
	total    *big.Int
}

func newBoostTable() *boostTable {
	return &boostTable{
		balances: make(map[common.Address]*big.Int),
		updated:  make(map[common.Address]uint64),
		total:    big.NewInt(0),
	}
}

// relock replaces the user's lock as of at.
func (b *boostTable) relock(user common.Address, amount *big.Int, at uint64) {
	b.set(user, amount)
	b.mu.Lock()
	b.updated[user] = at
	b.mu.Unlock()
}

func (b *boostTable) LockUpdatedAt(user common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updated[user]
}

func (b *boostTable) set(user common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.balances[user]; ok {
		b.total = new(big.Int).Sub(b.total, prev)
	}
	b.balances[user] = amount
	b.total = new(big.Int).Add(b.total, amount)
}

func (b *boostTable) BalanceOf(user common.Address, _ uint64) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.balances[user]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (b *boostTable) TotalSupply(uint64) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.total)
}

// settableClock may move backwards, unlike ManualClock.
type settableClock struct{ now uint64 }

func (c *settableClock) Now() uint64 { return c.now }

type harness struct {
	clock   *nativecommon.ManualClock
	rates   *epochRate
	weights *weeklyWeights
	boosts  *boostTable
	engine  *Engine
}

func newHarness(t *testing.T, rate, weight *big.Int) *harness {
	t.Helper()
	h := &harness{
		clock:   nativecommon.NewManualClock(genesis),
		rates:   fixedRate(rate),
		weights: constantWeight(weight),
		boosts:  newBoostTable(),
	}
	engine, err := NewEngine(Config{Address: gaugeAddr, Admin: adminAddr}, h.rates, h.weights, h.boosts, h.clock)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	h.engine = engine
	return h
}

func (h *harness) deposit(t *testing.T, user common.Address, amount *big.Int) {
	t.Helper()
	if err := h.engine.Deposit(user, amount); err != nil {
		t.Fatalf("deposit %s: %v", amount, err)
	}
}

func (h *harness) checkpoint(t *testing.T, user common.Address) *big.Int {
	t.Helper()
	if err := h.engine.UserCheckpoint(user); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	return h.engine.IntegrateFraction(user)
}

func requireClose(t *testing.T, got, want *big.Int, tolerance int64) {
	t.Helper()
	diff := new(big.Int).Sub(got, want)
	if diff.CmpAbs(big.NewInt(tolerance)) > 0 {
		t.Fatalf("got %s, want %s (±%d)", got, want, tolerance)
	}
}
