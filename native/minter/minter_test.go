package minter

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquiditygauge/native/bank"
	nativecommon "liquiditygauge/native/common"
	"liquiditygauge/native/controller"
	"liquiditygauge/native/distributor"
	"liquiditygauge/native/gauge"
)

const genesis uint64 = 1_700_000_000

var (
	admin      = common.HexToAddress("0xad")
	proxy      = common.HexToAddress("0x9a")
	gaugeAddr  = common.HexToAddress("0xaa")
	otherGauge = common.HexToAddress("0xab")
	alice      = common.HexToAddress("0xa11")
	bob        = common.HexToAddress("0xb0b")
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), controller.Unit)
}

type fixture struct {
	clock  *nativecommon.ManualClock
	dist   *distributor.Distributor
	ctrl   *controller.Controller
	gauge  *gauge.Engine
	ledger *bank.Ledger
	minter *Minter
}

// newFixture deploys a gauge that receives the whole emission from its first
// full week; the distributor rate starts a day after deployment.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: nativecommon.NewManualClock(genesis), ledger: bank.NewLedger()}
	cfg := distributor.DefaultConfig()
	cfg.Admin = admin
	cfg.InitialRate = tokens(1)
	var err error
	if f.dist, err = distributor.New(cfg, genesis); err != nil {
		t.Fatalf("distributor: %v", err)
	}
	if err := f.dist.SetDistributorProxy(admin, proxy); err != nil {
		t.Fatalf("set proxy: %v", err)
	}
	f.ctrl = controller.New(admin)
	typeID, err := f.ctrl.AddType(admin, "liquidity", controller.Unit, genesis)
	if err != nil {
		t.Fatalf("add type: %v", err)
	}
	if err := f.ctrl.AddGauge(admin, gaugeAddr, typeID, tokens(1), genesis); err != nil {
		t.Fatalf("add gauge: %v", err)
	}
	if f.gauge, err = gauge.NewEngine(gauge.Config{Address: gaugeAddr, Admin: admin}, f.dist, f.ctrl, nil, f.clock); err != nil {
		t.Fatalf("gauge: %v", err)
	}
	if f.minter, err = New(proxy, f.ctrl, f.dist, f.ledger, f.clock); err != nil {
		t.Fatalf("minter: %v", err)
	}
	if err := f.minter.AddGauge(f.gauge); err != nil {
		t.Fatalf("register gauge: %v", err)
	}
	return f
}

func (f *fixture) toWeightedWeek(weeks uint64) {
	f.clock.Set(nativecommon.WeekStart(genesis) + (1+weeks)*nativecommon.Week)
}

func TestDistributePaysAccruedOnce(t *testing.T) {
	f := newFixture(t)
	if err := f.gauge.Deposit(alice, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.toWeightedWeek(1)

	paid, err := f.minter.Distribute(alice, gaugeAddr)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if paid.Sign() <= 0 {
		t.Fatalf("expected a payout, got %s", paid)
	}
	if got := f.ledger.BalanceOf(alice); got.Cmp(paid) != 0 {
		t.Fatalf("ledger balance %s, paid %s", got, paid)
	}
	if got := f.minter.Minted(alice, gaugeAddr); got.Cmp(f.gauge.IntegrateFraction(alice)) != 0 {
		t.Fatalf("minted %s != fraction %s", got, f.gauge.IntegrateFraction(alice))
	}
	if got := f.dist.TotalDistributed(); got.Cmp(paid) != 0 {
		t.Fatalf("distributor recorded %s", got)
	}

	again, err := f.minter.Distribute(alice, gaugeAddr)
	if err != nil {
		t.Fatalf("second distribute: %v", err)
	}
	if again.Sign() != 0 {
		t.Fatalf("paid twice within the same second: %s", again)
	}

	f.clock.Sleep(100)
	more, err := f.minter.Distribute(alice, gaugeAddr)
	if err != nil {
		t.Fatalf("third distribute: %v", err)
	}
	if more.Cmp(tokens(100)) != 0 {
		t.Fatalf("expected 100 tokens for 100 seconds, got %s", more)
	}
}

func TestDistributeRejectsUnknownGauge(t *testing.T) {
	f := newFixture(t)
	if _, err := f.minter.Distribute(alice, otherGauge); !errors.Is(err, ErrGaugeNotAdded) {
		t.Fatalf("expected gauge not added, got %v", err)
	}
	stray, err := gauge.NewEngine(gauge.Config{Address: otherGauge}, f.dist, f.ctrl, nil, f.clock)
	if err != nil {
		t.Fatalf("gauge: %v", err)
	}
	if err := f.minter.AddGauge(stray); !errors.Is(err, ErrGaugeNotAdded) {
		t.Fatalf("expected unregistered gauge to be refused, got %v", err)
	}
}

func TestDistributeForRequiresApproval(t *testing.T) {
	f := newFixture(t)
	if err := f.gauge.Deposit(alice, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.toWeightedWeek(1)
	if _, err := f.minter.DistributeFor(bob, alice, gaugeAddr); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected approval error, got %v", err)
	}
	approved, err := f.minter.ToggleApproveDistribute(alice, bob)
	if err != nil || !approved {
		t.Fatalf("toggle should approve, got %v %v", approved, err)
	}
	paid, err := f.minter.DistributeFor(bob, alice, gaugeAddr)
	if err != nil {
		t.Fatalf("distribute for: %v", err)
	}
	if f.ledger.BalanceOf(alice).Cmp(paid) != 0 || f.ledger.BalanceOf(bob).Sign() != 0 {
		t.Fatalf("payout must go to the user, not the operator")
	}
	if approved, err := f.minter.ToggleApproveDistribute(alice, bob); err != nil || approved || f.minter.Approved(alice, bob) {
		t.Fatalf("second toggle should revoke")
	}
}

func TestDistributeManyBoundsBatch(t *testing.T) {
	f := newFixture(t)
	if _, err := f.minter.DistributeMany(alice, make([]common.Address, MaxBatch+1)); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected batch limit, got %v", err)
	}
	if err := f.gauge.Deposit(alice, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.toWeightedWeek(1)
	total, err := f.minter.DistributeMany(alice, []common.Address{gaugeAddr, {}})
	if err != nil {
		t.Fatalf("distribute many: %v", err)
	}
	if total.Cmp(f.ledger.BalanceOf(alice)) != 0 {
		t.Fatalf("batch total %s, ledger %s", total, f.ledger.BalanceOf(alice))
	}
	total, err = f.minter.DistributeMany(alice, []common.Address{gaugeAddr, otherGauge})
	if !errors.Is(err, ErrGaugeNotAdded) {
		t.Fatalf("expected failure on unknown gauge, got %v", err)
	}
	if total.Sign() != 0 {
		t.Fatalf("nothing new accrued, got %s", total)
	}
}

type refusingSource struct{}

func (refusingSource) Distribute(common.Address, common.Address, *big.Int, uint64) error {
	return distributor.ErrDistributionCap
}

func TestFailedDistributionReversesCredit(t *testing.T) {
	f := newFixture(t)
	m, err := New(proxy, f.ctrl, refusingSource{}, f.ledger, f.clock)
	if err != nil {
		t.Fatalf("minter: %v", err)
	}
	if err := m.AddGauge(f.gauge); err != nil {
		t.Fatalf("register gauge: %v", err)
	}
	if err := f.gauge.Deposit(alice, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.toWeightedWeek(1)
	if _, err := m.Distribute(alice, gaugeAddr); !errors.Is(err, distributor.ErrDistributionCap) {
		t.Fatalf("expected cap error, got %v", err)
	}
	if f.ledger.BalanceOf(alice).Sign() != 0 || m.Minted(alice, gaugeAddr).Sign() != 0 {
		t.Fatalf("failed distribution left a payout behind")
	}
}

func TestPausedMinterRefusesPayouts(t *testing.T) {
	f := newFixture(t)
	f.minter.SetPauses(nativecommon.NewPauseSet(moduleName))
	if _, err := f.minter.Distribute(alice, gaugeAddr); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
}
