package minter

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquiditygauge/native/bank"
	"liquiditygauge/storage"
)

var errStage = errors.New("stage failed")

type failingStager struct{}

func (failingStager) StagePayout(storage.Batch, common.Address) error { return errStage }

func TestRestoredMinterDoesNotPayTwice(t *testing.T) {
	db := storage.NewMemDB()
	f := newFixture(t)
	if err := f.dist.SetStore(db); err != nil {
		t.Fatalf("distributor store: %v", err)
	}
	if err := f.minter.SetStore(db, f.ledger, f.dist); err != nil {
		t.Fatalf("minter store: %v", err)
	}
	if err := f.gauge.Deposit(alice, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.minter.ToggleApproveDistribute(alice, bob); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.toWeightedWeek(1)
	paid, err := f.minter.Distribute(alice, gaugeAddr)
	if err != nil || paid.Sign() <= 0 {
		t.Fatalf("first payout %v: %v", paid, err)
	}

	ledger := bank.NewLedger()
	if err := ledger.Load(db); err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	restored, err := New(proxy, f.ctrl, f.dist, ledger, f.clock)
	if err != nil {
		t.Fatalf("minter: %v", err)
	}
	if err := restored.SetStore(db, ledger, f.dist); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := restored.AddGauge(f.gauge); err != nil {
		t.Fatalf("add gauge: %v", err)
	}
	if got := restored.Minted(alice, gaugeAddr); got.Cmp(paid) != 0 {
		t.Fatalf("minted total: got %s want %s", got, paid)
	}
	if !restored.Approved(alice, bob) {
		t.Fatalf("approval lost on restore")
	}
	again, err := restored.DistributeFor(bob, alice, gaugeAddr)
	if err != nil {
		t.Fatalf("second payout: %v", err)
	}
	if again.Sign() != 0 {
		t.Fatalf("restored minter paid %s twice", again)
	}
	if got := ledger.BalanceOf(alice); got.Cmp(paid) != 0 {
		t.Fatalf("restored balance: got %s want %s", got, paid)
	}
}

func TestPayoutRevertedWhenStagingFails(t *testing.T) {
	f := newFixture(t)
	if err := f.minter.SetStore(storage.NewMemDB(), failingStager{}); err != nil {
		t.Fatalf("set store: %v", err)
	}
	if err := f.gauge.Deposit(alice, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.toWeightedWeek(1)
	if _, err := f.minter.Distribute(alice, gaugeAddr); !errors.Is(err, errStage) {
		t.Fatalf("expected staging failure, got %v", err)
	}
	if f.ledger.BalanceOf(alice).Sign() != 0 || f.minter.Minted(alice, gaugeAddr).Sign() != 0 {
		t.Fatalf("failed payout must not leave a credit or a minted total")
	}
}
