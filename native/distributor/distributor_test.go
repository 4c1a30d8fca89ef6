package distributor

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const (
	deployTime = uint64(1_700_000_000)
	sixMonths  = DefaultEpochDuration
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	outsider = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	proxy    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newTestDistributor(t *testing.T) *Distributor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Admin = admin
	cfg.InitialRate = big.NewInt(1_000_000)
	d, err := New(cfg, deployTime)
	if err != nil {
		t.Fatalf("new distributor: %v", err)
	}
	return d
}

func TestStartEpochTimeWriteAdvancesOnlyWhenDue(t *testing.T) {
	d := newTestDistributor(t)
	creation := d.StartEpochTime()
	if creation != deployTime+DefaultInitialDelay-sixMonths {
		t.Fatalf("unexpected creation epoch start: %d", creation)
	}

	now := deployTime + sixMonths
	if got := d.StartEpochTime(); got != creation {
		t.Fatalf("view must not advance: got %d", got)
	}
	written, err := d.StartEpochTimeWrite(now)
	if err != nil {
		t.Fatalf("start epoch time write: %v", err)
	}
	if written != creation+sixMonths {
		t.Fatalf("unexpected written epoch start: got %d want %d", written, creation+sixMonths)
	}
	if got := d.StartEpochTime(); got != creation+sixMonths {
		t.Fatalf("view not updated after write: %d", got)
	}
}

func TestStartEpochTimeWriteSameEpoch(t *testing.T) {
	d := newTestDistributor(t)
	for i := 0; i < 2; i++ {
		if _, err := d.StartEpochTimeWrite(deployTime + 10); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if d.Rate().Sign() != 0 {
		t.Fatalf("rate must remain zero before the first epoch")
	}
}

func TestUpdateDistributionParameters(t *testing.T) {
	d := newTestDistributor(t)
	boundary := d.StartEpochTime() + sixMonths

	if err := d.UpdateDistributionParameters(boundary - 3); !errors.Is(err, ErrEpochStillRunning) {
		t.Fatalf("expected epoch still running, got %v", err)
	}
	if err := d.UpdateDistributionParameters(boundary); err != nil {
		t.Fatalf("update at boundary: %v", err)
	}
}

func TestRateStartsAfterInitialDelay(t *testing.T) {
	d := newTestDistributor(t)
	creation := d.StartEpochTime()
	if d.Rate().Sign() != 0 {
		t.Fatalf("rate must be zero at deployment")
	}
	if err := d.UpdateDistributionParameters(deployTime + 86401); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if d.Rate().Sign() <= 0 {
		t.Fatalf("rate must be positive after first update")
	}
	if got := d.StartEpochTime(); got != creation+sixMonths {
		t.Fatalf("epoch start must advance by six months: got %d", got)
	}
	if err := d.UpdateDistributionParameters(deployTime + 86402); !errors.Is(err, ErrEpochStillRunning) {
		t.Fatalf("second update in same epoch must fail, got %v", err)
	}
}

func TestAvailableToDistribute(t *testing.T) {
	d := newTestDistributor(t)
	if got := d.AvailableToDistribute(deployTime); got.Sign() != 0 {
		t.Fatalf("expected nothing available at deployment, got %s", got)
	}
	now := deployTime + 86401
	if err := d.UpdateDistributionParameters(now); err != nil {
		t.Fatalf("update: %v", err)
	}
	now += sixMonths
	if got := d.AvailableToDistribute(now); got.Sign() <= 0 {
		t.Fatalf("expected emission to be available, got %s", got)
	}
	if got := d.EpochStartingDistributed(); got.Sign() != 0 {
		t.Fatalf("epoch starting distributed must be zero, got %s", got)
	}
}

func TestPendingRateAppliesAtNextEpoch(t *testing.T) {
	d := newTestDistributor(t)
	now := deployTime + 86401
	if err := d.UpdateDistributionParameters(now); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := d.SetPendingRate(admin, big.NewInt(100)); err != nil {
		t.Fatalf("set pending rate: %v", err)
	}
	if d.Rate().Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("pending rate must not apply mid-epoch, got %s", d.Rate())
	}
	now += sixMonths
	if err := d.UpdateDistributionParameters(now); err != nil {
		t.Fatalf("second update: %v", err)
	}
	if d.Rate().Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected rate after epoch: %s", d.Rate())
	}
	want := new(big.Int).Mul(big.NewInt(1_000_000), new(big.Int).SetUint64(sixMonths))
	if got := d.EpochStartingDistributed(); got.Cmp(want) != 0 {
		t.Fatalf("unexpected epoch starting distributed: got %s want %s", got, want)
	}
}

func TestAdminGatedSetters(t *testing.T) {
	d := newTestDistributor(t)
	if err := d.SetPendingRate(outsider, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized pending rate, got %v", err)
	}
	if err := d.SetDistributorProxy(outsider, proxy); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized proxy update, got %v", err)
	}
	if err := d.SetPendingRate(admin, big.NewInt(-1)); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected invalid rate, got %v", err)
	}
}

func TestDistributeBoundedByUnlockedEmission(t *testing.T) {
	d := newTestDistributor(t)
	if err := d.SetDistributorProxy(admin, proxy); err != nil {
		t.Fatalf("set proxy: %v", err)
	}
	now := deployTime + 86401
	if err := d.UpdateDistributionParameters(now); err != nil {
		t.Fatalf("update: %v", err)
	}
	now += 10
	available := d.AvailableToDistribute(now)
	if err := d.Distribute(outsider, outsider, big.NewInt(1), now); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized distribute, got %v", err)
	}
	if err := d.Distribute(proxy, outsider, available, now); err != nil {
		t.Fatalf("distribute available: %v", err)
	}
	if err := d.Distribute(proxy, outsider, big.NewInt(1), now); !errors.Is(err, ErrDistributionCap) {
		t.Fatalf("expected cap error, got %v", err)
	}
	if d.TotalDistributed().Cmp(available) != 0 {
		t.Fatalf("unexpected total distributed: %s", d.TotalDistributed())
	}
}
