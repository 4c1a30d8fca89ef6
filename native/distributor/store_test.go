package distributor

import (
	"math/big"
	"testing"

	"liquiditygauge/storage"
)

func TestStoreRestoresEmissionState(t *testing.T) {
	db := storage.NewMemDB()
	d := newTestDistributor(t)
	if err := d.SetStore(db); err != nil {
		t.Fatalf("set store: %v", err)
	}
	if err := d.SetDistributorProxy(admin, proxy); err != nil {
		t.Fatalf("set proxy: %v", err)
	}
	now := deployTime + 86401
	if err := d.UpdateDistributionParameters(now); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := d.SetPendingRate(admin, big.NewInt(7)); err != nil {
		t.Fatalf("set pending rate: %v", err)
	}
	now += 100
	if err := d.Distribute(proxy, outsider, big.NewInt(5_000_000), now); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	batch := db.NewBatch()
	if err := d.StagePayout(batch, outsider); err != nil {
		t.Fatalf("stage payout: %v", err)
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	// A later deployment time must not override what was stored.
	restored, err := New(Config{Admin: admin, EpochDuration: DefaultEpochDuration, InitialDelay: DefaultInitialDelay}, deployTime+sixMonths)
	if err != nil {
		t.Fatalf("new distributor: %v", err)
	}
	if err := restored.SetStore(db); err != nil {
		t.Fatalf("restore: %v", err)
	}
	want, got := d.Snapshot(), restored.Snapshot()
	if got.StartTime != want.StartTime {
		t.Fatalf("start time: got %d want %d", got.StartTime, want.StartTime)
	}
	for name, pair := range map[string][2]*big.Int{
		"rate":                     {want.Rate, got.Rate},
		"pendingRate":              {want.PendingRate, got.PendingRate},
		"epochStartingDistributed": {want.EpochStartingDistributed, got.EpochStartingDistributed},
		"totalDistributed":         {want.TotalDistributed, got.TotalDistributed},
	} {
		if pair[0].Cmp(pair[1]) != 0 {
			t.Fatalf("%s: got %s want %s", name, pair[1], pair[0])
		}
	}
	if restored.TotalDistributed().Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("payout lost on restore: %s", restored.TotalDistributed())
	}
}

func TestSetPendingRateWritesThrough(t *testing.T) {
	db := storage.NewMemDB()
	d := newTestDistributor(t)
	if err := d.SetStore(db); err != nil {
		t.Fatalf("set store: %v", err)
	}
	if err := d.SetPendingRate(admin, big.NewInt(42)); err != nil {
		t.Fatalf("set pending rate: %v", err)
	}
	restored := newTestDistributor(t)
	if err := restored.SetStore(db); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PendingRate().Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("pending rate not persisted: %s", restored.PendingRate())
	}
}
