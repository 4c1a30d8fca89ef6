package distributor

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"liquiditygauge/storage"
)

var epochKey = []byte("distributor/epoch")

// storedEpoch is the RLP layout of Epoch.
type storedEpoch struct {
	StartTime                uint64
	Rate                     *big.Int
	PendingRate              *big.Int
	EpochStartingDistributed *big.Int
	TotalDistributed         *big.Int
}

// SetStore restores the emission state saved in db, or saves the current one
// when db holds none. Epoch advances and rate changes are written through;
// payouts reach db through StagePayout.
func (d *Distributor) SetStore(db storage.Database) error {
	if db == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := db.Get(epochKey)
	if errors.Is(err, storage.ErrNotFound) {
		d.db = db
		return d.saveLocked()
	}
	if err != nil {
		return err
	}
	var st storedEpoch
	if err := rlp.DecodeBytes(raw, &st); err != nil {
		return fmt.Errorf("distributor: decode epoch: %w", err)
	}
	d.startEpochTime = st.StartTime
	d.rate = orZero(st.Rate)
	d.pendingRate = orZero(st.PendingRate)
	d.epochStartingDistributed = orZero(st.EpochStartingDistributed)
	d.totalDistributed = orZero(st.TotalDistributed)
	d.db = db
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (d *Distributor) encodeLocked() ([]byte, error) {
	return rlp.EncodeToBytes(&storedEpoch{
		StartTime:                d.startEpochTime,
		Rate:                     d.rate,
		PendingRate:              d.pendingRate,
		EpochStartingDistributed: d.epochStartingDistributed,
		TotalDistributed:         d.totalDistributed,
	})
}

func (d *Distributor) saveLocked() error {
	if d.db == nil {
		return nil
	}
	encoded, err := d.encodeLocked()
	if err != nil {
		return err
	}
	if err := d.db.Put(epochKey, encoded); err != nil {
		return fmt.Errorf("distributor: persist: %w", err)
	}
	return nil
}

// StagePayout adds the emission state, including the payout just recorded by
// Distribute, to batch.
func (d *Distributor) StagePayout(batch storage.Batch, _ common.Address) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil
	}
	encoded, err := d.encodeLocked()
	if err != nil {
		return err
	}
	batch.Put(epochKey, encoded)
	return nil
}
