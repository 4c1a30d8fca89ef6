package gauge

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"liquiditygauge/storage"
)

const (
	stateKeyFormat  = "gauge/%s/state"
	periodKeyFormat = "gauge/%s/period/%020d"
	periodPrefix    = "gauge/%s/period/"
	userKeyFormat   = "gauge/%s/user/%s"
	userPrefix      = "gauge/%s/user/"
)

// storedState is the RLP layout of GaugeState.
type storedState struct {
	WorkingSupply     *big.Int
	TotalStaked       *big.Int
	Integral          *big.Int
	IntegralTimestamp uint64
	Period            uint64
	InflationRate     *big.Int
	EpochStart        uint64
	Killed            bool
}

type storedPeriod struct {
	Timestamp uint64
	Integral  *big.Int
}

type storedUser struct {
	Address             common.Address
	StakedBalance       *big.Int
	WorkingBalance      *big.Int
	IntegrateCheckpoint uint64
	IntegrateInvSupply  *big.Int
	IntegrateFraction   *big.Int
	Period              uint64
}

// Store persists gauge snapshots. Each committed transaction is written as a
// single batch so that the state, the period log tail and the user record
// never diverge on disk.
type Store struct {
	db storage.Database
}

// NewStore wraps a key-value database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func gaugeKey(format string, addr common.Address, args ...interface{}) []byte {
	return []byte(fmt.Sprintf(format, append([]interface{}{strings.ToLower(addr.Hex())}, args...)...))
}

func (s *Store) save(addr common.Address, tx *txn) error {
	if s == nil || s.db == nil {
		return nil
	}
	batch := s.db.NewBatch()
	g := tx.gauge
	encoded, err := rlp.EncodeToBytes(&storedState{
		WorkingSupply:     g.WorkingSupply,
		TotalStaked:       g.TotalStaked,
		Integral:          g.Integral,
		IntegralTimestamp: g.IntegralTimestamp,
		Period:            g.Period,
		InflationRate:     g.InflationRate,
		EpochStart:        g.EpochStart,
		Killed:            g.Killed,
	})
	if err != nil {
		return err
	}
	batch.Put(gaugeKey(stateKeyFormat, addr), encoded)

	if tx.period != nil {
		// The log tail always sits at index Period, both when it is
		// appended and when it is rewritten in place.
		encoded, err = rlp.EncodeToBytes(&storedPeriod{Timestamp: tx.period.Timestamp, Integral: tx.period.Integral})
		if err != nil {
			return err
		}
		batch.Put(gaugeKey(periodKeyFormat, addr, g.Period), encoded)
	}

	if !tx.global {
		u := tx.user
		encoded, err = rlp.EncodeToBytes(&storedUser{
			Address:             u.Address,
			StakedBalance:       u.StakedBalance,
			WorkingBalance:      u.WorkingBalance,
			IntegrateCheckpoint: u.IntegrateCheckpoint,
			IntegrateInvSupply:  u.IntegrateInvSupply,
			IntegrateFraction:   u.IntegrateFraction,
			Period:              u.Period,
		})
		if err != nil {
			return err
		}
		batch.Put(gaugeKey(userKeyFormat, addr, strings.ToLower(u.Address.Hex())), encoded)
	}
	return batch.Write()
}

// saveGenesis writes the deployment snapshot so that a restored gauge keeps
// the first period entry.
func (s *Store) saveGenesis(addr common.Address, state *GaugeState, first PeriodCheckpoint) error {
	tx := &txn{gauge: state, period: &first, global: true}
	return s.save(addr, tx)
}

type snapshot struct {
	state   *GaugeState
	periods []PeriodCheckpoint
	users   map[common.Address]*UserState
}

// load reads the snapshot of the gauge at addr. It reports false when nothing
// has been stored yet.
func (s *Store) load(addr common.Address) (*snapshot, bool, error) {
	raw, err := s.db.Get(gaugeKey(stateKeyFormat, addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var st storedState
	if err := rlp.DecodeBytes(raw, &st); err != nil {
		return nil, false, fmt.Errorf("gauge: decode state: %w", err)
	}
	snap := &snapshot{
		state: &GaugeState{
			WorkingSupply:     copyBigInt(st.WorkingSupply),
			TotalStaked:       copyBigInt(st.TotalStaked),
			Integral:          copyBigInt(st.Integral),
			IntegralTimestamp: st.IntegralTimestamp,
			Period:            st.Period,
			InflationRate:     copyBigInt(st.InflationRate),
			EpochStart:        st.EpochStart,
			Killed:            st.Killed,
		},
		users: make(map[common.Address]*UserState),
	}

	periodKeys, err := s.db.Keys(gaugeKey(periodPrefix, addr))
	if err != nil {
		return nil, false, err
	}
	if uint64(len(periodKeys)) != st.Period+1 {
		return nil, false, fmt.Errorf("gauge: period log has %d entries, state expects %d", len(periodKeys), st.Period+1)
	}
	snap.periods = make([]PeriodCheckpoint, 0, len(periodKeys))
	for _, key := range periodKeys {
		raw, err := s.db.Get(key)
		if err != nil {
			return nil, false, err
		}
		var p storedPeriod
		if err := rlp.DecodeBytes(raw, &p); err != nil {
			return nil, false, fmt.Errorf("gauge: decode period %s: %w", key, err)
		}
		snap.periods = append(snap.periods, PeriodCheckpoint{Timestamp: p.Timestamp, Integral: copyBigInt(p.Integral)})
	}

	userKeys, err := s.db.Keys(gaugeKey(userPrefix, addr))
	if err != nil {
		return nil, false, err
	}
	for _, key := range userKeys {
		raw, err := s.db.Get(key)
		if err != nil {
			return nil, false, err
		}
		var u storedUser
		if err := rlp.DecodeBytes(raw, &u); err != nil {
			return nil, false, fmt.Errorf("gauge: decode user %s: %w", key, err)
		}
		snap.users[u.Address] = &UserState{
			Address:             u.Address,
			StakedBalance:       copyBigInt(u.StakedBalance),
			WorkingBalance:      copyBigInt(u.WorkingBalance),
			IntegrateCheckpoint: u.IntegrateCheckpoint,
			IntegrateInvSupply:  copyBigInt(u.IntegrateInvSupply),
			IntegrateFraction:   copyBigInt(u.IntegrateFraction),
			Period:              u.Period,
		}
	}
	return snap, true, nil
}
