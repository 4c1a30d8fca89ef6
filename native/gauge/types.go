package gauge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GaugeState is the global accrual state of a gauge. The period history lives
// alongside it in the engine as an append-only log.
type GaugeState struct {
	// WorkingSupply is the sum of all users' working balances.
	WorkingSupply *big.Int
	// TotalStaked is the sum of all raw staked balances.
	TotalStaked *big.Int
	// Integral is the accumulated rate * weight / workingSupply, scaled by
	// 1e18. It never decreases.
	Integral *big.Int
	// IntegralTimestamp records when Integral was last advanced.
	IntegralTimestamp uint64
	// Period is the index of the latest entry in the period log.
	Period uint64
	// InflationRate is the emission rate observed at the last checkpoint.
	InflationRate *big.Int
	// EpochStart is the distributor epoch start observed at the last
	// checkpoint.
	EpochStart uint64
	// Killed gauges accrue at a zero rate.
	Killed bool
}

// Clone returns a deep copy of the gauge state.
func (s *GaugeState) Clone() *GaugeState {
	if s == nil {
		return nil
	}
	return &GaugeState{
		WorkingSupply:     copyBigInt(s.WorkingSupply),
		TotalStaked:       copyBigInt(s.TotalStaked),
		Integral:          copyBigInt(s.Integral),
		IntegralTimestamp: s.IntegralTimestamp,
		Period:            s.Period,
		InflationRate:     copyBigInt(s.InflationRate),
		EpochStart:        s.EpochStart,
		Killed:            s.Killed,
	}
}

// UserState tracks a single depositor.
type UserState struct {
	Address common.Address
	// StakedBalance is the raw amount deposited.
	StakedBalance *big.Int
	// WorkingBalance is the boost-adjusted balance, never above StakedBalance.
	WorkingBalance *big.Int
	// IntegrateCheckpoint is the timestamp of the user's last fold.
	IntegrateCheckpoint uint64
	// IntegrateInvSupply snapshots the gauge integral at the last fold.
	IntegrateInvSupply *big.Int
	// IntegrateFraction is the cumulative reward claim. It never decreases.
	IntegrateFraction *big.Int
	// Period is the gauge period the user last synced against.
	Period uint64
}

func newUserState(addr common.Address) *UserState {
	return &UserState{
		Address:            addr,
		StakedBalance:      big.NewInt(0),
		WorkingBalance:     big.NewInt(0),
		IntegrateInvSupply: big.NewInt(0),
		IntegrateFraction:  big.NewInt(0),
	}
}

// Clone returns a deep copy of the user state.
func (u *UserState) Clone() *UserState {
	if u == nil {
		return nil
	}
	return &UserState{
		Address:             u.Address,
		StakedBalance:       copyBigInt(u.StakedBalance),
		WorkingBalance:      copyBigInt(u.WorkingBalance),
		IntegrateCheckpoint: u.IntegrateCheckpoint,
		IntegrateInvSupply:  copyBigInt(u.IntegrateInvSupply),
		IntegrateFraction:   copyBigInt(u.IntegrateFraction),
		Period:              u.Period,
	}
}

// PeriodCheckpoint is one entry of the period log.
type PeriodCheckpoint struct {
	Timestamp uint64
	Integral  *big.Int
}

func copyBigInt(value *big.Int) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(value)
}
