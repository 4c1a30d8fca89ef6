package gauge

import (
	"math/big"

	nativecommon "liquiditygauge/native/common"
)

// unit is the fixed-point scale of the integral (1e18).
var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// txn is a mutation in progress. It works on copies of the gauge and user
// state; the engine only publishes them once every step has succeeded.
type txn struct {
	engine  *Engine
	gauge   *GaugeState
	user    *UserState
	newUser bool
	// global transactions fold the integral without settling a user.
	global bool
	// period is the log entry written by the checkpoint; appendLog tells
	// whether it extends the log or replaces its tail.
	period    *PeriodCheckpoint
	appendLog bool
}

// checkpoint folds the time elapsed since the last global checkpoint into the
// integral and then settles the user's accrual with the working balance that
// was in effect over that time.
func (tx *txn) checkpoint(now uint64) error {
	g := tx.gauge
	u := tx.user
	if now < g.IntegralTimestamp {
		return ErrClockRewind
	}
	if now == g.IntegralTimestamp && now == u.IntegrateCheckpoint && u.Period == g.Period {
		return nil
	}
	if err := tx.advanceIntegral(now); err != nil {
		return err
	}

	delta := new(big.Int).Sub(g.Integral, u.IntegrateInvSupply)
	if delta.Sign() > 0 && u.WorkingBalance.Sign() > 0 {
		delta.Mul(delta, u.WorkingBalance)
		delta.Quo(delta, unit)
		u.IntegrateFraction = new(big.Int).Add(u.IntegrateFraction, delta)
	}
	u.IntegrateInvSupply = new(big.Int).Set(g.Integral)
	u.IntegrateCheckpoint = now
	u.Period = g.Period
	return nil
}

// advanceIntegral walks week by week from IntegralTimestamp to now. Each
// week is priced with the weight of that week; the working supply is constant
// over the whole walk because every change to it is preceded by a checkpoint.
func (tx *txn) advanceIntegral(now uint64) error {
	g := tx.gauge
	e := tx.engine

	window, err := observeRate(e.rates, g.InflationRate, now)
	if err != nil {
		return err
	}
	priced := window
	if g.Killed {
		priced = window.zeroed()
	}

	if now > g.IntegralTimestamp {
		if err := e.weights.resolve(g.IntegralTimestamp, now); err != nil {
			return err
		}
		if g.WorkingSupply.Sign() > 0 {
			integral := new(big.Int).Set(g.Integral)
			prev := g.IntegralTimestamp
			next := minUint(nativecommon.WeekStart(prev)+nativecommon.Week, now)
			for {
				w, err := e.weights.at(prev)
				if err != nil {
					return err
				}
				step := priced.rateXTime(prev, next)
				step.Mul(step, w)
				step.Quo(step, g.WorkingSupply)
				integral.Add(integral, step)
				if next == now {
					break
				}
				prev = next
				next = minUint(next+nativecommon.Week, now)
			}
			g.Integral = integral
		}
	}

	g.InflationRate = window.current
	g.EpochStart = window.epochStart
	g.IntegralTimestamp = now

	// The period log only grows when time moved; a second checkpoint within
	// the same second rewrites the tail with the same integral.
	if now > tx.engine.lastPeriodTimestamp() {
		g.Period++
		tx.appendLog = true
	}
	tx.period = &PeriodCheckpoint{Timestamp: now, Integral: new(big.Int).Set(g.Integral)}
	return nil
}

func minUint(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
