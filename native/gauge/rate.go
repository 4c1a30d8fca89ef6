package gauge

import (
	"fmt"
	"math/big"
)

// RateSource is the emission-rate authority consumed by the gauge.
type RateSource interface {
	Rate() *big.Int
	// StartEpochTimeWrite advances the emission epoch when it has elapsed and
	// returns the start of the epoch in effect at now.
	StartEpochTimeWrite(now uint64) (uint64, error)
}

// rateWindow prices intervals against a rate that may have changed once, at
// epochStart, since the previous checkpoint.
type rateWindow struct {
	epochStart uint64
	previous   *big.Int
	current    *big.Int
}

// observeRate reads the rate authority at now. The previous rate is the value
// cached at the last checkpoint, because the authority only reports the rate
// of the epoch that is running now.
func observeRate(src RateSource, cachedRate *big.Int, now uint64) (rateWindow, error) {
	start, err := src.StartEpochTimeWrite(now)
	if err != nil {
		return rateWindow{}, fmt.Errorf("gauge: read epoch start: %w", err)
	}
	current := src.Rate()
	if current == nil {
		current = big.NewInt(0)
	}
	return rateWindow{
		epochStart: start,
		previous:   copyBigInt(cachedRate),
		current:    new(big.Int).Set(current),
	}, nil
}

// zeroed returns a window that emits nothing, used by killed gauges.
func (w rateWindow) zeroed() rateWindow {
	return rateWindow{epochStart: w.epochStart, previous: big.NewInt(0), current: big.NewInt(0)}
}

// rateXTime returns the emission over [t0, t1]. Intervals that straddle the
// epoch start are split: the part before the boundary is priced at the
// previous rate and the rest at the current one.
func (w rateWindow) rateXTime(t0, t1 uint64) *big.Int {
	if t1 <= t0 {
		return big.NewInt(0)
	}
	switch {
	case w.epochStart <= t0:
		return mulUint(w.current, t1-t0)
	case w.epochStart >= t1:
		return mulUint(w.previous, t1-t0)
	default:
		before := mulUint(w.previous, w.epochStart-t0)
		return before.Add(before, mulUint(w.current, t1-w.epochStart))
	}
}

func mulUint(x *big.Int, n uint64) *big.Int {
	return new(big.Int).Mul(x, new(big.Int).SetUint64(n))
}
