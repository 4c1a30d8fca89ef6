package gauge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "liquiditygauge/native/common"
)

// WeightSource is the controller view consumed by the gauge. Weights are 1e18
// fixed-point fractions of the total emission.
type WeightSource interface {
	CheckpointGauge(gauge common.Address, now uint64) error
	GaugeRelativeWeight(gauge common.Address, t uint64) (*big.Int, error)
}

// weightResolver caches the gauge's relative weight per week. Weeks are
// resolved contiguously, so the log is addressed by index rather than by
// searching.
type weightResolver struct {
	gauge   common.Address
	source  WeightSource
	first   uint64
	weights []*big.Int
	horizon uint64
}

func newWeightResolver(gauge common.Address, source WeightSource) *weightResolver {
	return &weightResolver{gauge: gauge, source: source}
}

// resolve makes every week from the one containing from up to the one
// containing now available to at. Weeks already cached are not queried again.
func (r *weightResolver) resolve(from, now uint64) error {
	if err := r.source.CheckpointGauge(r.gauge, now); err != nil {
		return fmt.Errorf("gauge: checkpoint controller: %w", err)
	}
	fromWeek := nativecommon.WeekStart(from)
	nowWeek := nativecommon.WeekStart(now)
	if len(r.weights) == 0 || fromWeek < r.first {
		r.first = fromWeek
		r.weights = r.weights[:0]
	}
	for week := r.first + uint64(len(r.weights))*nativecommon.Week; week <= nowWeek; week += nativecommon.Week {
		w, err := r.source.GaugeRelativeWeight(r.gauge, week)
		if err != nil {
			return fmt.Errorf("gauge: relative weight at %d: %w", week, err)
		}
		if w == nil {
			w = big.NewInt(0)
		}
		r.weights = append(r.weights, new(big.Int).Set(w))
	}
	if nowWeek > r.horizon {
		r.horizon = nowWeek
	}
	return nil
}

// at returns the cached weight of the week containing ts. Weeks beyond the
// last resolved "now" are never answered.
func (r *weightResolver) at(ts uint64) (*big.Int, error) {
	week := nativecommon.WeekStart(ts)
	if week > r.horizon {
		return nil, ErrFutureWeight
	}
	if week < r.first {
		return nil, fmt.Errorf("gauge: week %d precedes weight log start %d", week, r.first)
	}
	idx := (week - r.first) / nativecommon.Week
	if idx >= uint64(len(r.weights)) {
		return nil, fmt.Errorf("gauge: week %d not resolved", week)
	}
	return r.weights[idx], nil
}
