package controller

import (
	"math/big"
	"sort"

	nativecommon "liquiditygauge/native/common"
)

// point is a weight effective from Week until the next point supersedes it.
type point struct {
	Week   uint64
	Weight *big.Int
}

// weightLog is a sparse, append-only history of week-aligned weights. Weeks
// without an explicit point carry the previous weight forward.
type weightLog struct {
	points []point
}

// schedule records a weight effective from the supplied week. Only the tail
// may be rewritten.
func (l *weightLog) schedule(week uint64, weight *big.Int) {
	week = nativecommon.WeekStart(week)
	value := new(big.Int).Set(weight)
	if n := len(l.points); n > 0 && l.points[n-1].Week >= week {
		l.points[n-1] = point{Week: l.points[n-1].Week, Weight: value}
		return
	}
	l.points = append(l.points, point{Week: week, Weight: value})
}

// at returns the weight in effect during the week containing ts.
func (l *weightLog) at(ts uint64) *big.Int {
	week := nativecommon.WeekStart(ts)
	idx := sort.Search(len(l.points), func(i int) bool {
		return l.points[i].Week > week
	})
	if idx == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(l.points[idx-1].Weight)
}

// fill writes an explicit carried-forward point for every week up to and
// including upTo. Re-running it for the same week appends nothing.
func (l *weightLog) fill(upTo uint64) int {
	upTo = nativecommon.WeekStart(upTo)
	n := len(l.points)
	if n == 0 {
		return 0
	}
	written := 0
	last := l.points[n-1]
	for week := last.Week + nativecommon.Week; week <= upTo; week += nativecommon.Week {
		l.points = append(l.points, point{Week: week, Weight: new(big.Int).Set(last.Weight)})
		written++
	}
	return written
}

func (l *weightLog) lastWeek() uint64 {
	if len(l.points) == 0 {
		return 0
	}
	return l.points[len(l.points)-1].Week
}
