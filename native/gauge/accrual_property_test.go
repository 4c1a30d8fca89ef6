package gauge

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "liquiditygauge/native/common"
)

// referenceLedger accrues every user's share exactly, with rationals, over the
// same sequence of operations the engine sees.
type referenceLedger struct {
	rate    *big.Int
	weight  func(week uint64) *big.Int
	last    uint64
	earned  map[common.Address]*big.Rat
	working map[common.Address]*big.Int
}

func (r *referenceLedger) advance(now uint64) {
	supply := big.NewInt(0)
	for _, wb := range r.working {
		supply.Add(supply, wb)
	}
	if supply.Sign() > 0 {
		for prev := r.last; prev < now; {
			next := nativecommon.WeekStart(prev) + nativecommon.Week
			if next > now {
				next = now
			}
			emitted := new(big.Int).Mul(r.rate, new(big.Int).SetUint64(next-prev))
			emitted.Mul(emitted, r.weight(nativecommon.WeekStart(prev)))
			for user, wb := range r.working {
				share := new(big.Rat).SetFrac(new(big.Int).Mul(emitted, wb), new(big.Int).Mul(supply, unit))
				r.earned[user].Add(r.earned[user], share)
			}
			prev = next
		}
	}
	r.last = now
}

func TestAccrualMatchesExactReference(t *testing.T) {
	rng := rand.New(rand.NewSource(20240601))
	users := []common.Address{alice, bob, carol, dave}
	weight := func(week uint64) *big.Int {
		return fractionOf(int64(week/nativecommon.Week%3)+1, 4)
	}

	h := newHarness(t, tokens(1), unit)
	h.weights.fn = weight
	ref := &referenceLedger{
		rate:    tokens(1),
		weight:  weight,
		last:    genesis,
		earned:  make(map[common.Address]*big.Rat),
		working: make(map[common.Address]*big.Int),
	}
	for _, u := range users {
		ref.earned[u] = new(big.Rat)
		ref.working[u] = big.NewInt(0)
	}

	for step := 0; step < 200; step++ {
		h.clock.Sleep(uint64(rng.Intn(3*86400)) + 1)
		ref.advance(h.clock.Now())

		user := users[rng.Intn(len(users))]
		h.boosts.set(user, tokens(int64(rng.Intn(5))))
		staked := h.engine.BalanceOf(user)
		amount := tokens(int64(rng.Intn(100) + 1))
		switch {
		case staked.Sign() > 0 && rng.Intn(3) == 0:
			if amount.Cmp(staked) > 0 {
				amount = staked
			}
			if err := h.engine.Withdraw(user, amount); err != nil {
				t.Fatalf("step %d withdraw: %v", step, err)
			}
		case rng.Intn(4) == 0:
			if err := h.engine.UserCheckpoint(user); err != nil {
				t.Fatalf("step %d checkpoint: %v", step, err)
			}
		default:
			h.deposit(t, user, amount)
		}
		ref.working[user] = h.engine.WorkingBalance(user)

		total := big.NewInt(0)
		working := big.NewInt(0)
		for _, u := range users {
			total.Add(total, h.engine.BalanceOf(u))
			working.Add(working, h.engine.WorkingBalance(u))
			if h.engine.WorkingBalance(u).Cmp(h.engine.BalanceOf(u)) > 0 {
				t.Fatalf("step %d: working balance exceeds stake for %s", step, u.Hex())
			}
		}
		if total.Cmp(h.engine.TotalSupply()) != 0 {
			t.Fatalf("step %d: total supply %s != sum of balances %s", step, h.engine.TotalSupply(), total)
		}
		if working.Cmp(h.engine.WorkingSupply()) != 0 {
			t.Fatalf("step %d: working supply %s != sum of working balances %s", step, h.engine.WorkingSupply(), working)
		}
	}

	h.clock.Sleep(86400)
	ref.advance(h.clock.Now())
	emitted := new(big.Rat)
	for _, u := range users {
		emitted.Add(emitted, ref.earned[u])
	}
	tolerance := new(big.Rat).Mul(emitted, big.NewRat(1, 10_000_000_000))
	prevIntegral := big.NewInt(0)
	for _, u := range users {
		before := h.engine.IntegrateFraction(u)
		got := h.checkpoint(t, u)
		if got.Cmp(before) < 0 {
			t.Fatalf("integrate fraction decreased for %s", u.Hex())
		}
		diff := new(big.Rat).Sub(new(big.Rat).SetInt(got), ref.earned[u])
		if diff.Abs(diff).Cmp(tolerance) > 0 {
			t.Fatalf("%s accrued %s, reference %s", u.Hex(), got, ref.earned[u].FloatString(0))
		}
		if got.Cmp(new(big.Int).Quo(ref.earned[u].Num(), ref.earned[u].Denom())) > 0 {
			t.Fatalf("%s accrued more than the exact share", u.Hex())
		}
	}

	for p := uint64(0); p <= h.engine.Period(); p++ {
		entry, err := h.engine.PeriodCheckpoint(p)
		if err != nil {
			t.Fatalf("period %d: %v", p, err)
		}
		if entry.Integral.Cmp(prevIntegral) < 0 {
			t.Fatalf("integral decreased at period %d", p)
		}
		prevIntegral = entry.Integral
	}
}
