package gauge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultTokenlessProduction is the share, in percent, of a deposit that
// counts towards the working balance without any boost.
const DefaultTokenlessProduction uint64 = 40

// BoostSource is the vote-locked balance oracle used for boosts.
type BoostSource interface {
	BalanceOf(user common.Address, t uint64) *big.Int
	TotalSupply(t uint64) *big.Int
	// LockUpdatedAt is when the user's lock last changed.
	LockUpdatedAt(user common.Address) uint64
}

// workingBalance computes the boosted balance of a user:
//
//	min(staked, staked*tokenless/100 + totalStaked*boost/totalBoost*(100-tokenless)/100)
func workingBalance(staked, totalStaked, boost, totalBoost *big.Int, tokenless uint64) *big.Int {
	if staked == nil || staked.Sign() <= 0 {
		return big.NewInt(0)
	}
	hundred := big.NewInt(100)
	limit := new(big.Int).Mul(staked, new(big.Int).SetUint64(tokenless))
	limit.Quo(limit, hundred)
	if totalBoost != nil && totalBoost.Sign() > 0 && boost != nil && boost.Sign() > 0 && totalStaked != nil {
		boosted := new(big.Int).Mul(totalStaked, boost)
		boosted.Quo(boosted, totalBoost)
		boosted.Mul(boosted, new(big.Int).SetUint64(100-tokenless))
		boosted.Quo(boosted, hundred)
		limit.Add(limit, boosted)
	}
	if limit.Cmp(staked) > 0 {
		limit.Set(staked)
	}
	return limit
}

// updateLiquidityLimit recomputes the user's working balance from the boost
// oracle at now and applies the difference to the working supply.
func (tx *txn) updateLiquidityLimit(now uint64) {
	var boost, totalBoost *big.Int
	if tx.engine.boosts != nil {
		boost = tx.engine.boosts.BalanceOf(tx.user.Address, now)
		totalBoost = tx.engine.boosts.TotalSupply(now)
	}
	next := workingBalance(tx.user.StakedBalance, tx.gauge.TotalStaked, boost, totalBoost, tx.engine.tokenless)
	supply := new(big.Int).Sub(tx.gauge.WorkingSupply, tx.user.WorkingBalance)
	supply.Add(supply, next)
	if supply.Sign() < 0 {
		supply.SetInt64(0)
	}
	tx.gauge.WorkingSupply = supply
	tx.user.WorkingBalance = next
}
