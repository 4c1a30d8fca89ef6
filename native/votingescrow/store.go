package votingescrow

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"liquiditygauge/storage"
)

const lockPrefix = "escrow/lock/"

// storedLock is the RLP layout of Lock. A withdrawn lock is stored with a zero
// amount.
type storedLock struct {
	User      common.Address
	Amount    *big.Int
	End       uint64
	UpdatedAt uint64
}

func lockKey(user common.Address) []byte {
	return []byte(lockPrefix + strings.ToLower(user.Hex()))
}

// SetStore restores the locks saved in db and writes every later lock change
// to it.
func (e *Escrow) SetStore(db storage.Database) error {
	if db == nil {
		return nil
	}
	keys, err := db.Keys([]byte(lockPrefix))
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	locks := make(map[common.Address]*Lock, len(keys))
	supply := big.NewInt(0)
	for _, key := range keys {
		raw, err := db.Get(key)
		if err != nil {
			return err
		}
		var st storedLock
		if err := rlp.DecodeBytes(raw, &st); err != nil {
			return fmt.Errorf("votingescrow: decode lock %s: %w", key, err)
		}
		if st.Amount == nil || st.Amount.Sign() == 0 {
			continue
		}
		locks[st.User] = &Lock{
			Amount:    st.Amount,
			End:       st.End,
			Slope:     e.slopeFor(st.Amount),
			UpdatedAt: st.UpdatedAt,
		}
		supply.Add(supply, st.Amount)
	}
	e.locks = locks
	e.supply = supply
	e.db = db
	return nil
}

// saveLocked writes lock for user. A nil lock records a withdrawal.
func (e *Escrow) saveLocked(user common.Address, lock *Lock) error {
	if e.db == nil {
		return nil
	}
	st := storedLock{User: user, Amount: big.NewInt(0)}
	if lock != nil {
		st.Amount, st.End, st.UpdatedAt = lock.Amount, lock.End, lock.UpdatedAt
	}
	encoded, err := rlp.EncodeToBytes(&st)
	if err != nil {
		return err
	}
	if err := e.db.Put(lockKey(user), encoded); err != nil {
		return fmt.Errorf("votingescrow: persist: %w", err)
	}
	return nil
}
