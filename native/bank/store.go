package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"liquiditygauge/storage"
)

const balancePrefix = "bank/balance/"

var supplyKey = []byte("bank/supply")

type storedBalance struct {
	Address common.Address
	Amount  *big.Int
}

func balanceKey(addr common.Address) []byte {
	return []byte(balancePrefix + strings.ToLower(addr.Hex()))
}

// Load replaces the ledger contents with the balances saved in db.
func (l *Ledger) Load(db storage.Database) error {
	keys, err := db.Keys([]byte(balancePrefix))
	if err != nil {
		return err
	}
	balances := make(map[common.Address]*big.Int, len(keys))
	for _, key := range keys {
		raw, err := db.Get(key)
		if err != nil {
			return err
		}
		var b storedBalance
		if err := rlp.DecodeBytes(raw, &b); err != nil {
			return fmt.Errorf("bank: decode balance %s: %w", key, err)
		}
		if b.Amount != nil && b.Amount.Sign() > 0 {
			balances[b.Address] = b.Amount
		}
	}
	supply := big.NewInt(0)
	raw, err := db.Get(supplyKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	default:
		if err := rlp.DecodeBytes(raw, supply); err != nil {
			return fmt.Errorf("bank: decode supply: %w", err)
		}
	}

	l.mu.Lock()
	l.balances = balances
	l.supply = supply
	l.mu.Unlock()
	return nil
}

// StagePayout adds the balance of user and the total supply to batch.
func (l *Ledger) StagePayout(batch storage.Batch, user common.Address) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, ok := l.balances[user]
	if !ok {
		balance = big.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(&storedBalance{Address: user, Amount: balance})
	if err != nil {
		return err
	}
	batch.Put(balanceKey(user), encoded)
	encoded, err = rlp.EncodeToBytes(l.supply)
	if err != nil {
		return err
	}
	batch.Put(supplyKey, encoded)
	return nil
}
