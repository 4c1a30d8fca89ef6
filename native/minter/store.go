package minter

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"liquiditygauge/storage"
)

const (
	mintedPrefix   = "minter/minted/"
	approvalPrefix = "minter/approval/"
)

// Stager adds its share of a payout to the batch that records it, so that the
// payout and the minted total are stored together.
type Stager interface {
	StagePayout(batch storage.Batch, user common.Address) error
}

type storedMinted struct {
	User   common.Address
	Gauge  common.Address
	Amount *big.Int
}

type storedApproval struct {
	User     common.Address
	Operator common.Address
	Approved bool
}

func pairKey(prefix string, a, b common.Address) []byte {
	return []byte(prefix + strings.ToLower(a.Hex()) + "/" + strings.ToLower(b.Hex()))
}

// SetStore restores minted totals and approvals from db. Every later payout is
// written in one batch together with the output of stagers.
func (m *Minter) SetStore(db storage.Database, stagers ...Stager) error {
	if db == nil {
		return nil
	}
	minted := make(map[common.Address]map[common.Address]*big.Int)
	err := decodeAll(db, mintedPrefix, func(raw []byte) error {
		var st storedMinted
		if err := rlp.DecodeBytes(raw, &st); err != nil {
			return err
		}
		byGauge, ok := minted[st.User]
		if !ok {
			byGauge = make(map[common.Address]*big.Int)
			minted[st.User] = byGauge
		}
		byGauge[st.Gauge] = st.Amount
		return nil
	})
	if err != nil {
		return err
	}
	approvals := make(map[common.Address]map[common.Address]bool)
	err = decodeAll(db, approvalPrefix, func(raw []byte) error {
		var st storedApproval
		if err := rlp.DecodeBytes(raw, &st); err != nil {
			return err
		}
		if !st.Approved {
			return nil
		}
		byOperator, ok := approvals[st.User]
		if !ok {
			byOperator = make(map[common.Address]bool)
			approvals[st.User] = byOperator
		}
		byOperator[st.Operator] = true
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.db = db
	m.stagers = stagers
	m.minted = minted
	m.approvals = approvals
	return nil
}

func decodeAll(db storage.Database, prefix string, fn func([]byte) error) error {
	keys, err := db.Keys([]byte(prefix))
	if err != nil {
		return err
	}
	for _, key := range keys {
		raw, err := db.Get(key)
		if err != nil {
			return err
		}
		if err := fn(raw); err != nil {
			return fmt.Errorf("minter: decode %s: %w", key, err)
		}
	}
	return nil
}

func (m *Minter) persistPayoutLocked(user, gauge common.Address, total *big.Int) error {
	if m.db == nil {
		return nil
	}
	batch := m.db.NewBatch()
	encoded, err := rlp.EncodeToBytes(&storedMinted{User: user, Gauge: gauge, Amount: total})
	if err != nil {
		return err
	}
	batch.Put(pairKey(mintedPrefix, user, gauge), encoded)
	for _, s := range m.stagers {
		if err := s.StagePayout(batch, user); err != nil {
			return err
		}
	}
	return batch.Write()
}

func (m *Minter) persistApprovalLocked(user, operator common.Address, approved bool) error {
	if m.db == nil {
		return nil
	}
	encoded, err := rlp.EncodeToBytes(&storedApproval{User: user, Operator: operator, Approved: approved})
	if err != nil {
		return err
	}
	return m.db.Put(pairKey(approvalPrefix, user, operator), encoded)
}
