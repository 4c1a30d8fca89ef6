package bank

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
)

// Ledger is an in-memory reward token ledger. It stands in for the external
// token contract that receives minted rewards.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
	supply   *big.Int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]*big.Int), supply: big.NewInt(0)}
}

// Credit increases the balance of to.
func (l *Ledger) Credit(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[to]
	if !ok {
		balance = big.NewInt(0)
	}
	l.balances[to] = new(big.Int).Add(balance, amount)
	l.supply = new(big.Int).Add(l.supply, amount)
	return nil
}

// Debit decreases the balance of from.
func (l *Ledger) Debit(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[from] = new(big.Int).Sub(balance, amount)
	l.supply = new(big.Int).Sub(l.supply, amount)
	return nil
}

// BalanceOf returns the balance of addr.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if balance, ok := l.balances[addr]; ok {
		return new(big.Int).Set(balance)
	}
	return big.NewInt(0)
}

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply)
}
