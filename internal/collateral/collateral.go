// Package collateral tracks each user's signed quote-asset balance.
package collateral

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/perplab/perpengine/internal/perrors"
)

// Account is one user's collateral balance in quote smallest-units.
type Account struct {
	Owner     common.Address
	Amount    int64
	UpdatedAt int64
}

// Ledger is a thread-safe owner -> Account map, grounded on the account
// manager's lock-guarded balance map.
type Ledger struct {
	mu       sync.Mutex
	accounts map[common.Address]*Account
}

// NewLedger creates an empty collateral ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[common.Address]*Account)}
}

func (l *Ledger) getOrCreate(owner common.Address) *Account {
	acc, ok := l.accounts[owner]
	if !ok {
		acc = &Account{Owner: owner}
		l.accounts[owner] = acc
	}
	return acc
}

// Get returns a copy of the owner's account (zero value if none exists).
func (l *Ledger) Get(owner common.Address) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[owner]
	if !ok {
		return Account{Owner: owner}
	}
	return *acc
}

// Deposit credits amount to the owner's collateral balance.
func (l *Ledger) Deposit(owner common.Address, amount uint64, now int64) error {
	if amount == 0 {
		return perrors.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.getOrCreate(owner)
	acc.Amount += int64(amount)
	acc.UpdatedAt = now
	return nil
}

// Withdraw debits amount from the owner's collateral balance. The caller
// (internal/host) is responsible for the post-withdrawal health check
// before committing; Withdraw itself only enforces collateral_amount >= 0.
func (l *Ledger) Withdraw(owner common.Address, amount uint64, now int64) error {
	if amount == 0 {
		return perrors.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.getOrCreate(owner)
	if acc.Amount < int64(amount) {
		return perrors.ErrInsufficientCollateral
	}
	acc.Amount -= int64(amount)
	acc.UpdatedAt = now
	return nil
}

// Adjust applies a signed delta directly to the ledger, used by funding
// settlement, realized PnL, and liquidation penalty/payout bookkeeping.
func (l *Ledger) Adjust(owner common.Address, delta int64, now int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.getOrCreate(owner)
	acc.Amount += delta
	acc.UpdatedAt = now
	return nil
}

// SetZero resets an account's balance, used after liquidation pays out or
// covers bad debt.
func (l *Ledger) SetZero(owner common.Address, now int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.getOrCreate(owner)
	acc.Amount = 0
	acc.UpdatedAt = now
}

// String renders an account for log fields.
func (a Account) String() string {
	return fmt.Sprintf("%s: %d", a.Owner.Hex(), a.Amount)
}
