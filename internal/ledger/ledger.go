// Package ledger owns per-account token balances and the storage-collateral
// accounting that backs them. Every mutating balance operation recomputes the
// account's storage footprint in the same logical step and fails atomically
// if the account would be left under-collateralized.
package ledger

import (
	"errors"
	"math/bits"

	"casino-core/internal/model"
)

// Common errors for ledger operations.
var (
	ErrAccountNotRegistered          = errors.New("account is not registered")
	ErrInsufficientBalance           = errors.New("insufficient balance")
	ErrInsufficientStorageCollateral = errors.New("insufficient storage collateral")
	ErrAmountOverflow                = errors.New("amount overflows balance")
)

// AccountLedger is the exclusive owner of Account records.
type AccountLedger struct {
	accounts map[model.AccountID]*model.Account
	cost     StorageCostModel
}

// New creates an empty ledger priced by the given cost model.
func New(cost StorageCostModel) *AccountLedger {
	return &AccountLedger{
		accounts: make(map[model.AccountID]*model.Account),
		cost:     cost,
	}
}

// Exists reports whether an account is registered.
func (l *AccountLedger) Exists(id model.AccountID) bool {
	_, ok := l.accounts[id]
	return ok
}

// Get returns a copy of the account, or ErrAccountNotRegistered.
func (l *AccountLedger) Get(id model.AccountID) (*model.Account, error) {
	account, ok := l.accounts[id]
	if !ok {
		return nil, ErrAccountNotRegistered
	}
	return account.Clone(), nil
}

// Balance returns the account's balance in the given token.
func (l *AccountLedger) Balance(id model.AccountID, token model.TokenID) (uint64, error) {
	account, ok := l.accounts[id]
	if !ok {
		return 0, ErrAccountNotRegistered
	}
	return account.Balance(token), nil
}

// DepositStorageCollateral increases an account's storage collateral,
// creating the account on first deposit. It never fails: collateral
// sufficiency is enforced by the operations that grow the footprint.
func (l *AccountLedger) DepositStorageCollateral(id model.AccountID, amount uint64) {
	account, ok := l.accounts[id]
	if !ok {
		account = model.NewAccount(id, amount)
		account.StorageBytesUsed = l.cost.BytesUsed(account)
		l.accounts[id] = account
		return
	}
	account.StorageCollateral += amount
}

// WithdrawStorageCollateral releases surplus collateral: the part not
// required to cover the account's current footprint. A zero amount withdraws
// the entire surplus. Returns the amount actually withdrawn.
func (l *AccountLedger) WithdrawStorageCollateral(id model.AccountID, amount uint64) (uint64, error) {
	account, ok := l.accounts[id]
	if !ok {
		return 0, ErrAccountNotRegistered
	}
	surplus := l.surplus(account)
	if surplus == 0 {
		return 0, ErrInsufficientStorageCollateral
	}
	if amount == 0 {
		amount = surplus
	}
	if amount > surplus {
		return 0, ErrInsufficientStorageCollateral
	}
	account.StorageCollateral -= amount
	return amount, nil
}

// Credit adds to an account's balance in the given token, then rechecks the
// storage invariant before committing.
func (l *AccountLedger) Credit(id model.AccountID, token model.TokenID, amount uint64) error {
	account, ok := l.accounts[id]
	if !ok {
		return ErrAccountNotRegistered
	}
	current := account.Balance(token)
	updated, carry := bits.Add64(current, amount, 0)
	if carry != 0 {
		return ErrAmountOverflow
	}
	candidate := account.Clone()
	candidate.SetBalance(token, updated)
	return l.commit(account, candidate)
}

// Debit removes from an account's balance in the given token. Fails with
// ErrInsufficientBalance when the balance cannot cover the amount.
func (l *AccountLedger) Debit(id model.AccountID, token model.TokenID, amount uint64) error {
	account, ok := l.accounts[id]
	if !ok {
		return ErrAccountNotRegistered
	}
	current := account.Balance(token)
	if current < amount {
		return ErrInsufficientBalance
	}
	candidate := account.Clone()
	candidate.SetBalance(token, current-amount)
	return l.commit(account, candidate)
}

// Apply validates and commits an externally mutated copy of the account.
// The copy must originate from Get on this ledger; the storage footprint
// delta against the stored record is rechecked before commit.
func (l *AccountLedger) Apply(candidate *model.Account) error {
	account, ok := l.accounts[candidate.Owner]
	if !ok {
		return ErrAccountNotRegistered
	}
	return l.commit(account, candidate)
}

// TrackRecord attributes the footprint of a record owned elsewhere (such as
// a registry entry) to the account, failing if collateral cannot cover the
// growth. Nothing is committed on failure.
func (l *AccountLedger) TrackRecord(id model.AccountID, record any) error {
	account, ok := l.accounts[id]
	if !ok {
		return ErrAccountNotRegistered
	}
	grown := account.StorageBytesUsed + l.cost.BytesUsed(record)
	if !l.covered(account.StorageCollateral, grown) {
		return ErrInsufficientStorageCollateral
	}
	account.StorageBytesUsed = grown
	return nil
}

// Snapshot returns copies of every account, for views and persistence.
func (l *AccountLedger) Snapshot() []*model.Account {
	accounts := make([]*model.Account, 0, len(l.accounts))
	for _, account := range l.accounts {
		accounts = append(accounts, account.Clone())
	}
	return accounts
}

// Restore replaces the ledger contents with previously persisted accounts.
func (l *AccountLedger) Restore(accounts []*model.Account) {
	l.accounts = make(map[model.AccountID]*model.Account, len(accounts))
	for _, account := range accounts {
		l.accounts[account.Owner] = account.Clone()
	}
}

// commit applies the footprint delta between the stored record and the
// candidate, verifies the collateral invariant and stores the candidate.
// The stored record is untouched when the check fails.
func (l *AccountLedger) commit(stored, candidate *model.Account) error {
	before := l.cost.BytesUsed(stored)
	after := l.cost.BytesUsed(candidate)

	tracked := candidate.StorageBytesUsed
	if after >= before {
		tracked += after - before
	} else if shrink := before - after; shrink < tracked {
		tracked -= shrink
	} else {
		tracked = 0
	}

	if !l.covered(candidate.StorageCollateral, tracked) {
		return ErrInsufficientStorageCollateral
	}
	candidate.StorageBytesUsed = tracked
	l.accounts[candidate.Owner] = candidate
	return nil
}

// surplus is the collateral not needed to cover the tracked footprint.
func (l *AccountLedger) surplus(account *model.Account) uint64 {
	required, overflow := bits.Mul64(account.StorageBytesUsed, l.cost.CostPerByte())
	if overflow != 0 || required >= account.StorageCollateral {
		return 0
	}
	return account.StorageCollateral - required
}

// covered reports whether collateral pays for trackedBytes at the prevailing
// per-byte price.
func (l *AccountLedger) covered(collateral, trackedBytes uint64) bool {
	required, overflow := bits.Mul64(trackedBytes, l.cost.CostPerByte())
	return overflow == 0 && collateral >= required
}
