// Package treasury accumulates the platform owner's and the NFT program's
// per-token fee shares and authorizes their withdrawal.
package treasury

import (
	"errors"
	"sort"

	"casino-core/internal/model"
)

// Common errors for treasury operations.
var (
	ErrZeroBalance          = errors.New("balance for this token is 0")
	ErrTokenIndexOutOfRange = errors.New("token index out of bounds")
)

// OwnerTreasury owns the aggregate per-token reserves owed to the platform
// owner and to the NFT program. Tokens keep their entry after a withdrawal
// so index-based lookups stay stable.
type OwnerTreasury struct {
	owner map[model.TokenID]uint64
	nft   map[model.TokenID]uint64
}

// New creates an empty treasury.
func New() *OwnerTreasury {
	return &OwnerTreasury{
		owner: make(map[model.TokenID]uint64),
		nft:   make(map[model.TokenID]uint64),
	}
}

// Register ensures both reserves carry an entry for the token. Called when a
// game is created so its token is immediately visible to views and
// index-based withdrawals.
func (t *OwnerTreasury) Register(token model.TokenID) {
	if _, ok := t.owner[token]; !ok {
		t.owner[token] = 0
	}
	if _, ok := t.nft[token]; !ok {
		t.nft[token] = 0
	}
}

// Owner returns the owner reserve for the token.
func (t *OwnerTreasury) Owner(token model.TokenID) uint64 { return t.owner[token] }

// NFT returns the NFT-program reserve for the token.
func (t *OwnerTreasury) NFT(token model.TokenID) uint64 { return t.nft[token] }

// SetOwner commits a new owner reserve value. It is a commit primitive: the
// caller validates the arithmetic before any state is touched.
func (t *OwnerTreasury) SetOwner(token model.TokenID, amount uint64) { t.owner[token] = amount }

// SetNFT commits a new NFT-program reserve value.
func (t *OwnerTreasury) SetNFT(token model.TokenID, amount uint64) { t.nft[token] = amount }

// WithdrawOwner zeroes the owner reserve for the token and returns the
// amount to transfer. Zeroing precedes the transfer request.
func (t *OwnerTreasury) WithdrawOwner(token model.TokenID) (uint64, error) {
	amount := t.owner[token]
	if amount == 0 {
		return 0, ErrZeroBalance
	}
	t.owner[token] = 0
	return amount, nil
}

// WithdrawNFT zeroes the NFT-program reserve for the token and returns the
// amount to transfer.
func (t *OwnerTreasury) WithdrawNFT(token model.TokenID) (uint64, error) {
	amount := t.nft[token]
	if amount == 0 {
		return 0, ErrZeroBalance
	}
	t.nft[token] = 0
	return amount, nil
}

// OwnerTokenAt resolves an index over the sorted owner-reserve token list.
func (t *OwnerTreasury) OwnerTokenAt(index int) (model.TokenID, error) {
	return tokenAt(t.owner, index)
}

// NFTTokenAt resolves an index over the sorted NFT-reserve token list.
func (t *OwnerTreasury) NFTTokenAt(index int) (model.TokenID, error) {
	return tokenAt(t.nft, index)
}

// OwnerReserves returns a copy of the owner reserve map.
func (t *OwnerTreasury) OwnerReserves() map[model.TokenID]uint64 { return cloneReserves(t.owner) }

// NFTReserves returns a copy of the NFT-program reserve map.
func (t *OwnerTreasury) NFTReserves() map[model.TokenID]uint64 { return cloneReserves(t.nft) }

// Restore replaces both reserves with previously persisted values.
func (t *OwnerTreasury) Restore(owner, nft map[model.TokenID]uint64) {
	t.owner = cloneReserves(owner)
	t.nft = cloneReserves(nft)
}

func tokenAt(reserves map[model.TokenID]uint64, index int) (model.TokenID, error) {
	if index < 0 || index >= len(reserves) {
		return "", ErrTokenIndexOutOfRange
	}
	tokens := make([]model.TokenID, 0, len(reserves))
	for token := range reserves {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return tokens[index], nil
}

func cloneReserves(reserves map[model.TokenID]uint64) map[model.TokenID]uint64 {
	clone := make(map[model.TokenID]uint64, len(reserves))
	for token, amount := range reserves {
		clone[token] = amount
	}
	return clone
}
