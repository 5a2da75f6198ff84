// Package registry owns the catalogue of partnered games and validates
// every configuration change applied to it.
package registry

import (
	"errors"
	"math/bits"
	"sort"

	"casino-core/internal/model"
)

// Common errors for registry operations.
var (
	ErrGameNotFound        = errors.New("no game registered for this identifier")
	ErrDuplicateGame       = errors.New("game already registered for this identifier")
	ErrInvalidRange        = errors.New("max parameter must be greater than min parameter")
	ErrFeeOutOfRange       = errors.New("fee parameters must not exceed the fractional base")
	ErrTokenMismatch       = errors.New("token sent is not the registered token type for this game")
	ErrNotPartnerOwner     = errors.New("only the partner game owner can call this method")
	ErrInsufficientReserve = errors.New("house funds cannot cover the requested amount")
	ErrReserveOverflow     = errors.New("amount overflows the game reserve")
)

// GameRegistry is the exclusive owner of PartneredGame records.
type GameRegistry struct {
	games map[model.GameID]*model.PartneredGame
}

// New creates an empty registry.
func New() *GameRegistry {
	return &GameRegistry{games: make(map[model.GameID]*model.PartneredGame)}
}

// ValidateConfig applies the range checks shared by creation and alteration:
// bet and odds bounds must be strictly ordered and every fractional field
// must stay within the fractional base.
func ValidateConfig(cfg model.GameConfig) error {
	if cfg.MaxBet <= cfg.MinBet {
		return ErrInvalidRange
	}
	if cfg.MaxOdds <= cfg.MinOdds {
		return ErrInvalidRange
	}
	fractions := []uint64{
		cfg.PartnerFee,
		cfg.HouseFee,
		cfg.OwnerFee,
		cfg.NFTFee,
		cfg.BetPaymentAdjustment,
	}
	for _, fraction := range fractions {
		if fraction > model.FractionalBase {
			return ErrFeeOutOfRange
		}
	}
	// The four stake fees must also fit the base combined, so their cuts can
	// never overdraft a stake.
	if cfg.PartnerFee+cfg.HouseFee+cfg.OwnerFee+cfg.NFTFee > model.FractionalBase {
		return ErrFeeOutOfRange
	}
	return nil
}

// Create registers a new game with zero reserves. The charge capability is
// invoked with the new record before it is inserted, letting the caller
// attribute the registry's storage growth to the operating account; when the
// charge fails nothing is registered.
func (r *GameRegistry) Create(id model.GameID, cfg model.GameConfig, charge func(record any) error) (*model.PartneredGame, error) {
	if _, ok := r.games[id]; ok {
		return nil, ErrDuplicateGame
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	cfg.Blocked = false
	game := &model.PartneredGame{GameConfig: cfg}
	if charge != nil {
		if err := charge(game); err != nil {
			return nil, err
		}
	}
	r.games[id] = game
	return game.Clone(), nil
}

// Alter re-validates and overwrites every configurable field of an existing
// game, leaving its reserves untouched. The settlement token is fixed at
// creation: the reserves are denominated in it, so a change would redenominate
// them into a token they were never funded in.
func (r *GameRegistry) Alter(id model.GameID, cfg model.GameConfig) error {
	game, ok := r.games[id]
	if !ok {
		return ErrGameNotFound
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	if cfg.PartnerToken != game.PartnerToken {
		return ErrTokenMismatch
	}
	game.GameConfig = cfg
	return nil
}

// Get returns a copy of the game, or ErrGameNotFound.
func (r *GameRegistry) Get(id model.GameID) (*model.PartneredGame, error) {
	game, ok := r.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return game.Clone(), nil
}

// Apply commits an externally mutated copy of a registered game.
func (r *GameRegistry) Apply(id model.GameID, candidate *model.PartneredGame) error {
	if _, ok := r.games[id]; !ok {
		return ErrGameNotFound
	}
	r.games[id] = candidate.Clone()
	return nil
}

// FundHouse credits value that arrived earmarked for a game's reserve.
// The incoming token must match the game's configured partner token.
func (r *GameRegistry) FundHouse(id model.GameID, token model.TokenID, amount uint64) error {
	game, ok := r.games[id]
	if !ok {
		return ErrGameNotFound
	}
	if game.PartnerToken != token {
		return ErrTokenMismatch
	}
	funds, carry := bits.Add64(game.HouseFunds, amount, 0)
	if carry != 0 {
		return ErrReserveOverflow
	}
	game.HouseFunds = funds
	return nil
}

// WithdrawPartnerBalance zeroes the accrued partner share and returns the
// amount and token to transfer. Zeroing happens before any transfer is
// scheduled, so a transfer failure cannot double-credit the partner.
func (r *GameRegistry) WithdrawPartnerBalance(id model.GameID, caller model.AccountID) (uint64, model.TokenID, error) {
	game, ok := r.games[id]
	if !ok {
		return 0, "", ErrGameNotFound
	}
	if game.PartnerOwner != caller {
		return 0, "", ErrNotPartnerOwner
	}
	amount := game.PartnerBalance
	game.PartnerBalance = 0
	return amount, game.PartnerToken, nil
}

// WithdrawHouseFunds draws down the game's reserve by the requested
// quantity, decrementing before the transfer is scheduled.
func (r *GameRegistry) WithdrawHouseFunds(id model.GameID, caller model.AccountID, quantity uint64) (model.TokenID, error) {
	game, ok := r.games[id]
	if !ok {
		return "", ErrGameNotFound
	}
	if game.PartnerOwner != caller {
		return "", ErrNotPartnerOwner
	}
	if quantity > game.HouseFunds {
		return "", ErrInsufficientReserve
	}
	game.HouseFunds -= quantity
	return game.PartnerToken, nil
}

// Count returns the number of registered games.
func (r *GameRegistry) Count() int {
	return len(r.games)
}

// IDs returns the registered game identifiers in stable order.
func (r *GameRegistry) IDs() []model.GameID {
	ids := make([]model.GameID, 0, len(r.games))
	for id := range r.games {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns copies of every game keyed by identifier.
func (r *GameRegistry) Snapshot() map[model.GameID]*model.PartneredGame {
	games := make(map[model.GameID]*model.PartneredGame, len(r.games))
	for id, game := range r.games {
		games[id] = game.Clone()
	}
	return games
}

// Restore replaces the catalogue with previously persisted games.
func (r *GameRegistry) Restore(games map[model.GameID]*model.PartneredGame) {
	r.games = make(map[model.GameID]*model.PartneredGame, len(games))
	for id, game := range games {
		r.games[id] = game.Clone()
	}
}
