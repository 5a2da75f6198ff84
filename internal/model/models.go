// Package model defines the data model for the wagering platform core.
package model

// AccountID identifies a participant account, including the platform's own
// operating account.
type AccountID string

// TokenID identifies a fungible token contract.
type TokenID string

// GameID identifies a registered partnered game. It is derived from the
// partner's distinguishing contract identity.
type GameID string

// NativeToken denominates storage collateral. It is never held in account
// balances, only attached to calls and returned on collateral withdrawal.
const NativeToken TokenID = "native"

// FractionalBase is the fixed-point denominator for all fee and adjustment
// fields: a field value of 1_000 means 1%.
const FractionalBase uint64 = 100_000

// OddsCeiling is the exclusive upper bound of the outcome roll. A wager with
// odds parameter o wins with probability o/OddsCeiling.
const OddsCeiling = 256

// Account holds one participant's storage collateral and token balances.
type Account struct {
	Owner             AccountID          `json:"owner"`
	StorageCollateral uint64             `json:"storage_collateral"`
	StorageBytesUsed  uint64             `json:"storage_bytes_used"`
	Balances          map[TokenID]uint64 `json:"balances"`
}

// NewAccount creates an account with the given initial storage collateral.
func NewAccount(owner AccountID, collateral uint64) *Account {
	return &Account{
		Owner:             owner,
		StorageCollateral: collateral,
		Balances:          make(map[TokenID]uint64),
	}
}

// Clone returns a deep copy. Operations mutate clones and commit them back
// only after every validation has passed.
func (a *Account) Clone() *Account {
	balances := make(map[TokenID]uint64, len(a.Balances))
	for token, amount := range a.Balances {
		balances[token] = amount
	}
	return &Account{
		Owner:             a.Owner,
		StorageCollateral: a.StorageCollateral,
		StorageBytesUsed:  a.StorageBytesUsed,
		Balances:          balances,
	}
}

// Balance returns the account's balance in the given token, zero if the
// token was never credited.
func (a *Account) Balance(token TokenID) uint64 {
	return a.Balances[token]
}

// SetBalance records a balance, removing the entry entirely when it reaches
// zero so empty entries never consume storage.
func (a *Account) SetBalance(token TokenID, amount uint64) {
	if amount == 0 {
		delete(a.Balances, token)
		return
	}
	a.Balances[token] = amount
}

// GameConfig is the owner-managed parameter set of a partnered game. Every
// field is overwritten by an alteration call; reserves are not part of it.
type GameConfig struct {
	PartnerOwner AccountID `json:"partner_owner"`
	Blocked      bool      `json:"blocked"`
	PartnerToken TokenID   `json:"partner_token"`

	// Fee fractions over FractionalBase, each applied to the gross stake.
	PartnerFee uint64 `json:"partner_fee"`
	HouseFee   uint64 `json:"house_fee"`
	OwnerFee   uint64 `json:"owner_fee"`
	NFTFee     uint64 `json:"nft_fee"`

	// BetPaymentAdjustment scales the fair payout; FractionalBase means a
	// mathematically fair game, less shrinks winners' prizes.
	BetPaymentAdjustment uint64 `json:"bet_payment_adjustment"`

	MaxBet  uint64 `json:"max_bet"`
	MinBet  uint64 `json:"min_bet"`
	MaxOdds uint8  `json:"max_odds"`
	MinOdds uint8  `json:"min_odds"`
}

// PartneredGame is a registered game: its configuration plus live balances.
type PartneredGame struct {
	GameConfig

	// HouseFunds is the reserve, in PartnerToken units, available to cover
	// player wins. It must never go negative.
	HouseFunds uint64 `json:"house_funds"`

	// PartnerBalance is the accrued, not-yet-withdrawn partner fee share.
	PartnerBalance uint64 `json:"partner_balance"`
}

// Clone returns a copy safe to mutate before commit.
func (g *PartneredGame) Clone() *PartneredGame {
	clone := *g
	return &clone
}

// Transfer message variants accepted by the inbound token notification.
const (
	MsgFundGame       = "FundGame"
	MsgDepositBalance = "DepositBalance"
)

// TransferMessage is the tagged payload attached to an inbound token
// transfer, dispatching the value to a game reserve or a user balance.
type TransferMessage struct {
	Type   string `json:"type"`
	GameID GameID `json:"game_id,omitempty"`
}
