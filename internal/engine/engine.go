// Package engine executes single-round wagers: it validates limits, splits
// the stake into fee components, derives a random outcome and commits all
// affected balances as one atomic step.
package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"

	"casino-core/internal/ledger"
	"casino-core/internal/model"
	"casino-core/internal/registry"
	"casino-core/internal/treasury"
)

// Common errors for wager validation.
var (
	ErrBetTooSmall = errors.New("minimum bet size not respected")
	ErrBetTooLarge = errors.New("maximum bet size not respected")
	ErrOddsTooLow  = errors.New("minimum odds not respected")
	ErrOddsTooHigh = errors.New("maximum odds not respected")
)

// Recorder receives settled wager facts, e.g. for metrics. Implementations
// must not fail.
type Recorder interface {
	RecordWager(won bool, stake, payout uint64)
}

// Result describes one settled wager.
type Result struct {
	Won      bool   `json:"won"`
	Roll     uint8  `json:"roll"`
	NetStake uint64 `json:"net_stake"`
	WonValue uint64 `json:"won_value"`
}

// Engine wires the ledger, registry and treasury into the wagering flow and
// owns the monotonically increasing wager counter.
type Engine struct {
	ledger   *ledger.AccountLedger
	registry *registry.GameRegistry
	treasury *treasury.OwnerTreasury
	entropy  Source
	recorder Recorder
	counter  uint64
}

// New creates an engine over the given collaborators. A nil recorder
// disables wager metrics.
func New(
	accountLedger *ledger.AccountLedger,
	gameRegistry *registry.GameRegistry,
	ownerTreasury *treasury.OwnerTreasury,
	entropy Source,
	recorder Recorder,
) *Engine {
	return &Engine{
		ledger:   accountLedger,
		registry: gameRegistry,
		treasury: ownerTreasury,
		entropy:  entropy,
		recorder: recorder,
	}
}

// WagerCounter returns the number of wagers settled so far.
func (e *Engine) WagerCounter() uint64 { return e.counter }

// RestoreWagerCounter reinstates a persisted counter value at boot.
func (e *Engine) RestoreWagerCounter(counter uint64) { e.counter = counter }

// Play executes one wager for the caller on the given game. All checks run
// against copies; the first commit is the caller's balance, so any failure
// leaves every record untouched. Returns whether the wager won.
//
// TODO: game.Blocked is stored and mutable but deliberately not consulted
// here; enforcement awaits a product decision on partner-initiated freezes.
func (e *Engine) Play(caller model.AccountID, gameID model.GameID, stake uint64, odds uint8) (*Result, error) {
	account, err := e.ledger.Get(caller)
	if err != nil {
		return nil, err
	}
	game, err := e.registry.Get(gameID)
	if err != nil {
		return nil, err
	}
	token := game.PartnerToken

	balance := account.Balance(token)
	if balance < stake {
		return nil, ledger.ErrInsufficientBalance
	}
	if stake < game.MinBet {
		return nil, fmt.Errorf("%w: minimum is %d", ErrBetTooSmall, game.MinBet)
	}
	if stake > game.MaxBet {
		return nil, fmt.Errorf("%w: maximum is %d", ErrBetTooLarge, game.MaxBet)
	}
	if odds < game.MinOdds {
		return nil, fmt.Errorf("%w: minimum is %d", ErrOddsTooLow, game.MinOdds)
	}
	if odds > game.MaxOdds {
		return nil, fmt.Errorf("%w: maximum is %d", ErrOddsTooHigh, game.MaxOdds)
	}

	// Each cut is computed independently from the gross stake, truncating
	// toward zero; config validation bounds their sum by the stake.
	nftCut := feeCut(stake, game.NFTFee)
	ownerCut := feeCut(stake, game.OwnerFee)
	houseCut := feeCut(stake, game.HouseFee)
	partnerCut := feeCut(stake, game.PartnerFee)
	netStake := stake - nftCut - ownerCut - houseCut - partnerCut

	nftReserve, err := grow(e.treasury.NFT(token), nftCut)
	if err != nil {
		return nil, err
	}
	ownerReserve, err := grow(e.treasury.Owner(token), ownerCut)
	if err != nil {
		return nil, err
	}
	partnerBalance, err := grow(game.PartnerBalance, partnerCut)
	if err != nil {
		return nil, err
	}
	// The net stake joins the reserve along with the house fee; a winning
	// payout is drawn back out of it below.
	houseFunds, err := grow(game.HouseFunds, houseCut+netStake)
	if err != nil {
		return nil, err
	}
	balance -= stake

	entropyByte, err := e.entropy.Byte()
	if err != nil {
		return nil, err
	}
	roll := e.deriveRoll(entropyByte)
	won := roll < odds

	result := &Result{Won: won, Roll: roll, NetStake: netStake}
	if won {
		wonValue := fairPayout(netStake, odds, game.BetPaymentAdjustment)
		if wonValue.GtUint64(houseFunds) {
			return nil, registry.ErrInsufficientReserve
		}
		result.WonValue = wonValue.Uint64()
		houseFunds -= result.WonValue
		if balance, err = grow(balance, result.WonValue); err != nil {
			return nil, err
		}
	}

	// Commit. The ledger write is the only fallible step and runs first.
	account.SetBalance(token, balance)
	if err := e.ledger.Apply(account); err != nil {
		return nil, err
	}
	game.HouseFunds = houseFunds
	game.PartnerBalance = partnerBalance
	if err := e.registry.Apply(gameID, game); err != nil {
		return nil, err
	}
	e.treasury.SetNFT(token, nftReserve)
	e.treasury.SetOwner(token, ownerReserve)
	e.counter++

	if e.recorder != nil {
		e.recorder.RecordWager(won, stake, result.WonValue)
	}
	return result, nil
}

// deriveRoll mixes one entropy byte with the wager counter through a one-way
// hash and reduces it to [0, 256).
func (e *Engine) deriveRoll(entropyByte byte) uint8 {
	sum := sha256.Sum256([]byte{entropyByte, byte(e.counter % model.OddsCeiling)})
	return uint8(binary.BigEndian.Uint64(sum[:8]) % model.OddsCeiling)
}

// feeCut is stake*fee/FractionalBase with the multiplication widened past
// 64 bits. fee <= FractionalBase, so the cut always fits back into uint64.
func feeCut(stake, fee uint64) uint64 {
	cut := new(uint256.Int).Mul(uint256.NewInt(stake), uint256.NewInt(fee))
	cut.Div(cut, uint256.NewInt(model.FractionalBase))
	return cut.Uint64()
}

// fairPayout is (net*256/odds)*adjustment/FractionalBase, widened so a
// maximal net stake at odds 1 cannot overflow. The caller bounds the result
// by the house reserve before narrowing it.
func fairPayout(netStake uint64, odds uint8, adjustment uint64) *uint256.Int {
	payout := new(uint256.Int).Mul(uint256.NewInt(netStake), uint256.NewInt(model.OddsCeiling))
	payout.Div(payout, uint256.NewInt(uint64(odds)))
	payout.Mul(payout, uint256.NewInt(adjustment))
	payout.Div(payout, uint256.NewInt(model.FractionalBase))
	return payout
}

func grow(current, amount uint64) (uint64, error) {
	sum, carry := bits.Add64(current, amount, 0)
	if carry != 0 {
		return 0, ledger.ErrAmountOverflow
	}
	return sum, nil
}
