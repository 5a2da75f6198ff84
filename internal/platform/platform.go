// Package platform is the contract facade: it gates every entry point with
// authorization and the global halt flag, runs each operation to completion
// as one atomic step, and only after bookkeeping is committed hands value
// movements to the transfer dispatcher.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"casino-core/internal/dispatch"
	"casino-core/internal/engine"
	"casino-core/internal/ledger"
	"casino-core/internal/model"
	"casino-core/internal/persist"
	"casino-core/internal/registry"
	"casino-core/internal/treasury"
)

// Common errors for platform-level gates.
var (
	ErrNotOwner                 = errors.New("only the owner can call this method")
	ErrIntentProofRequired      = errors.New("owner calls must attach exactly one unit of native currency")
	ErrOperationsSuspended      = errors.New("operations are suspended, all non-owner tasks refused")
	ErrMalformedTransferMessage = errors.New("transfer message could not be parsed")
)

// transferRecorder counts dispatched transfers; satisfied by
// monitoring.Metrics.
type transferRecorder interface {
	RecordTransfer()
}

// Config assembles a platform.
type Config struct {
	// Owner is the platform owner identity.
	Owner model.AccountID

	// NFTProgram receives the NFT-fee share on withdrawal.
	NFTProgram model.AccountID

	// OperatingAccount absorbs the registry's own storage growth; it is
	// seeded with OperatingCollateral at construction.
	OperatingAccount    model.AccountID
	OperatingCollateral uint64

	CostModel  ledger.StorageCostModel
	Entropy    engine.Source
	Dispatcher dispatch.Dispatcher

	// Persister mirrors committed state; nil keeps the platform purely
	// in-memory.
	Persister persist.Persister

	// WagerRecorder and TransferRecorder are optional metric sinks.
	WagerRecorder    engine.Recorder
	TransferRecorder transferRecorder
}

// Platform holds the entire contract state under a single mutex: one call
// runs fully, including all its synchronous mutations, before the next one
// starts.
type Platform struct {
	mu sync.Mutex

	owner      model.AccountID
	nftProgram model.AccountID
	operating  model.AccountID
	halted     bool

	ledger     *ledger.AccountLedger
	registry   *registry.GameRegistry
	treasury   *treasury.OwnerTreasury
	engine     *engine.Engine
	dispatcher dispatch.Dispatcher
	persister  persist.Persister
	transfers  transferRecorder
}

// New constructs a platform at genesis and seeds the operating account.
func New(cfg Config) *Platform {
	cost := cfg.CostModel
	if cost == nil {
		cost = ledger.FreeCostModel{}
	}
	entropy := cfg.Entropy
	if entropy == nil {
		entropy = engine.CryptoSource{}
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = dispatch.NewAsync(dispatch.LogSender{}, nil)
	}

	accountLedger := ledger.New(cost)
	gameRegistry := registry.New()
	ownerTreasury := treasury.New()

	p := &Platform{
		owner:      cfg.Owner,
		nftProgram: cfg.NFTProgram,
		operating:  cfg.OperatingAccount,
		ledger:     accountLedger,
		registry:   gameRegistry,
		treasury:   ownerTreasury,
		engine:     engine.New(accountLedger, gameRegistry, ownerTreasury, entropy, cfg.WagerRecorder),
		dispatcher: dispatcher,
		persister:  cfg.Persister,
		transfers:  cfg.TransferRecorder,
	}
	accountLedger.DepositStorageCollateral(p.operating, cfg.OperatingCollateral)
	return p
}

// Restore reloads previously persisted state. A store without a scalar row
// is a fresh deployment and leaves the genesis state in place.
func (p *Platform) Restore(ctx context.Context) error {
	if p.persister == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}
	if !state.Initialized {
		return nil
	}
	p.ledger.Restore(state.Accounts)
	p.registry.Restore(state.Games)
	p.treasury.Restore(state.OwnerReserve, state.NFTReserve)
	p.owner = state.Scalars.Owner
	p.halted = state.Scalars.Halted
	p.engine.RestoreWagerCounter(state.Scalars.WagerCounter)
	log.Info().
		Int("accounts", len(state.Accounts)).
		Int("games", len(state.Games)).
		Uint64("wager_counter", state.Scalars.WagerCounter).
		Msg("State restored")
	return nil
}

// DepositStorageCollateral credits collateral to the caller's account,
// creating it on first deposit.
func (p *Platform) DepositStorageCollateral(ctx context.Context, caller model.AccountID, amount uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireActive(); err != nil {
		return err
	}
	p.ledger.DepositStorageCollateral(caller, amount)
	p.saveAccount(ctx, caller)
	return nil
}

// WithdrawStorageCollateral releases surplus collateral and schedules its
// return in native currency. A zero amount withdraws the whole surplus.
func (p *Platform) WithdrawStorageCollateral(ctx context.Context, caller model.AccountID, amount uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireActive(); err != nil {
		return err
	}
	withdrawn, err := p.ledger.WithdrawStorageCollateral(caller, amount)
	if err != nil {
		return err
	}
	p.saveAccount(ctx, caller)
	p.send(dispatch.NewRequest(model.NativeToken, caller, withdrawn, "storage collateral withdrawal"))
	return nil
}

// CreateGame registers a new partnered game. Owner-only; the attached
// deposit is the non-forgeable proof of deliberate intent.
func (p *Platform) CreateGame(ctx context.Context, caller model.AccountID, attached uint64, id model.GameID, cfg model.GameConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireOwner(caller, attached); err != nil {
		return err
	}
	game, err := p.registry.Create(id, cfg, func(record any) error {
		return p.ledger.TrackRecord(p.operating, record)
	})
	if err != nil {
		return err
	}
	p.treasury.Register(game.PartnerToken)

	log.Info().
		Str("game", string(id)).
		Str("token", string(game.PartnerToken)).
		Str("partner", string(game.PartnerOwner)).
		Msg("Game created")
	p.saveGame(ctx, id)
	p.saveAccount(ctx, p.operating)
	p.saveReserves(ctx, game.PartnerToken)
	return nil
}

// AlterGame re-validates and overwrites a game's configuration, reserves
// untouched. Owner-only.
func (p *Platform) AlterGame(ctx context.Context, caller model.AccountID, attached uint64, id model.GameID, cfg model.GameConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireOwner(caller, attached); err != nil {
		return err
	}
	if err := p.registry.Alter(id, cfg); err != nil {
		return err
	}
	log.Info().Str("game", string(id)).Msg("Game altered")
	p.saveGame(ctx, id)
	return nil
}

// Play executes one wager. displayHint is inert, carried only for off-chain
// observers.
func (p *Platform) Play(ctx context.Context, caller model.AccountID, gameID model.GameID, stake uint64, odds uint8, displayHint string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireActive(); err != nil {
		return false, err
	}
	result, err := p.engine.Play(caller, gameID, stake, odds)
	if err != nil {
		return false, err
	}
	log.Info().
		Str("game", string(gameID)).
		Str("player", string(caller)).
		Uint64("stake", stake).
		Uint8("odds", odds).
		Bool("won", result.Won).
		Uint64("won_value", result.WonValue).
		Str("display_hint", displayHint).
		Msg("Wager settled")

	game, gameErr := p.registry.Get(gameID)
	if gameErr == nil {
		p.saveGame(ctx, gameID)
		p.saveReserves(ctx, game.PartnerToken)
	}
	p.saveAccount(ctx, caller)
	p.saveScalars(ctx)
	return result.Won, nil
}

// RetrieveCredits debits the caller's balance and schedules its transfer
// out. The debit commits before the transfer is requested.
func (p *Platform) RetrieveCredits(ctx context.Context, caller model.AccountID, token model.TokenID, amount uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireActive(); err != nil {
		return err
	}
	if err := p.ledger.Debit(caller, token, amount); err != nil {
		return err
	}
	p.saveAccount(ctx, caller)
	p.send(dispatch.NewRequest(token, caller, amount, "credit withdrawal"))
	return nil
}

// RetrievePartnerBalance pays out a game's accrued partner share to its
// partner owner. The balance is zeroed before the transfer is scheduled.
func (p *Platform) RetrievePartnerBalance(ctx context.Context, caller model.AccountID, gameID model.GameID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireActive(); err != nil {
		return err
	}
	amount, token, err := p.registry.WithdrawPartnerBalance(gameID, caller)
	if err != nil {
		return err
	}
	p.saveGame(ctx, gameID)
	p.send(dispatch.NewRequest(token, caller, amount, fmt.Sprintf("partner balance of %s", gameID)))
	return nil
}

// RetrieveHouseFunds draws down a game's reserve by the requested quantity
// and schedules its transfer to the partner owner.
func (p *Platform) RetrieveHouseFunds(ctx context.Context, caller model.AccountID, gameID model.GameID, quantity uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireActive(); err != nil {
		return err
	}
	token, err := p.registry.WithdrawHouseFunds(gameID, caller, quantity)
	if err != nil {
		return err
	}
	p.saveGame(ctx, gameID)
	p.send(dispatch.NewRequest(token, caller, quantity, fmt.Sprintf("house funds of %s", gameID)))
	return nil
}

// RetrieveOwnerFunds pays out the owner reserve at the given token index.
// Owner-only; the reserve is zeroed before the transfer is scheduled.
func (p *Platform) RetrieveOwnerFunds(ctx context.Context, caller model.AccountID, attached uint64, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireOwner(caller, attached); err != nil {
		return err
	}
	token, err := p.treasury.OwnerTokenAt(index)
	if err != nil {
		return err
	}
	amount, err := p.treasury.WithdrawOwner(token)
	if err != nil {
		return err
	}
	p.saveReserves(ctx, token)
	p.send(dispatch.NewRequest(token, p.owner, amount, "owner funds"))
	return nil
}

// RetrieveNFTFunds pays out the NFT-program reserve at the given token
// index. Owner-only.
func (p *Platform) RetrieveNFTFunds(ctx context.Context, caller model.AccountID, attached uint64, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireOwner(caller, attached); err != nil {
		return err
	}
	token, err := p.treasury.NFTTokenAt(index)
	if err != nil {
		return err
	}
	amount, err := p.treasury.WithdrawNFT(token)
	if err != nil {
		return err
	}
	p.saveReserves(ctx, token)
	p.send(dispatch.NewRequest(token, p.nftProgram, amount, "nft program funds"))
	return nil
}

// SetHalt sets the global halt flag and returns its new value. While
// halted, every non-owner mutating entry point refuses work. Owner-only.
func (p *Platform) SetHalt(ctx context.Context, caller model.AccountID, attached uint64, halted bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireOwner(caller, attached); err != nil {
		return p.halted, err
	}
	p.halted = halted
	log.Warn().Bool("halted", halted).Msg("Halt flag changed")
	p.saveScalars(ctx)
	return p.halted, nil
}

// TransferOwnership replaces the owner identity unconditionally. The new
// identity is not validated; handing ownership to an unreachable identity
// is an accepted risk. Owner-only.
func (p *Platform) TransferOwnership(ctx context.Context, caller model.AccountID, attached uint64, newOwner model.AccountID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireOwner(caller, attached); err != nil {
		return err
	}
	p.owner = newOwner
	log.Warn().Str("new_owner", string(newOwner)).Msg("Ownership transferred")
	p.saveScalars(ctx)
	return nil
}

// OnTokenTransfer is the inbound value notification from the external token
// collaborator. The tagged message routes the amount to a game reserve or
// to the sender's balance; the returned value is the unused amount.
func (p *Platform) OnTokenTransfer(ctx context.Context, sender model.AccountID, token model.TokenID, amount uint64, message string) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireActive(); err != nil {
		return 0, err
	}
	msg, err := parseTransferMessage(message)
	if err != nil {
		return 0, err
	}
	switch msg.Type {
	case model.MsgFundGame:
		if err := p.registry.FundHouse(msg.GameID, token, amount); err != nil {
			return 0, err
		}
		p.saveGame(ctx, msg.GameID)
	case model.MsgDepositBalance:
		if err := p.ledger.Credit(sender, token, amount); err != nil {
			return 0, err
		}
		p.saveAccount(ctx, sender)
	default:
		return 0, ErrMalformedTransferMessage
	}
	return 0, nil
}

func (p *Platform) requireActive() error {
	if p.halted {
		return ErrOperationsSuspended
	}
	return nil
}

func (p *Platform) requireOwner(caller model.AccountID, attached uint64) error {
	if attached != 1 {
		return ErrIntentProofRequired
	}
	if caller != p.owner {
		return ErrNotOwner
	}
	return nil
}

// send dispatches a transfer after the corresponding ledger field was
// already zeroed or decremented.
func (p *Platform) send(req dispatch.Request) {
	p.dispatcher.Transfer(req)
	if p.transfers != nil {
		p.transfers.RecordTransfer()
	}
}
