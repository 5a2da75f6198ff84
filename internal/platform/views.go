package platform

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"casino-core/internal/model"
	"casino-core/internal/persist"
)

// StateView is the read-only summary of the platform.
type StateView struct {
	Owner        model.AccountID          `json:"owner"`
	Halted       bool                     `json:"halted"`
	WagerCounter uint64                   `json:"wager_counter"`
	Games        []model.GameID           `json:"games"`
	OwnerReserve map[model.TokenID]uint64 `json:"owner_reserve"`
	NFTReserve   map[model.TokenID]uint64 `json:"nft_reserve"`
}

// State returns the platform summary.
func (p *Platform) State() StateView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return StateView{
		Owner:        p.owner,
		Halted:       p.halted,
		WagerCounter: p.engine.WagerCounter(),
		Games:        p.registry.IDs(),
		OwnerReserve: p.treasury.OwnerReserves(),
		NFTReserve:   p.treasury.NFTReserves(),
	}
}

// Game returns a copy of one registered game.
func (p *Platform) Game(id model.GameID) (*model.PartneredGame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registry.Get(id)
}

// Account returns a copy of one registered account.
func (p *Platform) Account(id model.AccountID) (*model.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Get(id)
}

// Credits returns an account's balance in the given token. An unregistered
// account simply holds zero.
func (p *Platform) Credits(id model.AccountID, token model.TokenID) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	balance, err := p.ledger.Balance(id, token)
	if err != nil {
		return 0
	}
	return balance
}

func parseTransferMessage(message string) (model.TransferMessage, error) {
	var msg model.TransferMessage
	if err := json.Unmarshal([]byte(message), &msg); err != nil {
		return msg, ErrMalformedTransferMessage
	}
	// A funding message without a target game is incomplete, not merely a
	// lookup miss.
	if msg.Type == model.MsgFundGame && msg.GameID == "" {
		return msg, ErrMalformedTransferMessage
	}
	return msg, nil
}

// The save helpers mirror committed state into the persister. A write-through
// failure is logged and does not fail the operation: the in-memory state is
// authoritative and the row is rewritten on its next change.

func (p *Platform) saveAccount(ctx context.Context, id model.AccountID) {
	if p.persister == nil {
		return
	}
	account, err := p.ledger.Get(id)
	if err != nil {
		return
	}
	if err := p.persister.SaveAccount(ctx, account); err != nil {
		log.Error().Err(err).Str("account", string(id)).Msg("Failed to persist account")
	}
}

func (p *Platform) saveGame(ctx context.Context, id model.GameID) {
	if p.persister == nil {
		return
	}
	game, err := p.registry.Get(id)
	if err != nil {
		return
	}
	if err := p.persister.SaveGame(ctx, id, game); err != nil {
		log.Error().Err(err).Str("game", string(id)).Msg("Failed to persist game")
	}
}

func (p *Platform) saveReserves(ctx context.Context, token model.TokenID) {
	if p.persister == nil {
		return
	}
	if err := p.persister.SaveOwnerReserve(ctx, token, p.treasury.Owner(token)); err != nil {
		log.Error().Err(err).Str("token", string(token)).Msg("Failed to persist owner reserve")
	}
	if err := p.persister.SaveNFTReserve(ctx, token, p.treasury.NFT(token)); err != nil {
		log.Error().Err(err).Str("token", string(token)).Msg("Failed to persist nft reserve")
	}
}

func (p *Platform) saveScalars(ctx context.Context) {
	if p.persister == nil {
		return
	}
	scalars := persist.Scalars{Owner: p.owner, Halted: p.halted, WagerCounter: p.engine.WagerCounter()}
	if err := p.persister.SaveScalars(ctx, scalars); err != nil {
		log.Error().Err(err).Msg("Failed to persist contract state")
	}
}
