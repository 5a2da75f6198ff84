// Package persist provides the persistence substrate for the platform's
// four logical maps (accounts, games, owner reserve, NFT reserve) and its
// scalar state. The core treats the substrate as an external collaborator:
// it writes through after each committed operation and restores at boot.
package persist

import (
	"context"

	"casino-core/internal/model"
)

// Scalars is the non-map part of the contract state.
type Scalars struct {
	Owner        model.AccountID
	Halted       bool
	WagerCounter uint64
}

// State is a full restorable copy of the persisted contract.
type State struct {
	Accounts     []*model.Account
	Games        map[model.GameID]*model.PartneredGame
	OwnerReserve map[model.TokenID]uint64
	NFTReserve   map[model.TokenID]uint64
	Scalars      Scalars

	// Initialized is false when the store holds no scalar row yet, i.e. a
	// fresh deployment.
	Initialized bool
}

// Persister stores committed records.
type Persister interface {
	SaveAccount(ctx context.Context, account *model.Account) error
	SaveGame(ctx context.Context, id model.GameID, game *model.PartneredGame) error
	SaveOwnerReserve(ctx context.Context, token model.TokenID, amount uint64) error
	SaveNFTReserve(ctx context.Context, token model.TokenID, amount uint64) error
	SaveScalars(ctx context.Context, scalars Scalars) error
	Load(ctx context.Context) (*State, error)
}

// Memory is an in-process persister, used in tests and persistence-free
// deployments.
type Memory struct {
	state State
}

// NewMemory creates an empty in-memory persister.
func NewMemory() *Memory {
	return &Memory{state: State{
		Games:        make(map[model.GameID]*model.PartneredGame),
		OwnerReserve: make(map[model.TokenID]uint64),
		NFTReserve:   make(map[model.TokenID]uint64),
	}}
}

// SaveAccount stores a copy of the account.
func (m *Memory) SaveAccount(_ context.Context, account *model.Account) error {
	for i, existing := range m.state.Accounts {
		if existing.Owner == account.Owner {
			m.state.Accounts[i] = account.Clone()
			return nil
		}
	}
	m.state.Accounts = append(m.state.Accounts, account.Clone())
	return nil
}

// SaveGame stores a copy of the game.
func (m *Memory) SaveGame(_ context.Context, id model.GameID, game *model.PartneredGame) error {
	m.state.Games[id] = game.Clone()
	return nil
}

// SaveOwnerReserve stores one owner-reserve entry.
func (m *Memory) SaveOwnerReserve(_ context.Context, token model.TokenID, amount uint64) error {
	m.state.OwnerReserve[token] = amount
	return nil
}

// SaveNFTReserve stores one NFT-reserve entry.
func (m *Memory) SaveNFTReserve(_ context.Context, token model.TokenID, amount uint64) error {
	m.state.NFTReserve[token] = amount
	return nil
}

// SaveScalars stores the scalar state.
func (m *Memory) SaveScalars(_ context.Context, scalars Scalars) error {
	m.state.Scalars = scalars
	m.state.Initialized = true
	return nil
}

// Load returns a copy of everything stored so far.
func (m *Memory) Load(_ context.Context) (*State, error) {
	loaded := &State{
		Games:        make(map[model.GameID]*model.PartneredGame, len(m.state.Games)),
		OwnerReserve: make(map[model.TokenID]uint64, len(m.state.OwnerReserve)),
		NFTReserve:   make(map[model.TokenID]uint64, len(m.state.NFTReserve)),
		Scalars:      m.state.Scalars,
		Initialized:  m.state.Initialized,
	}
	for _, account := range m.state.Accounts {
		loaded.Accounts = append(loaded.Accounts, account.Clone())
	}
	for id, game := range m.state.Games {
		loaded.Games[id] = game.Clone()
	}
	for token, amount := range m.state.OwnerReserve {
		loaded.OwnerReserve[token] = amount
	}
	for token, amount := range m.state.NFTReserve {
		loaded.NFTReserve[token] = amount
	}
	return loaded, nil
}
