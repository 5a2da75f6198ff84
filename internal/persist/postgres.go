package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"casino-core/internal/model"
)

// Postgres persists the contract state in PostgreSQL. Records are written
// through one by one; Load rebuilds the full state at boot.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a persister over the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate applies the schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			owner TEXT PRIMARY KEY,
			storage_collateral BIGINT NOT NULL,
			storage_bytes_used BIGINT NOT NULL,
			balances JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			record JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS owner_reserve (
			token TEXT PRIMARY KEY,
			amount BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nft_reserve (
			token TEXT PRIMARY KEY,
			amount BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contract_state (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			owner_id TEXT NOT NULL,
			halted BOOLEAN NOT NULL,
			wager_counter BIGINT NOT NULL
		)`,
	}
	for _, statement := range statements {
		if _, err := p.pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// SaveAccount upserts one account row.
func (p *Postgres) SaveAccount(ctx context.Context, account *model.Account) error {
	balances, err := json.Marshal(account.Balances)
	if err != nil {
		return fmt.Errorf("failed to encode balances: %w", err)
	}
	const query = `
		INSERT INTO accounts (owner, storage_collateral, storage_bytes_used, balances, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (owner) DO UPDATE
		SET storage_collateral = EXCLUDED.storage_collateral,
		    storage_bytes_used = EXCLUDED.storage_bytes_used,
		    balances = EXCLUDED.balances,
		    updated_at = NOW()
	`
	_, err = p.pool.Exec(ctx, query,
		string(account.Owner),
		int64(account.StorageCollateral),
		int64(account.StorageBytesUsed),
		balances,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// SaveGame upserts one game row.
func (p *Postgres) SaveGame(ctx context.Context, id model.GameID, game *model.PartneredGame) error {
	record, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to encode game: %w", err)
	}
	const query = `
		INSERT INTO games (id, record, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET record = EXCLUDED.record, updated_at = NOW()
	`
	if _, err := p.pool.Exec(ctx, query, string(id), record); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}
	return nil
}

// SaveOwnerReserve upserts one owner-reserve entry.
func (p *Postgres) SaveOwnerReserve(ctx context.Context, token model.TokenID, amount uint64) error {
	return p.saveReserve(ctx, "owner_reserve", token, amount)
}

// SaveNFTReserve upserts one NFT-reserve entry.
func (p *Postgres) SaveNFTReserve(ctx context.Context, token model.TokenID, amount uint64) error {
	return p.saveReserve(ctx, "nft_reserve", token, amount)
}

func (p *Postgres) saveReserve(ctx context.Context, table string, token model.TokenID, amount uint64) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (token, amount) VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET amount = EXCLUDED.amount
	`, table)
	if _, err := p.pool.Exec(ctx, query, string(token), int64(amount)); err != nil {
		return fmt.Errorf("failed to save %s: %w", table, err)
	}
	return nil
}

// SaveScalars upserts the singleton scalar row.
func (p *Postgres) SaveScalars(ctx context.Context, scalars Scalars) error {
	const query = `
		INSERT INTO contract_state (id, owner_id, halted, wager_counter)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
		    halted = EXCLUDED.halted,
		    wager_counter = EXCLUDED.wager_counter
	`
	_, err := p.pool.Exec(ctx, query, string(scalars.Owner), scalars.Halted, int64(scalars.WagerCounter))
	if err != nil {
		return fmt.Errorf("failed to save contract state: %w", err)
	}
	return nil
}

// Load reads the full persisted state.
func (p *Postgres) Load(ctx context.Context) (*State, error) {
	state := &State{
		Games:        make(map[model.GameID]*model.PartneredGame),
		OwnerReserve: make(map[model.TokenID]uint64),
		NFTReserve:   make(map[model.TokenID]uint64),
	}

	rows, err := p.pool.Query(ctx, `SELECT owner, storage_collateral, storage_bytes_used, balances FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var owner string
		var collateral, tracked int64
		var balances []byte
		if err := rows.Scan(&owner, &collateral, &tracked, &balances); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		account := model.NewAccount(model.AccountID(owner), uint64(collateral))
		account.StorageBytesUsed = uint64(tracked)
		if err := json.Unmarshal(balances, &account.Balances); err != nil {
			return nil, fmt.Errorf("failed to decode balances: %w", err)
		}
		state.Accounts = append(state.Accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	gameRows, err := p.pool.Query(ctx, `SELECT id, record FROM games`)
	if err != nil {
		return nil, fmt.Errorf("failed to load games: %w", err)
	}
	defer gameRows.Close()
	for gameRows.Next() {
		var (
			id     string
			record []byte
		)
		if err := gameRows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		var game model.PartneredGame
		if err := json.Unmarshal(record, &game); err != nil {
			return nil, fmt.Errorf("failed to decode game: %w", err)
		}
		state.Games[model.GameID(id)] = &game
	}
	if err := gameRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}

	if state.OwnerReserve, err = p.loadReserve(ctx, "owner_reserve"); err != nil {
		return nil, err
	}
	if state.NFTReserve, err = p.loadReserve(ctx, "nft_reserve"); err != nil {
		return nil, err
	}

	var (
		owner   string
		halted  bool
		counter int64
	)
	err = p.pool.QueryRow(ctx, `SELECT owner_id, halted, wager_counter FROM contract_state WHERE id = 1`).
		Scan(&owner, &halted, &counter)
	switch {
	case err == nil:
		state.Scalars = Scalars{Owner: model.AccountID(owner), Halted: halted, WagerCounter: uint64(counter)}
		state.Initialized = true
	case errors.Is(err, pgx.ErrNoRows):
		// Fresh deployment, nothing persisted yet.
	default:
		return nil, fmt.Errorf("failed to load contract state: %w", err)
	}
	return state, nil
}

func (p *Postgres) loadReserve(ctx context.Context, table string) (map[model.TokenID]uint64, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT token, amount FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	defer rows.Close()
	reserve := make(map[model.TokenID]uint64)
	for rows.Next() {
		var (
			token  string
			amount int64
		)
		if err := rows.Scan(&token, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		reserve[model.TokenID(token)] = uint64(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}
	return reserve, nil
}
