package treasury

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casino-core/internal/model"
)

const (
	chip = model.TokenID("chip-token")
	gold = model.TokenID("gold-token")
)

func TestRegisterCreatesZeroEntries(t *testing.T) {
	tr := New()
	tr.Register(chip)

	assert.Zero(t, tr.Owner(chip))
	assert.Zero(t, tr.NFT(chip))
	assert.Len(t, tr.OwnerReserves(), 1)
	assert.Len(t, tr.NFTReserves(), 1)

	// Registering again does not disturb accrued amounts.
	tr.SetOwner(chip, 50)
	tr.Register(chip)
	assert.Equal(t, uint64(50), tr.Owner(chip))
}

func TestWithdraw(t *testing.T) {
	tr := New()
	tr.Register(chip)
	tr.SetOwner(chip, 300)
	tr.SetNFT(chip, 200)

	amount, err := tr.WithdrawOwner(chip)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), amount)
	assert.Zero(t, tr.Owner(chip))

	amount, err = tr.WithdrawNFT(chip)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), amount)
	assert.Zero(t, tr.NFT(chip))

	t.Run("zero balance", func(t *testing.T) {
		_, err := tr.WithdrawOwner(chip)
		assert.ErrorIs(t, err, ErrZeroBalance)
		_, err = tr.WithdrawNFT(chip)
		assert.ErrorIs(t, err, ErrZeroBalance)
	})
}

func TestTokenEntrySurvivesWithdrawal(t *testing.T) {
	tr := New()
	tr.Register(chip)
	tr.SetOwner(chip, 10)

	_, err := tr.WithdrawOwner(chip)
	require.NoError(t, err)

	// The entry stays so index-based lookups remain stable.
	token, err := tr.OwnerTokenAt(0)
	require.NoError(t, err)
	assert.Equal(t, chip, token)
}

func TestTokenAt(t *testing.T) {
	tr := New()
	tr.Register(gold)
	tr.Register(chip)

	tests := []struct {
		name    string
		index   int
		want    model.TokenID
		wantErr error
	}{
		{"first sorted token", 0, chip, nil},
		{"second sorted token", 1, gold, nil},
		{"negative index", -1, "", ErrTokenIndexOutOfRange},
		{"index past the end", 2, "", ErrTokenIndexOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tr.OwnerTokenAt(tt.index)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)

			nftToken, err := tr.NFTTokenAt(tt.index)
			require.NoError(t, err)
			assert.Equal(t, tt.want, nftToken)
		})
	}
}

func TestReservesReturnCopies(t *testing.T) {
	tr := New()
	tr.Register(chip)
	tr.SetOwner(chip, 5)

	reserves := tr.OwnerReserves()
	reserves[chip] = 99999
	assert.Equal(t, uint64(5), tr.Owner(chip))
}

func TestRestore(t *testing.T) {
	tr := New()
	tr.Restore(
		map[model.TokenID]uint64{chip: 11},
		map[model.TokenID]uint64{chip: 22},
	)
	assert.Equal(t, uint64(11), tr.Owner(chip))
	assert.Equal(t, uint64(22), tr.NFT(chip))
}
