package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"casino-core/internal/model"
)

const (
	alice = model.AccountID("alice")
	chip  = model.TokenID("chip-token")
)

func TestDepositStorageCollateral(t *testing.T) {
	l := New(FreeCostModel{})

	assert.False(t, l.Exists(alice))
	l.DepositStorageCollateral(alice, 500)
	require.True(t, l.Exists(alice))

	account, err := l.Get(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), account.StorageCollateral)

	// A second deposit accumulates.
	l.DepositStorageCollateral(alice, 300)
	account, err = l.Get(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), account.StorageCollateral)
}

func TestCreditDebit(t *testing.T) {
	l := New(FreeCostModel{})
	l.DepositStorageCollateral(alice, 0)

	require.NoError(t, l.Credit(alice, chip, 1000))

	balance, err := l.Balance(alice, chip)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), balance)

	require.NoError(t, l.Debit(alice, chip, 400))
	balance, err = l.Balance(alice, chip)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), balance)
}

func TestCreditDebitErrors(t *testing.T) {
	l := New(FreeCostModel{})
	l.DepositStorageCollateral(alice, 0)
	require.NoError(t, l.Credit(alice, chip, 100))

	tests := []struct {
		name    string
		op      func() error
		wantErr error
	}{
		{
			name:    "credit unknown account",
			op:      func() error { return l.Credit("nobody", chip, 1) },
			wantErr: ErrAccountNotRegistered,
		},
		{
			name:    "debit unknown account",
			op:      func() error { return l.Debit("nobody", chip, 1) },
			wantErr: ErrAccountNotRegistered,
		},
		{
			name:    "debit beyond balance",
			op:      func() error { return l.Debit(alice, chip, 101) },
			wantErr: ErrInsufficientBalance,
		},
		{
			name:    "credit overflowing balance",
			op:      func() error { return l.Credit(alice, chip, ^uint64(0)) },
			wantErr: ErrAmountOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.op(), tt.wantErr)
		})
	}

	// Failed operations must leave the balance untouched.
	balance, err := l.Balance(alice, chip)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)
}

func TestStorageCollateralCoversFootprint(t *testing.T) {
	l := New(JSONCostModel{PerByte: 1})

	// The empty account record already consumes some bytes; 10 units cannot
	// cover it plus a new balance entry.
	l.DepositStorageCollateral(alice, 10)
	err := l.Credit(alice, chip, 1000)
	assert.ErrorIs(t, err, ErrInsufficientStorageCollateral)

	// With ample collateral the same credit commits.
	l.DepositStorageCollateral(alice, 10_000)
	require.NoError(t, l.Credit(alice, chip, 1000))

	balance, err := l.Balance(alice, chip)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), balance)
}

func TestWithdrawStorageCollateral(t *testing.T) {
	l := New(FreeCostModel{})
	l.DepositStorageCollateral(alice, 900)

	t.Run("unknown account", func(t *testing.T) {
		_, err := l.WithdrawStorageCollateral("nobody", 0)
		assert.ErrorIs(t, err, ErrAccountNotRegistered)
	})

	t.Run("partial withdrawal", func(t *testing.T) {
		withdrawn, err := l.WithdrawStorageCollateral(alice, 400)
		require.NoError(t, err)
		assert.Equal(t, uint64(400), withdrawn)
	})

	t.Run("zero amount withdraws the whole surplus", func(t *testing.T) {
		withdrawn, err := l.WithdrawStorageCollateral(alice, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(500), withdrawn)
	})

	t.Run("no surplus left", func(t *testing.T) {
		_, err := l.WithdrawStorageCollateral(alice, 0)
		assert.ErrorIs(t, err, ErrInsufficientStorageCollateral)
	})
}

func TestWithdrawStorageCollateralKeepsFootprintCovered(t *testing.T) {
	l := New(JSONCostModel{PerByte: 2})
	l.DepositStorageCollateral(alice, 10_000)
	require.NoError(t, l.Credit(alice, chip, 500))

	account, err := l.Get(alice)
	require.NoError(t, err)
	required := account.StorageBytesUsed * 2

	// Withdrawing more than the surplus is refused.
	_, err = l.WithdrawStorageCollateral(alice, 10_000-required+1)
	assert.ErrorIs(t, err, ErrInsufficientStorageCollateral)

	withdrawn, err := l.WithdrawStorageCollateral(alice, 0)
	require.NoError(t, err)
	assert.Equal(t, 10_000-required, withdrawn)
}

func TestApplyRevalidatesCandidate(t *testing.T) {
	l := New(JSONCostModel{PerByte: 1})
	l.DepositStorageCollateral(alice, 10_000)
	require.NoError(t, l.Credit(alice, chip, 100))

	account, err := l.Get(alice)
	require.NoError(t, err)
	account.SetBalance(chip, 250)
	require.NoError(t, l.Apply(account))

	balance, err := l.Balance(alice, chip)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), balance)

	stranger := model.NewAccount("stranger", 0)
	assert.ErrorIs(t, l.Apply(stranger), ErrAccountNotRegistered)
}

func TestTrackRecord(t *testing.T) {
	l := New(JSONCostModel{PerByte: 1})
	l.DepositStorageCollateral(alice, 150)

	account, err := l.Get(alice)
	require.NoError(t, err)
	before := account.StorageBytesUsed

	record := map[string]uint64{"house_funds": 0}
	require.NoError(t, l.TrackRecord(alice, record))

	account, err = l.Get(alice)
	require.NoError(t, err)
	assert.Greater(t, account.StorageBytesUsed, before)

	// Growth past the collateral is refused and not applied.
	tracked := account.StorageBytesUsed
	err = l.TrackRecord(alice, make([]byte, 1000))
	assert.ErrorIs(t, err, ErrInsufficientStorageCollateral)

	account, err = l.Get(alice)
	require.NoError(t, err)
	assert.Equal(t, tracked, account.StorageBytesUsed)
}

func TestGetReturnsCopy(t *testing.T) {
	l := New(FreeCostModel{})
	l.DepositStorageCollateral(alice, 0)
	require.NoError(t, l.Credit(alice, chip, 100))

	account, err := l.Get(alice)
	require.NoError(t, err)
	account.SetBalance(chip, 99999)

	balance, err := l.Balance(alice, chip)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)
}

func TestSnapshotRestore(t *testing.T) {
	l := New(FreeCostModel{})
	l.DepositStorageCollateral(alice, 42)
	require.NoError(t, l.Credit(alice, chip, 7))

	restored := New(FreeCostModel{})
	restored.Restore(l.Snapshot())

	balance, err := restored.Balance(alice, chip)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), balance)

	account, err := restored.Get(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), account.StorageCollateral)
}

// TestCreditDebitConservationProperty checks that any sequence of successful
// credits and debits keeps the balance equal to the running sum.
func TestCreditDebitConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := New(FreeCostModel{})
		l.DepositStorageCollateral(alice, 0)

		var expected uint64
		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "credit") {
				amount := rapid.Uint64Range(0, 1_000_000).Draw(t, "creditAmount")
				if err := l.Credit(alice, chip, amount); err == nil {
					expected += amount
				}
			} else {
				amount := rapid.Uint64Range(0, 1_000_000).Draw(t, "debitAmount")
				if err := l.Debit(alice, chip, amount); err == nil {
					expected -= amount
				}
			}

			balance, err := l.Balance(alice, chip)
			if err != nil {
				t.Fatalf("balance lookup failed: %v", err)
			}
			if balance != expected {
				t.Fatalf("balance diverged: got %d, want %d", balance, expected)
			}
		}
	})
}
