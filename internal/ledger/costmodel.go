package ledger

import "encoding/json"

// StorageCostModel prices the persistent footprint of ledger records. The
// ledger depends only on this capability, so a deployment can plug in the
// substrate's real byte metering while tests use a flat or free model.
type StorageCostModel interface {
	// BytesUsed reports the storage footprint of one logical record.
	BytesUsed(record any) uint64

	// CostPerByte is the collateral price of one stored byte.
	CostPerByte() uint64
}

// JSONCostModel measures a record as the size of its JSON encoding, which is
// how the persistence substrate stores it.
type JSONCostModel struct {
	PerByte uint64
}

// BytesUsed returns the encoded size of the record.
func (m JSONCostModel) BytesUsed(record any) uint64 {
	encoded, err := json.Marshal(record)
	if err != nil {
		return 0
	}
	return uint64(len(encoded))
}

// CostPerByte returns the configured per-byte price.
func (m JSONCostModel) CostPerByte() uint64 {
	return m.PerByte
}

// FreeCostModel charges nothing for storage. Useful in tests that exercise
// balance logic without collateral bookkeeping.
type FreeCostModel struct{}

// BytesUsed always reports zero.
func (FreeCostModel) BytesUsed(any) uint64 { return 0 }

// CostPerByte always reports zero.
func (FreeCostModel) CostPerByte() uint64 { return 0 }
