package validator

import (
	"github.com/holiman/uint256"
)

// Target is a fixed target rule for hashes up to 256 bits wide. Both genesis
// and appended hashes must not exceed the target. It is not the default rule
// and exists for ledgers that want a constant mining cost.
type Target struct {
	target *uint256.Int
}

// NewTarget constructs a fixed target rule requiring difficulty leading zero
// bits in every 256 bit hash.
func NewTarget(difficulty uint) Target {
	if difficulty > 256 {
		difficulty = 256
	}

	limit := new(uint256.Int).SetAllOne()

	return Target{target: limit.Rsh(limit, difficulty)}
}

// IsValidGenesisHash checks the hash does not exceed the target.
func (t Target) IsValidGenesisHash(hash []byte) bool {
	return t.solved(hash)
}

// IsValidAppendHash checks the hash does not exceed the target. The previous
// hash plays no part in the decision.
func (t Target) IsValidAppendHash(_ []byte, hash []byte) bool {
	return t.solved(hash)
}

func (t Target) solved(hash []byte) bool {
	if len(hash) > 32 {
		return false
	}

	v := new(uint256.Int).SetBytes(hash)
	return !v.Gt(t.target)
}
