package market

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// JudgePolicy decides whether a registered judge may resolve a given dispute.
// The engine has already checked the judge role; policies only narrow the
// eligible set.
type JudgePolicy interface {
	Eligible(judges [][20]byte, judge [20]byte, productID, purchaseID uint64) (bool, error)
}

// FlatPolicy admits any registered judge, matching the contract behaviour the
// driving scripts exercise.
type FlatPolicy struct{}

func (FlatPolicy) Eligible([][20]byte, [20]byte, uint64, uint64) (bool, error) {
	return true, nil
}

// AssignedPolicy pins each dispute to a single judge chosen deterministically
// from the registered set, keyed by the purchase identity. The assignment is
// stable across calls and cannot be steered by any individual judge.
type AssignedPolicy struct{}

func (AssignedPolicy) Eligible(judges [][20]byte, judge [20]byte, productID, purchaseID uint64) (bool, error) {
	if len(judges) == 0 {
		return false, nil
	}
	var seed [16]byte
	binary.BigEndian.PutUint64(seed[:8], productID)
	binary.BigEndian.PutUint64(seed[8:], purchaseID)
	digest := ethcrypto.Keccak256(seed[:])
	idx := binary.BigEndian.Uint64(digest[:8]) % uint64(len(judges))
	return judges[idx] == judge, nil
}
