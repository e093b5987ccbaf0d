package identity

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DevVerifier accepts any structurally complete proof and derives the
// nullifier deterministically from the proof's nullifier hash, the action and
// the app identifier. It stands in for the external uniqueness-proof router in
// development networks and tests; the nullifier-reuse contract enforced by
// the gate behaves identically against it.
type DevVerifier struct{}

func (DevVerifier) Verify(proof *Proof, appID, actionID string, signal []byte) ([32]byte, error) {
	if proof == nil {
		return [32]byte{}, fmt.Errorf("nil proof")
	}
	if proof.NullifierHash == ([32]byte{}) {
		return [32]byte{}, fmt.Errorf("missing nullifier hash")
	}
	if len(signal) == 0 {
		return [32]byte{}, fmt.Errorf("missing signal")
	}
	return ethcrypto.Keccak256Hash(proof.NullifierHash[:], []byte(appID), []byte(actionID)), nil
}
