package identity

import (
	"errors"
	"fmt"
	"testing"
)

type mockGateState struct {
	seen map[string]bool
}

func newMockGateState() *mockGateState {
	return &mockGateState{seen: make(map[string]bool)}
}

func nullifierKeyFor(action string, nullifier [32]byte) string {
	return fmt.Sprintf("%s/%x", action, nullifier)
}

func (m *mockGateState) NullifierSeen(action string, nullifier [32]byte) (bool, error) {
	return m.seen[nullifierKeyFor(action, nullifier)], nil
}

func (m *mockGateState) NullifierPut(action string, nullifier [32]byte) error {
	m.seen[nullifierKeyFor(action, nullifier)] = true
	return nil
}

type stubVerifier struct {
	nullifier [32]byte
	err       error
}

func (v stubVerifier) Verify(proof *Proof, appID, actionID string, signal []byte) ([32]byte, error) {
	return v.nullifier, v.err
}

func newTestCaller(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestProof(fill byte) *Proof {
	proof := &Proof{}
	proof.NullifierHash[0] = fill
	return proof
}

func TestGateConsumesNullifierOnce(t *testing.T) {
	state := newMockGateState()
	gate := NewGate(DevVerifier{}, "app_test")
	gate.SetState(state)
	caller := newTestCaller(0x01)

	if err := gate.Verify(caller, newTestProof(0x01), ActionRegisterSeller); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	// Same proof for the same action must be rejected, even from a
	// different caller.
	err := gate.Verify(newTestCaller(0x02), newTestProof(0x01), ActionRegisterSeller)
	if !errors.Is(err, ErrNullifierReused) {
		t.Fatalf("expected ErrNullifierReused, got %v", err)
	}
}

func TestGateActionsScopeNullifiers(t *testing.T) {
	state := newMockGateState()
	gate := NewGate(DevVerifier{}, "app_test")
	gate.SetState(state)
	caller := newTestCaller(0x03)

	if err := gate.Verify(caller, newTestProof(0x03), ActionRegisterSeller); err != nil {
		t.Fatalf("seller verify: %v", err)
	}
	// The same underlying person may register for the other role: the
	// dev verifier derives distinct nullifiers per action.
	if err := gate.Verify(caller, newTestProof(0x03), ActionRegisterJudge); err != nil {
		t.Fatalf("judge verify: %v", err)
	}
}

func TestGateRejectsInvalidProof(t *testing.T) {
	state := newMockGateState()
	gate := NewGate(stubVerifier{err: fmt.Errorf("bad merkle root")}, "app_test")
	gate.SetState(state)

	err := gate.Verify(newTestCaller(0x04), newTestProof(0x04), ActionRegisterSeller)
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}
	if len(state.seen) != 0 {
		t.Fatalf("rejected proof must not consume a nullifier")
	}
}

func TestGateRejectsNilProof(t *testing.T) {
	gate := NewGate(DevVerifier{}, "app_test")
	gate.SetState(newMockGateState())
	if err := gate.Verify(newTestCaller(0x05), nil, ActionRegisterSeller); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for nil proof, got %v", err)
	}
}

func TestDevVerifierBindsAppAndAction(t *testing.T) {
	proof := newTestProof(0x06)
	sellerNullifier, err := DevVerifier{}.Verify(proof, "app_test", ActionRegisterSeller, []byte("signal"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	judgeNullifier, err := DevVerifier{}.Verify(proof, "app_test", ActionRegisterJudge, []byte("signal"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sellerNullifier == judgeNullifier {
		t.Fatalf("expected action-scoped nullifiers to differ")
	}
	otherApp, err := DevVerifier{}.Verify(proof, "app_other", ActionRegisterSeller, []byte("signal"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sellerNullifier == otherApp {
		t.Fatalf("expected app-scoped nullifiers to differ")
	}
}
