package identity

import (
	"errors"
	"fmt"
	"strings"

	"ethaychain/core/events"
	"ethaychain/core/types"
	nativecommon "ethaychain/native/common"
)

const gateModuleName = "identity"

// Actions recognised by the gate. Each action consumes its own nullifier
// scope, so the same person can register as seller and as judge but never
// twice in the same role.
const (
	ActionRegisterSeller = "register-seller"
	ActionRegisterJudge  = "register-judge"
)

var (
	ErrInvalidProof    = errors.New("identity: invalid proof")
	ErrNullifierReused = errors.New("identity: nullifier already consumed")

	errNilState    = errors.New("identity gate: state not configured")
	errNilVerifier = errors.New("identity gate: verifier not configured")
)

// Proof carries the externally issued uniqueness proof. The gate treats the
// payload as opaque; only the verifier interprets it.
type Proof struct {
	MerkleRoot    [32]byte
	NullifierHash [32]byte
	Payload       []byte
}

// Verifier abstracts the external uniqueness-proof router. Implementations
// must bind the proof to the signal (the caller address) and the action
// identifier and return the proof's nullifier.
type Verifier interface {
	Verify(proof *Proof, appID, actionID string, signal []byte) ([32]byte, error)
}

type gateState interface {
	NullifierSeen(action string, nullifier [32]byte) (bool, error)
	NullifierPut(action string, nullifier [32]byte) error
}

// Gate wraps the external verifier and enforces one-time consumption of each
// (action, nullifier) pair. The nullifier is recorded in the same state
// transaction that grants the capability, so a proof can never admit two
// registrations.
type Gate struct {
	state    gateState
	verifier Verifier
	appID    string
	emitter  events.Emitter
	pauses   nativecommon.PauseView
}

func NewGate(verifier Verifier, appID string) *Gate {
	return &Gate{
		verifier: verifier,
		appID:    strings.TrimSpace(appID),
		emitter:  events.NoopEmitter{},
	}
}

// SetState configures the state backend used for nullifier bookkeeping.
func (g *Gate) SetState(state gateState) { g.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (g *Gate) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

func (g *Gate) SetPauses(p nativecommon.PauseView) {
	if g == nil {
		return
	}
	g.pauses = p
}

func (g *Gate) emit(evt *types.Event) {
	if g == nil || g.emitter == nil || evt == nil {
		return
	}
	g.emitter.Emit(gateEvent{evt: evt})
}

// Verify checks the proof against the external verifier, enforces nullifier
// uniqueness for the action and records the nullifier. A nil error means the
// caller holds a fresh "verified human" capability for the action.
func (g *Gate) Verify(caller [20]byte, proof *Proof, action string) error {
	if g == nil || g.state == nil {
		return errNilState
	}
	if g.verifier == nil {
		return errNilVerifier
	}
	if err := nativecommon.Guard(g.pauses, gateModuleName); err != nil {
		return err
	}
	trimmed := strings.TrimSpace(action)
	if trimmed == "" {
		return fmt.Errorf("identity: action required")
	}
	if proof == nil {
		return ErrInvalidProof
	}
	nullifier, err := g.verifier.Verify(proof, g.appID, trimmed, caller[:])
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	seen, err := g.state.NullifierSeen(trimmed, nullifier)
	if err != nil {
		return err
	}
	if seen {
		return ErrNullifierReused
	}
	if err := g.state.NullifierPut(trimmed, nullifier); err != nil {
		return err
	}
	g.emit(NewVerifiedEvent(caller, trimmed, nullifier))
	return nil
}
