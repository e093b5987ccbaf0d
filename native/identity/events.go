package identity

import (
	"encoding/hex"

	"ethaychain/core/types"
)

const (
	// EventTypeVerified is emitted when an identity proof is accepted and
	// its nullifier consumed.
	EventTypeVerified = "identity.verified"
)

type gateEvent struct {
	evt *types.Event
}

func (e gateEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e gateEvent) Event() *types.Event { return e.evt }

// NewVerifiedEvent returns the canonical payload for a consumed identity
// capability.
func NewVerifiedEvent(caller [20]byte, action string, nullifier [32]byte) *types.Event {
	return &types.Event{
		Type: EventTypeVerified,
		Attributes: map[string]string{
			"caller":    hex.EncodeToString(caller[:]),
			"action":    action,
			"nullifier": hex.EncodeToString(nullifier[:]),
		},
	}
}
