package relay

import (
	"fmt"
	"math/big"
)

// Message is the purchase intent forwarded across chains together with the
// escrow funds. It is immutable once handed to the transport; the receiver
// consumes each message identifier at most once.
type Message struct {
	DestinationSelector uint64
	Receiver            [20]byte
	Buyer               [20]byte
	ProductID           uint64
	Quantity            uint64
	Referrer            [20]byte
	Price               *big.Int
	Amount              *big.Int
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Price != nil {
		clone.Price = new(big.Int).Set(m.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	if m.Amount != nil {
		clone.Amount = new(big.Int).Set(m.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeMessage validates a message, returning a cloned instance.
func SanitizeMessage(m *Message) (*Message, error) {
	if m == nil {
		return nil, fmt.Errorf("nil message")
	}
	clone := m.Clone()
	if clone.DestinationSelector == 0 {
		return nil, fmt.Errorf("relay: destination selector required")
	}
	if clone.Buyer == ([20]byte{}) {
		return nil, fmt.Errorf("relay: buyer required")
	}
	if clone.Quantity == 0 {
		return nil, fmt.Errorf("relay: quantity must be positive")
	}
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("relay: price must be positive")
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("relay: amount must be positive")
	}
	return clone, nil
}

// Origin identifies the (chain selector, sender address) pair a delivered
// message claims to come from. The receiver only trusts configured origins.
type Origin struct {
	Selector uint64
	Sender   [20]byte
}

// Message record statuses persisted by the receiver.
const (
	MessageStatusPurchased      = "purchased"
	MessageStatusRefundCredited = "refund_credited"
)

// MessageRecord is the receiver's permanent replay-protection entry for one
// processed message identifier.
type MessageRecord struct {
	ID          [32]byte
	Origin      Origin
	Buyer       [20]byte
	ProductID   uint64
	PurchaseID  uint64
	Amount      *big.Int
	Status      string
	FailReason  string
	ProcessedAt int64
}

// Clone returns a deep copy of the record.
func (r *MessageRecord) Clone() *MessageRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}
