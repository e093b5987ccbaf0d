package relay

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"ethaychain/core/types"
)

const (
	EventTypeMessageSent      = "relay.message.sent"
	EventTypeMessageProcessed = "relay.message.processed"
	EventTypeRefundCredited   = "relay.refund.credited"
	EventTypeRefundClaimed    = "relay.refund.claimed"
)

type relayEvent struct {
	evt *types.Event
}

func (e relayEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e relayEvent) Event() *types.Event { return e.evt }

// NewMessageSentEvent returns the payload emitted when the sender hands a
// message to the transport.
func NewMessageSentEvent(id [32]byte, msg *Message) *types.Event {
	attrs := map[string]string{
		"messageId": hex.EncodeToString(id[:]),
	}
	if msg != nil {
		attrs["destinationSelector"] = strconv.FormatUint(msg.DestinationSelector, 10)
		attrs["receiver"] = hex.EncodeToString(msg.Receiver[:])
		attrs["buyer"] = hex.EncodeToString(msg.Buyer[:])
		attrs["productId"] = strconv.FormatUint(msg.ProductID, 10)
		attrs["quantity"] = strconv.FormatUint(msg.Quantity, 10)
		attrs["amount"] = msg.Amount.String()
	}
	return &types.Event{Type: EventTypeMessageSent, Attributes: attrs}
}

func recordAttrs(r *MessageRecord) map[string]string {
	attrs := make(map[string]string)
	if r == nil {
		return attrs
	}
	attrs["messageId"] = hex.EncodeToString(r.ID[:])
	attrs["sourceSelector"] = strconv.FormatUint(r.Origin.Selector, 10)
	attrs["buyer"] = hex.EncodeToString(r.Buyer[:])
	attrs["productId"] = strconv.FormatUint(r.ProductID, 10)
	attrs["amount"] = r.Amount.String()
	attrs["status"] = r.Status
	return attrs
}

// NewMessageProcessedEvent returns the payload emitted after a successful
// replayed purchase.
func NewMessageProcessedEvent(r *MessageRecord) *types.Event {
	attrs := recordAttrs(r)
	if r != nil {
		attrs["purchaseId"] = strconv.FormatUint(r.PurchaseID, 10)
	}
	return &types.Event{Type: EventTypeMessageProcessed, Attributes: attrs}
}

// NewRefundCreditedEvent returns the payload emitted when a failed replay
// routes the delivered funds to the buyer's refund balance.
func NewRefundCreditedEvent(r *MessageRecord) *types.Event {
	attrs := recordAttrs(r)
	if r != nil && r.FailReason != "" {
		attrs["reason"] = r.FailReason
	}
	return &types.Event{Type: EventTypeRefundCredited, Attributes: attrs}
}

// NewRefundClaimedEvent returns the payload emitted when a buyer withdraws
// accumulated refund credit.
func NewRefundClaimedEvent(buyer [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRefundClaimed,
		Attributes: map[string]string{
			"buyer":  hex.EncodeToString(buyer[:]),
			"amount": amount.String(),
		},
	}
}
