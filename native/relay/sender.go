package relay

import (
	"errors"
	"fmt"
	"math/big"

	"ethaychain/core/events"
	"ethaychain/core/types"
	nativecommon "ethaychain/native/common"
)

const relayModuleName = "relay"

var (
	errNilTransport = errors.New("relay sender: transport not configured")
	errNilToken     = errors.New("relay sender: token ledger not configured")
)

// TokenLedger is the settlement-token capability used by both relay halves.
type TokenLedger interface {
	TransferFrom(owner, spender, to [20]byte, amount *big.Int) error
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Sender accepts a purchase intent on the source chain, pulls the buyer's
// funds into custody and hands the message plus the token amount to the
// cross-chain transport. Fire-and-forget: it returns the transport-assigned
// identifier without waiting for delivery.
type Sender struct {
	token     TokenLedger
	transport Transport
	custody   [20]byte
	emitter   events.Emitter
	pauses    nativecommon.PauseView
}

func NewSender(custody [20]byte) *Sender {
	return &Sender{
		custody: custody,
		emitter: events.NoopEmitter{},
	}
}

// SetToken configures the settlement-token ledger.
func (s *Sender) SetToken(token TokenLedger) { s.token = token }

// SetTransport configures the cross-chain transport.
func (s *Sender) SetTransport(transport Transport) { s.transport = transport }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (s *Sender) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

func (s *Sender) SetPauses(p nativecommon.PauseView) {
	if s == nil {
		return
	}
	s.pauses = p
}

// Custody returns the address holding funds pulled for in-flight messages.
func (s *Sender) Custody() [20]byte { return s.custody }

func (s *Sender) emit(evt *types.Event) {
	if s == nil || s.emitter == nil || evt == nil {
		return
	}
	s.emitter.Emit(relayEvent{evt: evt})
}

// SendMessage builds the cross-chain purchase intent, pulls quantity times
// price from the buyer (allowance semantics, spender is the custody account)
// and relays it. Returns the transport-assigned message identifier. When the
// transport rejects the message synchronously the pulled funds go back to
// the buyer instead of sitting in custody with no claim path.
func (s *Sender) SendMessage(destinationSelector uint64, receiver, buyer [20]byte, productID, quantity uint64, referrer [20]byte, price *big.Int) ([32]byte, error) {
	if s == nil || s.token == nil {
		return [32]byte{}, errNilToken
	}
	if s.transport == nil {
		return [32]byte{}, errNilTransport
	}
	if err := nativecommon.Guard(s.pauses, relayModuleName); err != nil {
		return [32]byte{}, err
	}
	msg := &Message{
		DestinationSelector: destinationSelector,
		Receiver:            receiver,
		Buyer:               buyer,
		ProductID:           productID,
		Quantity:            quantity,
		Referrer:            referrer,
		Price:               price,
	}
	if price != nil {
		msg.Amount = new(big.Int).Mul(price, new(big.Int).SetUint64(quantity))
	}
	sanitized, err := SanitizeMessage(msg)
	if err != nil {
		return [32]byte{}, err
	}
	if err := s.token.TransferFrom(buyer, s.custody, s.custody, sanitized.Amount); err != nil {
		return [32]byte{}, err
	}
	id, err := s.transport.Send(sanitized)
	if err != nil {
		if refundErr := s.token.Transfer(s.custody, buyer, sanitized.Amount); refundErr != nil {
			return [32]byte{}, fmt.Errorf("relay send failed: %w (custody refund failed: %v)", err, refundErr)
		}
		return [32]byte{}, err
	}
	s.emit(NewMessageSentEvent(id, sanitized))
	return id, nil
}
