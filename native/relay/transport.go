package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Transport is the cross-chain messaging capability consumed by the sender.
// Send assigns the message identifier and attempts delivery; it promises
// at-least-once attempted delivery, nothing more. The sender does not wait
// for confirmation.
type Transport interface {
	Send(msg *Message) ([32]byte, error)
}

var errNoRoute = errors.New("relay transport: no receiver registered for selector")

// Loopback is an in-process transport used for tests and single-node
// deployments: both "chains" share one state, so delivery moves the attached
// funds from the sender's custody to the receiver's custody and invokes the
// receiver synchronously. Deliveries can be replayed through Redeliver to
// exercise the receiver's idempotency contract.
type Loopback struct {
	mu        sync.Mutex
	token     custodyMover
	origin    Origin
	custody   [20]byte
	receivers map[uint64]*Receiver
	nonce     uint64
}

type custodyMover interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// NewLoopback creates a loopback transport sending on behalf of the given
// origin, with funds custodied at the supplied address.
func NewLoopback(token custodyMover, origin Origin, custody [20]byte) *Loopback {
	return &Loopback{
		token:     token,
		origin:    origin,
		custody:   custody,
		receivers: make(map[uint64]*Receiver),
	}
}

// RegisterReceiver routes messages for the selector to the receiver.
func (t *Loopback) RegisterReceiver(selector uint64, r *Receiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receivers[selector] = r
}

// Send assigns a message identifier and delivers synchronously. A failed
// delivery puts the attached funds back in the sender's custody, so an error
// from Send means no funds moved.
func (t *Loopback) Send(msg *Message) ([32]byte, error) {
	sanitized, err := SanitizeMessage(msg)
	if err != nil {
		return [32]byte{}, err
	}
	t.mu.Lock()
	t.nonce++
	nonce := t.nonce
	receiver, ok := t.receivers[sanitized.DestinationSelector]
	t.mu.Unlock()
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: %d", errNoRoute, sanitized.DestinationSelector)
	}
	id := messageID(t.origin, sanitized, nonce)
	if err := t.token.Transfer(t.custody, receiver.Custody(), sanitized.Amount); err != nil {
		return [32]byte{}, err
	}
	if err := receiver.Receive(t.origin, id, sanitized, sanitized.Amount); err != nil {
		if restoreErr := t.token.Transfer(receiver.Custody(), t.custody, sanitized.Amount); restoreErr != nil {
			return [32]byte{}, fmt.Errorf("delivery failed: %w (custody restore failed: %v)", err, restoreErr)
		}
		return [32]byte{}, err
	}
	return id, nil
}

// Redeliver replays a previously assigned message against the registered
// receiver without moving funds again, mimicking a duplicate delivery by the
// underlying transport.
func (t *Loopback) Redeliver(id [32]byte, msg *Message) error {
	sanitized, err := SanitizeMessage(msg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	receiver, ok := t.receivers[sanitized.DestinationSelector]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", errNoRoute, sanitized.DestinationSelector)
	}
	return receiver.Receive(t.origin, id, sanitized, sanitized.Amount)
}

func messageID(origin Origin, msg *Message, nonce uint64) [32]byte {
	var buf [40]byte
	binary.BigEndian.PutUint64(buf[:8], origin.Selector)
	binary.BigEndian.PutUint64(buf[8:16], msg.DestinationSelector)
	binary.BigEndian.PutUint64(buf[16:24], msg.ProductID)
	binary.BigEndian.PutUint64(buf[24:32], msg.Quantity)
	binary.BigEndian.PutUint64(buf[32:], nonce)
	return ethcrypto.Keccak256Hash(origin.Sender[:], msg.Receiver[:], msg.Buyer[:], msg.Price.Bytes(), buf[:])
}
