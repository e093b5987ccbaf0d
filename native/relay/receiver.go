package relay

import (
	"errors"
	"math/big"
	"time"

	"ethaychain/core/events"
	"ethaychain/core/types"
	nativecommon "ethaychain/native/common"
	"ethaychain/native/market"
)

var (
	ErrUnauthorizedSender = errors.New("relay: message from unauthorized origin")
	ErrDuplicateMessage   = errors.New("relay: message already processed")
	ErrUnderpaidMessage   = errors.New("relay: delivered amount below destination charge")
	ErrNoRefund           = errors.New("relay: no refund credit for buyer")

	errNilReceiverState = errors.New("relay receiver: state not configured")
	errNilReceiverToken = errors.New("relay receiver: token ledger not configured")
	errNilMarket        = errors.New("relay receiver: market entry point not configured")
)

type receiverState interface {
	RelayMessageGet(id [32]byte) (*MessageRecord, bool, error)
	RelayMessagePut(*MessageRecord) error
	RefundCredit(buyer [20]byte, amount *big.Int) error
	RefundBalance(buyer [20]byte) (*big.Int, error)
	RefundDebit(buyer [20]byte, amount *big.Int) error
}

// PurchaseEntry is the slice of the marketplace ledger the receiver replays
// messages against. The quote is taken before the purchase so a message
// carrying less than the destination charge never spends custody funds it
// did not deliver.
type PurchaseEntry interface {
	QuotePurchase(productID, quantity uint64) (*big.Int, error)
	BuyProductFor(buyer [20]byte, productID, quantity uint64, referrer [20]byte, payFrom [20]byte) (*market.Purchase, error)
}

// Receiver consumes verified cross-chain messages on the destination chain.
// It owns the replay-protection ledger keyed by message identifier and the
// recoverable refund credits for purchases that fail on replay; delivered
// funds are never dropped.
type Receiver struct {
	state   receiverState
	token   TokenLedger
	market  PurchaseEntry
	custody [20]byte
	allowed map[uint64][20]byte
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

func NewReceiver(custody [20]byte) *Receiver {
	return &Receiver{
		custody: custody,
		allowed: make(map[uint64][20]byte),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used for replay protection and
// refund credits.
func (r *Receiver) SetState(state receiverState) { r.state = state }

// SetToken configures the settlement-token ledger.
func (r *Receiver) SetToken(token TokenLedger) { r.token = token }

// SetMarket configures the ledger entry point replayed messages invoke.
func (r *Receiver) SetMarket(entry PurchaseEntry) { r.market = entry }

// AllowSource trusts messages claiming the (selector, sender) origin.
func (r *Receiver) AllowSource(selector uint64, sender [20]byte) {
	r.allowed[selector] = sender
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (r *Receiver) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Receiver) SetPauses(p nativecommon.PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (r *Receiver) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// Custody returns the address receiving delivered funds.
func (r *Receiver) Custody() [20]byte { return r.custody }

func (r *Receiver) emit(evt *types.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(relayEvent{evt: evt})
}

func (r *Receiver) now() int64 {
	if r == nil || r.nowFn == nil {
		return time.Now().Unix()
	}
	return r.nowFn()
}

// Receive processes one delivered message: origin check, replay check, a
// quote against the current product price, then a purchase against the
// ledger on the buyer's behalf. A message whose delivered amount falls short
// of the quoted charge is not replayed; like any failed purchase, the
// delivered amount is credited to the buyer's refund balance instead. Either
// way the message identifier is consumed. Funds delivered beyond the charge
// become refund credit as well, so custody never accumulates unclaimable
// balances.
func (r *Receiver) Receive(origin Origin, id [32]byte, msg *Message, amount *big.Int) error {
	if r == nil || r.state == nil {
		return errNilReceiverState
	}
	if r.token == nil {
		return errNilReceiverToken
	}
	if r.market == nil {
		return errNilMarket
	}
	if err := nativecommon.Guard(r.pauses, relayModuleName); err != nil {
		return err
	}
	expected, ok := r.allowed[origin.Selector]
	if !ok || expected != origin.Sender {
		return ErrUnauthorizedSender
	}
	if _, seen, err := r.state.RelayMessageGet(id); err != nil {
		return err
	} else if seen {
		return ErrDuplicateMessage
	}
	sanitized, err := SanitizeMessage(msg)
	if err != nil {
		return err
	}
	amt := new(big.Int).Set(sanitized.Amount)
	if amount != nil {
		amt = new(big.Int).Set(amount)
	}
	record := &MessageRecord{
		ID:          id,
		Origin:      origin,
		Buyer:       sanitized.Buyer,
		ProductID:   sanitized.ProductID,
		Amount:      amt,
		ProcessedAt: r.now(),
	}
	charge, err := r.market.QuotePurchase(sanitized.ProductID, sanitized.Quantity)
	if err != nil {
		return r.creditRefund(record, err)
	}
	if amt.Cmp(charge) < 0 {
		return r.creditRefund(record, ErrUnderpaidMessage)
	}
	purchase, err := r.market.BuyProductFor(sanitized.Buyer, sanitized.ProductID, sanitized.Quantity, sanitized.Referrer, r.custody)
	if err != nil {
		return r.creditRefund(record, err)
	}
	if surplus := new(big.Int).Sub(amt, charge); surplus.Sign() > 0 {
		if err := r.state.RefundCredit(sanitized.Buyer, surplus); err != nil {
			return err
		}
	}
	record.Status = MessageStatusPurchased
	record.PurchaseID = purchase.ID
	if err := r.state.RelayMessagePut(record.Clone()); err != nil {
		return err
	}
	r.emit(NewMessageProcessedEvent(record))
	return nil
}

// creditRefund consumes a failed message: the delivered amount becomes
// refund credit the buyer can claim from custody later.
func (r *Receiver) creditRefund(record *MessageRecord, cause error) error {
	if err := r.state.RefundCredit(record.Buyer, record.Amount); err != nil {
		return err
	}
	record.Status = MessageStatusRefundCredited
	record.FailReason = cause.Error()
	if err := r.state.RelayMessagePut(record.Clone()); err != nil {
		return err
	}
	r.emit(NewRefundCreditedEvent(record))
	return nil
}

// ClaimRefund pays out the buyer's accumulated refund credit from the
// receiver's custody and clears it.
func (r *Receiver) ClaimRefund(buyer [20]byte) (*big.Int, error) {
	if r == nil || r.state == nil {
		return nil, errNilReceiverState
	}
	if r.token == nil {
		return nil, errNilReceiverToken
	}
	if err := nativecommon.Guard(r.pauses, relayModuleName); err != nil {
		return nil, err
	}
	balance, err := r.state.RefundBalance(buyer)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Sign() == 0 {
		return nil, ErrNoRefund
	}
	amount := new(big.Int).Set(balance)
	if err := r.token.Transfer(r.custody, buyer, amount); err != nil {
		return nil, err
	}
	if err := r.state.RefundDebit(buyer, amount); err != nil {
		return nil, err
	}
	r.emit(NewRefundClaimedEvent(buyer, amount))
	return amount, nil
}
