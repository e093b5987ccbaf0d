package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"ethaychain/core/types"
)

const (
	EventTypeSellerRegistered  = "market.seller.registered"
	EventTypeJudgeRegistered   = "market.judge.registered"
	EventTypeProductCreated    = "market.product.created"
	EventTypePurchaseCreated   = "market.purchase.created"
	EventTypePurchaseConfirmed = "market.purchase.confirmed"
	EventTypePurchaseDisputed  = "market.purchase.disputed"
	EventTypePurchaseResolved  = "market.purchase.resolved"
)

// NewSellerRegisteredEvent returns the canonical payload for a seller
// registration.
func NewSellerRegisteredEvent(addr [20]byte, registeredAt int64) *types.Event {
	return &types.Event{
		Type: EventTypeSellerRegistered,
		Attributes: map[string]string{
			"address":      hex.EncodeToString(addr[:]),
			"registeredAt": strconv.FormatInt(registeredAt, 10),
		},
	}
}

// NewJudgeRegisteredEvent returns the canonical payload for a judge
// registration.
func NewJudgeRegisteredEvent(addr [20]byte, registeredAt int64) *types.Event {
	return &types.Event{
		Type: EventTypeJudgeRegistered,
		Attributes: map[string]string{
			"address":      hex.EncodeToString(addr[:]),
			"registeredAt": strconv.FormatInt(registeredAt, 10),
		},
	}
}

// NewProductCreatedEvent returns the canonical payload for a new listing.
func NewProductCreatedEvent(p *Product) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["productId"] = strconv.FormatUint(p.ID, 10)
		attrs["seller"] = hex.EncodeToString(p.Seller[:])
		attrs["name"] = p.Name
		attrs["price"] = p.Price.String()
		attrs["quantity"] = strconv.FormatUint(p.Quantity, 10)
		attrs["uri"] = p.URI
	}
	return &types.Event{Type: EventTypeProductCreated, Attributes: attrs}
}

func purchaseAttrs(p *Purchase) map[string]string {
	attrs := make(map[string]string)
	if p == nil {
		return attrs
	}
	attrs["productId"] = strconv.FormatUint(p.ProductID, 10)
	attrs["purchaseId"] = strconv.FormatUint(p.ID, 10)
	attrs["buyer"] = hex.EncodeToString(p.Buyer[:])
	attrs["quantity"] = strconv.FormatUint(p.Quantity, 10)
	attrs["unitPrice"] = p.UnitPrice.String()
	attrs["escrow"] = p.Escrow.String()
	attrs["status"] = p.Status.String()
	if p.Referrer != ([20]byte{}) {
		attrs["referrer"] = hex.EncodeToString(p.Referrer[:])
	}
	return attrs
}

// NewPurchaseCreatedEvent returns the canonical payload for an escrowed
// purchase.
func NewPurchaseCreatedEvent(p *Purchase) *types.Event {
	return &types.Event{Type: EventTypePurchaseCreated, Attributes: purchaseAttrs(p)}
}

// NewPurchaseConfirmedEvent returns the payload emitted when escrow releases
// to the seller.
func NewPurchaseConfirmedEvent(p *Purchase, seller [20]byte) *types.Event {
	attrs := purchaseAttrs(p)
	attrs["seller"] = hex.EncodeToString(seller[:])
	return &types.Event{Type: EventTypePurchaseConfirmed, Attributes: attrs}
}

// NewPurchaseDisputedEvent returns the payload emitted when a dispute locks
// the escrow.
func NewPurchaseDisputedEvent(p *Purchase, fee *big.Int) *types.Event {
	attrs := purchaseAttrs(p)
	if fee != nil {
		attrs["judgeFee"] = fee.String()
	}
	return &types.Event{Type: EventTypePurchaseDisputed, Attributes: attrs}
}

// NewPurchaseResolvedEvent returns the payload emitted when a judge splits
// the escrow.
func NewPurchaseResolvedEvent(p *Purchase, judge [20]byte, refund, release *big.Int) *types.Event {
	attrs := purchaseAttrs(p)
	attrs["judge"] = hex.EncodeToString(judge[:])
	if refund != nil {
		attrs["refundToBuyer"] = refund.String()
	}
	if release != nil {
		attrs["releaseToSeller"] = release.String()
	}
	return &types.Event{Type: EventTypePurchaseResolved, Attributes: attrs}
}
