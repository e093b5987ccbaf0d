package market

import (
	"fmt"
	"math/big"
	"strings"
)

// PurchaseStatus represents the lifecycle states of a purchase held in
// escrow.
type PurchaseStatus uint8

const (
	PurchasePending PurchaseStatus = iota
	PurchaseConfirmed
	PurchaseDisputed
	PurchaseResolved
)

// Valid reports whether the status value is within the supported range.
func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchasePending, PurchaseConfirmed, PurchaseDisputed, PurchaseResolved:
		return true
	default:
		return false
	}
}

// String returns the canonical lowercase name used in events and RPC
// responses.
func (s PurchaseStatus) String() string {
	switch s {
	case PurchasePending:
		return "pending"
	case PurchaseConfirmed:
		return "confirmed"
	case PurchaseDisputed:
		return "disputed"
	case PurchaseResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Product is a listing owned by a registered seller. Purchase identifiers are
// scoped per product via NextPurchaseID.
type Product struct {
	ID             uint64
	Seller         [20]byte
	Name           string
	Price          *big.Int
	Quantity       uint64
	URI            string
	Description    string
	NextPurchaseID uint64
	CreatedAt      int64
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeProduct validates and normalises a product definition, returning a
// cloned instance. The original value is not mutated.
func SanitizeProduct(p *Product) (*Product, error) {
	if p == nil {
		return nil, fmt.Errorf("nil product")
	}
	clone := p.Clone()
	clone.Name = strings.TrimSpace(clone.Name)
	clone.URI = strings.TrimSpace(clone.URI)
	clone.Description = strings.TrimSpace(clone.Description)
	if clone.Price == nil || clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("product price must be positive")
	}
	if clone.Seller == ([20]byte{}) {
		return nil, fmt.Errorf("product seller required")
	}
	return clone, nil
}

// Purchase tracks one escrowed order against a product. Escrow is snapshotted
// at creation (quantity times the unit price at purchase time) and never
// changes afterwards; price updates on the listing cannot affect an open
// purchase.
type Purchase struct {
	ID        uint64
	ProductID uint64
	Buyer     [20]byte
	Quantity  uint64
	UnitPrice *big.Int
	Referrer  [20]byte
	Escrow    *big.Int
	Status    PurchaseStatus
	CreatedAt int64
}

// Clone returns a deep copy of the purchase.
func (p *Purchase) Clone() *Purchase {
	if p == nil {
		return nil
	}
	clone := *p
	if p.UnitPrice != nil {
		clone.UnitPrice = new(big.Int).Set(p.UnitPrice)
	} else {
		clone.UnitPrice = big.NewInt(0)
	}
	if p.Escrow != nil {
		clone.Escrow = new(big.Int).Set(p.Escrow)
	} else {
		clone.Escrow = big.NewInt(0)
	}
	return &clone
}

// SanitizePurchase validates a purchase record, returning a cloned instance.
func SanitizePurchase(p *Purchase) (*Purchase, error) {
	if p == nil {
		return nil, fmt.Errorf("nil purchase")
	}
	clone := p.Clone()
	if clone.Quantity == 0 {
		return nil, fmt.Errorf("purchase quantity must be positive")
	}
	if clone.UnitPrice.Sign() <= 0 {
		return nil, fmt.Errorf("purchase unit price must be positive")
	}
	if clone.Escrow.Sign() < 0 {
		return nil, fmt.Errorf("purchase escrow must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid purchase status: %d", clone.Status)
	}
	if clone.Buyer == ([20]byte{}) {
		return nil, fmt.Errorf("purchase buyer required")
	}
	return clone, nil
}

// Dispute records the adjudication of a single purchase. RefundToBuyer plus
// ReleaseToSeller always equals the purchase escrow; a dispute resolves
// exactly once.
type Dispute struct {
	ProductID       uint64
	PurchaseID      uint64
	RaisedBy        [20]byte
	FeePaid         *big.Int
	Judge           [20]byte
	RefundToBuyer   *big.Int
	ReleaseToSeller *big.Int
	RaisedAt        int64
	ResolvedAt      int64
}

// Clone returns a deep copy of the dispute.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	clone := *d
	clone.FeePaid = cloneOrZero(d.FeePaid)
	clone.RefundToBuyer = cloneOrZero(d.RefundToBuyer)
	clone.ReleaseToSeller = cloneOrZero(d.ReleaseToSeller)
	return &clone
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
