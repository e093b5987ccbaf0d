package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"ethaychain/core/events"
	"ethaychain/core/types"
	nativecommon "ethaychain/native/common"
	"ethaychain/native/identity"
)

const marketModuleName = "market"

var (
	ErrNotVerified       = errors.New("market: identity not verified")
	ErrAlreadyRegistered = errors.New("market: already registered")
	ErrNotSeller         = errors.New("market: caller is not a registered seller")
	ErrNotJudge          = errors.New("market: caller is not a registered judge")
	ErrNotBuyer          = errors.New("market: caller is not the purchase buyer")
	ErrInvalidState      = errors.New("market: operation invalid for purchase state")
	ErrProductNotFound   = errors.New("market: product not found")
	ErrPurchaseNotFound  = errors.New("market: purchase not found")
	ErrInsufficientStock = errors.New("market: insufficient stock")
	ErrInsufficientFee   = errors.New("market: insufficient dispute fee")
	ErrAmountOutOfRange  = errors.New("market: refund amount out of range")
	ErrJudgeNotEligible  = errors.New("market: judge not eligible for this dispute")

	errNilState = errors.New("market engine: state not configured")
	errNilToken = errors.New("market engine: token ledger not configured")
	errNilGate  = errors.New("market engine: identity gate not configured")
)

type engineState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	NextProductID() (uint64, error)
	ProductPut(*Product) error
	ProductGet(id uint64) (*Product, bool, error)
	PurchasePut(*Purchase) error
	PurchaseGet(productID, purchaseID uint64) (*Purchase, bool, error)
	DisputePut(*Dispute) error
	DisputeGet(productID, purchaseID uint64) (*Dispute, bool, error)
	JudgesAppend(addr [20]byte) error
	JudgesList() ([][20]byte, error)
	EscrowCredit(productID, purchaseID uint64, amount *big.Int) error
	EscrowDebit(productID, purchaseID uint64, amount *big.Int) error
	EscrowBalance(productID, purchaseID uint64) (*big.Int, error)
	EscrowVaultAddress() ([20]byte, error)
}

// TokenLedger is the settlement-token capability the engine moves funds
// through. TransferFrom consumes the buyer's allowance on the direct purchase
// path; Transfer moves already-custodied funds.
type TokenLedger interface {
	TransferFrom(owner, spender, to [20]byte, amount *big.Int) error
	Transfer(from, to [20]byte, amount *big.Int) error
}

type identityGate interface {
	Verify(caller [20]byte, proof *identity.Proof, action string) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine is the authoritative state machine for products, purchases and
// escrowed balances. Seller and judge registration go through the identity
// gate; fund movement goes through the token ledger; everything else lives in
// the engine's own storage.
type Engine struct {
	state       engineState
	token       TokenLedger
	gate        identityGate
	policy      JudgePolicy
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	feeTreasury [20]byte
	minJudgeFee *big.Int
	nowFn       func() int64
}

func NewEngine() *Engine {
	return &Engine{
		policy:      FlatPolicy{},
		emitter:     events.NoopEmitter{},
		minJudgeFee: big.NewInt(0),
		nowFn:       func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken configures the settlement-token ledger.
func (e *Engine) SetToken(token TokenLedger) { e.token = token }

// SetGate configures the identity gate used for registrations.
func (e *Engine) SetGate(gate identityGate) { e.gate = gate }

// SetFeeTreasury configures the address receiving dispute fees.
func (e *Engine) SetFeeTreasury(addr [20]byte) { e.feeTreasury = addr }

// SetMinJudgeFee configures the minimum native-currency fee a buyer must
// attach when raising a dispute.
func (e *Engine) SetMinJudgeFee(fee *big.Int) {
	if fee == nil {
		e.minJudgeFee = big.NewInt(0)
		return
	}
	e.minJudgeFee = new(big.Int).Set(fee)
}

// SetPolicy overrides the judge-eligibility policy. Passing nil restores the
// flat model where any registered judge may resolve any dispute.
func (e *Engine) SetPolicy(policy JudgePolicy) {
	if policy == nil {
		e.policy = FlatPolicy{}
		return
	}
	e.policy = policy
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil {
		return errNilToken
	}
	return nil
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		acc = &types.Account{}
	}
	if acc.BalanceToken == nil {
		acc.BalanceToken = big.NewInt(0)
	}
	if acc.BalanceNative == nil {
		acc.BalanceNative = big.NewInt(0)
	}
	return acc
}

// --- Registration ---

// RegisterSeller consumes a fresh identity capability for the seller action
// and records the caller as a seller.
func (e *Engine) RegisterSeller(caller [20]byte, proof *identity.Proof) error {
	return e.register(caller, proof, identity.ActionRegisterSeller)
}

// RegisterJudge mirrors seller registration for the disjoint judge role.
func (e *Engine) RegisterJudge(caller [20]byte, proof *identity.Proof) error {
	return e.register(caller, proof, identity.ActionRegisterJudge)
}

func (e *Engine) register(caller [20]byte, proof *identity.Proof, action string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.gate == nil {
		return errNilGate
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	acc, err := e.state.GetAccount(caller[:])
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	switch action {
	case identity.ActionRegisterSeller:
		if acc.SellerSince > 0 {
			return ErrAlreadyRegistered
		}
	case identity.ActionRegisterJudge:
		if acc.JudgeSince > 0 {
			return ErrAlreadyRegistered
		}
	default:
		return fmt.Errorf("market: unknown registration action %q", action)
	}
	if err := e.gate.Verify(caller, proof, action); err != nil {
		if errors.Is(err, identity.ErrNullifierReused) {
			return err
		}
		return fmt.Errorf("%w: %s", ErrNotVerified, err)
	}
	now := e.now()
	if action == identity.ActionRegisterSeller {
		acc.SellerSince = now
	} else {
		acc.JudgeSince = now
	}
	if err := e.state.PutAccount(caller[:], acc); err != nil {
		return err
	}
	if action == identity.ActionRegisterJudge {
		if err := e.state.JudgesAppend(caller); err != nil {
			return err
		}
		e.emit(NewJudgeRegisteredEvent(caller, now))
		return nil
	}
	e.emit(NewSellerRegisteredEvent(caller, now))
	return nil
}

func (e *Engine) isSeller(addr [20]byte) (bool, error) {
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return false, err
	}
	return acc != nil && acc.SellerSince > 0, nil
}

func (e *Engine) isJudge(addr [20]byte) (bool, error) {
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return false, err
	}
	return acc != nil && acc.JudgeSince > 0, nil
}

// --- Products ---

// CreateProduct lists a new product for a registered seller and assigns the
// next product identifier.
func (e *Engine) CreateProduct(seller [20]byte, name string, price *big.Int, quantity uint64, uri, description string) (*Product, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return nil, err
	}
	registered, err := e.isSeller(seller)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, ErrNotSeller
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("market: product price must be positive")
	}
	if quantity == 0 {
		return nil, fmt.Errorf("market: product quantity must be positive")
	}
	id, err := e.state.NextProductID()
	if err != nil {
		return nil, err
	}
	product := &Product{
		ID:          id,
		Seller:      seller,
		Name:        name,
		Price:       new(big.Int).Set(price),
		Quantity:    quantity,
		URI:         uri,
		Description: description,
		CreatedAt:   e.now(),
	}
	sanitized, err := SanitizeProduct(product)
	if err != nil {
		return nil, err
	}
	if err := e.state.ProductPut(sanitized); err != nil {
		return nil, err
	}
	acc, err := e.state.GetAccount(seller[:])
	if err != nil {
		return nil, err
	}
	acc = ensureAccount(acc)
	acc.ProductsListed++
	if err := e.state.PutAccount(seller[:], acc); err != nil {
		return nil, err
	}
	e.emit(NewProductCreatedEvent(sanitized))
	return sanitized.Clone(), nil
}

// GetProduct returns the stored product definition.
func (e *Engine) GetProduct(id uint64) (*Product, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	product, ok, err := e.state.ProductGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProductNotFound
	}
	return product.Clone(), nil
}

// QuotePurchase returns the charge for quantity units at the product's
// current price. The cross-chain receiver uses it to vet delivered funds
// before replaying a purchase.
func (e *Engine) QuotePurchase(productID, quantity uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if quantity == 0 {
		return nil, fmt.Errorf("market: purchase quantity must be positive")
	}
	product, ok, err := e.state.ProductGet(productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProductNotFound
	}
	return new(big.Int).Mul(product.Price, new(big.Int).SetUint64(quantity)), nil
}

// --- Purchases ---

// BuyProduct is the direct entry point: the buyer pre-approves the escrow
// vault and the engine pulls quantity times the current unit price into
// escrow.
func (e *Engine) BuyProduct(buyer [20]byte, productID, quantity uint64, referrer [20]byte) (*Purchase, error) {
	return e.executePurchase(buyer, productID, quantity, referrer, [20]byte{}, true)
}

// BuyProductFor is the relay entry point: the cross-chain receiver already
// custodies the buyer's funds, so the engine moves them from the custody
// account instead of consuming an allowance. Validation and the state
// transition are identical to the direct path.
func (e *Engine) BuyProductFor(buyer [20]byte, productID, quantity uint64, referrer [20]byte, payFrom [20]byte) (*Purchase, error) {
	return e.executePurchase(buyer, productID, quantity, referrer, payFrom, false)
}

func (e *Engine) executePurchase(buyer [20]byte, productID, quantity uint64, referrer [20]byte, payFrom [20]byte, useAllowance bool) (*Purchase, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return nil, err
	}
	if buyer == ([20]byte{}) {
		return nil, fmt.Errorf("market: buyer required")
	}
	if quantity == 0 {
		return nil, fmt.Errorf("market: purchase quantity must be positive")
	}
	product, ok, err := e.state.ProductGet(productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProductNotFound
	}
	if quantity > product.Quantity {
		return nil, ErrInsufficientStock
	}
	amount := new(big.Int).Mul(product.Price, new(big.Int).SetUint64(quantity))
	vault, err := e.state.EscrowVaultAddress()
	if err != nil {
		return nil, err
	}
	if useAllowance {
		if err := e.token.TransferFrom(buyer, vault, vault, amount); err != nil {
			return nil, err
		}
	} else {
		if err := e.token.Transfer(payFrom, vault, amount); err != nil {
			return nil, err
		}
	}
	purchaseID := product.NextPurchaseID
	if err := e.state.EscrowCredit(productID, purchaseID, amount); err != nil {
		return nil, err
	}
	purchase := &Purchase{
		ID:        purchaseID,
		ProductID: productID,
		Buyer:     buyer,
		Quantity:  quantity,
		UnitPrice: new(big.Int).Set(product.Price),
		Referrer:  referrer,
		Escrow:    amount,
		Status:    PurchasePending,
		CreatedAt: e.now(),
	}
	sanitized, err := SanitizePurchase(purchase)
	if err != nil {
		return nil, err
	}
	if err := e.state.PurchasePut(sanitized); err != nil {
		return nil, err
	}
	product.Quantity -= quantity
	product.NextPurchaseID++
	if err := e.state.ProductPut(product); err != nil {
		return nil, err
	}
	e.emit(NewPurchaseCreatedEvent(sanitized))
	return sanitized.Clone(), nil
}

// GetPurchase returns the stored purchase record.
func (e *Engine) GetPurchase(productID, purchaseID uint64) (*Purchase, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	purchase, ok, err := e.state.PurchaseGet(productID, purchaseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	return purchase.Clone(), nil
}

// ConfirmPurchase releases the full escrowed amount to the seller. Terminal.
func (e *Engine) ConfirmPurchase(caller [20]byte, productID, purchaseID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	purchase, ok, err := e.state.PurchaseGet(productID, purchaseID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPurchaseNotFound
	}
	if purchase.Buyer != caller {
		return ErrNotBuyer
	}
	if purchase.Status != PurchasePending {
		return ErrInvalidState
	}
	product, ok, err := e.state.ProductGet(productID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProductNotFound
	}
	vault, err := e.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	amount := new(big.Int).Set(purchase.Escrow)
	if err := e.token.Transfer(vault, product.Seller, amount); err != nil {
		return err
	}
	if err := e.state.EscrowDebit(productID, purchaseID, amount); err != nil {
		return err
	}
	purchase.Status = PurchaseConfirmed
	if err := e.state.PurchasePut(purchase); err != nil {
		return err
	}
	e.emit(NewPurchaseConfirmedEvent(purchase, product.Seller))
	return nil
}

// --- Disputes ---

// RaiseDispute transitions a pending purchase to disputed. The buyer pays the
// judge fee in native currency; the escrow stays locked until resolution.
func (e *Engine) RaiseDispute(caller [20]byte, productID, purchaseID uint64, judgeFee *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	purchase, ok, err := e.state.PurchaseGet(productID, purchaseID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPurchaseNotFound
	}
	if purchase.Buyer != caller {
		return ErrNotBuyer
	}
	if purchase.Status != PurchasePending {
		return ErrInvalidState
	}
	fee := cloneOrZero(judgeFee)
	if fee.Cmp(e.minJudgeFee) < 0 {
		return ErrInsufficientFee
	}
	buyerAcc, err := e.state.GetAccount(caller[:])
	if err != nil {
		return err
	}
	buyerAcc = ensureAccount(buyerAcc)
	if buyerAcc.BalanceNative.Cmp(fee) < 0 {
		return ErrInsufficientFee
	}
	treasuryAcc, err := e.state.GetAccount(e.feeTreasury[:])
	if err != nil {
		return err
	}
	treasuryAcc = ensureAccount(treasuryAcc)
	buyerAcc.BalanceNative = new(big.Int).Sub(buyerAcc.BalanceNative, fee)
	treasuryAcc.BalanceNative = new(big.Int).Add(treasuryAcc.BalanceNative, fee)
	if err := e.state.PutAccount(caller[:], buyerAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.feeTreasury[:], treasuryAcc); err != nil {
		return err
	}
	dispute := &Dispute{
		ProductID:  productID,
		PurchaseID: purchaseID,
		RaisedBy:   caller,
		FeePaid:    fee,
		RaisedAt:   e.now(),
	}
	if err := e.state.DisputePut(dispute.Clone()); err != nil {
		return err
	}
	purchase.Status = PurchaseDisputed
	if err := e.state.PurchasePut(purchase); err != nil {
		return err
	}
	e.emit(NewPurchaseDisputedEvent(purchase, fee))
	return nil
}

// ResolveDispute splits the escrow between buyer and seller per the judge's
// decision. refundToBuyer is an absolute token amount in [0, escrow]; the
// remainder goes to the seller. Exactly-once: the Disputed guard transitions
// away on the first success.
func (e *Engine) ResolveDispute(caller [20]byte, productID, purchaseID uint64, refundToBuyer *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, marketModuleName); err != nil {
		return err
	}
	purchase, ok, err := e.state.PurchaseGet(productID, purchaseID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPurchaseNotFound
	}
	if purchase.Status != PurchaseDisputed {
		return ErrInvalidState
	}
	registered, err := e.isJudge(caller)
	if err != nil {
		return err
	}
	if !registered {
		return ErrNotJudge
	}
	judges, err := e.state.JudgesList()
	if err != nil {
		return err
	}
	eligible, err := e.policy.Eligible(judges, caller, productID, purchaseID)
	if err != nil {
		return err
	}
	if !eligible {
		return ErrJudgeNotEligible
	}
	refund := cloneOrZero(refundToBuyer)
	if refund.Sign() < 0 || refund.Cmp(purchase.Escrow) > 0 {
		return ErrAmountOutOfRange
	}
	product, ok, err := e.state.ProductGet(productID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProductNotFound
	}
	release := new(big.Int).Sub(purchase.Escrow, refund)
	vault, err := e.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	if refund.Sign() > 0 {
		if err := e.token.Transfer(vault, purchase.Buyer, refund); err != nil {
			return err
		}
	}
	if release.Sign() > 0 {
		if err := e.token.Transfer(vault, product.Seller, release); err != nil {
			return err
		}
	}
	if err := e.state.EscrowDebit(productID, purchaseID, purchase.Escrow); err != nil {
		return err
	}
	dispute, ok, err := e.state.DisputeGet(productID, purchaseID)
	if err != nil {
		return err
	}
	if !ok {
		dispute = &Dispute{ProductID: productID, PurchaseID: purchaseID, RaisedBy: purchase.Buyer}
	}
	dispute.Judge = caller
	dispute.RefundToBuyer = refund
	dispute.ReleaseToSeller = release
	dispute.ResolvedAt = e.now()
	if err := e.state.DisputePut(dispute.Clone()); err != nil {
		return err
	}
	purchase.Status = PurchaseResolved
	if err := e.state.PurchasePut(purchase); err != nil {
		return err
	}
	e.emit(NewPurchaseResolvedEvent(purchase, caller, refund, release))
	return nil
}

// GetDispute returns the stored dispute record.
func (e *Engine) GetDispute(productID, purchaseID uint64) (*Dispute, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	dispute, ok, err := e.state.DisputeGet(productID, purchaseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	return dispute.Clone(), nil
}
