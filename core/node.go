package core

import (
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ethaychain/config"
	"ethaychain/core/events"
	"ethaychain/core/state"
	"ethaychain/native/identity"
	"ethaychain/native/market"
	"ethaychain/native/relay"
	"ethaychain/native/token"
	"ethaychain/observability"
	"ethaychain/storage"
)

// ModuleAddresses groups the deterministic accounts owned by node modules.
type ModuleAddresses struct {
	EscrowVault     [20]byte
	SenderCustody   [20]byte
	ReceiverCustody [20]byte
	FeeTreasury     [20]byte
}

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

// Node owns the state database and the native engines and serializes every
// state-changing operation behind a single mutex, giving each call the
// all-or-nothing transaction semantics the engines assume.
type Node struct {
	mu sync.Mutex

	cfg      *config.Config
	db       storage.Database
	state    *state.Manager
	recorder *events.Recorder
	logger   *slog.Logger

	token    *token.Ledger
	gate     *identity.Gate
	market   *market.Engine
	sender   *relay.Sender
	receiver *relay.Receiver
	loopback *relay.Loopback

	addrs   ModuleAddresses
	txNonce uint64
}

// NewNode wires the engines against the supplied database. The in-process
// loopback transport connects the relay pair so a single node can exercise
// the full cross-chain purchase path.
func NewNode(db storage.Database, cfg *config.Config, verifier identity.Verifier, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	manager := state.NewManager(db)
	recorder := &events.Recorder{}

	pauses := pauseSet{}
	for _, module := range cfg.PausedModules {
		pauses[module] = true
	}

	addrs := ModuleAddresses{
		EscrowVault:     state.ModuleAddress(state.ModuleEscrowVault),
		SenderCustody:   state.ModuleAddress(state.ModuleRelaySender),
		ReceiverCustody: state.ModuleAddress(state.ModuleRelayReceiver),
		FeeTreasury:     state.ModuleAddress(state.ModuleFeeTreasury),
	}

	ledger := token.NewLedger()
	ledger.SetState(manager)

	gate := identity.NewGate(verifier, cfg.IdentityAppID)
	gate.SetState(manager)
	gate.SetEmitter(recorder)
	gate.SetPauses(pauses)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetToken(ledger)
	engine.SetGate(gate)
	engine.SetEmitter(recorder)
	engine.SetPauses(pauses)
	engine.SetFeeTreasury(addrs.FeeTreasury)
	engine.SetMinJudgeFee(cfg.MinJudgeFeeAmount())

	receiver := relay.NewReceiver(addrs.ReceiverCustody)
	receiver.SetState(manager)
	receiver.SetToken(ledger)
	receiver.SetMarket(engine)
	receiver.SetEmitter(recorder)
	receiver.SetPauses(pauses)
	receiver.AllowSource(cfg.SourceChainSelector, addrs.SenderCustody)

	origin := relay.Origin{Selector: cfg.SourceChainSelector, Sender: addrs.SenderCustody}
	loopback := relay.NewLoopback(ledger, origin, addrs.SenderCustody)
	loopback.RegisterReceiver(cfg.ChainSelector, receiver)

	sender := relay.NewSender(addrs.SenderCustody)
	sender.SetToken(ledger)
	sender.SetTransport(loopback)
	sender.SetEmitter(recorder)
	sender.SetPauses(pauses)

	return &Node{
		cfg:      cfg,
		db:       db,
		state:    manager,
		recorder: recorder,
		logger:   logger,
		token:    ledger,
		gate:     gate,
		market:   engine,
		sender:   sender,
		receiver: receiver,
		loopback: loopback,
		addrs:    addrs,
	}, nil
}

// Addresses returns the module-owned accounts (escrow vault, relay custody,
// fee treasury). Buyers approve the escrow vault for direct purchases and the
// sender custody for relayed ones.
func (n *Node) Addresses() ModuleAddresses { return n.addrs }

// ChainSelector returns this chain's cross-chain selector.
func (n *Node) ChainSelector() uint64 { return n.cfg.ChainSelector }

// Events returns every event emitted since the node started.
func (n *Node) Events() []events.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.recorder.Events()
}

// receipt derives a transaction identifier acknowledging a committed
// mutation. Callers must hold the node mutex.
func (n *Node) receipt(method string) string {
	n.txNonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], n.txNonce)
	digest := ethcrypto.Keccak256([]byte(method), nonce[:])
	return hex.EncodeToString(digest)
}

// --- Identity / registration ---

func (n *Node) RegisterSeller(caller [20]byte, proof *identity.Proof) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.market.RegisterSeller(caller, proof); err != nil {
		return "", err
	}
	n.logger.Info("seller registered", "address", hex.EncodeToString(caller[:]))
	return n.receipt("market_registerSeller"), nil
}

func (n *Node) RegisterJudge(caller [20]byte, proof *identity.Proof) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.market.RegisterJudge(caller, proof); err != nil {
		return "", err
	}
	n.logger.Info("judge registered", "address", hex.EncodeToString(caller[:]))
	return n.receipt("market_registerJudge"), nil
}

// --- Marketplace ---

func (n *Node) CreateProduct(seller [20]byte, name string, price *big.Int, quantity uint64, uri, description string) (*market.Product, string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	product, err := n.market.CreateProduct(seller, name, price, quantity, uri, description)
	if err != nil {
		return nil, "", err
	}
	n.logger.Info("product created", "productId", product.ID, "price", product.Price.String())
	return product, n.receipt("market_createProduct"), nil
}

func (n *Node) GetProduct(id uint64) (*market.Product, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.GetProduct(id)
}

func (n *Node) BuyProduct(buyer [20]byte, productID, quantity uint64, referrer [20]byte) (*market.Purchase, string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	purchase, err := n.market.BuyProduct(buyer, productID, quantity, referrer)
	if err != nil {
		return nil, "", err
	}
	observability.Metrics().Purchases.WithLabelValues("direct").Inc()
	n.logger.Info("purchase created", "productId", productID, "purchaseId", purchase.ID, "escrow", purchase.Escrow.String())
	return purchase, n.receipt("market_buyProduct"), nil
}

func (n *Node) GetPurchase(productID, purchaseID uint64) (*market.Purchase, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.GetPurchase(productID, purchaseID)
}

func (n *Node) ConfirmPurchase(caller [20]byte, productID, purchaseID uint64) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.market.ConfirmPurchase(caller, productID, purchaseID); err != nil {
		return "", err
	}
	n.logger.Info("purchase confirmed", "productId", productID, "purchaseId", purchaseID)
	return n.receipt("market_confirmPurchase"), nil
}

func (n *Node) RaiseDispute(caller [20]byte, productID, purchaseID uint64, judgeFee *big.Int) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.market.RaiseDispute(caller, productID, purchaseID, judgeFee); err != nil {
		return "", err
	}
	observability.Metrics().Disputes.Inc()
	n.logger.Info("dispute raised", "productId", productID, "purchaseId", purchaseID)
	return n.receipt("market_raiseDispute"), nil
}

func (n *Node) ResolveDispute(caller [20]byte, productID, purchaseID uint64, refundToBuyer *big.Int) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.market.ResolveDispute(caller, productID, purchaseID, refundToBuyer); err != nil {
		return "", err
	}
	observability.Metrics().Resolutions.Inc()
	n.logger.Info("dispute resolved", "productId", productID, "purchaseId", purchaseID, "refundToBuyer", refundToBuyer.String())
	return n.receipt("market_resolveDispute"), nil
}

func (n *Node) GetDispute(productID, purchaseID uint64) (*market.Dispute, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.GetDispute(productID, purchaseID)
}

// --- Token ---

func (n *Node) Mint(to [20]byte, amount *big.Int) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.token.Mint(to, amount); err != nil {
		return "", err
	}
	return n.receipt("token_mint"), nil
}

// MintNative credits native currency used for dispute fees. Development
// faucet; restricted on production networks.
func (n *Node) MintNative(to [20]byte, amount *big.Int) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.state.GetAccount(to[:])
	if err != nil {
		return "", err
	}
	acc.BalanceNative = new(big.Int).Add(acc.BalanceNative, amount)
	if err := n.state.PutAccount(to[:], acc); err != nil {
		return "", err
	}
	return n.receipt("token_mintNative"), nil
}

func (n *Node) Approve(owner, spender [20]byte, amount *big.Int) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.token.Approve(owner, spender, amount); err != nil {
		return "", err
	}
	return n.receipt("token_approve"), nil
}

func (n *Node) BalanceOf(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.token.BalanceOf(addr)
}

// --- Relay ---

func (n *Node) SendMessage(destinationSelector uint64, receiver, buyer [20]byte, productID, quantity uint64, referrer [20]byte, price *big.Int) ([32]byte, string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, err := n.sender.SendMessage(destinationSelector, receiver, buyer, productID, quantity, referrer, price)
	if err != nil {
		observability.Metrics().RelayMessages.WithLabelValues("failed").Inc()
		return [32]byte{}, "", err
	}
	observability.Metrics().RelayMessages.WithLabelValues("sent").Inc()
	n.logger.Info("cross-chain purchase relayed", "messageId", hex.EncodeToString(id[:]), "productId", productID)
	return id, n.receipt("relay_sendMessage"), nil
}

func (n *Node) ClaimRefund(buyer [20]byte) (*big.Int, string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	amount, err := n.receiver.ClaimRefund(buyer)
	if err != nil {
		return nil, "", err
	}
	observability.Metrics().RelayRefunds.Inc()
	return amount, n.receipt("relay_claimRefund"), nil
}

func (n *Node) RefundBalance(buyer [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.RefundBalance(buyer)
}
