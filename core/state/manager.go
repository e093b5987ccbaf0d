package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ethaychain/core/types"
	"ethaychain/native/market"
	"ethaychain/native/relay"
	"ethaychain/storage"
)

// Manager provides the typed state accessors the native engines run against.
// Records are JSON-encoded under per-module key prefixes in a key-value
// Database. Engines never touch keys directly; this is the single owner of
// the layout.
type Manager struct {
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// ModuleAddress derives the deterministic 20-byte account address owned by a
// named module (escrow vault, relay custody, fee treasury). No key exists for
// these addresses, so only module code can move their balances.
func ModuleAddress(name string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("ethaychain/module/" + name))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// Module account names used across the node.
const (
	ModuleEscrowVault   = "market/escrow-vault"
	ModuleRelaySender   = "relay/sender-custody"
	ModuleRelayReceiver = "relay/receiver-custody"
	ModuleFeeTreasury   = "market/fee-treasury"
)

func (m *Manager) kvGet(key []byte, out interface{}) (bool, error) {
	raw, ok, err := m.db.Get(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", string(key), err)
	}
	return true, nil
}

func (m *Manager) kvPut(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", string(key), err)
	}
	return m.db.Put(key, raw)
}

func appendKey(prefix []byte, parts ...string) []byte {
	key := append([]byte(nil), prefix...)
	for i, part := range parts {
		if i > 0 {
			key = append(key, '/')
		}
		key = append(key, part...)
	}
	return key
}

// --- Accounts ---

// GetAccount returns the account for the address, zero-valued when absent.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	acc := &types.Account{}
	if _, err := m.kvGet(appendKey(accountPrefix, hex.EncodeToString(addr)), acc); err != nil {
		return nil, err
	}
	if acc.BalanceToken == nil {
		acc.BalanceToken = big.NewInt(0)
	}
	if acc.BalanceNative == nil {
		acc.BalanceNative = big.NewInt(0)
	}
	return acc, nil
}

func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	return m.kvPut(appendKey(accountPrefix, hex.EncodeToString(addr)), account)
}

// --- Token allowances ---

func allowanceKey(owner, spender [20]byte) []byte {
	return appendKey(allowancePrefix, hex.EncodeToString(owner[:]), hex.EncodeToString(spender[:]))
}

func (m *Manager) AllowanceGet(owner, spender [20]byte) (*big.Int, error) {
	var stored string
	ok, err := m.kvGet(allowanceKey(owner, spender), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	amount, valid := new(big.Int).SetString(stored, 10)
	if !valid {
		return nil, fmt.Errorf("state: corrupt allowance record")
	}
	return amount, nil
}

func (m *Manager) AllowanceSet(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: allowance must be non-negative")
	}
	return m.kvPut(allowanceKey(owner, spender), amount.String())
}

// --- Products ---

// NextProductID hands out the ledger's monotonic product counter, starting
// at zero.
func (m *Manager) NextProductID() (uint64, error) {
	var next uint64
	if _, err := m.kvGet(productCounterKey, &next); err != nil {
		return 0, err
	}
	if err := m.kvPut(productCounterKey, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

func (m *Manager) ProductPut(p *market.Product) error {
	sanitized, err := market.SanitizeProduct(p)
	if err != nil {
		return err
	}
	return m.kvPut(appendKey(productPrefix, strconv.FormatUint(sanitized.ID, 10)), sanitized)
}

func (m *Manager) ProductGet(id uint64) (*market.Product, bool, error) {
	product := &market.Product{}
	ok, err := m.kvGet(appendKey(productPrefix, strconv.FormatUint(id, 10)), product)
	if err != nil || !ok {
		return nil, false, err
	}
	return product.Clone(), true, nil
}

// --- Purchases ---

func purchaseKey(productID, purchaseID uint64) []byte {
	return appendKey(purchasePrefix, strconv.FormatUint(productID, 10), strconv.FormatUint(purchaseID, 10))
}

func (m *Manager) PurchasePut(p *market.Purchase) error {
	sanitized, err := market.SanitizePurchase(p)
	if err != nil {
		return err
	}
	return m.kvPut(purchaseKey(sanitized.ProductID, sanitized.ID), sanitized)
}

func (m *Manager) PurchaseGet(productID, purchaseID uint64) (*market.Purchase, bool, error) {
	purchase := &market.Purchase{}
	ok, err := m.kvGet(purchaseKey(productID, purchaseID), purchase)
	if err != nil || !ok {
		return nil, false, err
	}
	return purchase.Clone(), true, nil
}

// --- Disputes ---

func disputeKey(productID, purchaseID uint64) []byte {
	return appendKey(disputePrefix, strconv.FormatUint(productID, 10), strconv.FormatUint(purchaseID, 10))
}

func (m *Manager) DisputePut(d *market.Dispute) error {
	if d == nil {
		return fmt.Errorf("state: nil dispute")
	}
	return m.kvPut(disputeKey(d.ProductID, d.PurchaseID), d.Clone())
}

func (m *Manager) DisputeGet(productID, purchaseID uint64) (*market.Dispute, bool, error) {
	dispute := &market.Dispute{}
	ok, err := m.kvGet(disputeKey(productID, purchaseID), dispute)
	if err != nil || !ok {
		return nil, false, err
	}
	return dispute.Clone(), true, nil
}

// --- Judges ---

func (m *Manager) JudgesAppend(addr [20]byte) error {
	judges, err := m.JudgesList()
	if err != nil {
		return err
	}
	for _, existing := range judges {
		if existing == addr {
			return nil
		}
	}
	judges = append(judges, addr)
	return m.kvPut(judgesKey, judges)
}

func (m *Manager) JudgesList() ([][20]byte, error) {
	var judges [][20]byte
	if _, err := m.kvGet(judgesKey, &judges); err != nil {
		return nil, err
	}
	return judges, nil
}

// --- Escrow vault ---

func escrowKey(productID, purchaseID uint64) []byte {
	return appendKey(escrowPrefix, strconv.FormatUint(productID, 10), strconv.FormatUint(purchaseID, 10))
}

func (m *Manager) EscrowVaultAddress() ([20]byte, error) {
	return ModuleAddress(ModuleEscrowVault), nil
}

func (m *Manager) EscrowBalance(productID, purchaseID uint64) (*big.Int, error) {
	var stored string
	ok, err := m.kvGet(escrowKey(productID, purchaseID), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	balance, valid := new(big.Int).SetString(stored, 10)
	if !valid {
		return nil, fmt.Errorf("state: corrupt escrow record")
	}
	return balance, nil
}

func (m *Manager) EscrowCredit(productID, purchaseID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: escrow credit must be non-negative")
	}
	balance, err := m.EscrowBalance(productID, purchaseID)
	if err != nil {
		return err
	}
	return m.kvPut(escrowKey(productID, purchaseID), new(big.Int).Add(balance, amount).String())
}

func (m *Manager) EscrowDebit(productID, purchaseID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: escrow debit must be non-negative")
	}
	balance, err := m.EscrowBalance(productID, purchaseID)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("state: escrow debit exceeds balance")
	}
	return m.kvPut(escrowKey(productID, purchaseID), new(big.Int).Sub(balance, amount).String())
}

// --- Identity nullifiers ---

func nullifierKey(action string, nullifier [32]byte) []byte {
	return appendKey(nullifierPrefix, action, hex.EncodeToString(nullifier[:]))
}

func (m *Manager) NullifierSeen(action string, nullifier [32]byte) (bool, error) {
	var marker bool
	return m.kvGet(nullifierKey(action, nullifier), &marker)
}

func (m *Manager) NullifierPut(action string, nullifier [32]byte) error {
	return m.kvPut(nullifierKey(action, nullifier), true)
}

// --- Relay ---

func (m *Manager) RelayMessageGet(id [32]byte) (*relay.MessageRecord, bool, error) {
	record := &relay.MessageRecord{}
	ok, err := m.kvGet(appendKey(relayMessagePrefix, hex.EncodeToString(id[:])), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record.Clone(), true, nil
}

func (m *Manager) RelayMessagePut(record *relay.MessageRecord) error {
	if record == nil {
		return fmt.Errorf("state: nil relay message record")
	}
	return m.kvPut(appendKey(relayMessagePrefix, hex.EncodeToString(record.ID[:])), record.Clone())
}

func (m *Manager) RefundBalance(buyer [20]byte) (*big.Int, error) {
	var stored string
	ok, err := m.kvGet(appendKey(relayRefundPrefix, hex.EncodeToString(buyer[:])), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	balance, valid := new(big.Int).SetString(stored, 10)
	if !valid {
		return nil, fmt.Errorf("state: corrupt refund record")
	}
	return balance, nil
}

func (m *Manager) RefundCredit(buyer [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: refund credit must be positive")
	}
	balance, err := m.RefundBalance(buyer)
	if err != nil {
		return err
	}
	return m.kvPut(appendKey(relayRefundPrefix, hex.EncodeToString(buyer[:])), new(big.Int).Add(balance, amount).String())
}

func (m *Manager) RefundDebit(buyer [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: refund debit must be positive")
	}
	balance, err := m.RefundBalance(buyer)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("state: refund debit exceeds balance")
	}
	return m.kvPut(appendKey(relayRefundPrefix, hex.EncodeToString(buyer[:])), new(big.Int).Sub(balance, amount).String())
}
