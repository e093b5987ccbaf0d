package state

import (
	"math/big"
	"testing"

	"ethaychain/native/market"
	"ethaychain/native/relay"
	"ethaychain/storage"
)

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestAccountRoundTrip(t *testing.T) {
	m := newTestManager()
	addr := testAddr(0x01)

	// Absent accounts come back zero-valued, never nil.
	acc, err := m.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.BalanceToken == nil || acc.BalanceToken.Sign() != 0 {
		t.Fatalf("expected zero token balance, got %v", acc.BalanceToken)
	}

	acc.BalanceToken = big.NewInt(1234)
	acc.BalanceNative = big.NewInt(56)
	acc.SellerSince = 1700000000
	acc.ProductsListed = 3
	if err := m.PutAccount(addr[:], acc); err != nil {
		t.Fatalf("put: %v", err)
	}
	stored, err := m.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.BalanceToken.Cmp(big.NewInt(1234)) != 0 || stored.BalanceNative.Cmp(big.NewInt(56)) != 0 {
		t.Fatalf("unexpected balances %s/%s", stored.BalanceToken, stored.BalanceNative)
	}
	if stored.SellerSince != 1700000000 || stored.ProductsListed != 3 {
		t.Fatalf("unexpected role fields %+v", stored)
	}
}

func TestNilAccountRejected(t *testing.T) {
	m := newTestManager()
	addr := testAddr(0x02)
	if err := m.PutAccount(addr[:], nil); err == nil {
		t.Fatalf("expected error for nil account")
	}
}

func TestProductCounterIsMonotonic(t *testing.T) {
	m := newTestManager()
	for want := uint64(0); want < 3; want++ {
		got, err := m.NextProductID()
		if err != nil {
			t.Fatalf("next product id: %v", err)
		}
		if got != want {
			t.Fatalf("expected id %d, got %d", want, got)
		}
	}
}

func TestProductRoundTrip(t *testing.T) {
	m := newTestManager()
	product := &market.Product{
		ID:          7,
		Seller:      testAddr(0x03),
		Name:        "widget",
		Price:       big.NewInt(100),
		Quantity:    5,
		URI:         "ipfs://widget",
		Description: "a widget",
		CreatedAt:   1700000000,
	}
	if err := m.ProductPut(product); err != nil {
		t.Fatalf("put: %v", err)
	}
	stored, ok, err := m.ProductGet(7)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if stored.Name != "widget" || stored.Price.Cmp(big.NewInt(100)) != 0 || stored.Seller != product.Seller {
		t.Fatalf("unexpected product %+v", stored)
	}
	if _, ok, err := m.ProductGet(8); err != nil || ok {
		t.Fatalf("expected miss for unknown product, ok=%v err=%v", ok, err)
	}
}

func TestPurchaseAndDisputeRoundTrip(t *testing.T) {
	m := newTestManager()
	purchase := &market.Purchase{
		ID:        0,
		ProductID: 7,
		Buyer:     testAddr(0x04),
		Quantity:  2,
		UnitPrice: big.NewInt(100),
		Escrow:    big.NewInt(200),
		Status:    market.PurchasePending,
		CreatedAt: 1700000000,
	}
	if err := m.PurchasePut(purchase); err != nil {
		t.Fatalf("purchase put: %v", err)
	}
	stored, ok, err := m.PurchaseGet(7, 0)
	if err != nil || !ok {
		t.Fatalf("purchase get: ok=%v err=%v", ok, err)
	}
	if stored.Escrow.Cmp(big.NewInt(200)) != 0 || stored.Status != market.PurchasePending {
		t.Fatalf("unexpected purchase %+v", stored)
	}

	dispute := &market.Dispute{
		ProductID:  7,
		PurchaseID: 0,
		RaisedBy:   purchase.Buyer,
		FeePaid:    big.NewInt(500),
		RaisedAt:   1700000100,
	}
	if err := m.DisputePut(dispute); err != nil {
		t.Fatalf("dispute put: %v", err)
	}
	storedDispute, ok, err := m.DisputeGet(7, 0)
	if err != nil || !ok {
		t.Fatalf("dispute get: ok=%v err=%v", ok, err)
	}
	if storedDispute.FeePaid.Cmp(big.NewInt(500)) != 0 || storedDispute.RaisedBy != purchase.Buyer {
		t.Fatalf("unexpected dispute %+v", storedDispute)
	}
}

func TestJudgesAppendDeduplicates(t *testing.T) {
	m := newTestManager()
	judge := testAddr(0x05)
	if err := m.JudgesAppend(judge); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.JudgesAppend(judge); err != nil {
		t.Fatalf("append: %v", err)
	}
	judges, err := m.JudgesList()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(judges) != 1 || judges[0] != judge {
		t.Fatalf("expected single judge, got %v", judges)
	}
}

func TestEscrowAccounting(t *testing.T) {
	m := newTestManager()
	if err := m.EscrowCredit(1, 0, big.NewInt(300)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	balance, err := m.EscrowBalance(1, 0)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected balance 300, got %s", balance)
	}
	if err := m.EscrowDebit(1, 0, big.NewInt(301)); err == nil {
		t.Fatalf("expected overdraft rejection")
	}
	if err := m.EscrowDebit(1, 0, big.NewInt(300)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	balance, err = m.EscrowBalance(1, 0)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected drained escrow, got %s", balance)
	}
}

func TestAllowanceRoundTrip(t *testing.T) {
	m := newTestManager()
	owner := testAddr(0x06)
	spender := testAddr(0x07)
	allowance, err := m.AllowanceGet(owner, spender)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if allowance.Sign() != 0 {
		t.Fatalf("expected zero allowance, got %s", allowance)
	}
	if err := m.AllowanceSet(owner, spender, big.NewInt(1000)); err != nil {
		t.Fatalf("set: %v", err)
	}
	allowance, err = m.AllowanceGet(owner, spender)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if allowance.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected allowance 1000, got %s", allowance)
	}
	if err := m.AllowanceSet(owner, spender, big.NewInt(-1)); err == nil {
		t.Fatalf("expected rejection of negative allowance")
	}
}

func TestNullifierBookkeeping(t *testing.T) {
	m := newTestManager()
	var nullifier [32]byte
	nullifier[0] = 0xFF

	seen, err := m.NullifierSeen("register-seller", nullifier)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatalf("expected fresh nullifier")
	}
	if err := m.NullifierPut("register-seller", nullifier); err != nil {
		t.Fatalf("put: %v", err)
	}
	seen, err = m.NullifierSeen("register-seller", nullifier)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if !seen {
		t.Fatalf("expected consumed nullifier")
	}
	// Actions scope the nullifier space.
	seen, err = m.NullifierSeen("register-judge", nullifier)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatalf("expected other action unaffected")
	}
}

func TestRelayRecordsAndRefunds(t *testing.T) {
	m := newTestManager()
	var id [32]byte
	id[0] = 0x11
	record := &relay.MessageRecord{
		ID:          id,
		Origin:      relay.Origin{Selector: 9, Sender: testAddr(0x08)},
		Buyer:       testAddr(0x09),
		ProductID:   1,
		PurchaseID:  0,
		Amount:      big.NewInt(100),
		Status:      relay.MessageStatusPurchased,
		ProcessedAt: 1700000000,
	}
	if err := m.RelayMessagePut(record); err != nil {
		t.Fatalf("put: %v", err)
	}
	stored, ok, err := m.RelayMessageGet(id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if stored.Status != relay.MessageStatusPurchased || stored.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected record %+v", stored)
	}

	buyer := testAddr(0x0A)
	if err := m.RefundCredit(buyer, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := m.RefundCredit(buyer, big.NewInt(50)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	balance, err := m.RefundBalance(buyer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected refund balance 150, got %s", balance)
	}
	if err := m.RefundDebit(buyer, big.NewInt(151)); err == nil {
		t.Fatalf("expected overdraft rejection")
	}
	if err := m.RefundDebit(buyer, big.NewInt(150)); err != nil {
		t.Fatalf("debit: %v", err)
	}
}

func TestModuleAddressesAreDistinct(t *testing.T) {
	names := []string{ModuleEscrowVault, ModuleRelaySender, ModuleRelayReceiver, ModuleFeeTreasury}
	seen := make(map[[20]byte]string)
	for _, name := range names {
		addr := ModuleAddress(name)
		if addr == ([20]byte{}) {
			t.Fatalf("module address for %s is zero", name)
		}
		if existing, ok := seen[addr]; ok {
			t.Fatalf("modules %s and %s collide", existing, name)
		}
		seen[addr] = name
	}
	if ModuleAddress(ModuleEscrowVault) != ModuleAddress(ModuleEscrowVault) {
		t.Fatalf("module address derivation must be deterministic")
	}
}
