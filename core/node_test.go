package core

import (
	"errors"
	"math/big"
	"testing"

	"ethaychain/config"
	"ethaychain/native/identity"
	"ethaychain/native/market"
	"ethaychain/native/relay"
	"ethaychain/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		RPCAddress:          "127.0.0.1:0",
		DataDir:             "",
		NetworkName:         "ethay-test",
		IdentityAppID:       "app_test",
		MinJudgeFee:         "500",
		ChainSelector:       10344971235874465080,
		SourceChainSelector: 16015286601757825753,
	}
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	node, err := NewNode(storage.NewMemDB(), testConfig(), identity.DevVerifier{}, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func testProof(fill byte) *identity.Proof {
	proof := &identity.Proof{}
	proof.NullifierHash[0] = fill
	return proof
}

func TestPurchaseLifecycleEndToEnd(t *testing.T) {
	node := newTestNode(t)
	addrs := node.Addresses()

	seller := testAddr(0x01)
	buyer := testAddr(0x02)
	judge := testAddr(0x03)

	if _, err := node.RegisterSeller(seller, testProof(0x01)); err != nil {
		t.Fatalf("register seller: %v", err)
	}
	if _, err := node.RegisterJudge(judge, testProof(0x03)); err != nil {
		t.Fatalf("register judge: %v", err)
	}

	product, _, err := node.CreateProduct(seller, "widget", big.NewInt(100), 10, "ipfs://widget", "a widget")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.ID != 0 {
		t.Fatalf("expected first product id 0, got %d", product.ID)
	}

	if _, err := node.Mint(buyer, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := node.Approve(buyer, addrs.EscrowVault, big.NewInt(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	purchase, _, err := node.BuyProduct(buyer, product.ID, 1, [20]byte{})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if purchase.Escrow.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected escrow 100, got %s", purchase.Escrow)
	}

	if _, err := node.MintNative(buyer, big.NewInt(500)); err != nil {
		t.Fatalf("mint native: %v", err)
	}
	if _, err := node.RaiseDispute(buyer, product.ID, purchase.ID, big.NewInt(500)); err != nil {
		t.Fatalf("raise dispute: %v", err)
	}
	if _, err := node.ResolveDispute(judge, product.ID, purchase.ID, big.NewInt(50)); err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}

	buyerBalance, err := node.BalanceOf(buyer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if buyerBalance.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("expected buyer balance 950, got %s", buyerBalance)
	}
	sellerBalance, err := node.BalanceOf(seller)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if sellerBalance.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected seller balance 50, got %s", sellerBalance)
	}

	dispute, err := node.GetDispute(product.ID, purchase.ID)
	if err != nil {
		t.Fatalf("get dispute: %v", err)
	}
	if dispute.RefundToBuyer.Cmp(big.NewInt(50)) != 0 || dispute.ReleaseToSeller.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected split %s/%s", dispute.RefundToBuyer, dispute.ReleaseToSeller)
	}

	// A resolved dispute cannot be resolved again.
	if _, err := node.ResolveDispute(judge, product.ID, purchase.ID, big.NewInt(50)); !errors.Is(err, market.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second resolution, got %v", err)
	}

	if len(node.Events()) == 0 {
		t.Fatalf("expected emitted events")
	}
}

func TestDuplicateProofRejectedAcrossCallers(t *testing.T) {
	node := newTestNode(t)
	if _, err := node.RegisterSeller(testAddr(0x04), testProof(0x04)); err != nil {
		t.Fatalf("register seller: %v", err)
	}
	_, err := node.RegisterSeller(testAddr(0x05), testProof(0x04))
	if !errors.Is(err, identity.ErrNullifierReused) {
		t.Fatalf("expected ErrNullifierReused, got %v", err)
	}
}

func TestRelayedPurchaseEndToEnd(t *testing.T) {
	node := newTestNode(t)
	addrs := node.Addresses()

	seller := testAddr(0x06)
	buyer := testAddr(0x07)
	if _, err := node.RegisterSeller(seller, testProof(0x06)); err != nil {
		t.Fatalf("register seller: %v", err)
	}
	product, _, err := node.CreateProduct(seller, "widget", big.NewInt(100), 5, "", "")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if _, err := node.Mint(buyer, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := node.Approve(buyer, addrs.SenderCustody, big.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	id, _, err := node.SendMessage(node.ChainSelector(), addrs.ReceiverCustody, buyer, product.ID, 3, [20]byte{}, big.NewInt(100))
	if err != nil {
		t.Fatalf("send message: %v", err)
	}

	purchase, err := node.GetPurchase(product.ID, 0)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if purchase.Buyer != buyer || purchase.Quantity != 3 {
		t.Fatalf("unexpected relayed purchase %+v", purchase)
	}
	if purchase.Escrow.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected escrow 300, got %s", purchase.Escrow)
	}
	stored, err := node.GetProduct(product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stored.Quantity != 2 {
		t.Fatalf("expected stock 2 after relayed purchase, got %d", stored.Quantity)
	}

	// A duplicate delivery of the same message id must be rejected.
	msg := &relay.Message{
		DestinationSelector: node.ChainSelector(),
		Receiver:            addrs.ReceiverCustody,
		Buyer:               buyer,
		ProductID:           product.ID,
		Quantity:            3,
		Price:               big.NewInt(100),
		Amount:              big.NewInt(300),
	}
	if err := node.loopback.Redeliver(id, msg); !errors.Is(err, relay.ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage on redelivery, got %v", err)
	}
	if _, err := node.GetPurchase(product.ID, 1); !errors.Is(err, market.ErrPurchaseNotFound) {
		t.Fatalf("redelivery must not create a second purchase, got %v", err)
	}
}

func TestUnderpaidRelayedMessageDoesNotSpendCustody(t *testing.T) {
	node := newTestNode(t)
	addrs := node.Addresses()

	seller := testAddr(0x0A)
	victim := testAddr(0x0B)
	cheater := testAddr(0x0C)
	if _, err := node.RegisterSeller(seller, testProof(0x0A)); err != nil {
		t.Fatalf("register seller: %v", err)
	}
	product, _, err := node.CreateProduct(seller, "widget", big.NewInt(100), 2, "", "")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	// The victim's failed purchase leaves 500 of refund credit backed by
	// receiver custody.
	if _, err := node.Mint(victim, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := node.Approve(victim, addrs.SenderCustody, big.NewInt(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, _, err := node.SendMessage(node.ChainSelector(), addrs.ReceiverCustody, victim, product.ID, 5, [20]byte{}, big.NewInt(100)); err != nil {
		t.Fatalf("send message: %v", err)
	}

	// A message priced at 1 for the 100-token product delivers 1 token; the
	// purchase must not be funded out of the victim's custody-backed credit.
	if _, err := node.Mint(cheater, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := node.Approve(cheater, addrs.SenderCustody, big.NewInt(10)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, _, err := node.SendMessage(node.ChainSelector(), addrs.ReceiverCustody, cheater, product.ID, 1, [20]byte{}, big.NewInt(1)); err != nil {
		t.Fatalf("send message: %v", err)
	}

	if _, err := node.GetPurchase(product.ID, 0); !errors.Is(err, market.ErrPurchaseNotFound) {
		t.Fatalf("underpaid message must not create a purchase, got %v", err)
	}
	stored, err := node.GetProduct(product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stored.Quantity != 2 {
		t.Fatalf("expected stock untouched at 2, got %d", stored.Quantity)
	}
	cheaterCredit, err := node.RefundBalance(cheater)
	if err != nil {
		t.Fatalf("refund balance: %v", err)
	}
	if cheaterCredit.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected only the delivered token credited, got %s", cheaterCredit)
	}

	// The victim's claim is still fully funded.
	amount, _, err := node.ClaimRefund(victim)
	if err != nil {
		t.Fatalf("claim refund: %v", err)
	}
	if amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected payout 500, got %s", amount)
	}
	balance, err := node.BalanceOf(victim)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected victim made whole at 1000, got %s", balance)
	}
}

func TestRelayedPurchaseFailureCreditsRefund(t *testing.T) {
	node := newTestNode(t)
	addrs := node.Addresses()

	seller := testAddr(0x08)
	buyer := testAddr(0x09)
	if _, err := node.RegisterSeller(seller, testProof(0x08)); err != nil {
		t.Fatalf("register seller: %v", err)
	}
	product, _, err := node.CreateProduct(seller, "widget", big.NewInt(100), 2, "", "")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if _, err := node.Mint(buyer, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := node.Approve(buyer, addrs.SenderCustody, big.NewInt(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Five units exceed the stock; the purchase fails on the destination
	// side but the delivered funds stay claimable.
	if _, _, err := node.SendMessage(node.ChainSelector(), addrs.ReceiverCustody, buyer, product.ID, 5, [20]byte{}, big.NewInt(100)); err != nil {
		t.Fatalf("send message: %v", err)
	}
	balance, err := node.RefundBalance(buyer)
	if err != nil {
		t.Fatalf("refund balance: %v", err)
	}
	if balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected refund credit 500, got %s", balance)
	}

	amount, _, err := node.ClaimRefund(buyer)
	if err != nil {
		t.Fatalf("claim refund: %v", err)
	}
	if amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected payout 500, got %s", amount)
	}
	tokenBalance, err := node.BalanceOf(buyer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if tokenBalance.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected buyer made whole at 1000, got %s", tokenBalance)
	}
	if _, _, err := node.ClaimRefund(buyer); !errors.Is(err, relay.ErrNoRefund) {
		t.Fatalf("expected ErrNoRefund on second claim, got %v", err)
	}
}
