package state

var (
	accountPrefix      = []byte("accounts/")
	productPrefix      = []byte("market/product/")
	productCounterKey  = []byte("market/product-count")
	purchasePrefix     = []byte("market/purchase/")
	disputePrefix      = []byte("market/dispute/")
	judgesKey          = []byte("market/judges")
	escrowPrefix       = []byte("market/escrow/")
	nullifierPrefix    = []byte("identity/nullifier/")
	allowancePrefix    = []byte("token/allowance/")
	relayMessagePrefix = []byte("relay/message/")
	relayRefundPrefix  = []byte("relay/refund/")
)
