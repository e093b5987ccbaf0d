package types

import "math/big"

// Account holds the balances tracked for a marketplace participant. Token
// balances are the 18-decimal settlement token used for product pricing;
// native balances cover dispute fees.
type Account struct {
	Nonce          uint64   `json:"nonce"`
	BalanceToken   *big.Int `json:"balanceToken"`
	BalanceNative  *big.Int `json:"balanceNative"`
	SellerSince    int64    `json:"sellerSince,omitempty"`
	JudgeSince     int64    `json:"judgeSince,omitempty"`
	ProductsListed uint64   `json:"productsListed,omitempty"`
}
