package token

import (
	"errors"
	"fmt"
	"math/big"

	"ethaychain/core/types"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")

	errNilState = errors.New("token ledger: state not configured")
)

type ledgerState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	AllowanceGet(owner, spender [20]byte) (*big.Int, error)
	AllowanceSet(owner, spender [20]byte, amount *big.Int) error
}

// Ledger implements the settlement-token capability consumed by the
// marketplace and the cross-chain relay: balances, approvals and the
// transferFrom escrow pull. Amounts use 18 decimal places.
type Ledger struct {
	state ledgerState
}

func NewLedger() *Ledger { return &Ledger{} }

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
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

// BalanceOf returns the token balance for the address.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	acc, err := l.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return cloneBigInt(ensureAccount(acc).BalanceToken), nil
}

// Mint credits freshly issued tokens to the recipient. The driving scripts
// mint test balances before purchases; production networks restrict the RPC
// method instead.
func (l *Ledger) Mint(to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("token: mint amount must be positive")
	}
	acc, err := l.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	acc.BalanceToken = new(big.Int).Add(acc.BalanceToken, amt)
	return l.state.PutAccount(to[:], acc)
}

// Transfer moves tokens between two accounts.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative transfer amount")
	}
	fromAcc, err := l.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := l.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.BalanceToken.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.BalanceToken = new(big.Int).Sub(fromAcc.BalanceToken, amt)
	toAcc.BalanceToken = new(big.Int).Add(toAcc.BalanceToken, amt)
	if err := l.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to[:], toAcc)
}

// Approve grants the spender an allowance over the owner's balance.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative allowance")
	}
	return l.state.AllowanceSet(owner, spender, amt)
}

// Allowance returns the remaining allowance granted by owner to spender.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowance, err := l.state.AllowanceGet(owner, spender)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(allowance), nil
}

// TransferFrom spends the allowance granted by owner to spender and moves the
// amount to the recipient. The allowance deduction and the balance move are
// part of the same state transaction.
func (l *Ledger) TransferFrom(owner, spender, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative transfer amount")
	}
	allowance, err := l.state.AllowanceGet(owner, spender)
	if err != nil {
		return err
	}
	allowance = cloneBigInt(allowance)
	if allowance.Cmp(amt) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(owner, to, amt); err != nil {
		return err
	}
	return l.state.AllowanceSet(owner, spender, new(big.Int).Sub(allowance, amt))
}
