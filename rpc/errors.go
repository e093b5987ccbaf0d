package rpc

import (
	"errors"
	"net/http"

	"ethaychain/native/identity"
	"ethaychain/native/market"
	"ethaychain/native/relay"
	"ethaychain/native/token"

	nativecommon "ethaychain/native/common"
)

const (
	codeModulePaused = -32005

	codeMarketNotVerified       = -32010
	codeMarketAlreadyRegistered = -32011
	codeMarketRoleRequired      = -32012
	codeMarketNotBuyer          = -32013
	codeMarketInvalidState      = -32014
	codeMarketNotFound          = -32015
	codeMarketInsufficientStock = -32016
	codeMarketInsufficientFee   = -32017
	codeMarketAmountOutOfRange  = -32018
	codeMarketJudgeNotEligible  = -32019

	codeIdentityInvalidProof    = -32021
	codeIdentityNullifierReused = -32022

	codeTokenInsufficientBalance   = -32031
	codeTokenInsufficientAllowance = -32032

	codeRelayUnauthorizedSender = -32041
	codeRelayDuplicateMessage   = -32042
	codeRelayNoRefund           = -32043
)

// writeModuleError maps the engines' sentinel errors onto stable JSON-RPC
// error codes so clients can branch without string matching.
func writeModuleError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusBadRequest
	code := codeServerError
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		status, code = http.StatusServiceUnavailable, codeModulePaused
	case errors.Is(err, market.ErrNotVerified):
		code = codeMarketNotVerified
	case errors.Is(err, market.ErrAlreadyRegistered):
		code = codeMarketAlreadyRegistered
	case errors.Is(err, market.ErrNotSeller), errors.Is(err, market.ErrNotJudge):
		code = codeMarketRoleRequired
	case errors.Is(err, market.ErrNotBuyer):
		code = codeMarketNotBuyer
	case errors.Is(err, market.ErrInvalidState):
		code = codeMarketInvalidState
	case errors.Is(err, market.ErrProductNotFound), errors.Is(err, market.ErrPurchaseNotFound):
		status, code = http.StatusNotFound, codeMarketNotFound
	case errors.Is(err, market.ErrInsufficientStock):
		code = codeMarketInsufficientStock
	case errors.Is(err, market.ErrInsufficientFee):
		code = codeMarketInsufficientFee
	case errors.Is(err, market.ErrAmountOutOfRange):
		code = codeMarketAmountOutOfRange
	case errors.Is(err, market.ErrJudgeNotEligible):
		code = codeMarketJudgeNotEligible
	case errors.Is(err, identity.ErrInvalidProof):
		code = codeIdentityInvalidProof
	case errors.Is(err, identity.ErrNullifierReused):
		status, code = http.StatusConflict, codeIdentityNullifierReused
	case errors.Is(err, token.ErrInsufficientBalance):
		code = codeTokenInsufficientBalance
	case errors.Is(err, token.ErrInsufficientAllowance):
		code = codeTokenInsufficientAllowance
	case errors.Is(err, relay.ErrUnauthorizedSender):
		status, code = http.StatusForbidden, codeRelayUnauthorizedSender
	case errors.Is(err, relay.ErrDuplicateMessage):
		status, code = http.StatusConflict, codeRelayDuplicateMessage
	case errors.Is(err, relay.ErrNoRefund):
		code = codeRelayNoRefund
	default:
		status = http.StatusInternalServerError
	}
	writeError(w, status, id, code, err.Error(), nil)
}
