package rpc

import (
	"encoding/hex"
	"net/http"
)

type sendMessageParams struct {
	DestinationSelector uint64 `json:"destinationSelector"`
	Receiver            string `json:"receiver"`
	Buyer               string `json:"buyer"`
	ProductID           uint64 `json:"productId"`
	Quantity            uint64 `json:"quantity"`
	Referrer            string `json:"referrer,omitempty"`
	Price               string `json:"price"`
}

type sendMessageResult struct {
	MessageID string `json:"messageId"`
	TxHash    string `json:"txHash"`
}

func (s *Server) handleRelaySendMessage(w http.ResponseWriter, req *RPCRequest) {
	var params sendMessageParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	receiver, err := parseAddressParam(params.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddressParam(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	referrer, err := parseOptionalAddress(params.Referrer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, txHash, err := s.node.SendMessage(params.DestinationSelector, receiver, buyer, params.ProductID, params.Quantity, referrer, price)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, sendMessageResult{MessageID: hex.EncodeToString(id[:]), TxHash: txHash})
}

type claimRefundParams struct {
	Buyer string `json:"buyer"`
}

type claimRefundResult struct {
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"`
	TxHash string `json:"txHash"`
}

func (s *Server) handleRelayClaimRefund(w http.ResponseWriter, req *RPCRequest) {
	var params claimRefundParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddressParam(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, txHash, err := s.node.ClaimRefund(buyer)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimRefundResult{Buyer: params.Buyer, Amount: amount.String(), TxHash: txHash})
}

type refundBalanceResult struct {
	Buyer   string `json:"buyer"`
	Balance string `json:"balance"`
}

func (s *Server) handleRelayRefundBalance(w http.ResponseWriter, req *RPCRequest) {
	var params claimRefundParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddressParam(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.RefundBalance(buyer)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, refundBalanceResult{Buyer: params.Buyer, Balance: balance.String()})
}

type chainAddressesResult struct {
	ChainSelector   uint64 `json:"chainSelector"`
	EscrowVault     string `json:"escrowVault"`
	SenderCustody   string `json:"senderCustody"`
	ReceiverCustody string `json:"receiverCustody"`
	FeeTreasury     string `json:"feeTreasury"`
}

func (s *Server) handleChainAddresses(w http.ResponseWriter, req *RPCRequest) {
	addrs := s.node.Addresses()
	writeResult(w, req.ID, chainAddressesResult{
		ChainSelector:   s.node.ChainSelector(),
		EscrowVault:     formatAddress(addrs.EscrowVault),
		SenderCustody:   formatAddress(addrs.SenderCustody),
		ReceiverCustody: formatAddress(addrs.ReceiverCustody),
		FeeTreasury:     formatAddress(addrs.FeeTreasury),
	})
}
