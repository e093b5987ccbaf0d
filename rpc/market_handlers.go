package rpc

import (
	"encoding/base64"
	"net/http"

	"ethaychain/native/identity"
	"ethaychain/native/market"
)

type proofParam struct {
	MerkleRoot    string `json:"merkleRoot"`
	NullifierHash string `json:"nullifierHash"`
	Payload       string `json:"payload,omitempty"`
}

func (p *proofParam) toProof() (*identity.Proof, error) {
	root, err := parseHash32(p.MerkleRoot)
	if err != nil {
		return nil, err
	}
	nullifier, err := parseHash32(p.NullifierHash)
	if err != nil {
		return nil, err
	}
	proof := &identity.Proof{MerkleRoot: root, NullifierHash: nullifier}
	if p.Payload != "" {
		payload, err := base64.StdEncoding.DecodeString(p.Payload)
		if err != nil {
			return nil, err
		}
		proof.Payload = payload
	}
	return proof, nil
}

type registerParams struct {
	Caller string     `json:"caller"`
	Proof  proofParam `json:"proof"`
}

type registrationResult struct {
	TxHash  string `json:"txHash"`
	Address string `json:"address"`
	Role    string `json:"role"`
}

func (s *Server) handleRegisterSeller(w http.ResponseWriter, req *RPCRequest) {
	s.handleRegister(w, req, "seller")
}

func (s *Server) handleRegisterJudge(w http.ResponseWriter, req *RPCRequest) {
	s.handleRegister(w, req, "judge")
}

func (s *Server) handleRegister(w http.ResponseWriter, req *RPCRequest, role string) {
	var params registerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	proof, err := params.Proof.toProof()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var txHash string
	if role == "seller" {
		txHash, err = s.node.RegisterSeller(caller, proof)
	} else {
		txHash, err = s.node.RegisterJudge(caller, proof)
	}
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, registrationResult{TxHash: txHash, Address: params.Caller, Role: role})
}

type createProductParams struct {
	Seller      string `json:"seller"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Quantity    uint64 `json:"quantity"`
	URI         string `json:"uri,omitempty"`
	Description string `json:"description,omitempty"`
}

type productResult struct {
	ID             uint64 `json:"id"`
	Seller         string `json:"seller"`
	Name           string `json:"name"`
	Price          string `json:"price"`
	Quantity       uint64 `json:"quantity"`
	URI            string `json:"uri,omitempty"`
	Description    string `json:"description,omitempty"`
	NextPurchaseID uint64 `json:"nextPurchaseId"`
	CreatedAt      int64  `json:"createdAt"`
	TxHash         string `json:"txHash,omitempty"`
}

func productToResult(p *market.Product, txHash string) productResult {
	return productResult{
		ID:             p.ID,
		Seller:         formatAddress(p.Seller),
		Name:           p.Name,
		Price:          p.Price.String(),
		Quantity:       p.Quantity,
		URI:            p.URI,
		Description:    p.Description,
		NextPurchaseID: p.NextPurchaseID,
		CreatedAt:      p.CreatedAt,
		TxHash:         txHash,
	}
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, req *RPCRequest) {
	var params createProductParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddressParam(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	product, txHash, err := s.node.CreateProduct(seller, params.Name, price, params.Quantity, params.URI, params.Description)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, productToResult(product, txHash))
}

type getProductParams struct {
	ProductID uint64 `json:"productId"`
}

func (s *Server) handleGetProduct(w http.ResponseWriter, req *RPCRequest) {
	var params getProductParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	product, err := s.node.GetProduct(params.ProductID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, productToResult(product, ""))
}

type buyProductParams struct {
	Buyer     string `json:"buyer"`
	ProductID uint64 `json:"productId"`
	Quantity  uint64 `json:"quantity"`
	Referrer  string `json:"referrer,omitempty"`
}

type purchaseResult struct {
	ID        uint64 `json:"id"`
	ProductID uint64 `json:"productId"`
	Buyer     string `json:"buyer"`
	Quantity  uint64 `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Referrer  string `json:"referrer,omitempty"`
	Escrow    string `json:"escrow"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
	TxHash    string `json:"txHash,omitempty"`
}

func purchaseToResult(p *market.Purchase, txHash string) purchaseResult {
	result := purchaseResult{
		ID:        p.ID,
		ProductID: p.ProductID,
		Buyer:     formatAddress(p.Buyer),
		Quantity:  p.Quantity,
		UnitPrice: p.UnitPrice.String(),
		Escrow:    p.Escrow.String(),
		Status:    p.Status.String(),
		CreatedAt: p.CreatedAt,
		TxHash:    txHash,
	}
	if p.Referrer != ([20]byte{}) {
		result.Referrer = formatAddress(p.Referrer)
	}
	return result
}

func (s *Server) handleBuyProduct(w http.ResponseWriter, req *RPCRequest) {
	var params buyProductParams
	if err := decodeSingleParam(req, &params); err != nil {
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
	purchase, txHash, err := s.node.BuyProduct(buyer, params.ProductID, params.Quantity, referrer)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, purchaseToResult(purchase, txHash))
}

type purchaseRefParams struct {
	Caller     string `json:"caller,omitempty"`
	ProductID  uint64 `json:"productId"`
	PurchaseID uint64 `json:"purchaseId"`
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, req *RPCRequest) {
	var params purchaseRefParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	purchase, err := s.node.GetPurchase(params.ProductID, params.PurchaseID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, purchaseToResult(purchase, ""))
}

type txResult struct {
	TxHash string `json:"txHash"`
}

func (s *Server) handleConfirmPurchase(w http.ResponseWriter, req *RPCRequest) {
	var params purchaseRefParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txHash, err := s.node.ConfirmPurchase(caller, params.ProductID, params.PurchaseID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txResult{TxHash: txHash})
}

type raiseDisputeParams struct {
	Caller     string `json:"caller"`
	ProductID  uint64 `json:"productId"`
	PurchaseID uint64 `json:"purchaseId"`
	JudgeFee   string `json:"judgeFee"`
}

func (s *Server) handleRaiseDispute(w http.ResponseWriter, req *RPCRequest) {
	var params raiseDisputeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	fee, err := parseNonNegativeBigInt(params.JudgeFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txHash, err := s.node.RaiseDispute(caller, params.ProductID, params.PurchaseID, fee)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txResult{TxHash: txHash})
}

type resolveDisputeParams struct {
	Caller        string `json:"caller"`
	ProductID     uint64 `json:"productId"`
	PurchaseID    uint64 `json:"purchaseId"`
	RefundToBuyer string `json:"refundToBuyer"`
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, req *RPCRequest) {
	var params resolveDisputeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddressParam(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	refund, err := parseNonNegativeBigInt(params.RefundToBuyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	txHash, err := s.node.ResolveDispute(caller, params.ProductID, params.PurchaseID, refund)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txResult{TxHash: txHash})
}

type disputeResult struct {
	ProductID       uint64 `json:"productId"`
	PurchaseID      uint64 `json:"purchaseId"`
	RaisedBy        string `json:"raisedBy"`
	FeePaid         string `json:"feePaid"`
	Judge           string `json:"judge,omitempty"`
	RefundToBuyer   string `json:"refundToBuyer"`
	ReleaseToSeller string `json:"releaseToSeller"`
	RaisedAt        int64  `json:"raisedAt"`
	ResolvedAt      int64  `json:"resolvedAt,omitempty"`
}

func (s *Server) handleGetDispute(w http.ResponseWriter, req *RPCRequest) {
	var params purchaseRefParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	dispute, err := s.node.GetDispute(params.ProductID, params.PurchaseID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	result := disputeResult{
		ProductID:       dispute.ProductID,
		PurchaseID:      dispute.PurchaseID,
		RaisedBy:        formatAddress(dispute.RaisedBy),
		FeePaid:         dispute.FeePaid.String(),
		RefundToBuyer:   dispute.RefundToBuyer.String(),
		ReleaseToSeller: dispute.ReleaseToSeller.String(),
		RaisedAt:        dispute.RaisedAt,
		ResolvedAt:      dispute.ResolvedAt,
	}
	if dispute.Judge != ([20]byte{}) {
		result.Judge = formatAddress(dispute.Judge)
	}
	writeResult(w, req.ID, result)
}
