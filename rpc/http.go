package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ethaychain/core"
	"ethaychain/crypto"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Server exposes the node's public operations over JSON-RPC 2.0.
type Server struct {
	node   *core.Node
	logger *slog.Logger
}

func NewServer(node *core.Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{node: node, logger: logger}
}

// Router builds the HTTP mux: the JSON-RPC endpoint plus health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves the router on the given address, blocking until the listener
// fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != jsonRPCVersion || strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "jsonrpc 2.0 request expected")
		return
	}

	requestID := uuid.NewString()
	logger := s.logger.With("method", req.Method, "requestId", requestID)

	switch req.Method {
	case "market_registerSeller":
		s.handleRegisterSeller(w, &req)
	case "market_registerJudge":
		s.handleRegisterJudge(w, &req)
	case "market_createProduct":
		s.handleCreateProduct(w, &req)
	case "market_getProduct":
		s.handleGetProduct(w, &req)
	case "market_buyProduct":
		s.handleBuyProduct(w, &req)
	case "market_getPurchase":
		s.handleGetPurchase(w, &req)
	case "market_confirmPurchase":
		s.handleConfirmPurchase(w, &req)
	case "market_raiseDispute":
		s.handleRaiseDispute(w, &req)
	case "market_resolveDispute":
		s.handleResolveDispute(w, &req)
	case "market_getDispute":
		s.handleGetDispute(w, &req)
	case "token_mint":
		s.handleTokenMint(w, &req)
	case "token_mintNative":
		s.handleTokenMintNative(w, &req)
	case "token_approve":
		s.handleTokenApprove(w, &req)
	case "token_balanceOf":
		s.handleTokenBalanceOf(w, &req)
	case "relay_sendMessage":
		s.handleRelaySendMessage(w, &req)
	case "relay_claimRefund":
		s.handleRelayClaimRefund(w, &req)
	case "relay_refundBalance":
		s.handleRelayRefundBalance(w, &req)
	case "chain_addresses":
		s.handleChainAddresses(w, &req)
	default:
		logger.Warn("unknown method")
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
	}
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddressParam(value string) ([20]byte, error) {
	var addr [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return addr, err
	}
	if decoded.Prefix() != crypto.EthayPrefix {
		return addr, fmt.Errorf("unexpected address prefix %q", decoded.Prefix())
	}
	copy(addr[:], decoded.Bytes())
	return addr, nil
}

// parseOptionalAddress accepts an empty string as the zero address (no
// referrer).
func parseOptionalAddress(value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, nil
	}
	return parseAddressParam(value)
}

func parseHash32(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid base-10 amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseNonNegativeBigInt(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid base-10 amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.EthayPrefix, addr[:]).String()
}
