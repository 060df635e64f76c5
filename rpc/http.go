package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	nativecommon "tradevault/native/common"
	"tradevault/native/trade"
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
	codeRateLimited    = -32020

	codeTradeInvalidParams = -32021
	codeTradeNotFound      = -32022
	codeTradeForbidden     = -32023
	codeTradeConflict      = -32024
	codeTradeUnfunded      = -32026
	codeTradePaused        = -32027
)

// Server exposes the trade engine over JSON-RPC with per-client rate limiting
// and the usual operational endpoints (/healthz, /metrics).
type Server struct {
	engine *trade.Engine
	log    *slog.Logger

	mu           sync.Mutex
	visitors     map[string]*rate.Limiter
	ratePerMin   float64
	rateBurst    int
	lastCleanup  time.Time
	cleanupEvery time.Duration
}

// NewServer wires a server around the engine. Rate limiting is keyed by the
// client address; requestsPerMinute <= 0 disables it.
func NewServer(engine *trade.Engine, logger *slog.Logger, requestsPerMinute float64, burst int) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if burst <= 0 {
		burst = 1
	}
	return &Server{
		engine:       engine,
		log:          logger,
		visitors:     make(map[string]*rate.Limiter),
		ratePerMin:   requestsPerMinute,
		rateBurst:    burst,
		lastCleanup:  time.Now(),
		cleanupEvery: 10 * time.Minute,
	}
}

// Router builds the HTTP routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.rateLimit).Post("/rpc", s.handleRPC)
	return r
}

// Start serves the router until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rpc server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ratePerMin <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !s.obtainLimiter(clientID(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate_limited", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) obtainLimiter(id string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastCleanup) > s.cleanupEvery {
		s.visitors = make(map[string]*rate.Limiter)
		s.lastCleanup = time.Now()
	}
	limiter, ok := s.visitors[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.ratePerMin/60.0), s.rateBurst)
		s.visitors[id] = limiter
	}
	return limiter
}

func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
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
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}
	switch req.Method {
	case "trade_create":
		s.handleTradeCreate(w, &req)
	case "trade_confirm":
		s.handleTradeConfirm(w, &req)
	case "trade_cancel":
		s.handleTradeCancel(w, &req)
	case "trade_withdraw":
		s.handleTradeWithdraw(w, &req)
	case "trade_get":
		s.handleTradeGet(w, &req)
	case "trade_listBySeller":
		s.handleTradeListBySeller(w, &req)
	case "trade_listByBuyer":
		s.handleTradeListByBuyer(w, &req)
	case "trade_pending":
		s.handleTradePending(w, &req)
	case "trade_escrowBalance":
		s.handleTradeEscrowBalance(w, &req)
	case "trade_isSweepNeeded":
		s.handleTradeIsSweepNeeded(w, &req)
	case "trade_sweep":
		s.handleTradeSweep(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
	}
}

// writeTradeError maps engine sentinels onto stable RPC codes so clients can
// branch on the taxonomy rather than on message text.
func writeTradeError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, trade.ErrTradeNotFound):
		writeError(w, http.StatusNotFound, id, codeTradeNotFound, "not_found", err.Error())
	case errors.Is(err, trade.ErrOnlyBuyer),
		errors.Is(err, trade.ErrOnlySeller),
		errors.Is(err, trade.ErrOnlySellerOrBuyer):
		writeError(w, http.StatusForbidden, id, codeTradeForbidden, "forbidden", err.Error())
	case errors.Is(err, trade.ErrTradeExpired),
		errors.Is(err, trade.ErrTradeNotExpired),
		errors.Is(err, trade.ErrInvalidStatus):
		writeError(w, http.StatusConflict, id, codeTradeConflict, "conflict", err.Error())
	case errors.Is(err, trade.ErrInsufficientBalance),
		errors.Is(err, trade.ErrInsufficientAllowance),
		errors.Is(err, trade.ErrIncorrectNativeValue),
		errors.Is(err, trade.ErrNotNFTOwner),
		errors.Is(err, trade.ErrNFTNotApproved):
		writeError(w, http.StatusBadRequest, id, codeTradeUnfunded, "unfunded", err.Error())
	case errors.Is(err, trade.ErrInvalidAddress),
		errors.Is(err, trade.ErrInvalidInputs),
		errors.Is(err, trade.ErrCannotTradeSameToken),
		errors.Is(err, trade.ErrCannotTradeWithSelf):
		writeError(w, http.StatusBadRequest, id, codeTradeInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, id, codeTradePaused, "paused", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal_error", err.Error())
	}
}
