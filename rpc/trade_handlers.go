package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"tradevault/native/trade"
)

type assetLegParams struct {
	NativeAmount string `json:"nativeAmount,omitempty"`
	Token        string `json:"token,omitempty"`
	TokenAmount  string `json:"tokenAmount,omitempty"`
	NFT          string `json:"nft,omitempty"`
	NFTTokenID   uint64 `json:"nftTokenId,omitempty"`
}

type tradeCreateParams struct {
	Seller      string         `json:"seller"`
	Buyer       string         `json:"buyer"`
	Offered     assetLegParams `json:"offered"`
	Requested   assetLegParams `json:"requested"`
	TradePeriod int64          `json:"tradePeriodSeconds"`
	Value       string         `json:"value,omitempty"`
}

type tradeActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
	Value  string `json:"value,omitempty"`
}

type tradeIDParams struct {
	ID uint64 `json:"id"`
}

type tradeAddressParams struct {
	Address string `json:"address"`
}

type tradeCreateResult struct {
	ID uint64 `json:"id"`
}

type assetLegJSON struct {
	NativeAmount string `json:"nativeAmount"`
	Token        string `json:"token,omitempty"`
	TokenAmount  string `json:"tokenAmount,omitempty"`
	NFT          string `json:"nft,omitempty"`
	NFTTokenID   uint64 `json:"nftTokenId,omitempty"`
}

type tradeJSON struct {
	ID             uint64       `json:"id"`
	Seller         string       `json:"seller"`
	Buyer          string       `json:"buyer"`
	Offered        assetLegJSON `json:"offered"`
	Requested      assetLegJSON `json:"requested"`
	CreatedAt      int64        `json:"createdAt"`
	Deadline       int64        `json:"deadline"`
	EscrowedNative string       `json:"escrowedNative"`
	Status         string       `json:"status"`
	Withdrawable   bool         `json:"withdrawable"`
}

type sweepResult struct {
	Swept int `json:"swept"`
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	if !common.IsHexAddress(value) {
		return addr, fmt.Errorf("invalid address %q", value)
	}
	copy(addr[:], common.HexToAddress(value).Bytes())
	return addr, nil
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", value)
	}
	return amount, nil
}

func parseLeg(params assetLegParams) (trade.AssetLeg, error) {
	var leg trade.AssetLeg
	native, err := parseAmount(params.NativeAmount)
	if err != nil {
		return leg, err
	}
	leg.NativeAmount = native
	if params.Token != "" {
		token, err := parseAddress(params.Token)
		if err != nil {
			return leg, err
		}
		leg.Token = token
	}
	amount, err := parseAmount(params.TokenAmount)
	if err != nil {
		return leg, err
	}
	leg.TokenAmount = amount
	if params.NFT != "" {
		nft, err := parseAddress(params.NFT)
		if err != nil {
			return leg, err
		}
		leg.NFT = nft
	}
	leg.NFTTokenID = params.NFTTokenID
	return leg, nil
}

func formatLeg(leg trade.AssetLeg) assetLegJSON {
	out := assetLegJSON{NativeAmount: "0"}
	if leg.NativeAmount != nil {
		out.NativeAmount = leg.NativeAmount.String()
	}
	if leg.HasToken() {
		out.Token = common.BytesToAddress(leg.Token[:]).Hex()
		out.TokenAmount = "0"
		if leg.TokenAmount != nil {
			out.TokenAmount = leg.TokenAmount.String()
		}
	}
	if leg.HasNFT() {
		out.NFT = common.BytesToAddress(leg.NFT[:]).Hex()
		out.NFTTokenID = leg.NFTTokenID
	}
	return out
}

func formatTrade(t *trade.Trade) tradeJSON {
	escrowed := "0"
	if t.EscrowedNative != nil {
		escrowed = t.EscrowedNative.String()
	}
	return tradeJSON{
		ID:             t.ID,
		Seller:         common.BytesToAddress(t.Seller[:]).Hex(),
		Buyer:          common.BytesToAddress(t.Buyer[:]).Hex(),
		Offered:        formatLeg(t.Offered),
		Requested:      formatLeg(t.Requested),
		CreatedAt:      t.CreatedAt,
		Deadline:       t.Deadline,
		EscrowedNative: escrowed,
		Status:         t.Status.String(),
		Withdrawable:   t.Withdrawable,
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleTradeCreate(w http.ResponseWriter, req *RPCRequest) {
	var params tradeCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	offered, err := parseLeg(params.Offered)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	requested, err := parseLeg(params.Requested)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := s.engine.AddTrade(seller, buyer, offered, requested, params.TradePeriod, value)
	if err != nil {
		writeTradeError(w, req.ID, err)
		return
	}
	s.log.Info("trade created", "id", id, "seller", params.Seller, "buyer", params.Buyer)
	writeResult(w, req.ID, tradeCreateResult{ID: id})
}

func (s *Server) handleTradeConfirm(w http.ResponseWriter, req *RPCRequest) {
	var params tradeActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.ConfirmTrade(params.ID, caller, value); err != nil {
		writeTradeError(w, req.ID, err)
		return
	}
	s.log.Info("trade confirmed", "id", params.ID)
	writeResult(w, req.ID, true)
}

func (s *Server) handleTradeCancel(w http.ResponseWriter, req *RPCRequest) {
	var params tradeActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.CancelTrade(params.ID, caller); err != nil {
		writeTradeError(w, req.ID, err)
		return
	}
	s.log.Info("trade canceled", "id", params.ID)
	writeResult(w, req.ID, true)
}

func (s *Server) handleTradeWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params tradeActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Withdraw(params.ID, caller); err != nil {
		writeTradeError(w, req.ID, err)
		return
	}
	s.log.Info("trade withdrawn", "id", params.ID)
	writeResult(w, req.ID, true)
}

func (s *Server) handleTradeGet(w http.ResponseWriter, req *RPCRequest) {
	var params tradeIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	t, err := s.engine.GetTrade(params.ID)
	if err != nil {
		writeTradeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatTrade(t))
}

func (s *Server) handleTradeListBySeller(w http.ResponseWriter, req *RPCRequest) {
	var params tradeAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, s.engine.TradeIDsBySeller(addr))
}

func (s *Server) handleTradeListByBuyer(w http.ResponseWriter, req *RPCRequest) {
	var params tradeAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, s.engine.TradeIDsByBuyer(addr))
}

func (s *Server) handleTradePending(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, s.engine.PendingTradeIDs())
}

func (s *Server) handleTradeEscrowBalance(w http.ResponseWriter, req *RPCRequest) {
	var params tradeAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTradeInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, s.engine.EscrowedNativeBySeller(addr).String())
}

func (s *Server) handleTradeIsSweepNeeded(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, s.engine.IsSweepNeeded())
}

func (s *Server) handleTradeSweep(w http.ResponseWriter, req *RPCRequest) {
	swept, err := s.engine.CheckExpiredTrades()
	if err != nil {
		writeTradeError(w, req.ID, err)
		return
	}
	if swept > 0 {
		s.log.Info("expiry sweep completed", "swept", swept)
	}
	writeResult(w, req.ID, sweepResult{Swept: swept})
}
