package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tokenmart/core"
	"tokenmart/native/market"
	"tokenmart/observability"
)

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) writeInvocation(w http.ResponseWriter, result *core.Result) int {
	body := invocationResult{Events: newEventResults(result.Events)}
	if len(result.Record) > 0 {
		body.Record = "0x" + hex.EncodeToString(result.Record)
	}
	for _, evt := range body.Events {
		observability.MarketMetrics().RecordEvent(evt.Type)
	}
	writeJSON(w, http.StatusOK, body)
	return http.StatusOK
}

func pathToken(r *http.Request) ([20]byte, *big.Int, error) {
	collection, err := parseAddress(chi.URLParam(r, "collection"))
	if err != nil {
		return [20]byte{}, nil, fmt.Errorf("collection: %w", err)
	}
	tokenID, err := parseTokenID(chi.URLParam(r, "tokenId"))
	if err != nil {
		return [20]byte{}, nil, err
	}
	return collection, tokenID, nil
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) int {
	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("collection: %w", err))
	}
	tokenID, err := parseTokenID(req.TokenID)
	if err != nil {
		return writeBadRequest(w, err)
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("price: %w", err))
	}
	result, err := s.node.CreateOrder(caller, collection, tokenID, price)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) int {
	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("collection: %w", err))
	}
	tokenID, err := parseTokenID(req.TokenID)
	if err != nil {
		return writeBadRequest(w, err)
	}
	result, err := s.node.CancelOrder(caller, collection, tokenID)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleBuyOrder(w http.ResponseWriter, r *http.Request) int {
	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("collection: %w", err))
	}
	tokenID, err := parseTokenID(req.TokenID)
	if err != nil {
		return writeBadRequest(w, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("amount: %w", err))
	}
	result, err := s.node.BuyOrder(caller, collection, tokenID, amount)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleOrdersIndex(w http.ResponseWriter, r *http.Request) int {
	keys, err := s.node.OnOrders()
	if err != nil {
		return writeError(w, err)
	}
	out := make([]orderKeyResult, 0, len(keys))
	for _, key := range keys {
		out = append(out, orderKeyResult{
			Collection: encodeAddress(key.Collection),
			TokenID:    key.TokenID.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
	return http.StatusOK
}

func (s *Server) handleOrderGet(w http.ResponseWriter, r *http.Request) int {
	collection, tokenID, err := pathToken(r)
	if err != nil {
		return writeBadRequest(w, err)
	}
	order, ok, err := s.node.Order(collection, tokenID)
	if err != nil {
		return writeError(w, err)
	}
	if !ok {
		return writeError(w, market.ErrOrderNotExist)
	}
	writeJSON(w, http.StatusOK, newOrderResult(order))
	return http.StatusOK
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) int {
	var req offerRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("collection: %w", err))
	}
	tokenID, err := parseTokenID(req.TokenID)
	if err != nil {
		return writeBadRequest(w, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("amount: %w", err))
	}
	result, err := s.node.CreateOffer(caller, collection, tokenID, amount)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleCancelOffer(w http.ResponseWriter, r *http.Request) int {
	var req offerRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("collection: %w", err))
	}
	tokenID, err := parseTokenID(req.TokenID)
	if err != nil {
		return writeBadRequest(w, err)
	}
	result, err := s.node.CancelOffer(caller, collection, tokenID)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) int {
	var req offerRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("collection: %w", err))
	}
	tokenID, err := parseTokenID(req.TokenID)
	if err != nil {
		return writeBadRequest(w, err)
	}
	if req.BidPos == nil {
		return writeBadRequest(w, fmt.Errorf("bidPos is required"))
	}
	result, err := s.node.AcceptOffer(caller, collection, tokenID, *req.BidPos)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleOffersIndex(w http.ResponseWriter, r *http.Request) int {
	keys, err := s.node.OnOffers()
	if err != nil {
		return writeError(w, err)
	}
	out := make([]offerKeyResult, 0, len(keys))
	for _, key := range keys {
		out = append(out, offerKeyResult{
			Collection: encodeAddress(key.Collection),
			TokenID:    key.TokenID.String(),
			Bidder:     encodeAddress(key.Bidder),
		})
	}
	writeJSON(w, http.StatusOK, out)
	return http.StatusOK
}

func (s *Server) handleOfferGet(w http.ResponseWriter, r *http.Request) int {
	collection, tokenID, err := pathToken(r)
	if err != nil {
		return writeBadRequest(w, err)
	}
	offer, ok, err := s.node.Offer(collection, tokenID)
	if err != nil {
		return writeError(w, err)
	}
	if !ok {
		return writeError(w, market.ErrOfferNotExist)
	}
	writeJSON(w, http.StatusOK, newOfferResult(offer))
	return http.StatusOK
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) int {
	var req auctionRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("collection: %w", err))
	}
	tokenID, err := parseTokenID(req.TokenID)
	if err != nil {
		return writeBadRequest(w, err)
	}
	var auctionType market.AuctionType
	switch strings.ToLower(strings.TrimSpace(req.AuctionType)) {
	case "english":
		auctionType = market.AuctionEnglish
	case "dutch":
		auctionType = market.AuctionDutch
	default:
		return writeBadRequest(w, fmt.Errorf("auctionType: unknown value %q", req.AuctionType))
	}
	var reserve *big.Int
	if strings.TrimSpace(req.ReservePrice) != "" {
		reserve, err = parseAmount(req.ReservePrice)
		if err != nil {
			return writeBadRequest(w, fmt.Errorf("reservePrice: %w", err))
		}
	}
	result, err := s.node.CreateAuction(caller, collection, tokenID, auctionType, reserve, req.StartTime, req.EndTime)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) int {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("collection: %w", err))
	}
	tokenID, err := parseTokenID(req.TokenID)
	if err != nil {
		return writeBadRequest(w, err)
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("owner: %w", err))
	}
	result, err := s.node.MintToken(collection, tokenID, owner)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleApproveToken(w http.ResponseWriter, r *http.Request) int {
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	collection, err := parseAddress(req.Collection)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("collection: %w", err))
	}
	tokenID, err := parseTokenID(req.TokenID)
	if err != nil {
		return writeBadRequest(w, err)
	}
	// An omitted spender approves this marketplace, the common case ahead
	// of a listing.
	spender := s.node.SelfAddress()
	if strings.TrimSpace(req.Spender) != "" {
		spender, err = parseAddress(req.Spender)
		if err != nil {
			return writeBadRequest(w, fmt.Errorf("spender: %w", err))
		}
	}
	result, err := s.node.ApproveToken(caller, collection, tokenID, spender)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleTokenOwner(w http.ResponseWriter, r *http.Request) int {
	collection, tokenID, err := pathToken(r)
	if err != nil {
		return writeBadRequest(w, err)
	}
	owner, ok, err := s.node.TokenOwner(collection, tokenID)
	if err != nil {
		return writeError(w, err)
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown token"})
		return http.StatusNotFound
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": encodeAddress(owner)})
	return http.StatusOK
}

func (s *Server) handleAccountGet(w http.ResponseWriter, r *http.Request) int {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return writeBadRequest(w, err)
	}
	acc, err := s.node.Account(addr)
	if err != nil {
		return writeError(w, err)
	}
	writeJSON(w, http.StatusOK, newAccountResult(addr, acc))
	return http.StatusOK
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) int {
	var req fundsRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("amount: %w", err))
	}
	result, err := s.node.Deposit(caller, amount)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) int {
	var req fundsRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("recipient: %w", err))
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("amount: %w", err))
	}
	result, err := s.node.Credit(caller, recipient, amount)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleFeeGet(w http.ResponseWriter, r *http.Request) int {
	fee, err := s.node.FeeRate()
	if err != nil {
		return writeError(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"fee": fee.String()})
	return http.StatusOK
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) int {
	var req feeRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	fee, err := parseAmount(req.Fee)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("fee: %w", err))
	}
	result, err := s.node.SetFee(caller, fee)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleSetTreasury(w http.ResponseWriter, r *http.Request) int {
	var req walletRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	wallet, err := parseAddress(req.Wallet)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("wallet: %w", err))
	}
	result, err := s.node.SetTreasuryWallet(caller, wallet)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) int {
	var req ownerRequest
	if err := decodeBody(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := req.resolve()
	if err != nil {
		return writeBadRequest(w, err)
	}
	newOwner, err := parseAddress(req.NewOwner)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("newOwner: %w", err))
	}
	result, err := s.node.TransferOwnership(caller, newOwner)
	if err != nil {
		return writeError(w, err)
	}
	return s.writeInvocation(w, result)
}

func (s *Server) handlePurse(w http.ResponseWriter, r *http.Request) int {
	purse, err := s.node.Purse()
	if err != nil {
		return writeError(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"purse": encodeAddress(purse)})
	return http.StatusOK
}

func (s *Server) handleAccessHandle(w http.ResponseWriter, r *http.Request) int {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return writeBadRequest(w, err)
	}
	handle, err := s.node.AccessHandle(market.DirectAccount(addr))
	if err != nil {
		return writeError(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"handle": "0x" + hex.EncodeToString(handle[:])})
	return http.StatusOK
}
