package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"tokenmart/native/market"
	"tokenmart/native/nft"
)

type errorResponse struct {
	Error string  `json:"error"`
	Code  *uint16 `json:"code,omitempty"`
}

// httpStatus maps a domain error to the response status. Marketplace codes
// keep their numeric identity in the body; the status only classifies them
// for HTTP clients.
func httpStatus(err error) int {
	if code, ok := market.ErrorCode(err); ok {
		switch code {
		case market.ErrInsufficientBalance.Code, market.ErrInsufficientAllowance.Code:
			return http.StatusPaymentRequired
		case market.ErrPermissionDenied.Code, market.ErrNotApproved.Code,
			market.ErrNotOwner.Code, market.ErrNotOrderMaker.Code:
			return http.StatusForbidden
		case market.ErrNotValidAmount.Code, market.ErrInvalidContext.Code,
			market.ErrOverflow.Code:
			return http.StatusBadRequest
		case market.ErrBidExist.Code, market.ErrOrderExist.Code,
			market.ErrKeyAlreadyExists.Code:
			return http.StatusConflict
		case market.ErrOrderNotExist.Code, market.ErrOfferNotExist.Code:
			return http.StatusNotFound
		default:
			return http.StatusInternalServerError
		}
	}
	switch {
	case errors.Is(err, nft.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, nft.ErrTokenExists):
		return http.StatusConflict
	case errors.Is(err, nft.ErrNotTokenOwner):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) int {
	status := httpStatus(err)
	body := errorResponse{Error: err.Error()}
	if code, ok := market.ErrorCode(err); ok {
		body.Code = &code
	}
	writeJSON(w, status, body)
	return status
}

func writeBadRequest(w http.ResponseWriter, err error) int {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
