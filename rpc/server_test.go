package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tokenmart/config"
	"tokenmart/core"
	"tokenmart/native/market"
	"tokenmart/storage"
)

const (
	deployerHex = "0xdddddddddddddddddddddddddddddddddddddddd"
	sellerHex   = "0x2222222222222222222222222222222222222222"
	buyerHex    = "0x3333333333333333333333333333333333333333"
	collectHex  = "0xc0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := storage.NewMemDB()
	deployer, err := config.DecodeAddress(deployerHex)
	require.NoError(t, err)
	self, err := config.DecodeAddress("0x0101010101010101010101010101010101010101")
	require.NoError(t, err)
	node := core.NewNode(db, self, config.PolicyOwner, nil)
	_, err = node.Install(market.InstallConfig{Deployer: deployer})
	require.NoError(t, err)
	server := httptest.NewServer(NewServer(node, nil).Router())
	t.Cleanup(server.Close)
	return server
}

func post(t *testing.T, server *httptest.Server, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func get(t *testing.T, server *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFullPurchaseFlow(t *testing.T) {
	server := newTestServer(t)

	resp, _ := post(t, server, "/v1/tokens", map[string]any{
		"collection": collectHex, "tokenId": "7", "owner": sellerHex,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = post(t, server, "/v1/tokens/approve", map[string]any{
		"caller": sellerHex, "collection": collectHex, "tokenId": "7",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := post(t, server, "/v1/orders", map[string]any{
		"caller": sellerHex, "collection": collectHex, "tokenId": "7", "price": "1000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events, ok := body["events"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, events)

	// Fund the buyer, move the funds into the purse, then settle.
	resp, _ = post(t, server, "/v1/accounts/credit", map[string]any{
		"caller": deployerHex, "recipient": buyerHex, "amount": "1000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, server, "/v1/accounts/deposit", map[string]any{
		"caller": buyerHex, "amount": "1000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, server, "/v1/orders/buy", map[string]any{
		"caller": buyerHex, "collection": collectHex, "tokenId": "7", "amount": "1000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ownerBody map[string]string
	resp = get(t, server, "/v1/tokens/"+collectHex+"/7/owner", &ownerBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, buyerHex, ownerBody["owner"])

	// Default fee is 25/1000.
	var sellerAcc accountResult
	resp = get(t, server, "/v1/accounts/"+sellerHex, &sellerAcc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "975", sellerAcc.Balance)
	var treasuryAcc accountResult
	get(t, server, "/v1/accounts/"+deployerHex, &treasuryAcc)
	require.Equal(t, "25", treasuryAcc.Balance)

	var keys []orderKeyResult
	get(t, server, "/v1/orders", &keys)
	require.Empty(t, keys)
}

func TestBuyUnknownOrderSurfacesDomainCode(t *testing.T) {
	server := newTestServer(t)
	resp, body := post(t, server, "/v1/orders/buy", map[string]any{
		"caller": buyerHex, "collection": collectHex, "tokenId": "9", "amount": "10",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, float64(48), body["code"])
}

func TestCreateOrderValidation(t *testing.T) {
	server := newTestServer(t)
	cases := []map[string]any{
		{"caller": "0x1234", "collection": collectHex, "tokenId": "1", "price": "1"},
		{"caller": sellerHex, "collection": "nothex", "tokenId": "1", "price": "1"},
		{"caller": sellerHex, "collection": collectHex, "tokenId": "-1", "price": "1"},
		{"caller": sellerHex, "collection": collectHex, "tokenId": "1", "price": "ten"},
		{"caller": sellerHex, "callerKind": "oracle", "collection": collectHex, "tokenId": "1", "price": "1"},
	}
	for i, tc := range cases {
		resp, _ := post(t, server, "/v1/orders", tc)
		require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "case %d", i)
	}
}

func TestContractCallerRejected(t *testing.T) {
	server := newTestServer(t)
	resp, body := post(t, server, "/v1/orders", map[string]any{
		"caller": sellerHex, "callerKind": "contract",
		"collection": collectHex, "tokenId": "1", "price": "1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, float64(90), body["code"])

	// The funding helpers hold the same line as the marketplace operations.
	resp, body = post(t, server, "/v1/accounts/deposit", map[string]any{
		"caller": sellerHex, "callerKind": "contract", "amount": "100",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, float64(90), body["code"])

	resp, body = post(t, server, "/v1/accounts/credit", map[string]any{
		"caller": deployerHex, "callerKind": "contract",
		"recipient": sellerHex, "amount": "100",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, float64(90), body["code"])
}

func TestAdminEndpointsGated(t *testing.T) {
	server := newTestServer(t)

	resp, body := post(t, server, "/v1/admin/fee", map[string]any{
		"caller": sellerHex, "fee": "50",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, float64(41), body["code"])

	resp, _ = post(t, server, "/v1/admin/fee", map[string]any{
		"caller": deployerHex, "fee": "50",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var feeBody map[string]string
	get(t, server, "/v1/admin/fee", &feeBody)
	require.Equal(t, "50", feeBody["fee"])
}

func TestOfferLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t)

	resp, _ := post(t, server, "/v1/tokens", map[string]any{
		"collection": collectHex, "tokenId": "7", "owner": sellerHex,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = post(t, server, "/v1/accounts/credit", map[string]any{
		"caller": deployerHex, "recipient": buyerHex, "amount": "500",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, server, "/v1/accounts/deposit", map[string]any{
		"caller": buyerHex, "amount": "500",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, server, "/v1/offers", map[string]any{
		"caller": buyerHex, "collection": collectHex, "tokenId": "7", "amount": "500",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var offer offerResult
	resp = get(t, server, "/v1/offers/"+collectHex+"/7", &offer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, offer.Bids, 1)
	require.Equal(t, "500", offer.Bids[0].Price)

	bidPos := 0
	resp, _ = post(t, server, "/v1/offers/accept", map[string]any{
		"caller": sellerHex, "collection": collectHex, "tokenId": "7", "bidPos": bidPos,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ownerBody map[string]string
	get(t, server, fmt.Sprintf("/v1/tokens/%s/7/owner", collectHex), &ownerBody)
	require.Equal(t, buyerHex, ownerBody["owner"])
}

func TestPurseAndAccessHandle(t *testing.T) {
	server := newTestServer(t)

	var purseBody map[string]string
	resp := get(t, server, "/v1/purse", &purseBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, purseBody["purse"])

	var handleBody map[string]string
	resp = get(t, server, "/v1/access-handle/"+deployerHex, &handleBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, handleBody["handle"])

	var errBody map[string]any
	resp = get(t, server, "/v1/access-handle/"+buyerHex, &errBody)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, float64(90), errBody["code"])
}

func TestFailedBuyLeavesListingIntact(t *testing.T) {
	server := newTestServer(t)

	post(t, server, "/v1/tokens", map[string]any{
		"collection": collectHex, "tokenId": "7", "owner": sellerHex,
	})
	post(t, server, "/v1/tokens/approve", map[string]any{
		"caller": sellerHex, "collection": collectHex, "tokenId": "7",
	})
	resp, _ := post(t, server, "/v1/orders", map[string]any{
		"caller": sellerHex, "collection": collectHex, "tokenId": "7", "price": "1000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// No deposit happened, so the purchase is a direct call and fails.
	resp, body := post(t, server, "/v1/orders/buy", map[string]any{
		"caller": buyerHex, "collection": collectHex, "tokenId": "7", "amount": "1000",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, float64(41), body["code"])

	var order orderResult
	resp = get(t, server, "/v1/orders/"+collectHex+"/7", &order)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, order.Active)
}
