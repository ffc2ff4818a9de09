package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/nft-marketplace/internal/ledger"
)

// The handler tests run the real ledger over the in-memory backend so
// they cover the full request path short of the database.

const (
	testMarketAccount uint64 = 1
	alice             uint64 = 10
	bob               uint64 = 11
)

type testEnv struct {
	e      *echo.Echo
	led    *ledger.Ledger
	market *MarketHandler
	wallet *WalletHandler
	public *PublicHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	led := ledger.New(ledger.NewMemoryBackend(), testMarketAccount, nil)
	return &testEnv{
		e:      echo.New(),
		led:    led,
		market: NewMarketHandler(led),
		wallet: NewWalletHandler(led),
		public: NewPublicHandler(led),
	}
}

// call builds an echo context for a JSON request.  userID 0 means an
// unauthenticated request; assetID 0 means no :id path parameter.
func (env *testEnv) call(method, target, body string, userID, assetID uint64) (echo.Context, *httptest.ResponseRecorder) {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	if userID != 0 {
		c.Set("user_id", userID)
	}
	if assetID != 0 {
		c.SetParamNames("id")
		c.SetParamValues(strconv.FormatUint(assetID, 10))
	}
	return c, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestMintHandlerCreatesAsset(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.call(http.MethodPost, "/v1/nfts", `{"token_uri":"ipfs://cat"}`, alice, 0)
	require.NoError(t, env.market.Mint(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	require.EqualValues(t, 1, body["asset_id"])
	require.Equal(t, "ipfs://cat", body["token_uri"])

	holder, err := env.led.Asset(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, alice, holder.Asset.HolderID)
}

func TestMintHandlerRejectsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.call(http.MethodPost, "/v1/nfts", `{"token_uri":"x"}`, 0, 0)
	require.NoError(t, env.market.Mint(c))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListHandlerRejectsNonPositivePrice(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.led.Mint(context.Background(), alice, "ipfs://cat")
	require.NoError(t, err)

	for _, body := range []string{`{"price":0}`, `{"price":-5}`} {
		c, rec := env.call(http.MethodPost, "/v1/nfts/1/list", body, alice, id)
		require.NoError(t, env.market.List(c))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "price must be greater than 0", decodeBody(t, rec)["error"])
	}
}

func TestListHandlerRejectsNonHolder(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.led.Mint(context.Background(), alice, "ipfs://cat")
	require.NoError(t, err)

	c, rec := env.call(http.MethodPost, "/v1/nfts/1/list", `{"price":100}`, bob, id)
	require.NoError(t, env.market.List(c))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "caller is not token owner nor approved", decodeBody(t, rec)["error"])
}

func TestBuyHandlerUnlistedIs404(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.led.Mint(context.Background(), alice, "ipfs://cat")
	require.NoError(t, err)

	c, rec := env.call(http.MethodPost, "/v1/nfts/1/buy", `{"payment":100}`, bob, id)
	require.NoError(t, env.market.Buy(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "nft not listed for sale", decodeBody(t, rec)["error"])
}

func TestListBuyFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.led.Mint(ctx, alice, "ipfs://cat")
	require.NoError(t, err)

	c, rec := env.call(http.MethodPost, "/v1/nfts/1/list", `{"price":123}`, alice, id)
	require.NoError(t, env.market.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// deposit through the wallet handler, then underpay and overpay
	c, rec = env.call(http.MethodPost, "/v1/wallet/deposit", `{"amount":200}`, bob, 0)
	require.NoError(t, env.wallet.Deposit(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 200, decodeBody(t, rec)["balance"])

	for _, body := range []string{`{"payment":122}`, `{"payment":124}`} {
		c, rec = env.call(http.MethodPost, "/v1/nfts/1/buy", body, bob, id)
		require.NoError(t, env.market.Buy(c))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "incorrect price", decodeBody(t, rec)["error"])
	}

	c, rec = env.call(http.MethodPost, "/v1/nfts/1/buy", `{"payment":123}`, bob, id)
	require.NoError(t, env.market.Buy(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// seller got 95% floored, fee stayed with the market
	sellerBal, err := env.led.Balance(ctx, alice)
	require.NoError(t, err)
	require.EqualValues(t, 116, sellerBal)
	fees, err := env.led.RetainedFees(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 7, fees)

	det, err := env.led.Asset(ctx, id)
	require.NoError(t, err)
	require.Equal(t, bob, det.Asset.HolderID)
	require.Nil(t, det.Listing)
}

func TestBuyHandlerInsufficientFundsIs402(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.led.Mint(ctx, alice, "ipfs://cat")
	require.NoError(t, err)
	require.NoError(t, env.led.List(ctx, alice, id, 100))

	c, rec := env.call(http.MethodPost, "/v1/nfts/1/buy", `{"payment":100}`, bob, id)
	require.NoError(t, env.market.Buy(c))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Equal(t, "insufficient funds", decodeBody(t, rec)["error"])
}

func TestApproveThenListByAgent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.led.Mint(ctx, alice, "ipfs://cat")
	require.NoError(t, err)

	c, rec := env.call(http.MethodPost, "/v1/nfts/1/approve", `{"agent_id":11}`, alice, id)
	require.NoError(t, env.market.Approve(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	c, rec = env.call(http.MethodPost, "/v1/nfts/1/list", `{"price":50}`, bob, id)
	require.NoError(t, env.market.List(c))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMyNFTsShowsHeldAndEscrowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	held, err := env.led.Mint(ctx, alice, "ipfs://held")
	require.NoError(t, err)
	listed, err := env.led.Mint(ctx, alice, "ipfs://listed")
	require.NoError(t, err)
	require.NoError(t, env.led.List(ctx, alice, listed, 40))

	c, rec := env.call(http.MethodGet, "/v1/my-nfts", "", alice, 0)
	require.NoError(t, env.market.MyNFTs(c))
	require.Equal(t, http.StatusOK, rec.Code)

	items := decodeBody(t, rec)["items"].([]any)
	require.Len(t, items, 2)
	byID := map[float64]map[string]any{}
	for _, it := range items {
		m := it.(map[string]any)
		byID[m["asset_id"].(float64)] = m
	}
	require.Equal(t, false, byID[float64(held)]["listed"])
	require.Equal(t, true, byID[float64(listed)]["listed"])
	require.EqualValues(t, 40, byID[float64(listed)]["price"])
}

func TestGetListingsReturnsEmptyArray(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.call(http.MethodGet, "/v1/listings", "", 0, 0)
	require.NoError(t, env.public.GetListings(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestGetNFTShowsListingTerms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.led.Mint(ctx, alice, "ipfs://cat")
	require.NoError(t, err)
	require.NoError(t, env.led.List(ctx, alice, id, 77))

	c, rec := env.call(http.MethodGet, "/v1/nfts/1", "", 0, id)
	require.NoError(t, env.public.GetNFT(c))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["listed"])
	require.EqualValues(t, 77, body["price"])
	require.EqualValues(t, alice, body["seller_id"])
	// in escrow the holder is the marketplace account
	require.EqualValues(t, testMarketAccount, body["holder_id"])
}

func TestGetNFTUnknownIs404(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.call(http.MethodGet, "/v1/nfts/99", "", 0, 99)
	require.NoError(t, env.public.GetNFT(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "unknown asset", decodeBody(t, rec)["error"])
}

func TestWithdrawFeesOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.led.Mint(ctx, alice, "ipfs://cat")
	require.NoError(t, err)
	require.NoError(t, env.led.List(ctx, alice, id, 100))
	require.NoError(t, env.led.Deposit(ctx, bob, 100))
	require.NoError(t, env.led.Buy(ctx, bob, id, 100))

	const operator uint64 = 99

	c, rec := env.call(http.MethodGet, "/v1/market/fees", "", operator, 0)
	require.NoError(t, env.wallet.Fees(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 5, decodeBody(t, rec)["retained_fees"])

	c, rec = env.call(http.MethodPost, "/v1/market/withdraw", `{"amount":5}`, operator, 0)
	require.NoError(t, env.wallet.WithdrawFees(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 5, decodeBody(t, rec)["balance"])

	// the fee pot cannot go negative
	c, rec = env.call(http.MethodPost, "/v1/market/withdraw", `{"amount":1}`, operator, 0)
	require.NoError(t, env.wallet.WithdrawFees(c))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}
