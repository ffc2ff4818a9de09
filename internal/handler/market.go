package handler

import (
    "errors"   // errors.Is comparisons against ledger sentinels
    "net/http" // HTTP status codes
    "strconv"  // parsing path parameters

    "github.com/iliyamo/nft-marketplace/internal/ledger" // marketplace core
    "github.com/labstack/echo/v4"                        // Echo web framework
)

// MarketHandler exposes the ledger's mutating operations: minting,
// listing, buying and approvals.  All methods assume that JWT
// authentication and role validation have already been performed by
// middleware; the authenticated user is the operation's initiator.
// Atomicity is the ledger's concern — a handler never sees a
// half-applied operation.
type MarketHandler struct {
    Ledger *ledger.Ledger
}

// NewMarketHandler constructs a MarketHandler.  The ledger must be non-nil.
func NewMarketHandler(led *ledger.Ledger) *MarketHandler {
    if led == nil {
        panic("nil ledger passed to NewMarketHandler")
    }
    return &MarketHandler{Ledger: led}
}

// ----- DTOs -----

type mintReq struct {
    TokenURI string `json:"token_uri"`
}
type listReq struct {
    Price int64 `json:"price"`
}
type buyReq struct {
    Payment int64 `json:"payment"`
}
type approveReq struct {
    AgentID uint64 `json:"agent_id"`
}

// Mint handles POST /v1/nfts.  It issues a new asset held by the
// caller with the supplied descriptor.  The descriptor may be empty
// and is stored verbatim.  Returns 201 with the new asset id.
func (h *MarketHandler) Mint(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req mintReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    assetID, err := h.Ledger.Mint(c.Request().Context(), userID, req.TokenURI)
    if err != nil {
        return marketError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "asset_id":  assetID,
        "token_uri": req.TokenURI,
    })
}

// List handles POST /v1/nfts/:id/list.  It places the asset for sale
// at a fixed positive price and moves it into marketplace escrow.
// The caller must be the holder or the approved agent.
func (h *MarketHandler) List(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    assetID, err := parseAssetID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid asset id"})
    }
    var req listReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    // negative prices never reach the ledger; zero is rejected there
    // with the same error so the message stays in one place
    if req.Price < 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": ledger.ErrInvalidPrice.Error()})
    }
    if err := h.Ledger.List(c.Request().Context(), userID, assetID, uint64(req.Price)); err != nil {
        return marketError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "asset_id": assetID,
        "seller":   userID,
        "price":    req.Price,
    })
}

// Buy handles POST /v1/nfts/:id/buy.  The payment must equal the
// listed price exactly; the ledger settles 95% to the seller (floor
// division) and retains the remainder as the marketplace fee.
func (h *MarketHandler) Buy(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    assetID, err := parseAssetID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid asset id"})
    }
    var req buyReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.Payment < 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": ledger.ErrIncorrectPrice.Error()})
    }
    if err := h.Ledger.Buy(c.Request().Context(), userID, assetID, uint64(req.Payment)); err != nil {
        return marketError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "asset_id": assetID,
        "buyer":    userID,
    })
}

// Approve handles POST /v1/nfts/:id/approve.  The holder designates
// a single agent allowed to list the asset on their behalf.
func (h *MarketHandler) Approve(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    assetID, err := parseAssetID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid asset id"})
    }
    var req approveReq
    if err := c.Bind(&req); err != nil || req.AgentID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "agent_id is required"})
    }
    if err := h.Ledger.Approve(c.Request().Context(), userID, req.AgentID, assetID); err != nil {
        return marketError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// MyNFTs handles GET /v1/my-nfts.  It returns the assets the caller
// holds directly plus their active listings, so escrowed assets do
// not vanish from the seller's inventory.
func (h *MarketHandler) MyNFTs(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    held, escrowed, err := h.Ledger.Holdings(c.Request().Context(), userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load holdings"})
    }
    items := make([]echo.Map, 0, len(held)+len(escrowed))
    for _, a := range held {
        items = append(items, echo.Map{
            "asset_id":  a.ID,
            "token_uri": a.TokenURI,
            "listed":    false,
        })
    }
    for _, l := range escrowed {
        items = append(items, echo.Map{
            "asset_id": l.AssetID,
            "listed":   true,
            "price":    l.Price,
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// parseAssetID reads the :id path parameter as a positive uint64.
func parseAssetID(c echo.Context) (uint64, error) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return 0, errors.New("invalid asset id")
    }
    return id, nil
}

// marketError translates ledger sentinels into HTTP responses.  The
// error messages themselves travel to the client unchanged; anything
// unrecognized is an internal failure.
func marketError(c echo.Context, err error) error {
    switch {
    case errors.Is(err, ledger.ErrInvalidPrice), errors.Is(err, ledger.ErrIncorrectPrice):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    case errors.Is(err, ledger.ErrUnauthorized):
        return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
    case errors.Is(err, ledger.ErrNotListed), errors.Is(err, ledger.ErrUnknownAsset):
        return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
    case errors.Is(err, ledger.ErrInsufficientFunds):
        return c.JSON(http.StatusPaymentRequired, echo.Map{"error": err.Error()})
    case errors.Is(err, ledger.ErrAlreadyListed):
        return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
    default:
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
}
