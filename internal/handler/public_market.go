package handler

import (
    "net/http" // HTTP status codes

    "github.com/iliyamo/nft-marketplace/internal/ledger" // marketplace core
    "github.com/labstack/echo/v4"                        // Echo web framework
)

// PublicHandler exposes unauthenticated browse endpoints so guests
// can inspect the marketplace before registering.  These routes sit
// behind the Redis response cache; responses must therefore be pure
// functions of the ledger state.
type PublicHandler struct {
    Ledger *ledger.Ledger
}

// NewPublicHandler constructs a PublicHandler.  The ledger must be non-nil.
func NewPublicHandler(led *ledger.Ledger) *PublicHandler {
    if led == nil {
        panic("nil ledger passed to NewPublicHandler")
    }
    return &PublicHandler{Ledger: led}
}

// GetListings handles GET /v1/listings.  It returns every active
// listing.  When nothing is for sale the items array is empty, not
// null.
func (h *PublicHandler) GetListings(c echo.Context) error {
    listings, err := h.Ledger.Listings(c.Request().Context())
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load listings"})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": listings})
}

// GetNFT handles GET /v1/nfts/:id.  It returns the asset's holder,
// descriptor and, when listed, the listing terms.  While in escrow
// the reported holder is the marketplace account.
func (h *PublicHandler) GetNFT(c echo.Context) error {
    assetID, err := parseAssetID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid asset id"})
    }
    det, err := h.Ledger.Asset(c.Request().Context(), assetID)
    if err != nil {
        return marketError(c, err)
    }
    resp := echo.Map{
        "asset_id":  det.Asset.ID,
        "holder_id": det.Asset.HolderID,
        "token_uri": det.Asset.TokenURI,
        "listed":    det.Listing != nil,
    }
    if det.Listing != nil {
        resp["price"] = det.Listing.Price
        resp["seller_id"] = det.Listing.SellerID
    }
    return c.JSON(http.StatusOK, resp)
}
