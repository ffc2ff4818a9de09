package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nft-marketplace/internal/handler"
)

// RegisterPublic registers unauthenticated browse endpoints on the provided
// Echo instance.  The provided PublicHandler returns sanitized market data;
// no JWT or role middleware is applied so guests can window-shop.  The
// optional cache middleware (backed by Redis) is applied to these GET
// endpoints only, since they are the hot read path.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	mws := []echo.MiddlewareFunc{}
	if cache != nil {
		mws = append(mws, cache)
	}
	// Expose all active listings
	e.GET("/v1/listings", p.GetListings, mws...)
	// NFT details by asset id, including listing status and price when listed
	e.GET("/v1/nfts/:id", p.GetNFT, mws...)
}
