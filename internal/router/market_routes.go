package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nft-marketplace/internal/handler"
	"github.com/iliyamo/nft-marketplace/internal/middleware"
)

// RegisterMarket registers trading endpoints under /v1.  All routes require
// a valid JWT; both TRADER and OPERATOR roles may mint, list, buy and
// manage their wallet.
func RegisterMarket(e *echo.Echo, m *handler.MarketHandler, w *handler.WalletHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("TRADER", "OPERATOR"),
	)

	// ---- NFTs ----
	g.POST("/nfts", m.Mint)
	g.POST("/nfts/:id/list", m.List)
	g.POST("/nfts/:id/buy", m.Buy)
	g.POST("/nfts/:id/approve", m.Approve)
	// Note: GET /v1/nfts/:id and GET /v1/listings are registered on the
	// public router so that guests can browse the market.
	g.GET("/my-nfts", m.MyNFTs)

	// ---- Wallet ----
	g.GET("/wallet", w.Balance)
	g.POST("/wallet/deposit", w.Deposit)
}

// RegisterOperator registers OPERATOR-scoped endpoints under /v1.
// All routes require a valid JWT and OPERATOR role.
func RegisterOperator(e *echo.Echo, w *handler.WalletHandler, jwtSecret string) {
	// Attach middlewares at group construction time for clarity.
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("OPERATOR"),
	)

	// ---- Accrued marketplace fees ----
	g.GET("/market/fees", w.Fees)
	g.POST("/market/withdraw", w.WithdrawFees)
}
