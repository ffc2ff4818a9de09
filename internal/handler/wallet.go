package handler

import (
    "net/http" // HTTP status codes

    "github.com/iliyamo/nft-marketplace/internal/ledger" // marketplace core
    "github.com/labstack/echo/v4"                        // Echo web framework
)

// WalletHandler exposes account balances, the deposit faucet and the
// operator's retained-fee endpoints.  Deposits stand in for the
// external value substrate that moves money into the marketplace;
// there is no payment provider behind them.
type WalletHandler struct {
    Ledger *ledger.Ledger
}

// NewWalletHandler constructs a WalletHandler.  The ledger must be non-nil.
func NewWalletHandler(led *ledger.Ledger) *WalletHandler {
    if led == nil {
        panic("nil ledger passed to NewWalletHandler")
    }
    return &WalletHandler{Ledger: led}
}

type amountReq struct {
    Amount int64 `json:"amount"`
}

// Balance handles GET /v1/wallet.  It returns the caller's balance.
func (h *WalletHandler) Balance(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bal, err := h.Ledger.Balance(c.Request().Context(), userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load balance"})
    }
    return c.JSON(http.StatusOK, echo.Map{"balance": bal})
}

// Deposit handles POST /v1/wallet/deposit.  It credits the caller's
// wallet with the requested amount and returns the new balance.
func (h *WalletHandler) Deposit(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req amountReq
    if err := c.Bind(&req); err != nil || req.Amount <= 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be greater than 0"})
    }
    ctx := c.Request().Context()
    if err := h.Ledger.Deposit(ctx, userID, uint64(req.Amount)); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deposit failed"})
    }
    bal, err := h.Ledger.Balance(ctx, userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load balance"})
    }
    return c.JSON(http.StatusOK, echo.Map{"balance": bal})
}

// Fees handles GET /v1/market/fees.  Operator only: returns the
// marketplace's retained-fee balance.
func (h *WalletHandler) Fees(c echo.Context) error {
    fees, err := h.Ledger.RetainedFees(c.Request().Context())
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load fees"})
    }
    return c.JSON(http.StatusOK, echo.Map{"retained_fees": fees})
}

// WithdrawFees handles POST /v1/market/withdraw.  Operator only:
// moves retained fees into the operator's own wallet.
func (h *WalletHandler) WithdrawFees(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req amountReq
    if err := c.Bind(&req); err != nil || req.Amount <= 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be greater than 0"})
    }
    if err := h.Ledger.WithdrawFees(c.Request().Context(), userID, uint64(req.Amount)); err != nil {
        return marketError(c, err)
    }
    bal, err := h.Ledger.Balance(c.Request().Context(), userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load balance"})
    }
    return c.JSON(http.StatusOK, echo.Map{"balance": bal})
}
