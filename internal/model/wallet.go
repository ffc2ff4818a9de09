package model

import "time"

// Wallet tracks the currency balance of a single account.  Balances
// only move through the value-transfer layer: deposits, sale
// settlements and fee withdrawals.  The marketplace's retained fees
// live in a separate single-row counter, not in a wallet.
//
// Fields:
//  UserID    – owning account (wallets.user_id, PK).
//  Balance   – current balance in currency units (wallets.balance).
//  UpdatedAt – timestamp of the last balance change
//              (wallets.updated_at).
type Wallet struct {
    UserID    uint64    // wallets.user_id
    Balance   uint64    // wallets.balance
    UpdatedAt time.Time // wallets.updated_at
}
