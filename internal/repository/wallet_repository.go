package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/nft-marketplace/internal/ledger"
    "github.com/iliyamo/nft-marketplace/internal/model"
)

// WalletRepo moves currency between account wallets and the
// marketplace's single-row retained-fee counter.  Debits use a
// guarded UPDATE (balance >= amount in the WHERE clause), so an
// uncovered payment affects zero rows and nothing moves — the
// all-or-nothing guarantee then falls out of the surrounding
// transaction.
type WalletRepo struct {
    db *sql.DB
}

// NewWalletRepo returns a new WalletRepo bound to the given database.
func NewWalletRepo(db *sql.DB) *WalletRepo { return &WalletRepo{db: db} }

// Ensure creates a zero-balance wallet row for the user if none
// exists yet.  Called at registration so later debits and credits
// can assume the row is present.
func (r *WalletRepo) Ensure(ctx context.Context, userID uint64) error {
    _, err := r.db.ExecContext(ctx,
        `INSERT IGNORE INTO wallets (user_id, balance) VALUES (?, 0)`, userID)
    return err
}

// Get returns the wallet row for an account.  A missing row reads as
// a zero balance.
func (r *WalletRepo) Get(ctx context.Context, userID uint64) (model.Wallet, error) {
    var w model.Wallet
    err := r.db.QueryRowContext(ctx,
        `SELECT user_id, balance, updated_at FROM wallets WHERE user_id = ?`,
        userID).Scan(&w.UserID, &w.Balance, &w.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Wallet{UserID: userID}, nil
    }
    if err != nil {
        return model.Wallet{}, err
    }
    return w, nil
}

// BalanceTx returns the balance of an account inside a transaction.
func (r *WalletRepo) BalanceTx(ctx context.Context, tx *sql.Tx, account uint64) (uint64, error) {
    var bal uint64
    err := tx.QueryRowContext(ctx,
        `SELECT balance FROM wallets WHERE user_id = ?`, account).Scan(&bal)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, nil
    }
    if err != nil {
        return 0, err
    }
    return bal, nil
}

// debitTx subtracts amount from the account, failing with
// ErrInsufficientFunds when the balance cannot cover it.
func (r *WalletRepo) debitTx(ctx context.Context, tx *sql.Tx, account, amount uint64) error {
    res, err := tx.ExecContext(ctx,
        `UPDATE wallets SET balance = balance - ? WHERE user_id = ? AND balance >= ?`,
        amount, account, amount)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ledger.ErrInsufficientFunds
    }
    return nil
}

// CreditTx adds amount to the account, creating the wallet row on
// first use.
func (r *WalletRepo) CreditTx(ctx context.Context, tx *sql.Tx, account, amount uint64) error {
    _, err := tx.ExecContext(ctx,
        `INSERT INTO wallets (user_id, balance) VALUES (?, ?)
         ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance)`,
        account, amount)
    return err
}

// PayTx moves amount between two accounts.
func (r *WalletRepo) PayTx(ctx context.Context, tx *sql.Tx, from, to, amount uint64) error {
    if err := r.debitTx(ctx, tx, from, amount); err != nil {
        return err
    }
    return r.CreditTx(ctx, tx, to, amount)
}

// CollectFeeTx debits the payer and accrues the amount into the
// marketplace's retained-fee row.
func (r *WalletRepo) CollectFeeTx(ctx context.Context, tx *sql.Tx, from, amount uint64) error {
    if err := r.debitTx(ctx, tx, from, amount); err != nil {
        return err
    }
    _, err := tx.ExecContext(ctx,
        `INSERT INTO market_fees (id, balance) VALUES (1, ?)
         ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance)`,
        amount)
    return err
}

// WithdrawFeesTx moves amount from the retained-fee row into an
// account wallet.
func (r *WalletRepo) WithdrawFeesTx(ctx context.Context, tx *sql.Tx, to, amount uint64) error {
    res, err := tx.ExecContext(ctx,
        `UPDATE market_fees SET balance = balance - ? WHERE id = 1 AND balance >= ?`,
        amount, amount)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ledger.ErrInsufficientFunds
    }
    return r.CreditTx(ctx, tx, to, amount)
}

// RetainedFeesTx returns the marketplace's accumulated fee balance.
func (r *WalletRepo) RetainedFeesTx(ctx context.Context, tx *sql.Tx) (uint64, error) {
    var bal uint64
    err := tx.QueryRowContext(ctx,
        `SELECT balance FROM market_fees WHERE id = 1`).Scan(&bal)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, nil
    }
    if err != nil {
        return 0, err
    }
    return bal, nil
}
