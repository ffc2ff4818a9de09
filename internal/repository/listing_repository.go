package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/iliyamo/nft-marketplace/internal/ledger"
    "github.com/iliyamo/nft-marketplace/internal/model"
)

// ListingRepo persists the asset -> listing mapping.  asset_id is the
// primary key, so the at-most-one-listing-per-asset invariant is
// enforced by the database itself; a duplicate insert surfaces as
// ledger.ErrAlreadyListed.  Rows are only ever inserted and deleted,
// never updated: a price change means delist and relist.
type ListingRepo struct {
    db *sql.DB
}

// NewListingRepo returns a new ListingRepo bound to the given database.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

// GetTx returns the active listing for the asset.
func (r *ListingRepo) GetTx(ctx context.Context, tx *sql.Tx, assetID uint64) (model.Listing, error) {
    var l model.Listing
    err := tx.QueryRowContext(ctx,
        `SELECT asset_id, seller_id, price, created_at FROM listings WHERE asset_id = ?`,
        assetID).Scan(&l.AssetID, &l.SellerID, &l.Price, &l.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Listing{}, ledger.ErrNotListed
    }
    if err != nil {
        return model.Listing{}, err
    }
    return l, nil
}

// InsertTx creates the listing row.
func (r *ListingRepo) InsertTx(ctx context.Context, tx *sql.Tx, l model.Listing) error {
    _, err := tx.ExecContext(ctx,
        `INSERT INTO listings (asset_id, seller_id, price) VALUES (?, ?, ?)`,
        l.AssetID, l.SellerID, l.Price)
    if err != nil {
        // 1062 = duplicate primary key
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return ledger.ErrAlreadyListed
        }
        return err
    }
    return nil
}

// DeleteTx removes the listing row, if present.
func (r *ListingRepo) DeleteTx(ctx context.Context, tx *sql.Tx, assetID uint64) error {
    _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE asset_id = ?`, assetID)
    return err
}

// ActiveTx returns every active listing ordered by asset identifier.
func (r *ListingRepo) ActiveTx(ctx context.Context, tx *sql.Tx) ([]model.Listing, error) {
    rows, err := tx.QueryContext(ctx,
        `SELECT asset_id, seller_id, price, created_at FROM listings ORDER BY asset_id`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Listing, 0)
    for rows.Next() {
        var l model.Listing
        if err := rows.Scan(&l.AssetID, &l.SellerID, &l.Price, &l.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, l)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}
