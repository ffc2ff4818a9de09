package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/nft-marketplace/internal/ledger"
    "github.com/iliyamo/nft-marketplace/internal/model"
)

// AssetRepo persists assets and their single-agent approvals.  It is
// the MySQL side of the asset registry: identifiers come from the
// assets table's AUTO_INCREMENT and are therefore unique and never
// reused, custody is the holder_id column, and transfer authorization
// follows the holder-or-approved-agent rule.  All mutating methods
// are Tx-scoped; the caller owns commit and rollback.
type AssetRepo struct {
    db *sql.DB
}

// NewAssetRepo returns a new AssetRepo bound to the given database.
func NewAssetRepo(db *sql.DB) *AssetRepo { return &AssetRepo{db: db} }

// IssueTx inserts a new asset row held by holder and returns the
// generated identifier.
func (r *AssetRepo) IssueTx(ctx context.Context, tx *sql.Tx, holder uint64, tokenURI string) (uint64, error) {
    res, err := tx.ExecContext(ctx,
        `INSERT INTO assets (holder_id, token_uri) VALUES (?, ?)`,
        holder, tokenURI)
    if err != nil {
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    return uint64(id), nil
}

// HolderOfTx returns the current holder of the asset.
func (r *AssetRepo) HolderOfTx(ctx context.Context, tx *sql.Tx, assetID uint64) (uint64, error) {
    var holder uint64
    err := tx.QueryRowContext(ctx,
        `SELECT holder_id FROM assets WHERE id = ?`, assetID).Scan(&holder)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, ledger.ErrUnknownAsset
    }
    if err != nil {
        return 0, err
    }
    return holder, nil
}

// TokenURITx returns the mint-time descriptor of the asset.
func (r *AssetRepo) TokenURITx(ctx context.Context, tx *sql.Tx, assetID uint64) (string, error) {
    var uri string
    err := tx.QueryRowContext(ctx,
        `SELECT token_uri FROM assets WHERE id = ?`, assetID).Scan(&uri)
    if errors.Is(err, sql.ErrNoRows) {
        return "", ledger.ErrUnknownAsset
    }
    if err != nil {
        return "", err
    }
    return uri, nil
}

// TransferTx moves custody of the asset after checking the transfer
// authorization rule: the caller must be the current holder or the
// approved agent, and `from` must be the current holder.  A
// successful transfer clears any approval for the asset.
func (r *AssetRepo) TransferTx(ctx context.Context, tx *sql.Tx, caller, from, to, assetID uint64) error {
    holder, err := r.HolderOfTx(ctx, tx, assetID)
    if err != nil {
        return err
    }
    if holder != from {
        return ledger.ErrUnauthorized
    }
    if caller != holder {
        var agent uint64
        err := tx.QueryRowContext(ctx,
            `SELECT agent_id FROM approvals WHERE asset_id = ?`, assetID).Scan(&agent)
        if errors.Is(err, sql.ErrNoRows) || (err == nil && agent != caller) {
            return ledger.ErrUnauthorized
        }
        if err != nil {
            return err
        }
    }
    if _, err := tx.ExecContext(ctx,
        `UPDATE assets SET holder_id = ? WHERE id = ?`, to, assetID); err != nil {
        return err
    }
    _, err = tx.ExecContext(ctx, `DELETE FROM approvals WHERE asset_id = ?`, assetID)
    return err
}

// ApproveTx records the single agent allowed to transfer the asset
// on the holder's behalf, replacing any previous approval.
func (r *AssetRepo) ApproveTx(ctx context.Context, tx *sql.Tx, caller, agent, assetID uint64) error {
    holder, err := r.HolderOfTx(ctx, tx, assetID)
    if err != nil {
        return err
    }
    if holder != caller {
        return ledger.ErrUnauthorized
    }
    _, err = tx.ExecContext(ctx,
        `INSERT INTO approvals (asset_id, agent_id) VALUES (?, ?)
         ON DUPLICATE KEY UPDATE agent_id = VALUES(agent_id)`,
        assetID, agent)
    return err
}

// HeldByTx returns all assets whose current holder is the account,
// ordered by identifier for deterministic output.
func (r *AssetRepo) HeldByTx(ctx context.Context, tx *sql.Tx, holder uint64) ([]model.Asset, error) {
    rows, err := tx.QueryContext(ctx,
        `SELECT id, holder_id, token_uri, created_at FROM assets WHERE holder_id = ? ORDER BY id`,
        holder)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Asset, 0)
    for rows.Next() {
        var a model.Asset
        if err := rows.Scan(&a.ID, &a.HolderID, &a.TokenURI, &a.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, a)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}
