package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/nft-marketplace/internal/ledger"
    "github.com/iliyamo/nft-marketplace/internal/model"
)

// Store implements ledger.Backend on top of MySQL.  Each Atomic scope
// is one database transaction; the per-asset mutual exclusion the
// ledger requires comes from a SELECT ... FOR UPDATE row lock on the
// asset, so two concurrent List/Buy calls on the same asset serialize
// at the database and the loser sees the winner's committed state.
//
// Expected schema (all engines InnoDB):
//   assets(id BIGINT UNSIGNED AUTO_INCREMENT PK, holder_id BIGINT UNSIGNED,
//          token_uri TEXT, created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)
//   approvals(asset_id BIGINT UNSIGNED PK, agent_id BIGINT UNSIGNED)
//   listings(asset_id BIGINT UNSIGNED PK, seller_id BIGINT UNSIGNED,
//            price BIGINT UNSIGNED, created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)
//   wallets(user_id BIGINT UNSIGNED PK, balance BIGINT UNSIGNED,
//           updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP)
//   market_fees(id TINYINT PK, balance BIGINT UNSIGNED)  -- single row, id=1
type Store struct {
    db       *sql.DB
    Assets   *AssetRepo
    Listings *ListingRepo
    Wallets  *WalletRepo
}

// NewStore builds a Store and its repositories over one pool.
func NewStore(db *sql.DB) *Store {
    return &Store{
        db:       db,
        Assets:   NewAssetRepo(db),
        Listings: NewListingRepo(db),
        Wallets:  NewWalletRepo(db),
    }
}

// DB exposes the underlying pool for callers that manage their own
// transactions (auth repositories share it).
func (s *Store) DB() *sql.DB { return s.db }

// Atomic starts a transaction, locks the asset row when assetID is
// non-zero, runs fn and commits.  Any error from fn rolls the whole
// transaction back, which is what gives every ledger operation its
// all-or-nothing behavior.
func (s *Store) Atomic(ctx context.Context, assetID uint64, fn func(ledger.Tx) error) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if assetID != 0 {
        // Lock the asset row for the duration of the operation.  A
        // missing row is not an error here: the operation itself
        // reports ErrUnknownAsset or ErrNotListed with the right
        // precedence.
        var id uint64
        err := tx.QueryRowContext(ctx, `SELECT id FROM assets WHERE id = ? FOR UPDATE`, assetID).Scan(&id)
        if err != nil && !errors.Is(err, sql.ErrNoRows) {
            return err
        }
    }
    stx := &sqlTx{store: s, tx: tx}
    if err := fn(stx); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    // commit hooks fire only for durable state
    for _, h := range stx.hooks {
        h()
    }
    return nil
}

// View runs fn inside a read-only transaction so all reads observe
// one consistent snapshot.
func (s *Store) View(ctx context.Context, fn func(ledger.Tx) error) error {
    tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
    if err != nil {
        return err
    }
    defer func() { _ = tx.Rollback() }()
    if err := fn(&sqlTx{store: s, tx: tx}); err != nil {
        return err
    }
    return tx.Commit()
}

// sqlTx adapts one *sql.Tx to the ledger.Tx interface by delegating
// to the repositories' Tx-scoped methods.
type sqlTx struct {
    store *Store
    tx    *sql.Tx
    hooks []func()
}

// OnCommit queues fn to run after the surrounding transaction
// commits.  Hooks queued in a View are discarded; Views are read-only.
func (t *sqlTx) OnCommit(fn func()) {
    t.hooks = append(t.hooks, fn)
}

func (t *sqlTx) IssueAsset(ctx context.Context, holder uint64, tokenURI string) (uint64, error) {
    return t.store.Assets.IssueTx(ctx, t.tx, holder, tokenURI)
}

func (t *sqlTx) TransferAsset(ctx context.Context, caller, from, to, assetID uint64) error {
    return t.store.Assets.TransferTx(ctx, t.tx, caller, from, to, assetID)
}

func (t *sqlTx) ApproveAgent(ctx context.Context, caller, agent, assetID uint64) error {
    return t.store.Assets.ApproveTx(ctx, t.tx, caller, agent, assetID)
}

func (t *sqlTx) HolderOf(ctx context.Context, assetID uint64) (uint64, error) {
    return t.store.Assets.HolderOfTx(ctx, t.tx, assetID)
}

func (t *sqlTx) TokenURI(ctx context.Context, assetID uint64) (string, error) {
    return t.store.Assets.TokenURITx(ctx, t.tx, assetID)
}

func (t *sqlTx) AssetsHeldBy(ctx context.Context, holder uint64) ([]model.Asset, error) {
    return t.store.Assets.HeldByTx(ctx, t.tx, holder)
}

func (t *sqlTx) Pay(ctx context.Context, from, to, amount uint64) error {
    return t.store.Wallets.PayTx(ctx, t.tx, from, to, amount)
}

func (t *sqlTx) Deposit(ctx context.Context, to, amount uint64) error {
    return t.store.Wallets.CreditTx(ctx, t.tx, to, amount)
}

func (t *sqlTx) Balance(ctx context.Context, account uint64) (uint64, error) {
    return t.store.Wallets.BalanceTx(ctx, t.tx, account)
}

func (t *sqlTx) CollectFee(ctx context.Context, from, amount uint64) error {
    return t.store.Wallets.CollectFeeTx(ctx, t.tx, from, amount)
}

func (t *sqlTx) WithdrawFees(ctx context.Context, to, amount uint64) error {
    return t.store.Wallets.WithdrawFeesTx(ctx, t.tx, to, amount)
}

func (t *sqlTx) RetainedFees(ctx context.Context) (uint64, error) {
    return t.store.Wallets.RetainedFeesTx(ctx, t.tx)
}

func (t *sqlTx) Listing(ctx context.Context, assetID uint64) (model.Listing, error) {
    return t.store.Listings.GetTx(ctx, t.tx, assetID)
}

func (t *sqlTx) PutListing(ctx context.Context, l model.Listing) error {
    return t.store.Listings.InsertTx(ctx, t.tx, l)
}

func (t *sqlTx) DeleteListing(ctx context.Context, assetID uint64) error {
    return t.store.Listings.DeleteTx(ctx, t.tx, assetID)
}

func (t *sqlTx) ActiveListings(ctx context.Context) ([]model.Listing, error) {
    return t.store.Listings.ActiveTx(ctx, t.tx)
}
