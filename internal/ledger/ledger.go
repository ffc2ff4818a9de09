package ledger

import (
    "context"

    "github.com/iliyamo/nft-marketplace/internal/model"
)

// AssetRegistry issues asset identifiers, tracks custody and performs
// holder-restricted transfers.  Implementations must issue identifiers
// monotonically and never reuse one, even after a rolled-back
// operation.
type AssetRegistry interface {
    // IssueAsset creates a new asset held by holder with the given
    // descriptor and returns its identifier.
    IssueAsset(ctx context.Context, holder uint64, tokenURI string) (uint64, error)
    // TransferAsset moves custody of assetID from `from` to `to`.
    // It fails with ErrUnauthorized unless caller is the current
    // holder or the approved agent for the asset, or when `from` is
    // not the current holder.  Any approval is cleared by a
    // successful transfer.
    TransferAsset(ctx context.Context, caller, from, to, assetID uint64) error
    // ApproveAgent lets the current holder designate a single agent
    // allowed to transfer the asset on their behalf.  Fails with
    // ErrUnauthorized when caller is not the holder.
    ApproveAgent(ctx context.Context, caller, agent, assetID uint64) error
    // HolderOf returns the current holder, or ErrUnknownAsset.
    HolderOf(ctx context.Context, assetID uint64) (uint64, error)
    // TokenURI returns the mint-time descriptor, or ErrUnknownAsset.
    TokenURI(ctx context.Context, assetID uint64) (string, error)
    // AssetsHeldBy returns all assets currently held by the account.
    AssetsHeldBy(ctx context.Context, holder uint64) ([]model.Asset, error)
}

// ValueTransfer moves currency between accounts and the marketplace's
// retained-fee balance.  Every method is all-or-nothing: on failure
// no balances change.
type ValueTransfer interface {
    // Pay moves amount from one account to another.  Fails with
    // ErrInsufficientFunds when the payer cannot cover it.
    Pay(ctx context.Context, from, to, amount uint64) error
    // Deposit credits an account out of thin air.  It backs the
    // faucet endpoint standing in for the external value substrate.
    Deposit(ctx context.Context, to, amount uint64) error
    // Balance returns the current balance of an account.
    Balance(ctx context.Context, account uint64) (uint64, error)
    // CollectFee debits the payer and accrues the amount into the
    // marketplace's retained-fee balance.
    CollectFee(ctx context.Context, from, amount uint64) error
    // WithdrawFees moves amount out of the retained-fee balance into
    // an account.  Fails with ErrInsufficientFunds when the retained
    // balance is too small.
    WithdrawFees(ctx context.Context, to, amount uint64) error
    // RetainedFees returns the marketplace's accumulated fees.
    RetainedFees(ctx context.Context) (uint64, error)
}

// ListingStore maintains the asset -> listing mapping.  Keys are
// unique; the store never mutates a listing in place.
type ListingStore interface {
    // Listing returns the active listing for the asset, or
    // ErrNotListed.
    Listing(ctx context.Context, assetID uint64) (model.Listing, error)
    // PutListing inserts a listing.  Fails with ErrAlreadyListed when
    // one already exists for the asset.
    PutListing(ctx context.Context, l model.Listing) error
    // DeleteListing removes the listing for the asset, if any.
    DeleteListing(ctx context.Context, assetID uint64) error
    // ActiveListings returns every active listing.
    ActiveListings(ctx context.Context) ([]model.Listing, error)
}

// Tx is the combined view of all three collaborators inside one
// atomic scope.  Everything an operation touches through a Tx either
// commits together or is rolled back together.
type Tx interface {
    AssetRegistry
    ValueTransfer
    ListingStore
    // OnCommit queues fn to run once the scope has committed.  Hooks
    // never run for a failed or rolled-back scope.  Backends run them
    // before Atomic returns; when the backend serializes operations
    // per asset beyond the commit point, hooks for the same asset are
    // delivered in commit order.
    OnCommit(fn func())
}

// Backend provides atomic execution scopes over the shared ledger
// state.  Atomic must guarantee mutual exclusion per asset: at most
// one in-flight List or Buy for a given assetID at a time.  Passing
// assetID 0 requests a scope with no per-asset serialization (mint,
// deposits, fee withdrawal).
type Backend interface {
    Atomic(ctx context.Context, assetID uint64, fn func(Tx) error) error
    // View runs fn against a read-only snapshot of the state.
    View(ctx context.Context, fn func(Tx) error) error
}

// Kind labels which operation produced a transfer record.  The record
// itself keeps the original overloaded field layout; the kind only
// travels as broker metadata.
type Kind string

const (
    KindMint     Kind = "MINT"
    KindList     Kind = "LIST"
    KindPurchase Kind = "PURCHASE"
)

// TransferRecord is the notification emitted after every successful
// ledger operation.  Consumers infer the meaning from which fields
// are zero: a mint carries the descriptor and price 0, a listing
// carries the price and an empty descriptor, and a purchase carries
// neither.
type TransferRecord struct {
    AssetID  uint64 `json:"asset_id"`
    To       uint64 `json:"to"`
    TokenURI string `json:"token_uri"`
    Price    uint64 `json:"price"`
}

// EventSink receives transfer records after the operation that
// produced them has committed.  Sinks must not fail the operation;
// delivery problems are theirs to log and swallow.
type EventSink interface {
    TransferEmitted(ctx context.Context, kind Kind, rec TransferRecord)
}

// Ledger is the marketplace core.  It owns no state of its own: all
// custody, listing and balance data lives behind the injected
// Backend, which also supplies the atomicity and per-asset locking
// guarantees.  One Ledger instance serves all accounts.
type Ledger struct {
    backend Backend
    market  uint64 // escrow account holding listed assets
    sink    EventSink
}

// New constructs a Ledger over the given backend.  market is the
// account identifier used as the escrow holder for listed assets;
// it must not collide with any real account.  sink may be nil when
// no event delivery is wanted (tests).
func New(backend Backend, market uint64, sink EventSink) *Ledger {
    if backend == nil {
        panic("nil backend passed to ledger.New")
    }
    return &Ledger{backend: backend, market: market, sink: sink}
}

// MarketAccount returns the escrow account identifier.
func (l *Ledger) MarketAccount() uint64 { return l.market }

// SplitPrice computes the settlement split for a sale.  The seller
// receives floor(price*95/100) and the fee is whatever remains, so
// the two always sum to the price exactly.  The fee is deliberately
// not an independently rounded 5%: at price 123 the seller gets 116
// and the fee is 7.
//
// The division is applied per hundred-block so the intermediate
// product cannot wrap uint64 at large prices: for price = 100q + r,
// floor(price*95/100) == 95q + floor(r*95/100).
func SplitPrice(price uint64) (sellerProfit, fee uint64) {
    sellerProfit = price/100*95 + price%100*95/100
    fee = price - sellerProfit
    return sellerProfit, fee
}

// Mint issues a new asset held by the initiator.  The descriptor may
// be empty; it is stored verbatim and never validated.  On success a
// record {assetID, to: initiator, tokenURI, price: 0} is emitted.
func (l *Ledger) Mint(ctx context.Context, initiator uint64, tokenURI string) (uint64, error) {
    var assetID uint64
    err := l.backend.Atomic(ctx, 0, func(tx Tx) error {
        id, err := tx.IssueAsset(ctx, initiator, tokenURI)
        if err != nil {
            return err
        }
        assetID = id
        tx.OnCommit(func() {
            l.emit(ctx, KindMint, TransferRecord{AssetID: id, To: initiator, TokenURI: tokenURI})
        })
        return nil
    })
    if err != nil {
        return 0, err
    }
    return assetID, nil
}

// List places an asset for sale at a fixed price and moves it into
// escrow.  Preconditions are checked in order and the first failure
// wins: the price must be positive, then the initiator must be the
// holder or the approved agent.  An already-listed asset fails the
// second check because its holder is the marketplace account.  On
// success a record {assetID, to: marketplace, tokenURI: "", price}
// is emitted; the cleared descriptor is what distinguishes a listing
// from a mint.
func (l *Ledger) List(ctx context.Context, initiator, assetID, price uint64) error {
    if price == 0 {
        return ErrInvalidPrice
    }
    return l.backend.Atomic(ctx, assetID, func(tx Tx) error {
        holder, err := tx.HolderOf(ctx, assetID)
        if err != nil {
            return err
        }
        if err := tx.TransferAsset(ctx, initiator, holder, l.market, assetID); err != nil {
            return err
        }
        if err := tx.PutListing(ctx, model.Listing{AssetID: assetID, SellerID: initiator, Price: price}); err != nil {
            return err
        }
        tx.OnCommit(func() {
            l.emit(ctx, KindList, TransferRecord{AssetID: assetID, To: l.market, Price: price})
        })
        return nil
    })
}

// Buy purchases a listed asset.  The payment must equal the listed
// price exactly; otherwise nothing is retained from the buyer.  On
// success, atomically: the seller is credited floor(price*95/100),
// the remainder accrues to the marketplace's retained fees, custody
// moves to the buyer and the listing is removed.  A record
// {assetID, to: buyer, tokenURI: "", price: 0} is emitted.
func (l *Ledger) Buy(ctx context.Context, initiator, assetID, payment uint64) error {
    return l.backend.Atomic(ctx, assetID, func(tx Tx) error {
        lst, err := tx.Listing(ctx, assetID)
        if err != nil {
            return err
        }
        if payment != lst.Price {
            return ErrIncorrectPrice
        }
        sellerProfit, fee := SplitPrice(lst.Price)
        if err := tx.Pay(ctx, initiator, lst.SellerID, sellerProfit); err != nil {
            return err
        }
        if err := tx.CollectFee(ctx, initiator, fee); err != nil {
            return err
        }
        if err := tx.TransferAsset(ctx, l.market, l.market, initiator, assetID); err != nil {
            return err
        }
        if err := tx.DeleteListing(ctx, assetID); err != nil {
            return err
        }
        tx.OnCommit(func() {
            l.emit(ctx, KindPurchase, TransferRecord{AssetID: assetID, To: initiator})
        })
        return nil
    })
}

// Approve lets the current holder designate an agent allowed to list
// the asset on their behalf.
func (l *Ledger) Approve(ctx context.Context, initiator, agent, assetID uint64) error {
    return l.backend.Atomic(ctx, assetID, func(tx Tx) error {
        return tx.ApproveAgent(ctx, initiator, agent, assetID)
    })
}

// Deposit credits an account's wallet.  It stands in for the external
// value substrate moving money into the marketplace.
func (l *Ledger) Deposit(ctx context.Context, account, amount uint64) error {
    return l.backend.Atomic(ctx, 0, func(tx Tx) error {
        return tx.Deposit(ctx, account, amount)
    })
}

// WithdrawFees pays out retained marketplace fees to the given
// account.  Intended for the operator role only; the handler layer
// enforces that.
func (l *Ledger) WithdrawFees(ctx context.Context, to, amount uint64) error {
    return l.backend.Atomic(ctx, 0, func(tx Tx) error {
        return tx.WithdrawFees(ctx, to, amount)
    })
}

// AssetDetail bundles an asset with its active listing, if any.
type AssetDetail struct {
    Asset   model.Asset
    Listing *model.Listing // nil when the asset is not for sale
}

// Asset returns the current state of a single asset.
func (l *Ledger) Asset(ctx context.Context, assetID uint64) (AssetDetail, error) {
    var det AssetDetail
    err := l.backend.View(ctx, func(tx Tx) error {
        holder, err := tx.HolderOf(ctx, assetID)
        if err != nil {
            return err
        }
        uri, err := tx.TokenURI(ctx, assetID)
        if err != nil {
            return err
        }
        det.Asset = model.Asset{ID: assetID, HolderID: holder, TokenURI: uri}
        lst, err := tx.Listing(ctx, assetID)
        switch {
        case err == nil:
            det.Listing = &lst
        case err == ErrNotListed:
            // unlisted is a normal state, not a failure
        default:
            return err
        }
        return nil
    })
    return det, err
}

// Listings returns every active listing.
func (l *Ledger) Listings(ctx context.Context) ([]model.Listing, error) {
    var out []model.Listing
    err := l.backend.View(ctx, func(tx Tx) error {
        ls, err := tx.ActiveListings(ctx)
        if err != nil {
            return err
        }
        out = ls
        return nil
    })
    return out, err
}

// Holdings returns the assets an account holds directly plus the
// listings it currently has in escrow.  Escrowed assets are held by
// the marketplace account, so without the second slice a seller's
// own listings would disappear from their inventory view.
func (l *Ledger) Holdings(ctx context.Context, account uint64) ([]model.Asset, []model.Listing, error) {
    var held []model.Asset
    var escrowed []model.Listing
    err := l.backend.View(ctx, func(tx Tx) error {
        assets, err := tx.AssetsHeldBy(ctx, account)
        if err != nil {
            return err
        }
        held = assets
        ls, err := tx.ActiveListings(ctx)
        if err != nil {
            return err
        }
        for _, lst := range ls {
            if lst.SellerID == account {
                escrowed = append(escrowed, lst)
            }
        }
        return nil
    })
    return held, escrowed, err
}

// Balance returns the wallet balance of an account.
func (l *Ledger) Balance(ctx context.Context, account uint64) (uint64, error) {
    var bal uint64
    err := l.backend.View(ctx, func(tx Tx) error {
        b, err := tx.Balance(ctx, account)
        if err != nil {
            return err
        }
        bal = b
        return nil
    })
    return bal, err
}

// RetainedFees returns the marketplace's accumulated fee balance.
func (l *Ledger) RetainedFees(ctx context.Context) (uint64, error) {
    var fees uint64
    err := l.backend.View(ctx, func(tx Tx) error {
        f, err := tx.RetainedFees(ctx)
        if err != nil {
            return err
        }
        fees = f
        return nil
    })
    return fees, err
}

// emit hands the record to the sink.  Operations queue it through
// Tx.OnCommit, so it only ever runs for committed state.  A nil sink
// simply drops events.
func (l *Ledger) emit(ctx context.Context, kind Kind, rec TransferRecord) {
    if l.sink != nil {
        l.sink.TransferEmitted(ctx, kind, rec)
    }
}
