package ledger

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/iliyamo/nft-marketplace/internal/model"
)

// MemoryBackend is a map-backed Backend used by tests and as the
// reference implementation of the concurrency rules: per-asset
// operation locks serialize List/Buy on the same asset, a single
// state mutex protects the maps and the fee counter, and an undo
// journal restores all mutations of a failed operation so callers
// never observe a half-applied state.  View holds the state mutex
// for the whole callback, so a reader sees one consistent snapshot
// even while writers are in flight.
type MemoryBackend struct {
    mu           sync.Mutex // guards every field below
    nextAssetID  uint64
    assets       map[uint64]model.Asset
    approvals    map[uint64]uint64 // assetID -> approved agent
    listings     map[uint64]model.Listing
    balances     map[uint64]uint64
    retainedFees uint64

    locksMu sync.Mutex
    locks   map[uint64]*sync.Mutex // per-asset operation locks
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
    return &MemoryBackend{
        assets:    make(map[uint64]model.Asset),
        approvals: make(map[uint64]uint64),
        listings:  make(map[uint64]model.Listing),
        balances:  make(map[uint64]uint64),
        locks:     make(map[uint64]*sync.Mutex),
    }
}

// assetLock returns the operation lock for an asset, creating it on
// first use.  Locks are never removed; the set of assets only grows.
func (b *MemoryBackend) assetLock(assetID uint64) *sync.Mutex {
    b.locksMu.Lock()
    defer b.locksMu.Unlock()
    m, ok := b.locks[assetID]
    if !ok {
        m = &sync.Mutex{}
        b.locks[assetID] = m
    }
    return m
}

// Atomic runs fn inside an all-or-nothing scope.  For assetID != 0
// the per-asset lock is held for the whole operation, so at most one
// List or Buy is in flight per asset.  When fn fails, every mutation
// it made is undone in reverse order.  Commit hooks run after fn
// succeeds, still under the per-asset lock, which delivers same-asset
// hooks in commit order.
func (b *MemoryBackend) Atomic(ctx context.Context, assetID uint64, fn func(Tx) error) error {
    if assetID != 0 {
        m := b.assetLock(assetID)
        m.Lock()
        defer m.Unlock()
    }
    tx := &memTx{b: b}
    if err := fn(tx); err != nil {
        tx.rollback()
        return err
    }
    for _, h := range tx.hooks {
        h()
    }
    return nil
}

// View runs fn with the state mutex held for the whole callback, so
// every read within one View observes the same committed state.  fn
// must not mutate and must not call back into the backend.
func (b *MemoryBackend) View(ctx context.Context, fn func(Tx) error) error {
    b.mu.Lock()
    defer b.mu.Unlock()
    return fn(&memTx{b: b, held: true})
}

// memTx applies mutations directly to the backend under its state
// mutex and records an inverse closure for each one.  Inverses are
// deltas, not snapshots, so a rollback cannot clobber concurrent
// progress on unrelated accounts.
type memTx struct {
    b     *MemoryBackend
    held  bool // state mutex held for the whole scope (View)
    undo  []func()
    hooks []func()
}

// lock takes the state mutex unless the scope already holds it, and
// returns the matching release.  Usage: defer t.lock()().
func (t *memTx) lock() func() {
    if t.held {
        return func() {}
    }
    t.b.mu.Lock()
    return t.b.mu.Unlock
}

func (t *memTx) OnCommit(fn func()) {
    t.hooks = append(t.hooks, fn)
}

func (t *memTx) rollback() {
    t.b.mu.Lock()
    defer t.b.mu.Unlock()
    for i := len(t.undo) - 1; i >= 0; i-- {
        t.undo[i]()
    }
    t.undo = nil
    t.hooks = nil
}

func (t *memTx) IssueAsset(ctx context.Context, holder uint64, tokenURI string) (uint64, error) {
    b := t.b
    defer t.lock()()
    b.nextAssetID++
    id := b.nextAssetID
    b.assets[id] = model.Asset{ID: id, HolderID: holder, TokenURI: tokenURI, CreatedAt: time.Now().UTC()}
    // the identifier counter is not rewound: ids are never reused
    t.undo = append(t.undo, func() { delete(b.assets, id) })
    return id, nil
}

func (t *memTx) TransferAsset(ctx context.Context, caller, from, to, assetID uint64) error {
    b := t.b
    defer t.lock()()
    a, ok := b.assets[assetID]
    if !ok {
        return ErrUnknownAsset
    }
    if a.HolderID != from {
        return ErrUnauthorized
    }
    if caller != a.HolderID && b.approvals[assetID] != caller {
        return ErrUnauthorized
    }
    prev := a
    agent, hadAgent := b.approvals[assetID]
    a.HolderID = to
    b.assets[assetID] = a
    delete(b.approvals, assetID) // approvals do not survive a transfer
    t.undo = append(t.undo, func() {
        b.assets[assetID] = prev
        if hadAgent {
            b.approvals[assetID] = agent
        }
    })
    return nil
}

func (t *memTx) ApproveAgent(ctx context.Context, caller, agent, assetID uint64) error {
    b := t.b
    defer t.lock()()
    a, ok := b.assets[assetID]
    if !ok {
        return ErrUnknownAsset
    }
    if a.HolderID != caller {
        return ErrUnauthorized
    }
    prev, had := b.approvals[assetID]
    b.approvals[assetID] = agent
    t.undo = append(t.undo, func() {
        if had {
            b.approvals[assetID] = prev
        } else {
            delete(b.approvals, assetID)
        }
    })
    return nil
}

func (t *memTx) HolderOf(ctx context.Context, assetID uint64) (uint64, error) {
    b := t.b
    defer t.lock()()
    a, ok := b.assets[assetID]
    if !ok {
        return 0, ErrUnknownAsset
    }
    return a.HolderID, nil
}

func (t *memTx) TokenURI(ctx context.Context, assetID uint64) (string, error) {
    b := t.b
    defer t.lock()()
    a, ok := b.assets[assetID]
    if !ok {
        return "", ErrUnknownAsset
    }
    return a.TokenURI, nil
}

func (t *memTx) AssetsHeldBy(ctx context.Context, holder uint64) ([]model.Asset, error) {
    b := t.b
    defer t.lock()()
    out := make([]model.Asset, 0)
    for _, a := range b.assets {
        if a.HolderID == holder {
            out = append(out, a)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (t *memTx) Pay(ctx context.Context, from, to, amount uint64) error {
    b := t.b
    defer t.lock()()
    if b.balances[from] < amount {
        return ErrInsufficientFunds
    }
    b.balances[from] -= amount
    b.balances[to] += amount
    t.undo = append(t.undo, func() {
        b.balances[to] -= amount
        b.balances[from] += amount
    })
    return nil
}

func (t *memTx) Deposit(ctx context.Context, to, amount uint64) error {
    b := t.b
    defer t.lock()()
    b.balances[to] += amount
    t.undo = append(t.undo, func() { b.balances[to] -= amount })
    return nil
}

func (t *memTx) Balance(ctx context.Context, account uint64) (uint64, error) {
    b := t.b
    defer t.lock()()
    return b.balances[account], nil
}

func (t *memTx) CollectFee(ctx context.Context, from, amount uint64) error {
    b := t.b
    defer t.lock()()
    if b.balances[from] < amount {
        return ErrInsufficientFunds
    }
    b.balances[from] -= amount
    b.retainedFees += amount
    t.undo = append(t.undo, func() {
        b.retainedFees -= amount
        b.balances[from] += amount
    })
    return nil
}

func (t *memTx) WithdrawFees(ctx context.Context, to, amount uint64) error {
    b := t.b
    defer t.lock()()
    if b.retainedFees < amount {
        return ErrInsufficientFunds
    }
    b.retainedFees -= amount
    b.balances[to] += amount
    t.undo = append(t.undo, func() {
        b.balances[to] -= amount
        b.retainedFees += amount
    })
    return nil
}

func (t *memTx) RetainedFees(ctx context.Context) (uint64, error) {
    b := t.b
    defer t.lock()()
    return b.retainedFees, nil
}

func (t *memTx) Listing(ctx context.Context, assetID uint64) (model.Listing, error) {
    b := t.b
    defer t.lock()()
    l, ok := b.listings[assetID]
    if !ok {
        return model.Listing{}, ErrNotListed
    }
    return l, nil
}

func (t *memTx) PutListing(ctx context.Context, l model.Listing) error {
    b := t.b
    defer t.lock()()
    if _, ok := b.listings[l.AssetID]; ok {
        return ErrAlreadyListed
    }
    if l.CreatedAt.IsZero() {
        l.CreatedAt = time.Now().UTC()
    }
    b.listings[l.AssetID] = l
    t.undo = append(t.undo, func() { delete(b.listings, l.AssetID) })
    return nil
}

func (t *memTx) DeleteListing(ctx context.Context, assetID uint64) error {
    b := t.b
    defer t.lock()()
    prev, had := b.listings[assetID]
    delete(b.listings, assetID)
    if had {
        t.undo = append(t.undo, func() { b.listings[assetID] = prev })
    }
    return nil
}

func (t *memTx) ActiveListings(ctx context.Context) ([]model.Listing, error) {
    b := t.b
    defer t.lock()()
    out := make([]model.Listing, 0, len(b.listings))
    for _, l := range b.listings {
        out = append(out, l)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
    return out, nil
}
