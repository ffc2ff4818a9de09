package ledger

import (
    "context"
    "math"
    "sync"
    "testing"

    "github.com/stretchr/testify/require"
)

// test account identifiers; the market escrow account is kept far
// away from real accounts on purpose
const (
    marketAccount = uint64(1)
    alice         = uint64(10)
    bob           = uint64(11)
    carol         = uint64(12)
)

// captureSink records every emitted transfer for assertions.
type captureSink struct {
    mu      sync.Mutex
    kinds   []Kind
    records []TransferRecord
}

func (s *captureSink) TransferEmitted(_ context.Context, kind Kind, rec TransferRecord) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.kinds = append(s.kinds, kind)
    s.records = append(s.records, rec)
}

func (s *captureSink) last(t *testing.T) (Kind, TransferRecord) {
    t.Helper()
    s.mu.Lock()
    defer s.mu.Unlock()
    require.NotEmpty(t, s.records, "expected at least one emitted record")
    return s.kinds[len(s.kinds)-1], s.records[len(s.records)-1]
}

func (s *captureSink) count() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.records)
}

func newTestLedger(t *testing.T) (*Ledger, *MemoryBackend, *captureSink) {
    t.Helper()
    b := NewMemoryBackend()
    sink := &captureSink{}
    return New(b, marketAccount, sink), b, sink
}

func TestMintAssignsFreshIDAndHolder(t *testing.T) {
    ctx := context.Background()
    led, _, sink := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "ipfs://x")
    require.NoError(t, err)
    require.Equal(t, uint64(1), id)

    det, err := led.Asset(ctx, id)
    require.NoError(t, err)
    require.Equal(t, alice, det.Asset.HolderID)
    require.Equal(t, "ipfs://x", det.Asset.TokenURI)
    require.Nil(t, det.Listing)

    kind, rec := sink.last(t)
    require.Equal(t, KindMint, kind)
    require.Equal(t, TransferRecord{AssetID: id, To: alice, TokenURI: "ipfs://x", Price: 0}, rec)

    // identifiers are monotonic and never reused
    id2, err := led.Mint(ctx, bob, "")
    require.NoError(t, err)
    require.Equal(t, uint64(2), id2)
}

func TestMintAllowsEmptyTokenURI(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "")
    require.NoError(t, err)
    det, err := led.Asset(ctx, id)
    require.NoError(t, err)
    require.Equal(t, "", det.Asset.TokenURI)
}

func TestListRejectsZeroPrice(t *testing.T) {
    ctx := context.Background()
    led, _, sink := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "uri")
    require.NoError(t, err)
    emitted := sink.count()

    err = led.List(ctx, alice, id, 0)
    require.ErrorIs(t, err, ErrInvalidPrice)

    // nothing changed and nothing was emitted
    det, err := led.Asset(ctx, id)
    require.NoError(t, err)
    require.Equal(t, alice, det.Asset.HolderID)
    require.Nil(t, det.Listing)
    require.Equal(t, emitted, sink.count())
}

func TestListRejectsNonHolder(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "uri")
    require.NoError(t, err)

    err = led.List(ctx, bob, id, 12)
    require.ErrorIs(t, err, ErrUnauthorized)

    det, err := led.Asset(ctx, id)
    require.NoError(t, err)
    require.Equal(t, alice, det.Asset.HolderID, "custody must not change on a rejected list")
    require.Nil(t, det.Listing)
}

func TestListUnknownAsset(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)
    require.ErrorIs(t, led.List(ctx, alice, 9999, 10), ErrUnknownAsset)
}

func TestListEscrowsAsset(t *testing.T) {
    ctx := context.Background()
    led, _, sink := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "uri")
    require.NoError(t, err)
    require.NoError(t, led.List(ctx, alice, id, 123))

    det, err := led.Asset(ctx, id)
    require.NoError(t, err)
    require.Equal(t, marketAccount, det.Asset.HolderID, "listed asset is held in escrow")
    require.NotNil(t, det.Listing)
    require.Equal(t, alice, det.Listing.SellerID)
    require.Equal(t, uint64(123), det.Listing.Price)

    kind, rec := sink.last(t)
    require.Equal(t, KindList, kind)
    require.Equal(t, TransferRecord{AssetID: id, To: marketAccount, TokenURI: "", Price: 123}, rec)
}

func TestListByApprovedAgent(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "uri")
    require.NoError(t, err)

    // only the holder may approve
    require.ErrorIs(t, led.Approve(ctx, bob, carol, id), ErrUnauthorized)
    require.NoError(t, led.Approve(ctx, alice, bob, id))

    require.NoError(t, led.List(ctx, bob, id, 50))
    det, err := led.Asset(ctx, id)
    require.NoError(t, err)
    require.Equal(t, marketAccount, det.Asset.HolderID)
    require.Equal(t, bob, det.Listing.SellerID)
}

func TestRelistWhileListedIsRejected(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "uri")
    require.NoError(t, err)
    require.NoError(t, led.List(ctx, alice, id, 10))

    // the holder is now the marketplace, so the seller is no longer
    // authorized to move the asset
    err = led.List(ctx, alice, id, 20)
    require.ErrorIs(t, err, ErrUnauthorized)

    det, err := led.Asset(ctx, id)
    require.NoError(t, err)
    require.Equal(t, uint64(10), det.Listing.Price, "original listing must survive")
}

func TestBuyUnlisted(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)

    require.ErrorIs(t, led.Buy(ctx, bob, 9999, 0), ErrNotListed)

    id, err := led.Mint(ctx, alice, "uri")
    require.NoError(t, err)
    require.ErrorIs(t, led.Buy(ctx, bob, id, 123), ErrNotListed)
}

func TestBuyWrongPayment(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "uri")
    require.NoError(t, err)
    require.NoError(t, led.List(ctx, alice, id, 123))
    require.NoError(t, led.Deposit(ctx, bob, 1000))

    for _, payment := range []uint64{0, 122, 124, 1000} {
        require.ErrorIs(t, led.Buy(ctx, bob, id, payment), ErrIncorrectPrice)
    }

    // holder, listing and balances are all untouched
    det, err := led.Asset(ctx, id)
    require.NoError(t, err)
    require.Equal(t, marketAccount, det.Asset.HolderID)
    require.NotNil(t, det.Listing)
    bal, err := led.Balance(ctx, bob)
    require.NoError(t, err)
    require.Equal(t, uint64(1000), bal, "no partial retention of a wrong payment")
    fees, err := led.RetainedFees(ctx)
    require.NoError(t, err)
    require.Zero(t, fees)
}

func TestBuySettlesWithFeeSplit(t *testing.T) {
    ctx := context.Background()
    led, _, sink := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "ipfs://x")
    require.NoError(t, err)
    require.NoError(t, led.List(ctx, alice, id, 123))
    require.NoError(t, led.Deposit(ctx, bob, 200))

    require.NoError(t, led.Buy(ctx, bob, id, 123))

    // price 123 -> seller 116, fee 7 (floor split, remainder to fee)
    sellerBal, err := led.Balance(ctx, alice)
    require.NoError(t, err)
    require.Equal(t, uint64(116), sellerBal)
    buyerBal, err := led.Balance(ctx, bob)
    require.NoError(t, err)
    require.Equal(t, uint64(77), buyerBal)
    fees, err := led.RetainedFees(ctx)
    require.NoError(t, err)
    require.Equal(t, uint64(7), fees)

    det, err := led.Asset(ctx, id)
    require.NoError(t, err)
    require.Equal(t, bob, det.Asset.HolderID)
    require.Nil(t, det.Listing, "listing removed after purchase")

    kind, rec := sink.last(t)
    require.Equal(t, KindPurchase, kind)
    require.Equal(t, TransferRecord{AssetID: id, To: bob, TokenURI: "", Price: 0}, rec)

    // buying again on the now-unlisted asset fails
    require.ErrorIs(t, led.Buy(ctx, bob, id, 123), ErrNotListed)
}

func TestBuyInsufficientFundsRollsBack(t *testing.T) {
    ctx := context.Background()
    led, _, sink := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "uri")
    require.NoError(t, err)
    require.NoError(t, led.List(ctx, alice, id, 123))
    // enough for the seller's share but not the fee: the partial
    // payment must be undone
    require.NoError(t, led.Deposit(ctx, bob, 116))
    emitted := sink.count()

    require.ErrorIs(t, led.Buy(ctx, bob, id, 123), ErrInsufficientFunds)

    buyerBal, err := led.Balance(ctx, bob)
    require.NoError(t, err)
    require.Equal(t, uint64(116), buyerBal, "failed buy must refund the seller leg")
    sellerBal, err := led.Balance(ctx, alice)
    require.NoError(t, err)
    require.Zero(t, sellerBal)
    fees, err := led.RetainedFees(ctx)
    require.NoError(t, err)
    require.Zero(t, fees)

    det, err := led.Asset(ctx, id)
    require.NoError(t, err)
    require.Equal(t, marketAccount, det.Asset.HolderID)
    require.NotNil(t, det.Listing)
    require.Equal(t, emitted, sink.count())
}

func TestSplitPrice(t *testing.T) {
    cases := []struct {
        price  uint64
        profit uint64
        fee    uint64
    }{
        {1, 0, 1},
        {19, 18, 1},
        {20, 19, 1},
        {100, 95, 5},
        {123, 116, 7},
        {999, 949, 50},
        {1000000, 950000, 50000},
        // large prices must not wrap the intermediate product
        {1_000_000_000_000_000_000, 950_000_000_000_000_000, 50_000_000_000_000_000},
        {math.MaxUint64, 17524406870024074034, 922337203685477581},
    }
    for _, tc := range cases {
        profit, fee := SplitPrice(tc.price)
        require.Equal(t, tc.profit, profit, "price %d", tc.price)
        require.Equal(t, tc.fee, fee, "price %d", tc.price)
        require.Equal(t, tc.price, profit+fee, "split must be exhaustive for price %d", tc.price)
    }
}

func TestBuyLargePriceSettlesExactly(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)

    const price = uint64(1_000_000_000_000_000_000)

    id, err := led.Mint(ctx, alice, "ipfs://rare")
    require.NoError(t, err)
    require.NoError(t, led.List(ctx, alice, id, price))
    require.NoError(t, led.Deposit(ctx, bob, price))
    require.NoError(t, led.Buy(ctx, bob, id, price))

    sellerBal, err := led.Balance(ctx, alice)
    require.NoError(t, err)
    require.Equal(t, uint64(950_000_000_000_000_000), sellerBal, "seller share must be floor(95%)")

    fees, err := led.RetainedFees(ctx)
    require.NoError(t, err)
    require.Equal(t, uint64(50_000_000_000_000_000), fees)

    buyerBal, err := led.Balance(ctx, bob)
    require.NoError(t, err)
    require.Zero(t, buyerBal)
}

func TestWithdrawFees(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "uri")
    require.NoError(t, err)
    require.NoError(t, led.List(ctx, alice, id, 100))
    require.NoError(t, led.Deposit(ctx, bob, 100))
    require.NoError(t, led.Buy(ctx, bob, id, 100))

    require.ErrorIs(t, led.WithdrawFees(ctx, carol, 6), ErrInsufficientFunds)
    require.NoError(t, led.WithdrawFees(ctx, carol, 5))

    fees, err := led.RetainedFees(ctx)
    require.NoError(t, err)
    require.Zero(t, fees)
    bal, err := led.Balance(ctx, carol)
    require.NoError(t, err)
    require.Equal(t, uint64(5), bal)
}

func TestHoldingsIncludeEscrowedListings(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)

    id1, err := led.Mint(ctx, alice, "a")
    require.NoError(t, err)
    id2, err := led.Mint(ctx, alice, "b")
    require.NoError(t, err)
    require.NoError(t, led.List(ctx, alice, id2, 10))

    held, escrowed, err := led.Holdings(ctx, alice)
    require.NoError(t, err)
    require.Len(t, held, 1)
    require.Equal(t, id1, held[0].ID)
    require.Len(t, escrowed, 1)
    require.Equal(t, id2, escrowed[0].AssetID)
}

func TestEndToEndScenario(t *testing.T) {
    ctx := context.Background()
    led, _, _ := newTestLedger(t)

    id, err := led.Mint(ctx, alice, "ipfs://x")
    require.NoError(t, err)
    require.Equal(t, uint64(1), id)

    require.NoError(t, led.List(ctx, alice, id, 123))
    holder, err := ledgerHolder(ctx, led, id)
    require.NoError(t, err)
    require.Equal(t, marketAccount, holder)

    require.NoError(t, led.Deposit(ctx, bob, 123))
    require.NoError(t, led.Buy(ctx, bob, id, 123))

    sellerBal, err := led.Balance(ctx, alice)
    require.NoError(t, err)
    require.Equal(t, uint64(116), sellerBal)
    fees, err := led.RetainedFees(ctx)
    require.NoError(t, err)
    require.Equal(t, uint64(7), fees)

    holder, err = ledgerHolder(ctx, led, id)
    require.NoError(t, err)
    require.Equal(t, bob, holder)

    listings, err := led.Listings(ctx)
    require.NoError(t, err)
    require.Empty(t, listings)
}

func ledgerHolder(ctx context.Context, led *Ledger, id uint64) (uint64, error) {
    det, err := led.Asset(ctx, id)
    if err != nil {
        return 0, err
    }
    return det.Asset.HolderID, nil
}
