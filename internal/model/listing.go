package model

import "time"

// Listing is an active fixed-price sale offer for a single asset.
// There is at most one listing per asset, and a listing exists
// exactly when the asset is held in escrow by the marketplace
// account.  Listings are never updated in place: changing the price
// requires the asset to leave escrow and be listed again.
//
// Fields:
//  AssetID   – the asset offered for sale (listings.asset_id, PK).
//  SellerID  – account that created the listing and receives the
//              sale proceeds (listings.seller_id).
//  Price     – asking price in currency units; always positive
//              (listings.price).
//  CreatedAt – when the listing was created (listings.created_at).
type Listing struct {
    AssetID   uint64    `json:"asset_id"`   // listings.asset_id
    SellerID  uint64    `json:"seller_id"`  // listings.seller_id
    Price     uint64    `json:"price"`      // listings.price
    CreatedAt time.Time `json:"created_at"` // listings.created_at
}
