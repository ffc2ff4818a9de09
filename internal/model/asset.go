package model

import "time"

// Asset represents a uniquely identified NFT tracked by the asset
// registry.  Identifiers are issued monotonically and never reused,
// even when an operation that created other state is rolled back.
//
// Fields:
//  ID        – primary key identifier (assets.id, AUTO_INCREMENT).
//  HolderID  – account currently in custody of the asset
//              (assets.holder_id).  While an asset is listed for
//              sale this is the marketplace escrow account.
//  TokenURI  – opaque descriptor set once at mint time
//              (assets.token_uri).  Never modified afterwards.
//  CreatedAt – timestamp of the mint (assets.created_at).
type Asset struct {
    ID        uint64    // assets.id
    HolderID  uint64    // assets.holder_id
    TokenURI  string    // assets.token_uri
    CreatedAt time.Time // assets.created_at
}
