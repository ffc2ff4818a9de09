// Package queue defines message payloads exchanged over the message broker.
package queue

// NFTTransferEvent is published after every committed ledger operation.
// The first four fields keep the on-chain record's overloaded layout:
// consumers can still infer the operation from which fields are
// zero/empty (mint carries the descriptor, a listing carries the
// price, a purchase carries neither).  Kind and OccurredAt are broker
// metadata added on top so downstream indexers do not have to
// re-derive the operation.
type NFTTransferEvent struct {
    AssetID    uint64 `json:"asset_id"`
    To         uint64 `json:"to"`
    TokenURI   string `json:"token_uri"`
    Price      uint64 `json:"price"`
    Kind       string `json:"kind"` // MINT | LIST | PURCHASE
    OccurredAt string `json:"occurred_at"`
}
