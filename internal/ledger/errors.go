// Package ledger implements the marketplace ledger: the ownership,
// listing and settlement state machine for NFTs.  This file defines
// the sentinel error values shared by the ledger and every backend
// implementation.  Handlers compare against these values with
// errors.Is to choose an HTTP status; the messages themselves are
// part of the API surface and must not change.
package ledger

import "errors"

// ErrInvalidPrice is returned by List when the asking price is not a
// positive number.  Handlers translate it into HTTP 400.
var ErrInvalidPrice = errors.New("price must be greater than 0")

// ErrUnauthorized is returned when an account tries to move an asset
// it neither holds nor is approved to manage.  It also covers the
// attempt to list an asset that is already in escrow, since the
// holder is then the marketplace account.  Handlers translate it
// into HTTP 403.
var ErrUnauthorized = errors.New("caller is not token owner nor approved")

// ErrNotListed is returned by Buy when no active listing exists for
// the asset.  Handlers translate it into HTTP 404.
var ErrNotListed = errors.New("nft not listed for sale")

// ErrIncorrectPrice is returned by Buy when the payment does not
// match the listed price exactly.  Over- and underpayment are both
// rejected and no funds move.  Handlers translate it into HTTP 400.
var ErrIncorrectPrice = errors.New("incorrect price")

// ErrUnknownAsset is returned when an operation references an asset
// identifier that was never issued.  Handlers translate it into
// HTTP 404.
var ErrUnknownAsset = errors.New("unknown asset")

// ErrInsufficientFunds is returned by the value-transfer layer when
// the paying account cannot cover the requested amount, and by fee
// withdrawal when the retained balance is too small.  No balances
// change on failure.  Handlers translate it into HTTP 402.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrAlreadyListed signals an attempt to insert a second listing for
// the same asset.  Under the custody invariant this path is normally
// unreachable (a listed asset is held by the marketplace, so a
// second List fails with ErrUnauthorized first), but backends still
// enforce the unique mapping and surface this value when it is
// violated.  Handlers translate it into HTTP 409.
var ErrAlreadyListed = errors.New("nft already listed for sale")
