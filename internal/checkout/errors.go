package checkout

import "errors"

var (
	// ErrProductUnavailable aborts the whole settlement: the referenced
	// product is unknown or no longer active.
	ErrProductUnavailable = errors.New("product is not available")

	// ErrInvalidQuantity aborts the whole settlement: a requested quantity
	// was below 1.
	ErrInvalidQuantity = errors.New("requested quantity must be at least 1")

	// ErrEmptyBasket is returned before any storage access when there is
	// nothing to settle.
	ErrEmptyBasket = errors.New("no items to settle")

	// ErrUnauthenticatedActor is returned before order creation when the
	// acting user has no resolvable display name.
	ErrUnauthenticatedActor = errors.New("acting user has no display name")

	// ErrNothingFulfillable is returned when the payment cannot cover a
	// single unit of anything requested. No order is recorded.
	ErrNothingFulfillable = errors.New("payment amount does not cover any requested item")

	// ErrStockConflict is reported by a store when a guarded stock
	// decrement loses against stock committed by someone else.
	ErrStockConflict = errors.New("stock changed during settlement")
)
