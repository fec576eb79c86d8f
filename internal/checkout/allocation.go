package checkout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductSnapshot is the immutable view of a product captured when a
// settlement starts. Allocation never reads the store again, so the price
// a buyer is charged is the price that was read here.
type ProductSnapshot struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Stock    int
	IsActive bool
}

// LineRequest is one requested line: a product snapshot plus the quantity
// the buyer asked for, in the order the buyer supplied.
type LineRequest struct {
	Product  ProductSnapshot
	Quantity int
}

// AcceptedLine is a line the budget allocation accepted, with the unit
// price captured from the snapshot. Only quantities > 0 appear.
type AcceptedLine struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Allocation is the outcome of running a basket against a payment budget.
type Allocation struct {
	Lines   []AcceptedLine
	Total   decimal.Decimal // requested cost at stock-clamped quantities
	Paid    decimal.Decimal
	Change  decimal.Decimal
	Partial bool
	Note    string
}

// Allocate runs the basket against the payment budget without touching any
// storage.
//
// Lines are processed strictly in input order. A quantity above the
// available stock is clamped (not an error); a line the remaining budget
// cannot fully cover is reduced to however many whole units the budget
// still buys, which may be zero. Later lines are always re-evaluated
// against whatever budget remains, so a cheap line can still be filled
// after an expensive one fell short.
//
// An unknown or inactive product and a quantity below 1 fail the whole
// request; there is no partial fallback for those.
func Allocate(lines []LineRequest, payment decimal.Decimal) (Allocation, error) {
	if len(lines) == 0 {
		return Allocation{}, ErrEmptyBasket
	}

	var note strings.Builder
	partial := false

	type candidate struct {
		p   ProductSnapshot
		qty int
	}
	cands := make([]candidate, 0, len(lines))
	for _, l := range lines {
		if !l.Product.IsActive {
			return Allocation{}, fmt.Errorf("%w: %s", ErrProductUnavailable, l.Product.Name)
		}
		if l.Quantity < 1 {
			return Allocation{}, fmt.Errorf("%w: %s", ErrInvalidQuantity, l.Product.Name)
		}
		qty := l.Quantity
		if qty > l.Product.Stock {
			qty = l.Product.Stock
			partial = true
			fmt.Fprintf(&note, "only %d of '%s' can be purchased. ", qty, l.Product.Name)
		}
		cands = append(cands, candidate{p: l.Product, qty: qty})
	}

	total := decimal.Zero
	for _, c := range cands {
		total = total.Add(c.p.Price.Mul(decimal.NewFromInt(int64(c.qty))))
	}
	if payment.LessThan(total) {
		partial = true
		note.WriteString("payment amount is insufficient for all items; a partial purchase will be processed.")
	}

	remaining := payment
	accepted := make([]AcceptedLine, 0, len(cands))
	for _, c := range cands {
		qty := c.qty
		cost := c.p.Price.Mul(decimal.NewFromInt(int64(qty)))
		if remaining.LessThan(cost) {
			// whole units the rest of the budget still buys, rounded down
			qty = int(remaining.Div(c.p.Price).IntPart())
		}
		if qty <= 0 {
			continue
		}
		remaining = remaining.Sub(c.p.Price.Mul(decimal.NewFromInt(int64(qty))))
		accepted = append(accepted, AcceptedLine{
			ProductID:   c.p.ID,
			ProductName: c.p.Name,
			Quantity:    qty,
			UnitPrice:   c.p.Price,
		})
	}

	return Allocation{
		Lines:   accepted,
		Total:   total,
		Paid:    payment,
		Change:  remaining,
		Partial: partial,
		Note:    strings.TrimSpace(note.String()),
	}, nil
}
