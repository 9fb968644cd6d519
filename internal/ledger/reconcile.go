package ledger

import "github.com/shopspring/decimal"

// RestaurantSubtotal backs the tip out of a receipt total, rounded to cents.
func RestaurantSubtotal(billTotal, tipPercent decimal.Decimal) decimal.Decimal {
	divisor := decimal.NewFromInt(1).Add(tipPercent.Div(hundred))
	return billTotal.Div(divisor).Round(2)
}

// DistributeDifference compares the receipt with the logged items and adds one
// host item per unpaid active diner so the subtotals agree. Differences of at
// most MaterialDifference are ignored and yield no items, and diners whose
// share truncates to zero get no item.
func (tx *Tx) DistributeDifference(overrideTotal decimal.Decimal) ([]LineItem, error) {
	const op = opDistributeDifference
	if err := tx.ensureWritable(op); err != nil {
		return nil, err
	}
	if !ValidMoney(overrideTotal) {
		return nil, invalid(op, "invalid_total", "bill total must have at most %d decimal places and not exceed %s", MoneyDecimalPlaces, MaxMoney)
	}
	if overrideTotal.IsNegative() {
		return nil, invalid(op, "invalid_total", "bill total %s must not be negative", overrideTotal)
	}

	restaurantSubtotal := RestaurantSubtotal(overrideTotal, tx.state.session.TipPercent)
	difference := restaurantSubtotal.Sub(tx.Subtotal())
	if difference.Abs().LessThanOrEqual(MaterialDifference) {
		return nil, nil
	}

	targets := tx.distributionTargets()
	if len(targets) == 0 {
		return nil, conflict(op, "no_diners", ErrNoDinersToDistribute)
	}

	shares := SplitEvenly(difference, len(targets))
	if difference.IsNegative() {
		for index, target := range targets {
			remaining := tx.dinerSubtotal(target.ID).Add(shares[index])
			if remaining.IsNegative() {
				return nil, invalid(op, "difference_exceeds_subtotal",
					"bill total %s leaves diner %s with a negative subtotal", overrideTotal, target.ID)
			}
		}
	}

	now := tx.store.now()
	items := make([]LineItem, 0, len(targets))
	for index, target := range targets {
		if shares[index].IsZero() {
			continue
		}
		id, err := tx.newID(op)
		if err != nil {
			return nil, err
		}
		item := LineItem{
			ID:          id,
			Description: DifferenceDescription,
			UnitPrice:   shares[index],
			Quantity:    1,
			DinerID:     target.ID,
			DinerName:   target.Name,
			AddedByHost: true,
			AddedAt:     now,
		}
		tx.appendLineItem(item)
		items = append(items, item)
	}
	return items, nil
}

// distributionTargets lists active diners without a payment, in join order.
func (tx *Tx) distributionTargets() []Diner {
	var targets []Diner
	for _, diner := range tx.state.diners {
		if diner.Merged() {
			continue
		}
		if _, paid := tx.PaymentFor(diner.ID); paid {
			continue
		}
		targets = append(targets, diner)
	}
	return targets
}

func (tx *Tx) dinerSubtotal(dinerID string) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range tx.state.session.LineItems {
		if item.DinerID == dinerID {
			sum = sum.Add(item.Amount())
		}
	}
	return sum
}
