package ledger

import "github.com/shopspring/decimal"

// Subtotal sums every line item amount before tip.
func (tx *Tx) Subtotal() decimal.Decimal {
	return sumItems(tx.state.session.LineItems)
}

// Total is subtotal plus tip at the session tip percent.
func (tx *Tx) Total() decimal.Decimal {
	return WithTip(tx.Subtotal(), tx.state.session.TipPercent)
}

// Collected sums every registered payment.
func (tx *Tx) Collected() decimal.Decimal {
	collected := decimal.Zero
	for _, payment := range tx.state.payments {
		collected = collected.Add(payment.Amount)
	}
	return collected
}

// DinerTotals returns one entry per diner in join order. Items attributed to
// ids that never joined are reported after the registered diners.
func (tx *Tx) DinerTotals() []DinerTotal {
	percent := tx.state.session.TipPercent
	subtotals := make(map[string]decimal.Decimal)
	names := make(map[string]string)
	var strays []string
	known := make(map[string]bool, len(tx.state.diners))
	for _, diner := range tx.state.diners {
		known[diner.ID] = true
	}
	for _, item := range tx.state.session.LineItems {
		current, seen := subtotals[item.DinerID]
		if !seen && !known[item.DinerID] {
			strays = append(strays, item.DinerID)
			names[item.DinerID] = item.DinerName
		}
		subtotals[item.DinerID] = current.Add(item.Amount())
	}

	totals := make([]DinerTotal, 0, len(tx.state.diners)+len(strays))
	appendTotal := func(dinerID, name string, merged bool) {
		subtotal := subtotals[dinerID]
		entry := DinerTotal{
			DinerID:    dinerID,
			DinerName:  name,
			Merged:     merged,
			Subtotal:   subtotal,
			Tip:        TipOn(subtotal, percent),
			Total:      WithTip(subtotal, percent),
			PaidAmount: decimal.Zero,
		}
		if payment, ok := tx.PaymentFor(dinerID); ok {
			entry.Paid = true
			entry.PaidAmount = payment.Amount
		}
		totals = append(totals, entry)
	}
	for _, diner := range tx.state.diners {
		appendTotal(diner.ID, diner.Name, diner.Merged())
	}
	for _, dinerID := range strays {
		appendTotal(dinerID, names[dinerID], false)
	}
	return totals
}

// TipOn returns the tip owed on amount at percent.
func TipOn(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}

// WithTip returns amount plus its tip at percent.
func WithTip(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Add(TipOn(amount, percent))
}

// SplitEvenly divides amount into parts shares truncated to cents. The
// rounding remainder goes to the last share so the shares always sum to amount.
func SplitEvenly(amount decimal.Decimal, parts int) []decimal.Decimal {
	if parts <= 0 {
		return nil
	}
	share := amount.Div(decimal.NewFromInt(int64(parts))).Truncate(2)
	shares := make([]decimal.Decimal, parts)
	for index := 0; index < parts-1; index++ {
		shares[index] = share
	}
	shares[parts-1] = amount.Sub(share.Mul(decimal.NewFromInt(int64(parts - 1))))
	return shares
}

func sumItems(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Amount())
	}
	return sum
}
