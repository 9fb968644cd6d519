package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tx gives access to a single locked session. It is only valid inside the
// callback passed to Store.Update or Store.View.
type Tx struct {
	store       *Store
	state       *sessionState
	writable    bool
	dirty       bool
	addedDiners []string
}

func (tx *Tx) ensureWritable(op string) error {
	if !tx.writable {
		return newError(KindConflict, op, reasonReadOnly, ErrReadOnly)
	}
	return nil
}

func (tx *Tx) newID(op string) (string, error) {
	id, err := tx.store.ids.NewID()
	if err != nil {
		return "", newError(KindInvalidArgument, op, reasonIDGenerationError, err)
	}
	return id, nil
}

// SessionID returns the id of the locked session.
func (tx *Tx) SessionID() string {
	return tx.state.session.ID
}

// Session returns a copy of the locked session.
func (tx *Tx) Session() Session {
	return cloneSession(tx.state.session)
}

// Diners returns copies of the session diners in join order.
func (tx *Tx) Diners() []Diner {
	diners := make([]Diner, len(tx.state.diners))
	for index, diner := range tx.state.diners {
		diners[index] = cloneDiner(diner)
	}
	return diners
}

// Diner returns one diner of the locked session.
func (tx *Tx) Diner(dinerID string) (Diner, bool) {
	for _, diner := range tx.state.diners {
		if diner.ID == dinerID {
			return cloneDiner(diner), true
		}
	}
	return Diner{}, false
}

// LineItem returns one item of the locked session.
func (tx *Tx) LineItem(lineItemID string) (LineItem, bool) {
	for _, item := range tx.state.session.LineItems {
		if item.ID == lineItemID {
			return item, true
		}
	}
	return LineItem{}, false
}

// Payments returns the session payments in registration order.
func (tx *Tx) Payments() []Payment {
	return append([]Payment(nil), tx.state.payments...)
}

// HasPayments reports whether any payment was registered.
func (tx *Tx) HasPayments() bool {
	return len(tx.state.payments) > 0
}

// PaymentFor returns the first payment registered for a diner.
func (tx *Tx) PaymentFor(dinerID string) (Payment, bool) {
	for _, payment := range tx.state.payments {
		if payment.DinerID == dinerID {
			return payment, true
		}
	}
	return Payment{}, false
}

// Snapshot copies the locked session with its diners and payments.
func (tx *Tx) Snapshot() Snapshot {
	return Snapshot{
		Session:  tx.Session(),
		Diners:   tx.Diners(),
		Payments: tx.Payments(),
	}
}

// AddLineItem validates and appends a new item.
func (tx *Tx) AddLineItem(input NewLineItem) (LineItem, error) {
	const op = opAddLineItem
	if err := tx.ensureWritable(op); err != nil {
		return LineItem{}, err
	}

	description := strings.TrimSpace(input.Description)
	if description == "" {
		return LineItem{}, invalid(op, "missing_description", "description is required")
	}
	if !ValidMoney(input.UnitPrice) {
		return LineItem{}, invalid(op, "invalid_unit_price", "unit price must have at most %d decimal places and not exceed %s", MoneyDecimalPlaces, MaxMoney)
	}
	if !input.UnitPrice.IsPositive() {
		return LineItem{}, invalid(op, "invalid_unit_price", "unit price %s must be positive", input.UnitPrice)
	}
	if input.Quantity < 1 {
		return LineItem{}, invalid(op, "invalid_quantity", "quantity %d must be at least 1", input.Quantity)
	}
	dinerID := strings.TrimSpace(input.DinerID)
	if dinerID == "" {
		return LineItem{}, invalid(op, "missing_diner_id", "diner id is required")
	}

	dinerName := input.DinerName
	if diner, ok := tx.Diner(dinerID); ok {
		if diner.Merged() {
			return LineItem{}, conflict(op, "diner_merged", ErrDinerMerged)
		}
		if dinerName == "" {
			dinerName = diner.Name
		}
	}

	id, err := tx.newID(op)
	if err != nil {
		return LineItem{}, err
	}
	item := LineItem{
		ID:                  id,
		Description:         description,
		UnitPrice:           input.UnitPrice,
		Quantity:            input.Quantity,
		DinerID:             dinerID,
		DinerName:           dinerName,
		AddedByHost:         input.AddedByHost,
		DistributionGroupID: input.DistributionGroupID,
		AddedAt:             tx.store.now(),
	}
	tx.appendLineItem(item)
	return item, nil
}

func (tx *Tx) appendLineItem(item LineItem) {
	tx.state.session.LineItems = append(tx.state.session.LineItems, item)
	tx.dirty = true
}

// RemoveLineItem deletes the item when its id and owner both match.
func (tx *Tx) RemoveLineItem(lineItemID, requestingDinerID string) (bool, error) {
	if err := tx.ensureWritable(opRemoveLineItem); err != nil {
		return false, err
	}
	items := tx.state.session.LineItems
	for index, item := range items {
		if item.ID != lineItemID || item.DinerID != requestingDinerID {
			continue
		}
		tx.state.session.LineItems = append(items[:index:index], items[index+1:]...)
		tx.dirty = true
		return true, nil
	}
	return false, nil
}

// RemoveDistributionGroup deletes every item tagged with groupID.
func (tx *Tx) RemoveDistributionGroup(groupID string) (int, error) {
	const op = opRemoveGroup
	if err := tx.ensureWritable(op); err != nil {
		return 0, err
	}
	if groupID == "" {
		return 0, invalid(op, "missing_group_id", "distribution group id is required")
	}
	kept := make([]LineItem, 0, len(tx.state.session.LineItems))
	for _, item := range tx.state.session.LineItems {
		if item.DistributionGroupID == groupID {
			continue
		}
		kept = append(kept, item)
	}
	removed := len(tx.state.session.LineItems) - len(kept)
	if removed == 0 {
		return 0, notFound(op, "group_not_found", ErrGroupNotFound)
	}
	tx.state.session.LineItems = kept
	tx.dirty = true
	return removed, nil
}

// AddDiner registers a new participant of the locked session.
func (tx *Tx) AddDiner(name string) (Diner, error) {
	const op = opAddDiner
	if err := tx.ensureWritable(op); err != nil {
		return Diner{}, err
	}
	id, err := tx.newID(op)
	if err != nil {
		return Diner{}, err
	}
	diner := Diner{
		ID:        id,
		SessionID: tx.state.session.ID,
		Name:      name,
		JoinedAt:  tx.store.now(),
	}
	tx.state.diners = append(tx.state.diners, diner)
	tx.addedDiners = append(tx.addedDiners, id)
	tx.dirty = true

	tx.store.mu.Lock()
	tx.store.dinerSessions[id] = tx.state.session.ID
	tx.store.mu.Unlock()

	return diner, nil
}

// SetPaymentQRImage stores the QR reference; empty clears it.
func (tx *Tx) SetPaymentQRImage(imageRef string) error {
	if err := tx.ensureWritable(opSetPaymentQRImage); err != nil {
		return err
	}
	tx.state.session.PaymentQRImage = imageRef
	tx.dirty = true
	return nil
}

// SetBankKey stores the bank key; empty clears it.
func (tx *Tx) SetBankKey(key string) error {
	if err := tx.ensureWritable(opSetBankKey); err != nil {
		return err
	}
	tx.state.session.BankKey = key
	tx.dirty = true
	return nil
}

// SetOverrideBillTotal records the receipt total.
func (tx *Tx) SetOverrideBillTotal(total decimal.Decimal) error {
	const op = opSetOverrideBillTotal
	if err := tx.ensureWritable(op); err != nil {
		return err
	}
	if !ValidMoney(total) {
		return invalid(op, "invalid_total", "bill total must have at most %d decimal places and not exceed %s", MoneyDecimalPlaces, MaxMoney)
	}
	if total.IsNegative() {
		return invalid(op, "invalid_total", "bill total %s must not be negative", total)
	}
	tx.state.session.OverrideBillTotal = &total
	tx.dirty = true
	return nil
}

// SetTipPercent changes the tip rate of the session.
func (tx *Tx) SetTipPercent(percent decimal.Decimal) error {
	const op = opSetTipPercent
	if err := tx.ensureWritable(op); err != nil {
		return err
	}
	if !ValidMoney(percent) {
		return invalid(op, "invalid_tip_percent", "tip percent must have at most %d decimal places", MoneyDecimalPlaces)
	}
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return invalid(op, "invalid_tip_percent", "tip percent %s must be between 0 and 100", percent)
	}
	tx.state.session.TipPercent = percent
	tx.dirty = true
	return nil
}

// AddPayment appends a payment record.
func (tx *Tx) AddPayment(dinerID, payerName string, amount decimal.Decimal) (Payment, error) {
	const op = opAddPayment
	if err := tx.ensureWritable(op); err != nil {
		return Payment{}, err
	}
	if strings.TrimSpace(dinerID) == "" {
		return Payment{}, invalid(op, "missing_diner_id", "diner id is required")
	}
	if !ValidMoney(amount) {
		return Payment{}, invalid(op, "invalid_amount", "payment amount must have at most %d decimal places and not exceed %s", MoneyDecimalPlaces, MaxMoney)
	}
	if !amount.IsPositive() {
		return Payment{}, invalid(op, "invalid_amount", "payment amount %s must be positive", amount)
	}
	id, err := tx.newID(op)
	if err != nil {
		return Payment{}, err
	}
	payment := Payment{
		ID:        id,
		SessionID: tx.state.session.ID,
		DinerID:   dinerID,
		PayerName: payerName,
		Amount:    amount,
		PaidAt:    tx.store.now(),
	}
	tx.state.payments = append(tx.state.payments, payment)
	tx.dirty = true
	return payment, nil
}

// MergeDinerAccounts reassigns every item of fromDinerID to toDinerID and
// marks the source as merged. Both diners must belong to the locked session.
func (tx *Tx) MergeDinerAccounts(fromDinerID, toDinerID string) error {
	const op = opMergeDiners
	if err := tx.ensureWritable(op); err != nil {
		return err
	}
	if fromDinerID == "" || toDinerID == "" {
		return invalid(op, "missing_diner_id", "both diner ids are required")
	}
	if fromDinerID == toDinerID {
		return newError(KindInvalidArgument, op, "self_merge", ErrSelfMerge)
	}

	fromIndex, err := tx.memberIndex(op, fromDinerID)
	if err != nil {
		return err
	}
	toIndex, err := tx.memberIndex(op, toDinerID)
	if err != nil {
		return err
	}
	target := tx.state.diners[toIndex]
	if tx.state.diners[fromIndex].Merged() {
		return conflict(op, "source_merged", ErrDinerMerged)
	}
	if target.Merged() {
		return conflict(op, "target_merged", ErrDinerMerged)
	}

	for index := range tx.state.session.LineItems {
		item := &tx.state.session.LineItems[index]
		if item.DinerID != fromDinerID {
			continue
		}
		item.DinerID = target.ID
		item.DinerName = target.Name
	}

	mergedAt := tx.store.now()
	tx.state.diners[fromIndex].MergedInto = target.ID
	tx.state.diners[fromIndex].MergedAt = &mergedAt
	tx.dirty = true
	return nil
}

func (tx *Tx) memberIndex(op, dinerID string) (int, error) {
	for index, diner := range tx.state.diners {
		if diner.ID == dinerID {
			return index, nil
		}
	}
	if sessionID, ok := tx.store.dinerSession(dinerID); ok && sessionID != tx.state.session.ID {
		return -1, newError(KindInvalidArgument, op, "diner_outside_session", ErrDinerOutsideSession)
	}
	return -1, notFound(op, reasonDinerNotFound, ErrDinerNotFound)
}
