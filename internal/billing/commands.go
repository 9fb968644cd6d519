package billing

import (
	"context"
	"strings"

	"github.com/mivaca/backend/internal/ledger"
	"github.com/shopspring/decimal"
)

const (
	opCreateSession           = "billing.create_session"
	opJoinSession             = "billing.join_session"
	opAddLineItem             = "billing.add_line_item"
	opAddSharedItem           = "billing.add_shared_item"
	opRemoveLineItem          = "billing.remove_line_item"
	opRemoveDistributionGroup = "billing.remove_distribution_group"
	opRecordPayment           = "billing.record_payment"
	opSetTipPercent           = "billing.set_tip_percent"
	opCloseBill               = "billing.close_bill"
	opMergeDiners             = "billing.merge_diners"
	opSetPaymentQRImage       = "billing.set_payment_qr_image"
	opSetBankKey              = "billing.set_bank_key"
)

type CreateSessionCommand struct {
	Name     string
	HostName string
}

type AddLineItemCommand struct {
	SessionID   string
	DinerID     string
	Description string
	UnitPrice   decimal.Decimal
	Quantity    int64
}

// AddSharedItemCommand splits one charge evenly across several diners.
type AddSharedItemCommand struct {
	SessionID   string
	DinerIDs    []string
	Description string
	UnitPrice   decimal.Decimal
	Quantity    int64
}

type RecordPaymentCommand struct {
	SessionID string
	DinerID   string
	PayerName string
	Amount    decimal.Decimal
}

// CloseBillCommand sets the receipt total and optionally spreads the gap
// between the receipt and the logged items.
type CloseBillCommand struct {
	SessionID  string
	BillTotal  decimal.Decimal
	Distribute bool
}

// CreateSession opens a session and generates the host identity.
func (s *Service) CreateSession(ctx context.Context, cmd CreateSessionCommand) (ledger.Session, error) {
	name := strings.TrimSpace(cmd.Name)
	hostName := strings.TrimSpace(cmd.HostName)
	if name == "" {
		return ledger.Session{}, ledger.Invalidf(opCreateSession, "missing_name", "session name is required")
	}
	if hostName == "" {
		return ledger.Session{}, ledger.Invalidf(opCreateSession, "missing_host_name", "host name is required")
	}
	hostID, err := s.ids.NewID()
	if err != nil {
		s.logError(opCreateSession, "id_generation_failed", err)
		return ledger.Session{}, err
	}
	session, err := s.store.CreateSession(name, hostID, hostName)
	s.recordOutcome(opCreateSession, session.ID, err)
	if err != nil {
		return ledger.Session{}, err
	}
	if s.metrics != nil {
		s.metrics.SessionCreated()
	}
	s.afterCommit(ctx, opCreateSession, session.ID)
	return session, nil
}

// JoinSession registers a diner under an existing session.
func (s *Service) JoinSession(ctx context.Context, sessionID, name string) (ledger.Diner, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Diner{}, ledger.Invalidf(opJoinSession, "missing_name", "diner name is required")
	}
	var diner ledger.Diner
	err := s.execute(ctx, opJoinSession, sessionID, func(tx *ledger.Tx) error {
		var err error
		diner, err = tx.AddDiner(name)
		return err
	})
	return diner, err
}

// AddLineItem logs an item for a diner. Diners log for themselves; items
// logged by the host are marked as such.
func (s *Service) AddLineItem(ctx context.Context, actor Actor, cmd AddLineItemCommand) (ledger.LineItem, error) {
	var item ledger.LineItem
	err := s.execute(ctx, opAddLineItem, cmd.SessionID, func(tx *ledger.Tx) error {
		if err := requireSelfOrHost(opAddLineItem, actor, tx, cmd.DinerID); err != nil {
			return err
		}
		if err := requireOpenBill(opAddLineItem, tx); err != nil {
			return err
		}
		diner, err := billableDiner(opAddLineItem, tx, cmd.DinerID)
		if err != nil {
			return err
		}
		item, err = tx.AddLineItem(ledger.NewLineItem{
			Description: cmd.Description,
			UnitPrice:   cmd.UnitPrice,
			Quantity:    cmd.Quantity,
			DinerID:     diner.ID,
			DinerName:   diner.Name,
			AddedByHost: actor.IsHost(),
		})
		return err
	})
	return item, err
}

// AddSharedItem splits unitPrice × quantity evenly across the listed diners.
// The created items share one distribution group id.
func (s *Service) AddSharedItem(ctx context.Context, actor Actor, cmd AddSharedItemCommand) ([]ledger.LineItem, error) {
	const op = opAddSharedItem
	dinerIDs := uniqueIDs(cmd.DinerIDs)
	if len(dinerIDs) == 0 {
		return nil, ledger.Invalidf(op, "missing_diners", "at least one diner is required")
	}
	if !ledger.ValidMoney(cmd.UnitPrice) {
		return nil, ledger.Invalidf(op, "invalid_unit_price", "unit price must have at most %d decimal places and not exceed %s", ledger.MoneyDecimalPlaces, ledger.MaxMoney)
	}
	if !cmd.UnitPrice.IsPositive() {
		return nil, ledger.Invalidf(op, "invalid_unit_price", "unit price %s must be positive", cmd.UnitPrice)
	}
	if cmd.Quantity < 1 {
		return nil, ledger.Invalidf(op, "invalid_quantity", "quantity %d must be at least 1", cmd.Quantity)
	}
	shares := ledger.SplitEvenly(cmd.UnitPrice.Mul(decimal.NewFromInt(cmd.Quantity)), len(dinerIDs))
	if !shares[0].IsPositive() {
		return nil, ledger.Invalidf(op, "share_too_small", "amount cannot be split across %d diners", len(dinerIDs))
	}

	groupID, err := s.ids.NewID()
	if err != nil {
		s.logError(op, "id_generation_failed", err)
		return nil, err
	}

	var items []ledger.LineItem
	err = s.execute(ctx, op, cmd.SessionID, func(tx *ledger.Tx) error {
		if err := requireHost(op, actor, tx); err != nil {
			return err
		}
		if err := requireOpenBill(op, tx); err != nil {
			return err
		}
		diners := make([]ledger.Diner, 0, len(dinerIDs))
		for _, dinerID := range dinerIDs {
			diner, err := billableDiner(op, tx, dinerID)
			if err != nil {
				return err
			}
			diners = append(diners, diner)
		}
		items = make([]ledger.LineItem, 0, len(diners))
		for index, diner := range diners {
			item, err := tx.AddLineItem(ledger.NewLineItem{
				Description:         cmd.Description,
				UnitPrice:           shares[index],
				Quantity:            1,
				DinerID:             diner.ID,
				DinerName:           diner.Name,
				AddedByHost:         true,
				DistributionGroupID: groupID,
			})
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// RemoveLineItem deletes an item and reports how many items went away.
// The host removing a shared item removes its whole distribution group.
func (s *Service) RemoveLineItem(ctx context.Context, actor Actor, sessionID, lineItemID string) (int, error) {
	const op = opRemoveLineItem
	removed := 0
	err := s.execute(ctx, op, sessionID, func(tx *ledger.Tx) error {
		if err := authorize(op, actor, tx); err != nil {
			return err
		}
		item, ok := tx.LineItem(lineItemID)
		if !ok || (!actor.IsHost() && item.DinerID != actor.ParticipantID) {
			return ledger.NotFoundf(op, "line_item_not_found", ledger.ErrLineItemNotFound)
		}
		if !actor.IsHost() && item.AddedByHost {
			return ledger.Unauthorizedf(op, "host_item", ledger.ErrHostItem)
		}
		if err := requireOpenBill(op, tx); err != nil {
			return err
		}

		if actor.IsHost() && item.DistributionGroupID != "" {
			var err error
			removed, err = removeGroup(op, tx, item.DistributionGroupID)
			return err
		}

		if _, paid := tx.PaymentFor(item.DinerID); paid {
			return ledger.Conflictf(op, "diner_paid", ledger.ErrDinerPaid)
		}
		ok, err := tx.RemoveLineItem(item.ID, item.DinerID)
		if err != nil {
			return err
		}
		if !ok {
			return ledger.NotFoundf(op, "line_item_not_found", ledger.ErrLineItemNotFound)
		}
		removed = 1
		return nil
	})
	return removed, err
}

// RemoveDistributionGroup deletes every item of one shared charge.
func (s *Service) RemoveDistributionGroup(ctx context.Context, actor Actor, sessionID, groupID string) (int, error) {
	const op = opRemoveDistributionGroup
	removed := 0
	err := s.execute(ctx, op, sessionID, func(tx *ledger.Tx) error {
		if err := requireHost(op, actor, tx); err != nil {
			return err
		}
		if err := requireOpenBill(op, tx); err != nil {
			return err
		}
		var err error
		removed, err = removeGroup(op, tx, groupID)
		return err
	})
	return removed, err
}

func removeGroup(op string, tx *ledger.Tx, groupID string) (int, error) {
	for _, item := range tx.Session().LineItems {
		if item.DistributionGroupID != groupID {
			continue
		}
		if _, paid := tx.PaymentFor(item.DinerID); paid {
			return 0, ledger.Conflictf(op, "diner_paid", ledger.ErrDinerPaid)
		}
	}
	return tx.RemoveDistributionGroup(groupID)
}

// RecordPayment registers the single payment allowed per diner.
func (s *Service) RecordPayment(ctx context.Context, actor Actor, cmd RecordPaymentCommand) (ledger.Payment, error) {
	const op = opRecordPayment
	payerName := strings.TrimSpace(cmd.PayerName)
	if payerName == "" {
		return ledger.Payment{}, ledger.Invalidf(op, "missing_payer_name", "payer name is required")
	}
	var payment ledger.Payment
	err := s.execute(ctx, op, cmd.SessionID, func(tx *ledger.Tx) error {
		if err := requireSelfOrHost(op, actor, tx, cmd.DinerID); err != nil {
			return err
		}
		diner, ok := tx.Diner(cmd.DinerID)
		if !ok {
			return ledger.NotFoundf(op, "diner_not_found", ledger.ErrDinerNotFound)
		}
		if diner.Merged() {
			return ledger.Conflictf(op, "diner_merged", ledger.ErrDinerMerged)
		}
		if _, paid := tx.PaymentFor(diner.ID); paid {
			return ledger.Conflictf(op, "duplicate_payment", ledger.ErrDuplicatePayment)
		}
		var err error
		payment, err = tx.AddPayment(diner.ID, payerName, cmd.Amount)
		return err
	})
	if err != nil {
		return ledger.Payment{}, err
	}
	if s.metrics != nil {
		s.metrics.PaymentRecorded(payment.Amount.InexactFloat64())
	}
	return payment, nil
}

// SetTipPercent changes the tip rate while no payment exists.
func (s *Service) SetTipPercent(ctx context.Context, actor Actor, sessionID string, percent decimal.Decimal) error {
	const op = opSetTipPercent
	return s.execute(ctx, op, sessionID, func(tx *ledger.Tx) error {
		if err := requireHost(op, actor, tx); err != nil {
			return err
		}
		if tx.HasPayments() {
			return ledger.Conflictf(op, "payments_recorded", ledger.ErrPaymentsRecorded)
		}
		return tx.SetTipPercent(percent)
	})
}

// CloseBill records the receipt total once. With Distribute set the gap
// between the receipt and the logged items is spread across unpaid diners in
// the same step, so either both happen or neither does.
func (s *Service) CloseBill(ctx context.Context, actor Actor, cmd CloseBillCommand) ([]ledger.LineItem, error) {
	const op = opCloseBill
	var items []ledger.LineItem
	err := s.execute(ctx, op, cmd.SessionID, func(tx *ledger.Tx) error {
		if err := requireHost(op, actor, tx); err != nil {
			return err
		}
		if tx.HasPayments() {
			return ledger.Conflictf(op, "payments_recorded", ledger.ErrPaymentsRecorded)
		}
		if err := requireOpenBill(op, tx); err != nil {
			return err
		}
		if err := tx.SetOverrideBillTotal(cmd.BillTotal); err != nil {
			return err
		}
		if !cmd.Distribute {
			return nil
		}
		var err error
		items, err = tx.DistributeDifference(cmd.BillTotal)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// MergeDiners folds a duplicate diner account into another one.
func (s *Service) MergeDiners(ctx context.Context, actor Actor, sessionID, fromDinerID, toDinerID string) error {
	const op = opMergeDiners
	return s.execute(ctx, op, sessionID, func(tx *ledger.Tx) error {
		if err := requireHost(op, actor, tx); err != nil {
			return err
		}
		if fromDinerID == toDinerID {
			return tx.MergeDinerAccounts(fromDinerID, toDinerID)
		}
		for _, dinerID := range []string{fromDinerID, toDinerID} {
			if _, paid := tx.PaymentFor(dinerID); paid {
				return ledger.Conflictf(op, "diner_paid", ledger.ErrDinerPaid)
			}
		}
		return tx.MergeDinerAccounts(fromDinerID, toDinerID)
	})
}

// SetPaymentQRImage stores the QR image reference shown to diners; blank clears it.
func (s *Service) SetPaymentQRImage(ctx context.Context, actor Actor, sessionID, imageRef string) error {
	const op = opSetPaymentQRImage
	return s.execute(ctx, op, sessionID, func(tx *ledger.Tx) error {
		if err := requireHost(op, actor, tx); err != nil {
			return err
		}
		return tx.SetPaymentQRImage(strings.TrimSpace(imageRef))
	})
}

// SetBankKey stores the transfer key shown to diners; blank clears it.
func (s *Service) SetBankKey(ctx context.Context, actor Actor, sessionID, key string) error {
	const op = opSetBankKey
	return s.execute(ctx, op, sessionID, func(tx *ledger.Tx) error {
		if err := requireHost(op, actor, tx); err != nil {
			return err
		}
		return tx.SetBankKey(strings.TrimSpace(key))
	})
}

func requireOpenBill(op string, tx *ledger.Tx) error {
	if tx.Session().BillClosed() {
		return ledger.Conflictf(op, "bill_closed", ledger.ErrBillClosed)
	}
	return nil
}

// billableDiner returns a diner of the session that can still receive items.
func billableDiner(op string, tx *ledger.Tx, dinerID string) (ledger.Diner, error) {
	diner, ok := tx.Diner(dinerID)
	if !ok {
		return ledger.Diner{}, ledger.NotFoundf(op, "diner_not_found", ledger.ErrDinerNotFound)
	}
	if diner.Merged() {
		return ledger.Diner{}, ledger.Conflictf(op, "diner_merged", ledger.ErrDinerMerged)
	}
	if _, paid := tx.PaymentFor(diner.ID); paid {
		return ledger.Diner{}, ledger.Conflictf(op, "diner_paid", ledger.ErrDinerPaid)
	}
	return diner, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}
