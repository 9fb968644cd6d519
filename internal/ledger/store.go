package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	opCreateSession         = "ledger.create_session"
	opGetSession            = "ledger.get_session"
	opUpdate                = "ledger.update"
	opView                  = "ledger.view"
	opAddLineItem           = "ledger.add_line_item"
	opRemoveLineItem        = "ledger.remove_line_item"
	opRemoveGroup           = "ledger.remove_distribution_group"
	opAddDiner              = "ledger.add_diner"
	opGetDiner              = "ledger.get_diner"
	opSetPaymentQRImage     = "ledger.set_payment_qr_image"
	opSetBankKey            = "ledger.set_bank_key"
	opSetOverrideBillTotal  = "ledger.set_override_bill_total"
	opSetTipPercent         = "ledger.set_tip_percent"
	opAddPayment            = "ledger.add_payment"
	opMergeDiners           = "ledger.merge_diner_accounts"
	opDistributeDifference  = "ledger.distribute_difference"
	opRestore               = "ledger.restore"
	reasonSessionNotFound   = "session_not_found"
	reasonDinerNotFound     = "diner_not_found"
	reasonReadOnly          = "read_only"
	reasonIDGenerationError = "id_generation_failed"
)

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Clock      func() time.Time
	IDProvider IDProvider
}

// Store is the exclusive owner of all sessions, diners, line items and payments.
// Each session is guarded by its own lock; Update and View are the only ways in.
type Store struct {
	mu            sync.RWMutex
	sessions      map[string]*sessionState
	dinerSessions map[string]string
	clock         func() time.Time
	ids           IDProvider
}

type sessionState struct {
	mu       sync.RWMutex
	session  Session
	diners   []Diner
	payments []Payment
}

// NewStore constructs an empty in-memory store.
func NewStore(cfg StoreConfig) *Store {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	return &Store{
		sessions:      make(map[string]*sessionState),
		dinerSessions: make(map[string]string),
		clock:         clock,
		ids:           ids,
	}
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

func (s *Store) lookup(sessionID string) (*sessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	return state, ok
}

func (s *Store) dinerSession(dinerID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.dinerSessions[dinerID]
	return sessionID, ok
}

// Update runs fn with exclusive access to one session. When fn returns an
// error every change it made is discarded.
func (s *Store) Update(sessionID string, fn func(tx *Tx) error) error {
	state, ok := s.lookup(sessionID)
	if !ok {
		return notFound(opUpdate, reasonSessionNotFound, ErrSessionNotFound)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	backup := state.clone()
	tx := &Tx{store: s, state: state, writable: true}
	if err := fn(tx); err != nil {
		s.rollback(state, backup, tx.addedDiners)
		return err
	}
	if tx.dirty {
		state.session.Version++
	}
	return nil
}

// View runs fn with shared access to one session.
func (s *Store) View(sessionID string, fn func(tx *Tx) error) error {
	state, ok := s.lookup(sessionID)
	if !ok {
		return notFound(opView, reasonSessionNotFound, ErrSessionNotFound)
	}

	state.mu.RLock()
	defer state.mu.RUnlock()

	return fn(&Tx{store: s, state: state})
}

func (s *Store) rollback(state *sessionState, backup sessionState, addedDiners []string) {
	state.session = backup.session
	state.diners = backup.diners
	state.payments = backup.payments
	if len(addedDiners) == 0 {
		return
	}
	s.mu.Lock()
	for _, dinerID := range addedDiners {
		delete(s.dinerSessions, dinerID)
	}
	s.mu.Unlock()
}

// CreateSession opens a new bill owned by the given host.
func (s *Store) CreateSession(name, hostID, hostName string) (Session, error) {
	sessionID, err := s.ids.NewID()
	if err != nil {
		return Session{}, newError(KindInvalidArgument, opCreateSession, reasonIDGenerationError, err)
	}
	state := &sessionState{
		session: Session{
			ID:         sessionID,
			Name:       name,
			CreatedAt:  s.now(),
			HostID:     hostID,
			HostName:   hostName,
			TipPercent: decimal.NewFromInt(DefaultTipPercent),
			Active:     true,
			Version:    1,
		},
	}

	s.mu.Lock()
	s.sessions[sessionID] = state
	s.mu.Unlock()

	return cloneSession(state.session), nil
}

// GetSession returns a copy of the session.
func (s *Store) GetSession(sessionID string) (Session, error) {
	var session Session
	err := s.View(sessionID, func(tx *Tx) error {
		session = tx.Session()
		return nil
	})
	if err != nil {
		return Session{}, notFound(opGetSession, reasonSessionNotFound, ErrSessionNotFound)
	}
	return session, nil
}

// AddLineItem appends an item to the session.
func (s *Store) AddLineItem(sessionID string, item NewLineItem) (LineItem, error) {
	var added LineItem
	err := s.Update(sessionID, func(tx *Tx) error {
		var err error
		added, err = tx.AddLineItem(item)
		return err
	})
	return added, err
}

// RemoveLineItem deletes the item only when both its id and its owner match.
// A false result covers both "no such item" and "not your item".
func (s *Store) RemoveLineItem(sessionID, lineItemID, requestingDinerID string) bool {
	removed := false
	_ = s.Update(sessionID, func(tx *Tx) error {
		var err error
		removed, err = tx.RemoveLineItem(lineItemID, requestingDinerID)
		return err
	})
	return removed
}

// RemoveDistributionGroup deletes every item created for one shared charge.
func (s *Store) RemoveDistributionGroup(sessionID, groupID string) (int, error) {
	removed := 0
	err := s.Update(sessionID, func(tx *Tx) error {
		var err error
		removed, err = tx.RemoveDistributionGroup(groupID)
		return err
	})
	return removed, err
}

// AddDiner registers a new participant of an existing session.
func (s *Store) AddDiner(sessionID, name string) (Diner, error) {
	var diner Diner
	err := s.Update(sessionID, func(tx *Tx) error {
		var err error
		diner, err = tx.AddDiner(name)
		return err
	})
	return diner, err
}

// GetDiner looks a diner up by id across all sessions.
func (s *Store) GetDiner(dinerID string) (Diner, error) {
	sessionID, ok := s.dinerSession(dinerID)
	if !ok {
		return Diner{}, notFound(opGetDiner, reasonDinerNotFound, ErrDinerNotFound)
	}
	var diner Diner
	err := s.View(sessionID, func(tx *Tx) error {
		found, ok := tx.Diner(dinerID)
		if !ok {
			return notFound(opGetDiner, reasonDinerNotFound, ErrDinerNotFound)
		}
		diner = found
		return nil
	})
	return diner, err
}

// ListDinersBySession returns the diners of a session in join order.
func (s *Store) ListDinersBySession(sessionID string) []Diner {
	var diners []Diner
	_ = s.View(sessionID, func(tx *Tx) error {
		diners = tx.Diners()
		return nil
	})
	return diners
}

// SetPaymentQRImage stores the payment QR reference; an empty value clears it.
func (s *Store) SetPaymentQRImage(sessionID, imageRef string) error {
	return s.Update(sessionID, func(tx *Tx) error {
		return tx.SetPaymentQRImage(imageRef)
	})
}

// SetBankKey stores the bank transfer key; an empty value clears it.
func (s *Store) SetBankKey(sessionID, key string) error {
	return s.Update(sessionID, func(tx *Tx) error {
		return tx.SetBankKey(key)
	})
}

// SetOverrideBillTotal records the receipt total. The "no payments yet" and
// one-shot gates belong to the caller.
func (s *Store) SetOverrideBillTotal(sessionID string, total decimal.Decimal) error {
	return s.Update(sessionID, func(tx *Tx) error {
		return tx.SetOverrideBillTotal(total)
	})
}

// SetTipPercent changes the tip rate. The "no payments yet" gate belongs to the caller.
func (s *Store) SetTipPercent(sessionID string, percent decimal.Decimal) error {
	return s.Update(sessionID, func(tx *Tx) error {
		return tx.SetTipPercent(percent)
	})
}

// AddPayment appends a payment. Duplicate detection belongs to the caller.
func (s *Store) AddPayment(sessionID, dinerID, payerName string, amount decimal.Decimal) (Payment, error) {
	var payment Payment
	err := s.Update(sessionID, func(tx *Tx) error {
		var err error
		payment, err = tx.AddPayment(dinerID, payerName, amount)
		return err
	})
	return payment, err
}

// ListPayments returns the payments of a session in registration order.
func (s *Store) ListPayments(sessionID string) []Payment {
	var payments []Payment
	_ = s.View(sessionID, func(tx *Tx) error {
		payments = tx.Payments()
		return nil
	})
	return payments
}

// ComputeTotal returns subtotal plus tip, or zero for an unknown session.
func (s *Store) ComputeTotal(sessionID string) decimal.Decimal {
	total := decimal.Zero
	_ = s.View(sessionID, func(tx *Tx) error {
		total = tx.Total()
		return nil
	})
	return total
}

// ComputeCollected sums the payments of a session.
func (s *Store) ComputeCollected(sessionID string) decimal.Decimal {
	collected := decimal.Zero
	_ = s.View(sessionID, func(tx *Tx) error {
		collected = tx.Collected()
		return nil
	})
	return collected
}

// ComputeDinerTotals returns the per-diner breakdown of the bill.
func (s *Store) ComputeDinerTotals(sessionID string) ([]DinerTotal, error) {
	var totals []DinerTotal
	err := s.View(sessionID, func(tx *Tx) error {
		totals = tx.DinerTotals()
		return nil
	})
	return totals, err
}

// MergeDinerAccounts moves every item of fromDinerID to toDinerID and retires the source.
func (s *Store) MergeDinerAccounts(sessionID, fromDinerID, toDinerID string) error {
	if fromDinerID == toDinerID {
		return newError(KindInvalidArgument, opMergeDiners, "self_merge", ErrSelfMerge)
	}
	return s.Update(sessionID, func(tx *Tx) error {
		return tx.MergeDinerAccounts(fromDinerID, toDinerID)
	})
}

// DistributeDifference spreads the gap between the receipt and the logged items
// over the diners who have not paid yet.
func (s *Store) DistributeDifference(sessionID string, overrideTotal decimal.Decimal) ([]LineItem, error) {
	var items []LineItem
	err := s.Update(sessionID, func(tx *Tx) error {
		var err error
		items, err = tx.DistributeDifference(overrideTotal)
		return err
	})
	return items, err
}

// Snapshot copies a session together with its diners and payments.
func (s *Store) Snapshot(sessionID string) (Snapshot, error) {
	var snapshot Snapshot
	err := s.View(sessionID, func(tx *Tx) error {
		snapshot = tx.Snapshot()
		return nil
	})
	return snapshot, err
}

// Restore installs a previously captured snapshot, replacing any session with the same id.
func (s *Store) Restore(snapshot Snapshot) error {
	if snapshot.Session.ID == "" {
		return invalid(opRestore, "missing_session_id", "snapshot session id is required")
	}
	state := &sessionState{
		session:  cloneSession(snapshot.Session),
		diners:   append([]Diner(nil), snapshot.Diners...),
		payments: append([]Payment(nil), snapshot.Payments...),
	}
	for index := range state.diners {
		state.diners[index] = cloneDiner(state.diners[index])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for dinerID, sessionID := range s.dinerSessions {
		if sessionID == state.session.ID {
			delete(s.dinerSessions, dinerID)
		}
	}
	s.sessions[state.session.ID] = state
	for _, diner := range state.diners {
		s.dinerSessions[diner.ID] = state.session.ID
	}
	return nil
}

func (state *sessionState) clone() sessionState {
	diners := make([]Diner, len(state.diners))
	for index, diner := range state.diners {
		diners[index] = cloneDiner(diner)
	}
	return sessionState{
		session:  cloneSession(state.session),
		diners:   diners,
		payments: append([]Payment(nil), state.payments...),
	}
}

func cloneSession(session Session) Session {
	copied := session
	copied.LineItems = append([]LineItem(nil), session.LineItems...)
	if session.OverrideBillTotal != nil {
		total := *session.OverrideBillTotal
		copied.OverrideBillTotal = &total
	}
	return copied
}

func cloneDiner(diner Diner) Diner {
	copied := diner
	if diner.MergedAt != nil {
		mergedAt := *diner.MergedAt
		copied.MergedAt = &mergedAt
	}
	return copied
}
