package billing

import (
	"context"

	"github.com/mivaca/backend/internal/ledger"
	"github.com/shopspring/decimal"
)

// SessionView is a session together with its current total.
type SessionView struct {
	Session ledger.Session
	Total   decimal.Decimal
}

// Summary reconciles what was collected against what is owed.
type Summary struct {
	SessionID         string
	Version           int64
	TipPercent        decimal.Decimal
	Subtotal          decimal.Decimal
	Total             decimal.Decimal
	OverrideBillTotal *decimal.Decimal
	Collected         decimal.Decimal
	Outstanding       decimal.Decimal
	Diners            []ledger.DinerTotal
	PaidDiners        int
	ActiveDiners      int
}

func (s *Service) GetSession(_ context.Context, sessionID string) (SessionView, error) {
	var view SessionView
	err := s.store.View(sessionID, func(tx *ledger.Tx) error {
		view = SessionView{Session: tx.Session(), Total: tx.Total()}
		return nil
	})
	return view, err
}

// Total returns the current subtotal plus tip of a session, zero when absent.
func (s *Service) Total(sessionID string) decimal.Decimal {
	return s.store.ComputeTotal(sessionID)
}

func (s *Service) ListDiners(_ context.Context, sessionID string) ([]ledger.Diner, error) {
	var diners []ledger.Diner
	err := s.store.View(sessionID, func(tx *ledger.Tx) error {
		diners = tx.Diners()
		return nil
	})
	return diners, err
}

// ListPayments returns the payments of a session and their sum.
func (s *Service) ListPayments(_ context.Context, sessionID string) ([]ledger.Payment, decimal.Decimal, error) {
	var payments []ledger.Payment
	collected := decimal.Zero
	err := s.store.View(sessionID, func(tx *ledger.Tx) error {
		payments = tx.Payments()
		collected = tx.Collected()
		return nil
	})
	return payments, collected, err
}

// Summary reads totals, collections and the per-diner breakdown in one consistent view.
func (s *Service) Summary(_ context.Context, sessionID string) (Summary, error) {
	var summary Summary
	err := s.store.View(sessionID, func(tx *ledger.Tx) error {
		session := tx.Session()
		total := tx.Total()
		collected := tx.Collected()
		summary = Summary{
			SessionID:         session.ID,
			Version:           session.Version,
			TipPercent:        session.TipPercent,
			Subtotal:          tx.Subtotal(),
			Total:             total,
			OverrideBillTotal: session.OverrideBillTotal,
			Collected:         collected,
			Outstanding:       total.Sub(collected),
			Diners:            tx.DinerTotals(),
		}
		for _, entry := range summary.Diners {
			if entry.Merged {
				continue
			}
			summary.ActiveDiners++
			if entry.Paid {
				summary.PaidDiners++
			}
		}
		return nil
	})
	return summary, err
}
