package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mivaca/backend/internal/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("database handle is required")

type RepositoryConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Repository persists whole-session snapshots, one table per entity type.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: cfg.Database, logger: logger}, nil
}

// SaveSession replaces the stored copy of a session. Snapshots whose version
// is not newer than the stored one are ignored, so out-of-order saves are harmless.
func (r *Repository) SaveSession(ctx context.Context, snapshot ledger.Snapshot) error {
	sessionID := snapshot.Session.ID
	if sessionID == "" {
		return fmt.Errorf("save session: %w", ledger.ErrSessionNotFound)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing sessionRecord
		err := tx.Where("session_id = ?", sessionID).Take(&existing).Error
		switch {
		case err == nil:
			if existing.Version >= snapshot.Session.Version {
				r.logger.Debug("stale snapshot skipped",
					zap.String("session_id", sessionID),
					zap.Int64("stored_version", existing.Version),
					zap.Int64("snapshot_version", snapshot.Session.Version))
				return nil
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		record := toSessionRecord(snapshot.Session)
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		for _, model := range []any{&dinerRecord{}, &lineItemRecord{}, &paymentRecord{}} {
			if err := tx.Where("session_id = ?", sessionID).Delete(model).Error; err != nil {
				return err
			}
		}

		diners := toDinerRecords(snapshot.Diners)
		if len(diners) > 0 {
			if err := tx.Create(&diners).Error; err != nil {
				return err
			}
		}
		items := toLineItemRecords(sessionID, snapshot.Session.LineItems)
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		payments := toPaymentRecords(snapshot.Payments)
		if len(payments) > 0 {
			if err := tx.Create(&payments).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSnapshots reads every stored session with its diners, items and payments.
func (r *Repository) LoadSnapshots(ctx context.Context) ([]ledger.Snapshot, error) {
	db := r.db.WithContext(ctx)

	var sessions []sessionRecord
	if err := db.Order("created_at_ms, session_id").Find(&sessions).Error; err != nil {
		return nil, err
	}
	var diners []dinerRecord
	if err := db.Order("session_id, position").Find(&diners).Error; err != nil {
		return nil, err
	}
	var items []lineItemRecord
	if err := db.Order("session_id, position").Find(&items).Error; err != nil {
		return nil, err
	}
	var payments []paymentRecord
	if err := db.Order("session_id, position").Find(&payments).Error; err != nil {
		return nil, err
	}

	snapshots := make([]ledger.Snapshot, 0, len(sessions))
	index := make(map[string]int, len(sessions))
	for _, record := range sessions {
		index[record.SessionID] = len(snapshots)
		snapshots = append(snapshots, ledger.Snapshot{Session: fromSessionRecord(record)})
	}
	for _, record := range diners {
		if position, ok := index[record.SessionID]; ok {
			snapshots[position].Diners = append(snapshots[position].Diners, fromDinerRecord(record))
		}
	}
	for _, record := range items {
		if position, ok := index[record.SessionID]; ok {
			snapshots[position].Session.LineItems = append(snapshots[position].Session.LineItems, fromLineItemRecord(record))
		}
	}
	for _, record := range payments {
		if position, ok := index[record.SessionID]; ok {
			snapshots[position].Payments = append(snapshots[position].Payments, fromPaymentRecord(record))
		}
	}
	return snapshots, nil
}

// RestoreInto loads every stored session into store and reports how many were restored.
func (r *Repository) RestoreInto(ctx context.Context, store *ledger.Store) (int, error) {
	snapshots, err := r.LoadSnapshots(ctx)
	if err != nil {
		return 0, err
	}
	for _, snapshot := range snapshots {
		if err := store.Restore(snapshot); err != nil {
			return 0, err
		}
	}
	r.logger.Info("sessions restored", zap.Int("count", len(snapshots)))
	return len(snapshots), nil
}

func toSessionRecord(session ledger.Session) sessionRecord {
	record := sessionRecord{
		SessionID:       session.ID,
		Name:            session.Name,
		HostID:          session.HostID,
		HostName:        session.HostName,
		PaymentQRImage:  session.PaymentQRImage,
		BankKey:         session.BankKey,
		TipPercent:      session.TipPercent,
		Active:          session.Active,
		Version:         session.Version,
		CreatedAtMillis: session.CreatedAt.UnixMilli(),
	}
	if session.OverrideBillTotal != nil {
		record.OverrideBillTotal = decimal.NewNullDecimal(*session.OverrideBillTotal)
	}
	return record
}

func fromSessionRecord(record sessionRecord) ledger.Session {
	session := ledger.Session{
		ID:             record.SessionID,
		Name:           record.Name,
		CreatedAt:      fromMillis(record.CreatedAtMillis),
		HostID:         record.HostID,
		HostName:       record.HostName,
		PaymentQRImage: record.PaymentQRImage,
		BankKey:        record.BankKey,
		TipPercent:     record.TipPercent,
		Active:         record.Active,
		Version:        record.Version,
	}
	if record.OverrideBillTotal.Valid {
		total := record.OverrideBillTotal.Decimal
		session.OverrideBillTotal = &total
	}
	return session
}

func toDinerRecords(diners []ledger.Diner) []dinerRecord {
	records := make([]dinerRecord, 0, len(diners))
	for position, diner := range diners {
		record := dinerRecord{
			DinerID:        diner.ID,
			SessionID:      diner.SessionID,
			Position:       position,
			Name:           diner.Name,
			JoinedAtMillis: diner.JoinedAt.UnixMilli(),
			MergedInto:     diner.MergedInto,
		}
		if diner.MergedAt != nil {
			mergedAt := diner.MergedAt.UnixMilli()
			record.MergedAtMillis = &mergedAt
		}
		records = append(records, record)
	}
	return records
}

func fromDinerRecord(record dinerRecord) ledger.Diner {
	diner := ledger.Diner{
		ID:         record.DinerID,
		SessionID:  record.SessionID,
		Name:       record.Name,
		JoinedAt:   fromMillis(record.JoinedAtMillis),
		MergedInto: record.MergedInto,
	}
	if record.MergedAtMillis != nil {
		mergedAt := fromMillis(*record.MergedAtMillis)
		diner.MergedAt = &mergedAt
	}
	return diner
}

func toLineItemRecords(sessionID string, items []ledger.LineItem) []lineItemRecord {
	records := make([]lineItemRecord, 0, len(items))
	for position, item := range items {
		records = append(records, lineItemRecord{
			LineItemID:          item.ID,
			SessionID:           sessionID,
			Position:            position,
			Description:         item.Description,
			UnitPrice:           item.UnitPrice,
			Quantity:            item.Quantity,
			DinerID:             item.DinerID,
			DinerName:           item.DinerName,
			AddedByHost:         item.AddedByHost,
			DistributionGroupID: item.DistributionGroupID,
			AddedAtMillis:       item.AddedAt.UnixMilli(),
		})
	}
	return records
}

func fromLineItemRecord(record lineItemRecord) ledger.LineItem {
	return ledger.LineItem{
		ID:                  record.LineItemID,
		Description:         record.Description,
		UnitPrice:           record.UnitPrice,
		Quantity:            record.Quantity,
		DinerID:             record.DinerID,
		DinerName:           record.DinerName,
		AddedByHost:         record.AddedByHost,
		DistributionGroupID: record.DistributionGroupID,
		AddedAt:             fromMillis(record.AddedAtMillis),
	}
}

func toPaymentRecords(payments []ledger.Payment) []paymentRecord {
	records := make([]paymentRecord, 0, len(payments))
	for position, payment := range payments {
		records = append(records, paymentRecord{
			PaymentID:    payment.ID,
			SessionID:    payment.SessionID,
			DinerID:      payment.DinerID,
			Position:     position,
			PayerName:    payment.PayerName,
			Amount:       payment.Amount,
			PaidAtMillis: payment.PaidAt.UnixMilli(),
		})
	}
	return records
}

func fromPaymentRecord(record paymentRecord) ledger.Payment {
	return ledger.Payment{
		ID:        record.PaymentID,
		SessionID: record.SessionID,
		DinerID:   record.DinerID,
		PayerName: record.PayerName,
		Amount:    record.Amount,
		PaidAt:    fromMillis(record.PaidAtMillis),
	}
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
