package database

import (
	"errors"
	"time"

	"github.com/mivaca/backend/internal/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillTipPercent  = "2024-06-01_backfill_tip_percent"
	migrationDropOrphanLineItems = "2024-07-15_drop_orphan_line_items"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillTipPercent, apply: backfillTipPercent},
		{name: migrationDropOrphanLineItems, apply: dropOrphanLineItems},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillTipPercent gives sessions stored without a tip rate the default one.
func backfillTipPercent(db *gorm.DB) error {
	return db.Model(&sessionRecord{}).
		Where("tip_percent IS NULL OR tip_percent = ''").
		Update("tip_percent", decimal.NewFromInt(ledger.DefaultTipPercent)).Error
}

// dropOrphanLineItems removes items whose session no longer exists.
func dropOrphanLineItems(db *gorm.DB) error {
	return db.Where("session_id NOT IN (?)", db.Model(&sessionRecord{}).Select("session_id")).
		Delete(&lineItemRecord{}).Error
}
