package database

import (
	"github.com/shopspring/decimal"
)

// sessionRecord stores the scalar fields of a session.
type sessionRecord struct {
	SessionID         string              `gorm:"column:session_id;primaryKey;size:64;not null"`
	Name              string              `gorm:"column:name;size:190;not null"`
	HostID            string              `gorm:"column:host_id;size:64;not null"`
	HostName          string              `gorm:"column:host_name;size:190;not null"`
	PaymentQRImage    string              `gorm:"column:payment_qr_image;type:text;not null;default:''"`
	BankKey           string              `gorm:"column:bank_key;size:190;not null;default:''"`
	OverrideBillTotal decimal.NullDecimal `gorm:"column:override_bill_total;type:text"`
	TipPercent        decimal.Decimal     `gorm:"column:tip_percent;type:text;not null"`
	Active            bool                `gorm:"column:active;not null"`
	Version           int64               `gorm:"column:version;not null"`
	CreatedAtMillis   int64               `gorm:"column:created_at_ms;not null"`
}

func (sessionRecord) TableName() string {
	return "sessions"
}

type dinerRecord struct {
	DinerID        string `gorm:"column:diner_id;primaryKey;size:64;not null"`
	SessionID      string `gorm:"column:session_id;size:64;not null;index:idx_diners_session_position,priority:1"`
	Position       int    `gorm:"column:position;not null;index:idx_diners_session_position,priority:2"`
	Name           string `gorm:"column:name;size:190;not null"`
	JoinedAtMillis int64  `gorm:"column:joined_at_ms;not null"`
	MergedInto     string `gorm:"column:merged_into;size:64;not null;default:''"`
	MergedAtMillis *int64 `gorm:"column:merged_at_ms"`
}

func (dinerRecord) TableName() string {
	return "diners"
}

type lineItemRecord struct {
	LineItemID          string          `gorm:"column:line_item_id;primaryKey;size:64;not null"`
	SessionID           string          `gorm:"column:session_id;size:64;not null;index:idx_line_items_session_position,priority:1"`
	Position            int             `gorm:"column:position;not null;index:idx_line_items_session_position,priority:2"`
	Description         string          `gorm:"column:description;size:190;not null"`
	UnitPrice           decimal.Decimal `gorm:"column:unit_price;type:text;not null"`
	Quantity            int64           `gorm:"column:quantity;not null"`
	DinerID             string          `gorm:"column:diner_id;size:64;not null"`
	DinerName           string          `gorm:"column:diner_name;size:190;not null"`
	AddedByHost         bool            `gorm:"column:added_by_host;not null"`
	DistributionGroupID string          `gorm:"column:distribution_group_id;size:64;not null;default:''"`
	AddedAtMillis       int64           `gorm:"column:added_at_ms;not null"`
}

func (lineItemRecord) TableName() string {
	return "line_items"
}

type paymentRecord struct {
	PaymentID    string          `gorm:"column:payment_id;primaryKey;size:64;not null"`
	SessionID    string          `gorm:"column:session_id;size:64;not null;uniqueIndex:idx_payments_session_diner,priority:1;index:idx_payments_session_position,priority:1"`
	DinerID      string          `gorm:"column:diner_id;size:64;not null;uniqueIndex:idx_payments_session_diner,priority:2"`
	Position     int             `gorm:"column:position;not null;index:idx_payments_session_position,priority:2"`
	PayerName    string          `gorm:"column:payer_name;size:190;not null"`
	Amount       decimal.Decimal `gorm:"column:amount;type:text;not null"`
	PaidAtMillis int64           `gorm:"column:paid_at_ms;not null"`
}

func (paymentRecord) TableName() string {
	return "payments"
}
