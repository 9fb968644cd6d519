package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultTipPercent is applied to every new session.
	DefaultTipPercent = 10
	// DifferenceDescription labels the synthetic items created by bill distribution.
	DifferenceDescription = "Restaurant difference"
)

const (
	// MoneyDecimalPlaces is the precision of every amount and rate the ledger accepts.
	MoneyDecimalPlaces = 2
	minMoneyExponent   = -12
	maxMoneyExponent   = 15
)

var (
	// MaterialDifference is the smallest subtotal gap worth distributing.
	MaterialDifference = decimal.RequireFromString("0.01")
	// MaxMoney bounds the magnitude of any single amount.
	MaxMoney = decimal.New(1, 12)
	hundred  = decimal.NewFromInt(100)
)

// ValidMoney reports whether value has at most cent precision and a magnitude
// no larger than MaxMoney. The exponent is checked first so values such as
// 1e-20000000 are refused before any rescaling happens.
func ValidMoney(value decimal.Decimal) bool {
	exponent := value.Exponent()
	if exponent < minMoneyExponent || exponent > maxMoneyExponent {
		return false
	}
	if value.Abs().GreaterThan(MaxMoney) {
		return false
	}
	return value.Equal(value.Truncate(MoneyDecimalPlaces))
}

// Session is one shared bill ("vaca").
type Session struct {
	ID                string
	Name              string
	CreatedAt         time.Time
	HostID            string
	HostName          string
	LineItems         []LineItem
	PaymentQRImage    string
	BankKey           string
	OverrideBillTotal *decimal.Decimal
	TipPercent        decimal.Decimal
	Active            bool
	Version           int64
}

// BillClosed reports whether the host already set the override bill total.
func (s Session) BillClosed() bool {
	return s.OverrideBillTotal != nil
}

// Diner is a participant ("comensal") of a session.
type Diner struct {
	ID         string
	SessionID  string
	Name       string
	JoinedAt   time.Time
	MergedInto string
	MergedAt   *time.Time
}

// Merged reports whether the diner was retired by a merge.
func (d Diner) Merged() bool {
	return d.MergedInto != ""
}

// LineItem is one charge attributed to a diner.
type LineItem struct {
	ID                  string
	Description         string
	UnitPrice           decimal.Decimal
	Quantity            int64
	DinerID             string
	DinerName           string
	AddedByHost         bool
	DistributionGroupID string
	AddedAt             time.Time
}

// Amount is unit price times quantity.
func (li LineItem) Amount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// NewLineItem describes a line item to be added.
type NewLineItem struct {
	Description         string
	UnitPrice           decimal.Decimal
	Quantity            int64
	DinerID             string
	DinerName           string
	AddedByHost         bool
	DistributionGroupID string
}

// Payment is a self-reported transfer made on behalf of a diner.
type Payment struct {
	ID        string
	SessionID string
	DinerID   string
	PayerName string
	Amount    decimal.Decimal
	PaidAt    time.Time
}

// DinerTotal is the computed share of one diner.
type DinerTotal struct {
	DinerID    string
	DinerName  string
	Merged     bool
	Subtotal   decimal.Decimal
	Tip        decimal.Decimal
	Total      decimal.Decimal
	Paid       bool
	PaidAmount decimal.Decimal
}

// Snapshot is a self-contained copy of one session and everything it owns.
type Snapshot struct {
	Session  Session
	Diners   []Diner
	Payments []Payment
}
