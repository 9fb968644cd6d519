package server

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mivaca/backend/internal/billing"
	"github.com/mivaca/backend/internal/ledger"
	"github.com/shopspring/decimal"
)

// Money travels as a JSON number and is decoded without passing through float64.

func moneyJSON(value decimal.Decimal) json.Number {
	return json.Number(value.String())
}

func parseMoney(value json.Number) (decimal.Decimal, bool) {
	raw := strings.TrimSpace(value.String())
	if raw == "" {
		return decimal.Zero, false
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil || !ledger.ValidMoney(parsed) {
		return decimal.Zero, false
	}
	return parsed, true
}

type createSessionRequest struct {
	Name     string `json:"name"`
	HostName string `json:"hostName"`
}

type joinSessionRequest struct {
	Name string `json:"name"`
}

type addLineItemRequest struct {
	Description string      `json:"description"`
	UnitPrice   json.Number `json:"unitPrice"`
	Quantity    int64       `json:"quantity"`
	DinerID     string      `json:"dinerId"`
}

type addSharedItemRequest struct {
	Description string      `json:"description"`
	UnitPrice   json.Number `json:"unitPrice"`
	Quantity    int64       `json:"quantity"`
	DinerIDs    []string    `json:"dinerIds"`
}

type recordPaymentRequest struct {
	DinerID   string      `json:"dinerId"`
	PayerName string      `json:"payerName"`
	Amount    json.Number `json:"amount"`
}

type tipPercentRequest struct {
	TipPercent json.Number `json:"tipPercent"`
}

type billTotalRequest struct {
	BillTotal            json.Number `json:"billTotal"`
	DistributeDifference bool        `json:"distributeDifference"`
}

type mergeRequest struct {
	FromDinerID string `json:"fromDinerId"`
	ToDinerID   string `json:"toDinerId"`
}

type paymentQRRequest struct {
	ImageRef string `json:"imageRef"`
}

type bankKeyRequest struct {
	BankKey string `json:"bankKey"`
}

type sessionPayload struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	CreatedAt         time.Time         `json:"createdAt"`
	HostID            string            `json:"hostId"`
	HostName          string            `json:"hostName"`
	LineItems         []lineItemPayload `json:"lineItems"`
	PaymentQRImage    string            `json:"paymentQrImage,omitempty"`
	BankKey           string            `json:"bankKey,omitempty"`
	OverrideBillTotal *json.Number      `json:"overrideBillTotal"`
	TipPercent        json.Number       `json:"tipPercent"`
	Active            bool              `json:"active"`
	Version           int64             `json:"version"`
}

type lineItemPayload struct {
	ID                  string      `json:"id"`
	Description         string      `json:"description"`
	UnitPrice           json.Number `json:"unitPrice"`
	Quantity            int64       `json:"quantity"`
	Amount              json.Number `json:"amount"`
	DinerID             string      `json:"dinerId"`
	DinerName           string      `json:"dinerName"`
	AddedByHost         bool        `json:"addedByHost"`
	DistributionGroupID string      `json:"distributionGroupId,omitempty"`
	AddedAt             time.Time   `json:"addedAt"`
}

type dinerPayload struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	Name       string     `json:"name"`
	JoinedAt   time.Time  `json:"joinedAt"`
	MergedInto string     `json:"mergedInto,omitempty"`
	MergedAt   *time.Time `json:"mergedAt,omitempty"`
}

type paymentPayload struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	DinerID   string      `json:"dinerId"`
	PayerName string      `json:"payerName"`
	Amount    json.Number `json:"amount"`
	PaidAt    time.Time   `json:"paidAt"`
}

type dinerTotalPayload struct {
	DinerID    string      `json:"dinerId"`
	DinerName  string      `json:"dinerName"`
	Merged     bool        `json:"merged"`
	Subtotal   json.Number `json:"subtotal"`
	Tip        json.Number `json:"tip"`
	Total      json.Number `json:"total"`
	Paid       bool        `json:"paid"`
	PaidAmount json.Number `json:"paidAmount"`
}

type summaryPayload struct {
	SessionID         string              `json:"sessionId"`
	Version           int64               `json:"version"`
	TipPercent        json.Number         `json:"tipPercent"`
	Subtotal          json.Number         `json:"subtotal"`
	Total             json.Number         `json:"total"`
	OverrideBillTotal *json.Number        `json:"overrideBillTotal"`
	Collected         json.Number         `json:"collected"`
	Outstanding       json.Number         `json:"outstanding"`
	Diners            []dinerTotalPayload `json:"diners"`
	PaidDiners        int                 `json:"paidDiners"`
	ActiveDiners      int                 `json:"activeDiners"`
}

type realtimeEventPayload struct {
	SessionID string `json:"sessionId"`
	Command   string `json:"command,omitempty"`
	Version   int64  `json:"version,omitempty"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

func optionalMoney(value *decimal.Decimal) *json.Number {
	if value == nil {
		return nil
	}
	encoded := moneyJSON(*value)
	return &encoded
}

func toSessionPayload(session ledger.Session) sessionPayload {
	return sessionPayload{
		ID:                session.ID,
		Name:              session.Name,
		CreatedAt:         session.CreatedAt,
		HostID:            session.HostID,
		HostName:          session.HostName,
		LineItems:         toLineItemPayloads(session.LineItems),
		PaymentQRImage:    session.PaymentQRImage,
		BankKey:           session.BankKey,
		OverrideBillTotal: optionalMoney(session.OverrideBillTotal),
		TipPercent:        moneyJSON(session.TipPercent),
		Active:            session.Active,
		Version:           session.Version,
	}
}

func toLineItemPayload(item ledger.LineItem) lineItemPayload {
	return lineItemPayload{
		ID:                  item.ID,
		Description:         item.Description,
		UnitPrice:           moneyJSON(item.UnitPrice),
		Quantity:            item.Quantity,
		Amount:              moneyJSON(item.Amount()),
		DinerID:             item.DinerID,
		DinerName:           item.DinerName,
		AddedByHost:         item.AddedByHost,
		DistributionGroupID: item.DistributionGroupID,
		AddedAt:             item.AddedAt,
	}
}

func toLineItemPayloads(items []ledger.LineItem) []lineItemPayload {
	payloads := make([]lineItemPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, toLineItemPayload(item))
	}
	return payloads
}

func toDinerPayload(diner ledger.Diner) dinerPayload {
	return dinerPayload{
		ID:         diner.ID,
		SessionID:  diner.SessionID,
		Name:       diner.Name,
		JoinedAt:   diner.JoinedAt,
		MergedInto: diner.MergedInto,
		MergedAt:   diner.MergedAt,
	}
}

func toDinerPayloads(diners []ledger.Diner) []dinerPayload {
	payloads := make([]dinerPayload, 0, len(diners))
	for _, diner := range diners {
		payloads = append(payloads, toDinerPayload(diner))
	}
	return payloads
}

func toPaymentPayload(payment ledger.Payment) paymentPayload {
	return paymentPayload{
		ID:        payment.ID,
		SessionID: payment.SessionID,
		DinerID:   payment.DinerID,
		PayerName: payment.PayerName,
		Amount:    moneyJSON(payment.Amount),
		PaidAt:    payment.PaidAt,
	}
}

func toPaymentPayloads(payments []ledger.Payment) []paymentPayload {
	payloads := make([]paymentPayload, 0, len(payments))
	for _, payment := range payments {
		payloads = append(payloads, toPaymentPayload(payment))
	}
	return payloads
}

func toSummaryPayload(summary billing.Summary) summaryPayload {
	diners := make([]dinerTotalPayload, 0, len(summary.Diners))
	for _, entry := range summary.Diners {
		diners = append(diners, dinerTotalPayload{
			DinerID:    entry.DinerID,
			DinerName:  entry.DinerName,
			Merged:     entry.Merged,
			Subtotal:   moneyJSON(entry.Subtotal),
			Tip:        moneyJSON(entry.Tip),
			Total:      moneyJSON(entry.Total),
			Paid:       entry.Paid,
			PaidAmount: moneyJSON(entry.PaidAmount),
		})
	}
	return summaryPayload{
		SessionID:         summary.SessionID,
		Version:           summary.Version,
		TipPercent:        moneyJSON(summary.TipPercent),
		Subtotal:          moneyJSON(summary.Subtotal),
		Total:             moneyJSON(summary.Total),
		OverrideBillTotal: optionalMoney(summary.OverrideBillTotal),
		Collected:         moneyJSON(summary.Collected),
		Outstanding:       moneyJSON(summary.Outstanding),
		Diners:            diners,
		PaidDiners:        summary.PaidDiners,
		ActiveDiners:      summary.ActiveDiners,
	}
}

func toRealtimeEventPayload(message RealtimeMessage) realtimeEventPayload {
	return realtimeEventPayload{
		SessionID: message.SessionID,
		Command:   message.Command,
		Version:   message.Version,
		Timestamp: message.Timestamp.UTC().Format(time.RFC3339Nano),
		Source:    realtimeSourceBackend,
	}
}
