package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Ledger event kinds.
const (
	EventExpenseAdded    = "expense_added"
	EventIncomeAdded     = "income_added"
	EventLoanAdded       = "loan_added"
	EventLoanPayment     = "loan_payment"
	EventDebtAdded       = "debt_added"
	EventDebtTransaction = "debt_transaction"
)

// LedgerEventMessage announces a completed mutation to downstream consumers
// (notifications, analytics). It is informational only; the ledger does not
// depend on its delivery.
type LedgerEventMessage struct {
	Kind        string    `json:"kind"`
	UserID      string    `json:"user_id"`
	EntityID    string    `json:"entity_id"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(kind, userID, entityID string, amountCents int64) *LedgerEventMessage {
	return &LedgerEventMessage{
		Kind:        kind,
		UserID:      userID,
		EntityID:    entityID,
		AmountCents: amountCents,
		Timestamp:   time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// BalanceRepairMessage carries a second-phase balance write that failed after
// its child row was persisted. TargetCents is the absolute value to re-issue,
// so handling the message twice is harmless.
type BalanceRepairMessage struct {
	Entity      string    `json:"entity"` // "loan" or "debt"
	EntityID    string    `json:"entity_id"`
	UserID      string    `json:"user_id"`
	TargetCents int64     `json:"target_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewBalanceRepairMessage(entity, entityID, userID string, targetCents int64) *BalanceRepairMessage {
	return &BalanceRepairMessage{
		Entity:      entity,
		EntityID:    entityID,
		UserID:      userID,
		TargetCents: targetCents,
		Timestamp:   time.Now(),
	}
}

func (m *BalanceRepairMessage) Validate() error {
	if m.Entity != "loan" && m.Entity != "debt" {
		return fmt.Errorf("unknown repair entity %q", m.Entity)
	}
	if m.EntityID == "" || m.UserID == "" {
		return fmt.Errorf("repair message missing identifiers")
	}
	return nil
}

func (m *BalanceRepairMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BalanceRepairMessageFromJSON(data []byte) (*BalanceRepairMessage, error) {
	var msg BalanceRepairMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
