package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderCreated      EventType = "order_created"
	EventCheckoutCompleted EventType = "checkout_completed"
	EventDepositSubmitted  EventType = "deposit_submitted"
	EventDepositApproved   EventType = "deposit_approved"
	EventDepositRejected   EventType = "deposit_rejected"
	EventOrderApproved     EventType = "order_approved"
	EventOrderCancelled    EventType = "order_cancelled"
)

// AffectsBalance reports whether the event follows a wallet mutation.
func (t EventType) AffectsBalance() bool {
	switch t {
	case EventOrderCreated, EventCheckoutCompleted, EventDepositApproved, EventOrderCancelled:
		return true
	}
	return false
}

// WalletEvent is published after a ledger or workflow change has committed.
type WalletEvent struct {
	Type       EventType        `json:"type"`
	UserID     uuid.UUID        `json:"user_id"`
	OrderIDs   []uuid.UUID      `json:"order_ids,omitempty"`
	DepositID  *uuid.UUID       `json:"deposit_id,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	Balance    *decimal.Decimal `json:"balance,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
