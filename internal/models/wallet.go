package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Wallet struct {
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Deposit struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	SenderNumber  string          `json:"sender_number"`
	TransactionID string          `json:"transaction_id"`
	Status        DepositStatus   `json:"status"`
	AdminNotes    string          `json:"admin_notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Order is a purchase record. ProductTitle and Amount are snapshots taken at
// purchase time and are never rewritten when the product changes.
type Order struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               uuid.UUID       `json:"user_id"`
	ProductID            uuid.NullUUID   `json:"product_id"`
	ProductTitle         string          `json:"product_title"`
	Amount               decimal.Decimal `json:"amount"`
	Status               OrderStatus     `json:"status"`
	CustomerInstructions string          `json:"customer_instructions,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Delivery is what the owner of a completed order may download or open.
type Delivery struct {
	OrderID      uuid.UUID `json:"order_id"`
	ProductTitle string    `json:"product_title"`
	FileURL      string    `json:"file_url,omitempty"`
	ExternalLink string    `json:"external_link,omitempty"`
}

// Overview aggregates the admin dashboard counters.
type Overview struct {
	Users                int64           `json:"users"`
	Products             int64           `json:"products"`
	Orders               int64           `json:"orders"`
	PendingOrders        int64           `json:"pending_orders"`
	PendingDeposits      int64           `json:"pending_deposits"`
	ApprovedDepositsWeek int64           `json:"approved_deposits_week"`
	TotalWalletBalance   decimal.Decimal `json:"total_wallet_balance"`
}
