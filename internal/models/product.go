package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is catalog reference data; the wallet never mutates it.
type Product struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	FileURL      string          `json:"file_url,omitempty"`
	ExternalLink string          `json:"external_link,omitempty"`
}
