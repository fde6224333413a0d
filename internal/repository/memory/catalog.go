package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tenana/wallet-service/internal/models"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
)

// DefaultCatalog is served in memory mode when no PRODUCTS_FILE is set. The
// ids are fixed so local clients can hard-code them.
func DefaultCatalog() []models.Product {
	return []models.Product{
		{
			ID:      uuid.MustParse("5b0c2f8e-3c1a-4d7e-9a51-1f6e2b7c9d01"),
			Title:   "Icon Pack",
			Price:   decimal.NewFromInt(300),
			FileURL: "https://files.example.com/icon-pack.zip",
		},
		{
			ID:      uuid.MustParse("5b0c2f8e-3c1a-4d7e-9a51-1f6e2b7c9d02"),
			Title:   "Preset Pack",
			Price:   decimal.RequireFromString("79.99"),
			FileURL: "https://files.example.com/preset-pack.zip",
		},
		{
			ID:           uuid.MustParse("5b0c2f8e-3c1a-4d7e-9a51-1f6e2b7c9d03"),
			Title:        "Custom Logo",
			Price:        decimal.NewFromInt(1500),
			ExternalLink: "https://drive.example.com/custom-logo",
		},
	}
}

// LoadCatalog reads a JSON array of products. Entries without an id get a
// fresh one.
func LoadCatalog(path string) ([]models.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var products []models.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	for i := range products {
		p := &products[i]
		if p.Title == "" {
			return nil, fmt.Errorf("%w: catalog entry %d has no title", pkgerrors.ErrInvalidInput, i)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("%w: catalog entry %q must have a positive price", pkgerrors.ErrInvalidInput, p.Title)
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
	}
	return products, nil
}

// SeedCatalog adds every product to the store.
func (s *Store) SeedCatalog(products []models.Product) {
	for _, p := range products {
		s.PutProduct(p)
	}
}
