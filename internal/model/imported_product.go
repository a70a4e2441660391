package model

import "time"

// ImportStatus is the lifecycle state of an imported product.
type ImportStatus string

const (
	ImportDraft   ImportStatus = "draft"
	ImportActive  ImportStatus = "active"
	ImportPaused  ImportStatus = "paused"
	ImportDeleted ImportStatus = "deleted"
)

// ValidImportStatus reports whether s is a known status.
func ValidImportStatus(s ImportStatus) bool {
	switch s {
	case ImportDraft, ImportActive, ImportPaused, ImportDeleted:
		return true
	}
	return false
}

// ImportedProduct is a user's store-specific copy of a cached Product.
type ImportedProduct struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	StoreID       string       `json:"store_id"`
	ProductID     int64        `json:"product_id"`
	Source        Source       `json:"source"`
	ExternalID    string       `json:"external_id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	CostPrice     float64      `json:"cost_price"`
	SellingPrice  float64      `json:"selling_price"`
	ProfitMargin  float64      `json:"profit_margin"`
	ProfitPercent float64      `json:"profit_percent"`
	Status        ImportStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
