package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dropship-rest-api/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ProductRepository defines access to the products cache table.
type ProductRepository interface {
	// BatchUpsertProducts inserts or refreshes products keyed by
	// (source, external_id) in one transaction. The ai_* columns of existing
	// rows are preserved. Each product gets its row id, cache timestamps and
	// any stored analysis filled in.
	BatchUpsertProducts(ctx context.Context, products []*model.Product, ttl time.Duration) error

	// GetProduct returns a product by id, or ErrNotFound.
	GetProduct(ctx context.Context, id int64) (*model.Product, error)

	// UpdateAnalysis stores an AI score for a product.
	UpdateAnalysis(ctx context.Context, id int64, score float64, analysis json.RawMessage, analyzedAt time.Time) error

	// ListWinning returns unexpired products scored at or above minScore, best first.
	ListWinning(ctx context.Context, minScore float64, limit int, now time.Time) ([]*model.Product, error)

	// DeleteExpired removes products whose expires_at is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// GetStats returns statistics about the product store.
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// UsageRepository defines access to the per-user daily usage counters.
type UsageRepository interface {
	// GetUsage returns the counter for (user, action, date); zero when absent.
	GetUsage(ctx context.Context, userID string, action model.Action, date string) (int, error)

	// IncrementUsage inserts or increments the counter and returns the new value.
	IncrementUsage(ctx context.Context, userID string, action model.Action, date string) (int, error)

	// IncrementUsageIfBelow increments the counter only while it is below
	// limit, in a single statement. ok is false when the limit was reached.
	IncrementUsageIfBelow(ctx context.Context, userID string, action model.Action, date string, limit int) (count int, ok bool, err error)
}

// ImportRepository defines access to users' imported products.
type ImportRepository interface {
	// UpsertImport inserts or updates the import keyed by
	// (user_id, store_id, product_id). imp.ID and timestamps are set from the
	// stored row.
	UpsertImport(ctx context.Context, imp *model.ImportedProduct) error

	// GetImport returns a user's import by id, or ErrNotFound.
	GetImport(ctx context.Context, userID, id string) (*model.ImportedProduct, error)

	// ListImports returns a user's imports, newest first. An empty status
	// matches every status.
	ListImports(ctx context.Context, userID string, status model.ImportStatus, limit, offset int) ([]*model.ImportedProduct, error)

	// UpdateImportStatus changes an import's status, or returns ErrNotFound.
	UpdateImportStatus(ctx context.Context, userID, id string, status model.ImportStatus, now time.Time) error
}

// Store bundles every repository of one database backend.
type Store interface {
	ProductRepository
	UsageRepository
	ImportRepository

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Kind names the backend.
	Kind() string

	// Close closes the database connection.
	Close() error
}
