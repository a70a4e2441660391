package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dropship-rest-api/internal/model"
	"dropship-rest-api/pkg/logger"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements Store using SQLite.
// Thread-safe with WAL mode for concurrent reads.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and creates if needed) the database at dbPath,
// e.g. "./data/dropship.db".
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_time_format=sqlite", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log := logger.Component("sqlite")
	log.Info().Str("path", dbPath).Msg("store initialized")
	return &SQLiteStore{db: db}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		title TEXT NOT NULL,
		price REAL NOT NULL,
		original_price REAL NOT NULL DEFAULT 0,
		rating REAL NOT NULL DEFAULT 0,
		reviews_count INTEGER NOT NULL DEFAULT 0,
		sales_count INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		supplier_url TEXT NOT NULL DEFAULT '',
		ai_score REAL,
		ai_analysis TEXT,
		ai_analyzed_at DATETIME,
		cached_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		UNIQUE(source, external_id)
	);
	CREATE INDEX IF NOT EXISTS idx_products_expires_at ON products(expires_at);
	CREATE INDEX IF NOT EXISTS idx_products_ai_score ON products(ai_score);

	CREATE TABLE IF NOT EXISTS usage_logs (
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		date TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, action, date)
	);

	CREATE TABLE IF NOT EXISTS imported_products (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		store_id TEXT NOT NULL DEFAULT '',
		product_id INTEGER NOT NULL,
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		cost_price REAL NOT NULL,
		selling_price REAL NOT NULL,
		profit_margin REAL NOT NULL,
		profit_percent REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(user_id, store_id, product_id)
	);
	CREATE INDEX IF NOT EXISTS idx_imports_user ON imported_products(user_id, created_at);
	`
	_, err := db.Exec(query)
	return err
}

func (r *SQLiteStore) Kind() string { return "sqlite" }

func (r *SQLiteStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// BatchUpsertProducts inserts or refreshes products in one transaction.
func (r *SQLiteStore) BatchUpsertProducts(ctx context.Context, products []*model.Product, ttl time.Duration) error {
	if len(products) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (source, external_id, title, price, original_price, rating,
			reviews_count, sales_count, category, image_url, supplier_url, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, external_id) DO UPDATE SET
			title = excluded.title,
			price = excluded.price,
			original_price = excluded.original_price,
			rating = excluded.rating,
			reviews_count = excluded.reviews_count,
			sales_count = excluded.sales_count,
			category = excluded.category,
			image_url = excluded.image_url,
			supplier_url = excluded.supplier_url,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
		RETURNING id, ai_score, ai_analysis, ai_analyzed_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	expires := now.Add(ttl)
	for _, p := range products {
		var (
			score      sql.NullFloat64
			analysis   sql.NullString
			analyzedAt nullTime
		)
		err := stmt.QueryRowContext(ctx,
			string(p.Source), p.ExternalID, p.Title, p.Price, p.OriginalPrice, p.Rating,
			p.ReviewsCount, p.SalesCount, p.Category, p.ImageURL, p.SupplierURL, now, expires,
		).Scan(&p.ID, &score, &analysis, &analyzedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.Key(), err)
		}
		applyAnalysis(p, score, analysis, analyzedAt)
		p.CachedAt, p.ExpiresAt = now, expires
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteStore) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	return notFound(scanProduct(row))
}

func (r *SQLiteStore) UpdateAnalysis(ctx context.Context, id int64, score float64, analysis json.RawMessage, analyzedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET ai_score = ?, ai_analysis = ?, ai_analyzed_at = ? WHERE id = ?`,
		score, nullJSON(analysis), analyzedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteStore) ListWinning(ctx context.Context, minScore float64, limit int, now time.Time) ([]*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ai_score >= ? AND expires_at > ?
		ORDER BY ai_score DESC, id ASC
		LIMIT ?`, minScore, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list winning products: %w", err)
	}
	return scanProducts(rows)
}

// DeleteExpired deletes products past their expires_at.
func (r *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired products: %w", err)
	}
	return result.RowsAffected()
}

// GetStats returns statistics about the database.
func (r *SQLiteStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[string]interface{}{"backend": "sqlite"}

	var products, analyzed, imports int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*), COUNT(ai_score) FROM products").Scan(&products, &analyzed); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM imported_products").Scan(&imports); err != nil {
		return nil, err
	}
	stats["total_products"] = products
	stats["analyzed_products"] = analyzed
	stats["total_imports"] = imports

	var lastCached sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(cached_at) FROM products").Scan(&lastCached); err == nil && lastCached.Valid {
		stats["last_cached"] = lastCached.String
	}

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

func (r *SQLiteStore) GetUsage(ctx context.Context, userID string, action model.Action, date string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count FROM usage_logs WHERE user_id = ? AND action = ? AND date = ?`,
		userID, string(action), date).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage: %w", err)
	}
	return count, nil
}

func (r *SQLiteStore) IncrementUsage(ctx context.Context, userID string, action model.Action, date string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO usage_logs (user_id, action, date, count) VALUES (?, ?, ?, 1)
		ON CONFLICT(user_id, action, date) DO UPDATE SET count = usage_logs.count + 1
		RETURNING count`,
		userID, string(action), date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, nil
}

func (r *SQLiteStore) IncrementUsageIfBelow(ctx context.Context, userID string, action model.Action, date string, limit int) (int, bool, error) {
	if limit <= 0 {
		count, err := r.GetUsage(ctx, userID, action, date)
		return count, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var count int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO usage_logs (user_id, action, date, count) VALUES (?, ?, ?, 1)
		ON CONFLICT(user_id, action, date) DO UPDATE SET count = usage_logs.count + 1
		WHERE usage_logs.count < ?
		RETURNING count`,
		userID, string(action), date, limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return limit, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, true, nil
}

func (r *SQLiteStore) UpsertImport(ctx context.Context, imp *model.ImportedProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO imported_products (id, user_id, store_id, product_id, source, external_id, title,
			description, cost_price, selling_price, profit_margin, profit_percent, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, store_id, product_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			cost_price = excluded.cost_price,
			selling_price = excluded.selling_price,
			profit_margin = excluded.profit_margin,
			profit_percent = excluded.profit_percent,
			status = excluded.status,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at`,
		imp.ID, imp.UserID, imp.StoreID, imp.ProductID, string(imp.Source), imp.ExternalID, imp.Title,
		imp.Description, imp.CostPrice, imp.SellingPrice, imp.ProfitMargin, imp.ProfitPercent,
		string(imp.Status), now, now,
	).Scan(&imp.ID, timeDest{&imp.CreatedAt}, timeDest{&imp.UpdatedAt})
	if err != nil {
		return fmt.Errorf("failed to upsert import: %w", err)
	}
	imp.CreatedAt, imp.UpdatedAt = imp.CreatedAt.UTC(), imp.UpdatedAt.UTC()
	return nil
}

func (r *SQLiteStore) GetImport(ctx context.Context, userID, id string) (*model.ImportedProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+importColumns+` FROM imported_products WHERE user_id = ? AND id = ?`, userID, id)
	return notFound(scanImport(row))
}

func (r *SQLiteStore) ListImports(ctx context.Context, userID string, status model.ImportStatus, limit, offset int) ([]*model.ImportedProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	where := []string{"user_id = ?"}
	args := []interface{}{userID}
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, string(status))
	}
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, `SELECT `+importColumns+` FROM imported_products
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	return scanImports(rows)
}

func (r *SQLiteStore) UpdateImportStatus(ctx context.Context, userID, id string, status model.ImportStatus, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`UPDATE imported_products SET status = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		string(status), now.UTC(), userID, id)
	if err != nil {
		return fmt.Errorf("failed to update import status: %w", err)
	}
	return requireRow(res)
}

// Close closes the database connection.
func (r *SQLiteStore) Close() error {
	return r.db.Close()
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
