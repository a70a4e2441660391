package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dropship-rest-api/internal/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// productColumns is the select list scanProduct expects, in order.
const productColumns = `id, source, external_id, title, price, original_price, rating,
	reviews_count, sales_count, category, image_url, supplier_url,
	ai_score, ai_analysis, ai_analyzed_at, cached_at, expires_at`

func scanProduct(row rowScanner) (*model.Product, error) {
	var (
		p          model.Product
		source     string
		score      sql.NullFloat64
		analysis   sql.NullString
		analyzedAt nullTime
	)
	err := row.Scan(
		&p.ID, &source, &p.ExternalID, &p.Title, &p.Price, &p.OriginalPrice, &p.Rating,
		&p.ReviewsCount, &p.SalesCount, &p.Category, &p.ImageURL, &p.SupplierURL,
		&score, &analysis, &analyzedAt, timeDest{&p.CachedAt}, timeDest{&p.ExpiresAt},
	)
	if err != nil {
		return nil, err
	}
	p.Source = model.Source(source)
	applyAnalysis(&p, score, analysis, analyzedAt)
	p.CachedAt = p.CachedAt.UTC()
	p.ExpiresAt = p.ExpiresAt.UTC()
	return &p, nil
}

func applyAnalysis(p *model.Product, score sql.NullFloat64, analysis sql.NullString, analyzedAt nullTime) {
	p.AIScore, p.AIAnalysis, p.AIAnalyzedAt = nil, nil, nil
	if score.Valid {
		v := score.Float64
		p.AIScore = &v
	}
	if analysis.Valid && analysis.String != "" {
		p.AIAnalysis = json.RawMessage(analysis.String)
	}
	if analyzedAt.Valid {
		t := analyzedAt.Time.UTC()
		p.AIAnalyzedAt = &t
	}
}

func scanProducts(rows *sql.Rows) ([]*model.Product, error) {
	defer rows.Close()

	products := make([]*model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// importColumns is the select list scanImport expects, in order.
const importColumns = `id, user_id, store_id, product_id, source, external_id, title, description,
	cost_price, selling_price, profit_margin, profit_percent, status, created_at, updated_at`

func scanImport(row rowScanner) (*model.ImportedProduct, error) {
	var (
		imp    model.ImportedProduct
		source string
		status string
	)
	err := row.Scan(
		&imp.ID, &imp.UserID, &imp.StoreID, &imp.ProductID, &source, &imp.ExternalID,
		&imp.Title, &imp.Description, &imp.CostPrice, &imp.SellingPrice,
		&imp.ProfitMargin, &imp.ProfitPercent, &status, timeDest{&imp.CreatedAt}, timeDest{&imp.UpdatedAt},
	)
	if err != nil {
		return nil, err
	}
	imp.Source = model.Source(source)
	imp.Status = model.ImportStatus(status)
	imp.CreatedAt = imp.CreatedAt.UTC()
	imp.UpdatedAt = imp.UpdatedAt.UTC()
	return &imp, nil
}

func scanImports(rows *sql.Rows) ([]*model.ImportedProduct, error) {
	defer rows.Close()

	imports := make([]*model.ImportedProduct, 0)
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

// nullJSON maps an empty analysis to SQL NULL.
func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound[T any](v T, err error) (T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, ErrNotFound
	}
	return v, err
}

// requireRow returns ErrNotFound when res touched no rows.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// timeLayouts are the text forms SQLite may hand back for a timestamp when
// the column type is not known to the driver (RETURNING, aggregates).
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// nullTime scans a nullable timestamp from time.Time or text.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(value interface{}) error {
	n.Time, n.Valid = time.Time{}, false
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	}
	return fmt.Errorf("cannot scan %T into timestamp", value)
}

func (n *nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// timeDest adapts a *time.Time scan destination to nullTime.
type timeDest struct{ t *time.Time }

func (d timeDest) Scan(value interface{}) error {
	var n nullTime
	if err := n.Scan(value); err != nil {
		return err
	}
	*d.t = n.Time
	return nil
}
