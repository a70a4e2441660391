package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dropship-rest-api/internal/model"
	"dropship-rest-api/internal/repository"
	"dropship-rest-api/pkg/apierror"
	"dropship-rest-api/pkg/logger"
	"dropship-rest-api/pkg/uid"
)

// ImportRequest is the body of POST /api/products/{id}/import.
type ImportRequest struct {
	StoreID      string   `json:"store_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	SellingPrice *float64 `json:"selling_price"`
	Markup       *float64 `json:"markup"`
}

// Validate checks the optional pricing overrides.
func (r ImportRequest) Validate() error {
	var details []apierror.FieldError
	if r.SellingPrice != nil && *r.SellingPrice <= 0 {
		details = append(details, apierror.FieldError{Field: "selling_price", Message: "must be greater than 0"})
	}
	if r.Markup != nil && *r.Markup <= 0 {
		details = append(details, apierror.FieldError{Field: "markup", Message: "must be greater than 0"})
	}
	if len(r.Title) > 500 {
		details = append(details, apierror.FieldError{Field: "title", Message: "must be at most 500 characters"})
	}
	if len(details) > 0 {
		return apierror.ValidationError("Invalid import request", details...)
	}
	return nil
}

// Profit holds the derived pricing of an import.
type Profit struct {
	Selling decimal.Decimal
	Margin  decimal.Decimal
	Percent decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// CalculateProfit derives the selling price and profit from cost. A nil
// selling price is cost × markup.
func CalculateProfit(cost decimal.Decimal, selling *decimal.Decimal, markup decimal.Decimal) Profit {
	price := cost.Mul(markup).Round(2)
	if selling != nil {
		price = selling.Round(2)
	}
	margin := price.Sub(cost).Round(2)
	percent := decimal.Zero
	if price.IsPositive() {
		percent = margin.Div(price).Mul(hundred).Round(2)
	}
	return Profit{Selling: price, Margin: margin, Percent: percent}
}

// ImportService copies cached products into users' stores.
type ImportService struct {
	products repository.ProductRepository
	imports  repository.ImportRepository
	usage    *UsageService
	markup   decimal.Decimal
	now      func() time.Time
	log      zerolog.Logger
}

// NewImportService creates a new import service.
func NewImportService(
	products repository.ProductRepository,
	imports repository.ImportRepository,
	usage *UsageService,
	defaultMarkup float64,
) *ImportService {
	if defaultMarkup <= 0 {
		defaultMarkup = 2.5
	}
	return &ImportService{
		products: products,
		imports:  imports,
		usage:    usage,
		markup:   decimal.NewFromFloat(defaultMarkup),
		now:      time.Now,
		log:      logger.Component("import"),
	}
}

// Import creates or refreshes the user's draft copy of a product.
func (s *ImportService) Import(ctx context.Context, user model.User, productID int64, req ImportRequest) (*model.ImportedProduct, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("Product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	if _, err := s.usage.Consume(ctx, user.ID, model.ActionImport, user.Tier); err != nil {
		return nil, err
	}

	markup := s.markup
	if req.Markup != nil {
		markup = decimal.NewFromFloat(*req.Markup)
	}
	var selling *decimal.Decimal
	if req.SellingPrice != nil {
		v := decimal.NewFromFloat(*req.SellingPrice)
		selling = &v
	}
	profit := CalculateProfit(decimal.NewFromFloat(p.Price), selling, markup)

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = p.Title
	}

	imp := &model.ImportedProduct{
		ID:            uid.NewImportID(),
		UserID:        user.ID,
		StoreID:       strings.TrimSpace(req.StoreID),
		ProductID:     p.ID,
		Source:        p.Source,
		ExternalID:    p.ExternalID,
		Title:         title,
		Description:   req.Description,
		CostPrice:     p.Price,
		SellingPrice:  profit.Selling.InexactFloat64(),
		ProfitMargin:  profit.Margin.InexactFloat64(),
		ProfitPercent: profit.Percent.InexactFloat64(),
		Status:        model.ImportDraft,
	}
	if err := s.imports.UpsertImport(ctx, imp); err != nil {
		return nil, fmt.Errorf("save import: %w", err)
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("import_id", imp.ID).
		Int64("product_id", p.ID).
		Str("profit_margin", profit.Margin.StringFixed(2)).
		Msg("product imported")

	return imp, nil
}

// List returns a page of the user's imports, optionally by status.
func (s *ImportService) List(ctx context.Context, user model.User, status string, page, limit int) ([]*model.ImportedProduct, error) {
	st := model.ImportStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !model.ValidImportStatus(st) {
		return nil, apierror.ValidationError("Invalid status filter", apierror.FieldError{
			Field: "status", Message: "must be one of draft, active, paused, deleted",
		})
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	imports, err := s.imports.ListImports(ctx, user.ID, st, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return imports, nil
}

// UpdateStatus moves an import to a new status. Deleted imports are final.
func (s *ImportService) UpdateStatus(ctx context.Context, user model.User, id string, status model.ImportStatus) (*model.ImportedProduct, error) {
	if !model.ValidImportStatus(status) {
		return nil, apierror.ValidationError("Invalid status", apierror.FieldError{
			Field: "status", Message: "must be one of draft, active, paused, deleted",
		})
	}
	id, ok := uid.ParseImportID(id)
	if !ok {
		return nil, apierror.NotFound("Import not found")
	}

	imp, err := s.imports.GetImport(ctx, user.ID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("Import not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get import: %w", err)
	}
	if imp.Status == status {
		return imp, nil
	}
	if imp.Status == model.ImportDeleted {
		return nil, apierror.BadRequest("Deleted imports cannot change status")
	}

	now := s.now().UTC()
	if err := s.imports.UpdateImportStatus(ctx, user.ID, id, status, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierror.NotFound("Import not found")
		}
		return nil, fmt.Errorf("update import: %w", err)
	}
	imp.Status, imp.UpdatedAt = status, now
	return imp, nil
}
