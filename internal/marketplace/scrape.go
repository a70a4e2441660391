package marketplace

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dropship-rest-api/internal/model"
)

// selectors is an ordered list of candidates; the first non-empty match
// wins. A candidate of the form "sel@attr" reads an attribute instead of
// text, and "@attr" reads it from the item element itself.
type selectors []string

// scrapeSpec describes how to pull products out of one marketplace's search
// result page.
type scrapeSpec struct {
	Items         selectors
	Title         selectors
	Price         selectors
	OriginalPrice selectors
	Rating        selectors
	Reviews       selectors
	Sales         selectors
	URL           selectors
	Image         selectors
	Category      selectors

	// IDAttr names an item attribute holding the external id. When empty or
	// missing, IDPattern is matched against the product URL.
	IDAttr    string
	IDPattern *regexp.Regexp

	// BaseURL resolves relative links.
	BaseURL string
	// Canonical rewrites the product URL from its external id.
	Canonical func(id string) string
	// Skip drops placeholder cards by title.
	Skip func(title string) bool
}

// extract parses body and returns every product card that has a title, an
// id and a positive price.
func (s *scrapeSpec) extract(body []byte, src model.Source) ([]*model.Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var items *goquery.Selection
	for _, sel := range s.Items {
		if found := doc.Find(sel); found.Length() > 0 {
			items = found
			break
		}
	}
	if items == nil {
		return nil, nil
	}

	base, _ := url.Parse(s.BaseURL)
	products := make([]*model.Product, 0, items.Length())

	items.Each(func(_ int, item *goquery.Selection) {
		title := pick(item, s.Title)
		if title == "" || (s.Skip != nil && s.Skip(title)) {
			return
		}

		link := resolveURL(base, pick(item, s.URL))
		id := ""
		if s.IDAttr != "" {
			id = strings.TrimSpace(item.AttrOr(s.IDAttr, ""))
		}
		if id == "" && s.IDPattern != nil {
			if m := s.IDPattern.FindStringSubmatch(link); len(m) > 1 {
				id = m[1]
			}
		}
		if id == "" {
			return
		}

		price := parsePrice(pick(item, s.Price))
		if price <= 0 {
			return
		}

		if s.Canonical != nil {
			link = s.Canonical(id)
		}

		p := &model.Product{
			Source:       src,
			ExternalID:   id,
			Title:        title,
			Price:        price,
			Rating:       parseRating(pick(item, s.Rating)),
			ReviewsCount: parseCount(pick(item, s.Reviews)),
			SalesCount:   parseCount(pick(item, s.Sales)),
			Category:     pick(item, s.Category),
			ImageURL:     resolveURL(base, pick(item, s.Image)),
			SupplierURL:  link,
		}
		if orig := parsePrice(pick(item, s.OriginalPrice)); orig > price {
			p.OriginalPrice = orig
		}
		products = append(products, p)
	})

	return products, nil
}

// pick returns the first non-empty value produced by candidates.
func pick(item *goquery.Selection, candidates selectors) string {
	for _, c := range candidates {
		sel, attr := c, ""
		if i := strings.LastIndex(c, "@"); i >= 0 {
			sel, attr = c[:i], c[i+1:]
		}

		target := item
		if sel != "" {
			target = item.Find(sel).First()
		}
		if target.Length() == 0 {
			continue
		}

		var v string
		if attr != "" {
			v = target.AttrOr(attr, "")
		} else {
			v = target.Text()
		}
		if v = collapseSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func resolveURL(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil || u.IsAbs() {
		if u.Scheme == "" && u.Host != "" {
			u.Scheme = "https"
		}
		return u.String()
	}
	return base.ResolveReference(u).String()
}
