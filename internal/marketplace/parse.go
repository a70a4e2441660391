package marketplace

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// priceRegexp captures the first numeric amount, e.g. "$1,299.99".
	priceRegexp = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	// countRegexp captures counts with an optional K/M suffix, e.g. "1.2K+ bought".
	countRegexp = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*([kKmM])?`)
	// ratingRegexp captures a numeric rating in the 0.0-5.0 range.
	ratingRegexp = regexp.MustCompile(`\b([0-5](?:\.\d{1,2})?)\b`)
	// percentRegexp captures a percentage such as "96.5%".
	percentRegexp = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
)

// parsePrice extracts the first amount from raw. Ranges like "$5.99 to $9.99"
// resolve to the lower bound.
func parsePrice(raw string) float64 {
	match := priceRegexp.FindString(raw)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0
	}
	return round2(v)
}

// parseCount extracts an integer count from strings such as "10,000+ sold",
// "(1,234)" or "2K+ bought in past month".
func parseCount(raw string) int {
	m := countRegexp.FindStringSubmatch(raw)
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "k":
		v *= 1_000
	case "m":
		v *= 1_000_000
	}
	return int(math.Round(v))
}

// parseRating extracts a 0.0-5.0 rating from strings like "4.5 out of 5 stars".
func parseRating(raw string) float64 {
	m := ratingRegexp.FindStringSubmatch(raw)
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 || v > 5 {
		return 0
	}
	return v
}

// percentToRating maps a positive-feedback percentage onto the 0-5 scale.
func percentToRating(raw string) float64 {
	m := percentRegexp.FindStringSubmatch(raw)
	if len(m) < 2 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && v >= 0 && v <= 100 {
			return round2(v / 20)
		}
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v > 100 {
		return 0
	}
	return round2(v / 20)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// collapseSpace trims s and folds internal whitespace runs to one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
