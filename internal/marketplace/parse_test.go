package marketplace

import (
	"testing"

	"dropship-rest-api/internal/model"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"$19.99", 19.99},
		{"US $1,299.50", 1299.50},
		{"$5.99 to $9.99", 5.99},
		{"", 0},
		{"Free", 0},
		{"12", 12},
	}

	for _, tt := range tests {
		if got := parsePrice(tt.raw); got != tt.want {
			t.Errorf("parsePrice(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"10,000+ sold", 10000},
		{"(1,234)", 1234},
		{"2K+ bought in past month", 2000},
		{"1.5k sold", 1500},
		{"3M views", 3000000},
		{"no sales", 0},
	}

	for _, tt := range tests {
		if got := parseCount(tt.raw); got != tt.want {
			t.Errorf("parseCount(%q) = %d; want %d", tt.raw, got, tt.want)
		}
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"4.5 out of 5 stars", 4.5},
		{"5.0", 5.0},
		{"New", 0},
		{"6.0", 0},
	}

	for _, tt := range tests {
		if got := parseRating(tt.raw); got != tt.want {
			t.Errorf("parseRating(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestPercentToRating(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"90%", 4.5},
		{"100%", 5},
		{"99", 4.95},
		{"", 0},
	}

	for _, tt := range tests {
		if got := percentToRating(tt.raw); got != tt.want {
			t.Errorf("percentToRating(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestApplyFilters(t *testing.T) {
	lo, hi := 10.0, 50.0
	f := model.SearchFilters{MinPrice: &lo, MaxPrice: &hi, Limit: 2}

	in := []*model.Product{
		{ExternalID: "a", Price: 5},
		{ExternalID: "b", Price: 20},
		{ExternalID: "b", Price: 20},
		{ExternalID: "c", Price: 55},
		{ExternalID: "d", Price: 50},
		{ExternalID: "e", Price: 30},
	}

	got := applyFilters(in, f)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ExternalID != "b" || got[1].ExternalID != "d" {
		t.Errorf("got %s,%s; want b,d", got[0].ExternalID, got[1].ExternalID)
	}
}

func TestHeaderRotatorCycles(t *testing.T) {
	h := NewHeaderRotator([]string{"ua-1", "ua-2"})
	got := []string{h.UserAgent(), h.UserAgent(), h.UserAgent()}
	want := []string{"ua-1", "ua-2", "ua-1"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UserAgent #%d = %q; want %q", i, got[i], want[i])
		}
	}
}

func TestSignAliExpressIsStable(t *testing.T) {
	params := map[string]string{"b": "2", "a": "1", "sign": "ignored"}
	got := signAliExpress(params, "secret")
	again := signAliExpress(map[string]string{"a": "1", "b": "2"}, "secret")
	if got != again {
		t.Errorf("signature depends on map order or sign key: %s vs %s", got, again)
	}
	if len(got) != 64 {
		t.Errorf("len(signature) = %d, want 64", len(got))
	}
}
