package marketplace

import (
	"dropship-rest-api/internal/config"
	"dropship-rest-api/pkg/logger"
)

// NewLive builds the four production adapters from configuration. The
// returned func releases resources such as a headless browser.
func NewLive(cfg *config.MarketplaceConfig) ([]Adapter, func()) {
	opts := Options{
		Timeout: cfg.Timeout,
		RPS:     cfg.RPS,
		Burst:   cfg.Burst,
		Retries: cfg.Retries,
	}
	log := logger.Component("marketplace")

	temuOpts := opts
	cleanup := func() {}
	if cfg.TemuRenderJS {
		browser := NewBrowserFetcher(BrowserOptions{
			ChromeBin: cfg.ChromeBin,
			Timeout:   cfg.Timeout * 2,
		})
		temuOpts.Pages = browser
		cleanup = browser.Close
		log.Info().Msg("temu pages rendered with headless chrome")
	}

	amazon := AmazonConfig{
		AccessKey:  cfg.AmazonAccessKey,
		SecretKey:  cfg.AmazonSecretKey,
		PartnerTag: cfg.AmazonPartnerTag,
		Region:     cfg.AmazonRegion,
	}
	aliexpress := AliExpressConfig{
		AppKey:     cfg.AliExpressAppKey,
		AppSecret:  cfg.AliExpressAppSecret,
		TrackingID: cfg.AliExpressTrackingID,
	}
	ebay := EbayConfig{
		ClientID:     cfg.EbayClientID,
		ClientSecret: cfg.EbayClientSecret,
	}

	log.Info().
		Bool("amazon_api", amazon.hasCredentials()).
		Bool("aliexpress_api", aliexpress.hasCredentials()).
		Bool("ebay_api", ebay.hasCredentials()).
		Float64("rps", cfg.RPS).
		Int("retries", cfg.Retries).
		Msg("marketplace adapters configured")

	return []Adapter{
		NewAmazon(amazon, opts),
		NewAliExpress(aliexpress, opts),
		NewTemu(TemuConfig{}, temuOpts),
		NewEbay(ebay, opts),
	}, cleanup
}
