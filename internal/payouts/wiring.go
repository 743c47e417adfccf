package payouts

import (
	"context"

	"github.com/tindahub/marketplace-backend/pkg/config"
	"github.com/tindahub/marketplace-backend/pkg/email"
	"github.com/tindahub/marketplace-backend/pkg/logger"
	"github.com/tindahub/marketplace-backend/pkg/metrics"
	"github.com/tindahub/marketplace-backend/pkg/pdf"
	"github.com/tindahub/marketplace-backend/pkg/storage"
)

// DocumentsFromConfig builds the document pipeline from whatever side effects
// are configured. Unconfigured steps are skipped. The returned func releases
// the headless browser.
func DocumentsFromConfig(ctx context.Context, cfg *config.Config, repo Repository, m *metrics.PayoutMetrics, logg *logger.Logger) (*Documents, func()) {
	var (
		renderer pdf.Renderer
		store    storage.ObjectStore
		mailer   email.Mailer
		closeFn  = func() {}
	)

	if cfg.Documents.PDFEnabled {
		chrome := pdf.NewChromeRenderer(cfg.Documents)
		renderer = chrome
		closeFn = chrome.Close
	}

	if cfg.Storage.Enabled() {
		client, err := storage.NewClient(ctx, cfg.Storage, logg)
		if err != nil {
			logg.Error(ctx, "invoice storage disabled", err)
		} else {
			store = client
		}
	} else {
		logg.Warn(ctx, "invoice storage not configured; PDFs will not be uploaded")
	}

	if cfg.Email.Enabled() {
		sender, err := email.NewSender(cfg.Email, logg)
		if err != nil {
			logg.Error(ctx, "payout email disabled", err)
		} else {
			mailer = sender
		}
	} else {
		logg.Warn(ctx, "smtp not configured; payout emails will not be sent")
	}

	return NewDocuments(repo, renderer, store, mailer, m), closeFn
}
