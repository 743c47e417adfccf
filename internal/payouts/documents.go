package payouts

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/email"
	"github.com/tindahub/marketplace-backend/pkg/metrics"
	"github.com/tindahub/marketplace-backend/pkg/pdf"
	"github.com/tindahub/marketplace-backend/pkg/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplates = template.Must(template.New("payouts").Funcs(template.FuncMap{
	"amount": func(d decimal.Decimal) string { return "PHP " + d.StringFixed(2) },
	"date":   func(t time.Time) string { return t.UTC().Format("Jan 2, 2006") },
}).ParseFS(templateFS, "templates/*.html"))

const (
	stepRender = "render"
	stepPDF    = "pdf"
	stepUpload = "upload"
	stepEmail  = "email"
)

type documentView struct {
	Invoice     *models.PayoutInvoice
	QRCode      template.URL
	GeneratedAt time.Time
}

// Documents renders, stores and mails payout invoices. Every step is best
// effort: failures are counted and returned together, never rolled back.
// Nil collaborators skip their step.
type Documents struct {
	repo     Repository
	renderer pdf.Renderer
	store    storage.ObjectStore
	mailer   email.Mailer
	metrics  *metrics.PayoutMetrics
	now      func() time.Time
}

func NewDocuments(repo Repository, renderer pdf.Renderer, store storage.ObjectStore, mailer email.Mailer, m *metrics.PayoutMetrics) *Documents {
	return &Documents{
		repo:     repo,
		renderer: renderer,
		store:    store,
		mailer:   mailer,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// InvoiceCreated produces the PDF, uploads it and emails the organization.
func (d *Documents) InvoiceCreated(ctx context.Context, invoice *models.PayoutInvoice) error {
	if d == nil || invoice == nil {
		return nil
	}
	var errs error

	var pdfBytes []byte
	if d.renderer != nil {
		html, err := d.renderInvoice(invoice)
		if err != nil {
			errs = multierr.Append(errs, d.fail(stepRender, err))
		} else if pdfBytes, err = d.renderer.Render(ctx, html); err != nil {
			errs = multierr.Append(errs, d.fail(stepPDF, err))
			pdfBytes = nil
		}
	}

	if d.store != nil && len(pdfBytes) > 0 {
		key := InvoiceObjectKey(invoice)
		url, err := d.store.Put(ctx, key, pdfBytes, "application/pdf")
		if err == nil {
			err = d.repo.UpdateInvoice(ctx, invoice.ID, map[string]any{"pdf_key": key, "pdf_url": url})
		}
		if err != nil {
			errs = multierr.Append(errs, d.fail(stepUpload, err))
		} else {
			invoice.PDFKey = &key
			invoice.PDFURL = &url
		}
	}

	if d.mailer != nil && invoice.OrganizationSnapshot.PayoutEmail != "" {
		msg := email.Message{
			To:      invoice.OrganizationSnapshot.PayoutEmail,
			Subject: fmt.Sprintf("Payout invoice %s", invoice.InvoiceNumber),
		}
		if len(pdfBytes) > 0 {
			msg.Attachments = []email.Attachment{{Filename: invoice.InvoiceNumber + ".pdf", Content: pdfBytes}}
		}
		if err := d.sendEmail(ctx, invoice, "invoice_email.html", msg); err != nil {
			errs = multierr.Append(errs, d.fail(stepEmail, err))
		} else {
			now := d.now()
			if err := d.repo.UpdateInvoice(ctx, invoice.ID, map[string]any{"email_sent_at": now}); err != nil {
				errs = multierr.Append(errs, d.fail(stepEmail, err))
			} else {
				invoice.EmailSentAt = &now
			}
		}
	}
	return errs
}

// InvoicePaid tells the organization the transfer went out.
func (d *Documents) InvoicePaid(ctx context.Context, invoice *models.PayoutInvoice) error {
	if d == nil || invoice == nil || d.mailer == nil || invoice.OrganizationSnapshot.PayoutEmail == "" {
		return nil
	}
	msg := email.Message{
		To:      invoice.OrganizationSnapshot.PayoutEmail,
		Subject: fmt.Sprintf("Payout sent for %s", invoice.InvoiceNumber),
	}
	if err := d.sendEmail(ctx, invoice, "paid_email.html", msg); err != nil {
		return d.fail(stepEmail, err)
	}
	return nil
}

// InvoiceObjectKey is where an invoice PDF lives in object storage.
func InvoiceObjectKey(invoice *models.PayoutInvoice) string {
	return fmt.Sprintf("payouts/%s/%s.pdf", invoice.OrganizationID, invoice.InvoiceNumber)
}

func (d *Documents) renderInvoice(invoice *models.PayoutInvoice) (string, error) {
	qr, err := pdf.QRDataURI(invoice.InvoiceNumber, 160)
	if err != nil {
		return "", fmt.Errorf("qr code: %w", err)
	}
	view := documentView{Invoice: invoice, QRCode: template.URL(qr), GeneratedAt: d.now()}
	return execute("invoice.html", view)
}

func (d *Documents) sendEmail(ctx context.Context, invoice *models.PayoutInvoice, name string, msg email.Message) error {
	body, err := execute(name, documentView{Invoice: invoice, GeneratedAt: d.now()})
	if err != nil {
		return err
	}
	msg.HTML = body
	return d.mailer.Send(ctx, msg)
}

func (d *Documents) fail(step string, err error) error {
	d.metrics.IncDocumentFailure(step)
	return fmt.Errorf("%s: %w", step, err)
}

func execute(name string, view documentView) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplates.ExecuteTemplate(&buf, name, view); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.String(), nil
}
