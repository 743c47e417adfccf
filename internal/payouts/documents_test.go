package payouts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/email"
	"github.com/tindahub/marketplace-backend/pkg/enums"
)

type stubRenderer struct {
	html string
	err  error
}

func (r *stubRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	r.html = html
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.7 test"), nil
}

type stubStore struct {
	keys []string
	err  error
}

func (s *stubStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, key)
	return "https://cdn.test/" + key, nil
}

type stubMailer struct {
	sent []email.Message
	err  error
}

func (m *stubMailer) Send(ctx context.Context, msg email.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func generatedInvoice(t *testing.T, f *fixture) models.PayoutInvoice {
	t.Helper()
	org := f.seedOrg(t, "docs", nil)
	f.seedPaidOrder(t, org.ID, "ORD-12001", "1000.00", time.Date(2025, 3, 6, 8, 0, 0, 0, time.UTC))
	return f.generate(t).Invoices[0]
}

func TestInvoiceCreatedRendersUploadsAndMails(t *testing.T) {
	f := newFixture(t)
	inv := generatedInvoice(t, f)

	renderer := &stubRenderer{}
	store := &stubStore{}
	mailer := &stubMailer{}
	docs := NewDocuments(f.repo, renderer, store, mailer, nil)
	docs.now = func() time.Time { return fixedNow }

	require.NoError(t, docs.InvoiceCreated(context.Background(), &inv))

	assert.Contains(t, renderer.html, inv.InvoiceNumber)
	assert.Contains(t, renderer.html, "ORD-12001")
	assert.Contains(t, renderer.html, "PHP 900.00")
	assert.Contains(t, renderer.html, "data:image/png;base64,")

	key := "payouts/" + inv.OrganizationID.String() + "/" + inv.InvoiceNumber + ".pdf"
	assert.Equal(t, []string{key}, store.keys)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "docs@payouts.test", msg.To)
	assert.Contains(t, msg.Subject, inv.InvoiceNumber)
	assert.Contains(t, msg.HTML, "https://cdn.test/"+key)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, inv.InvoiceNumber+".pdf", msg.Attachments[0].Filename)

	var stored models.PayoutInvoice
	require.NoError(t, f.conn.First(&stored, "id = ?", inv.ID).Error)
	require.NotNil(t, stored.PDFKey)
	assert.Equal(t, key, *stored.PDFKey)
	require.NotNil(t, stored.PDFURL)
	require.NotNil(t, stored.EmailSentAt)
}

func TestInvoiceCreatedContinuesAfterRenderFailure(t *testing.T) {
	f := newFixture(t)
	inv := generatedInvoice(t, f)

	store := &stubStore{}
	mailer := &stubMailer{}
	docs := NewDocuments(f.repo, &stubRenderer{err: errors.New("chrome crashed")}, store, mailer, nil)

	err := docs.InvoiceCreated(context.Background(), &inv)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "pdf:"), err.Error())

	assert.Empty(t, store.keys)
	require.Len(t, mailer.sent, 1)
	assert.Empty(t, mailer.sent[0].Attachments)
}

func TestInvoiceCreatedCollectsEveryFailure(t *testing.T) {
	f := newFixture(t)
	inv := generatedInvoice(t, f)

	docs := NewDocuments(f.repo, &stubRenderer{}, &stubStore{err: errors.New("bucket missing")}, &stubMailer{err: errors.New("smtp down")}, nil)
	err := docs.InvoiceCreated(context.Background(), &inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket missing")
	assert.Contains(t, err.Error(), "smtp down")

	var stored models.PayoutInvoice
	require.NoError(t, f.conn.First(&stored, "id = ?", inv.ID).Error)
	assert.Nil(t, stored.PDFKey)
	assert.Nil(t, stored.EmailSentAt)
}

func TestGenerateCountsDocumentFailures(t *testing.T) {
	f := newFixture(t)
	org := f.seedOrg(t, "nomail", nil)
	f.seedPaidOrder(t, org.ID, "ORD-13001", "1000.00", time.Date(2025, 3, 6, 8, 0, 0, 0, time.UTC))
	f.svc.docs = NewDocuments(f.repo, &stubRenderer{err: errors.New("timeout")}, nil, nil, nil)

	result := f.generate(t)
	require.Len(t, result.Invoices, 1)
	assert.Equal(t, 1, result.DocumentFailures)
	assert.Equal(t, enums.PayoutRunStatusSuccess, result.Status)
}

func TestInvoicePaidEmailsReference(t *testing.T) {
	f := newFixture(t)
	inv := generatedInvoice(t, f)
	mailer := &stubMailer{}
	f.svc.docs = NewDocuments(f.repo, nil, nil, mailer, nil)

	ref := "BANK-1"
	_, err := f.svc.MarkInvoicePaid(context.Background(), MarkPaidInput{InvoiceID: inv.ID, PaymentReference: &ref, Actor: adminActor()})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].HTML, "BANK-1")
	assert.Contains(t, mailer.sent[0].HTML, "PHP 900.00")
}
