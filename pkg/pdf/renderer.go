package pdf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/tindahub/marketplace-backend/pkg/config"
)

// Renderer turns a self-contained HTML document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// ChromeRenderer prints HTML through a headless Chrome instance.
type ChromeRenderer struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
}

func NewChromeRenderer(cfg config.DocumentsConfig) *ChromeRenderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	timeout := cfg.PDFTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeRenderer{allocCtx: allocCtx, cancel: cancel, timeout: timeout}
}

// Render loads html into a blank tab and prints it as A4.
func (r *ChromeRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	if r == nil || r.allocCtx == nil {
		return nil, errors.New("pdf renderer not initialized")
	}
	if html == "" {
		return nil, errors.New("html document is empty")
	}

	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var buf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return buf, nil
}

// Close stops the browser process.
func (r *ChromeRenderer) Close() {
	if r != nil && r.cancel != nil {
		r.cancel()
	}
}
