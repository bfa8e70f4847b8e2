package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"fatture/internal/log"
)

const defaultChromeTimeout = 30 * time.Second

// A4 in inches, the unit Chrome prints in.
const (
	a4Width  = 210 / 25.4
	a4Height = 297 / 25.4
	margin   = 15 / 25.4
)

// ChromeConfig configures the headless Chrome printer.
type ChromeConfig struct {
	// RemoteURL is the DevTools websocket of a running Chrome. Empty launches
	// a local headless browser for each document.
	RemoteURL string
	Timeout   time.Duration
	// NoSandbox is needed when Chrome runs as root, as in most containers.
	NoSandbox bool
	Logger    *log.Logger
}

// ChromePDF prints HTML documents to A4 PDFs through the Chrome DevTools
// protocol.
type ChromePDF struct {
	cfg         ChromeConfig
	logger      *log.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func NewChromePDF(cfg ChromeConfig) *ChromePDF {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultChromeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	c := &ChromePDF{cfg: cfg, logger: logger.WithComponent(log.ComponentExport)}

	if cfg.RemoteURL != "" {
		c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		return c
	}
	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	return c
}

func (c *ChromePDF) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if c.cfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

// printParams are the page settings every invoice is printed with.
func printParams() *page.PrintToPDFParams {
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithPaperWidth(a4Width).
		WithPaperHeight(a4Height).
		WithMarginTop(margin).
		WithMarginBottom(margin).
		WithMarginLeft(margin).
		WithMarginRight(margin).
		WithPreferCSSPageSize(false)
}

// RenderPDF loads html into a fresh tab and prints it.
func (c *ChromePDF) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	if strings.TrimSpace(html) == "" {
		return nil, ErrEmptyDocument
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		c.logger.Debug(fmt.Sprintf(format, args...))
	}))
	defer tabCancel()
	// the tab lives in the allocator's context; stop it with the request
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var out []byte
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
			data, _, err := printParams().Do(ctx)
			if err != nil {
				return err
			}
			out = data
			return nil
		}),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("print after %v: %w", c.cfg.Timeout, context.DeadlineExceeded)
		}
		c.logger.ErrorContext(ctx, "Chrome print failed", log.FieldError, err.Error())
		return nil, fmt.Errorf("chrome print: %w", err)
	}
	c.logger.DebugContext(ctx, "PDF printed",
		"bytes", len(out),
		log.FieldDuration, time.Since(start).Milliseconds())
	return out, nil
}

// Close shuts the browser down.
func (c *ChromePDF) Close() error {
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}

var _ PDFRenderer = (*ChromePDF)(nil)
