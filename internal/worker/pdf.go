package worker

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/ledgerdesk/engine/internal/browser"
)

// A4 paper size in inches
const (
	paperWidthInches  = 8.27
	paperHeightInches = 11.69
)

// printToPDF loads the HTML document into a fresh tab on the given browser
// instance and prints it to PDF bytes. The tab is closed before returning.
func printToPDF(ctx context.Context, instance *browser.Instance, htmlDoc string) ([]byte, error) {
	tabCtx, tabCancel := instance.NewTab()
	defer tabCancel()

	// Tear the tab down when the job's context expires mid-print
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var pdf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to resolve frame tree: %w", err)
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlDoc).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				WithPaperWidth(paperWidthInches).
				WithPaperHeight(paperHeightInches).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pdf print cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("pdf print failed: %w", err)
	}

	if len(pdf) == 0 {
		return nil, fmt.Errorf("pdf print produced no output")
	}
	return pdf, nil
}
