package scanning

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ScanDocument splits a document into pages and scans them concurrently.
// A page whose scan fails is returned with Err set; only a document that
// cannot be split into pages is an error.
func ScanDocument(ctx context.Context, scanner Scanner, data []byte, contentType string, workers int) ([]PageText, error) {
	images, err := SplitPages(data, contentType)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	pages := make([]PageText, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, img := range images {
		g.Go(func() error {
			pages[i] = PageText{Index: i}
			text, err := scanner.ScanPage(gctx, img)
			if err != nil {
				// The caller abandoned the request; stop scanning the rest
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Error("Failed to scan page",
					"page", i,
					"page_size", len(img),
					"error", err,
				)
				pages[i].Err = err
				pages[i].Error = err.Error()
				return nil
			}
			pages[i].Text = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scanning pages: %w", err)
	}

	return pages, nil
}
