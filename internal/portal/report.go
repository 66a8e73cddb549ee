package portal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"
)

// reportFetchConcurrency bounds parallel report downloads in FetchReports.
const reportFetchConcurrency = 4

// rawReport is the report document as served, before normalization.
// Numbers are kept as json.Number so integer counts survive intact.
type rawReport struct {
	QuotaCounts          map[string]any  `json:"quota_counts"`
	SpecializationCounts map[string]any  `json:"specialization_counts"`
	Metadata             *ReportMetadata `json:"metadata"`
}

// FetchReport downloads the report at reportURL with a plain GET and no
// credentials. Reports are supplementary: any failure is logged and
// reported as ok=false, never as an error. A relative reportURL is
// resolved against the client's base URL.
func (c *Client) FetchReport(ctx context.Context, reportURL string) (*Report, bool) {
	if reportURL == "" {
		return nil, false
	}

	target, err := c.resolveReportURL(reportURL)
	if err != nil {
		c.logger.Warn("invalid report URL",
			slog.String("url", reportURL),
			slog.String("error", err.Error()),
		)

		return nil, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		c.logger.Warn("creating report request",
			slog.String("url", target),
			slog.String("error", err.Error()),
		)

		return nil, false
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("report fetch failed",
			slog.String("url", target),
			slog.String("error", err.Error()),
		)

		return nil, false
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		c.logger.Debug("report not available",
			slog.String("url", target),
			slog.Int("status", resp.StatusCode),
		)

		return nil, false
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var raw rawReport
	if err := dec.Decode(&raw); err != nil {
		c.logger.Warn("report is not valid JSON",
			slog.String("url", target),
			slog.String("error", err.Error()),
		)

		return nil, false
	}

	return normalizeReport(&raw, c.logger), true
}

// FetchReports fetches the reports of every file that has one, at most
// reportFetchConcurrency at a time. Files without a report, or whose
// report could not be fetched, are absent from the result.
func (c *Client) FetchReports(ctx context.Context, files []FileRecord) map[int64]*Report {
	var (
		mu  sync.Mutex
		out = make(map[int64]*Report, len(files))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reportFetchConcurrency)

	for i := range files {
		f := files[i]
		if f.ReportURL == "" {
			continue
		}

		g.Go(func() error {
			r, ok := c.FetchReport(gctx, f.ReportURL)
			if !ok {
				return nil
			}

			mu.Lock()
			out[f.ID] = r
			mu.Unlock()

			return nil
		})
	}

	// Workers never return errors.
	_ = g.Wait()

	return out
}

func (c *Client) resolveReportURL(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if ref.IsAbs() {
		return ref.String(), nil
	}

	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", err
	}

	return base.ResolveReference(ref).String(), nil
}
