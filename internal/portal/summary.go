package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const summaryPath = filesPath + "summary/"

// FetchSummary returns aggregate statistics. Only the options that are set
// become query parameters; with none set the URL has no query string.
func (c *Client) FetchSummary(ctx context.Context, auth Authorizer, opts SummaryOptions) (*SummaryData, error) {
	path := summaryPath
	if q := opts.query(); q != "" {
		path += "?" + q
	}

	resp, err := c.do(ctx, auth, http.MethodGet, path, jsonHeader(), nil)
	if err != nil {
		return nil, fmt.Errorf("portal: fetching summary: %w", err)
	}

	if err := classifyResponse(resp); err != nil {
		return nil, fmt.Errorf("portal: fetching summary: %w", err)
	}

	var data SummaryData
	if err := decodeJSON(resp, &data); err != nil {
		return nil, err
	}

	return &data, nil
}

// query encodes the set options. Encode sorts by key, which keeps days
// before user_only.
func (o SummaryOptions) query() string {
	q := url.Values{}

	if o.Days != nil {
		q.Add("days", strconv.Itoa(*o.Days))
	}

	if o.UserOnly != nil {
		q.Add("user_only", strconv.FormatBool(*o.UserOnly))
	}

	return q.Encode()
}
