package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mufat/mufat/pkg/result"
	"github.com/sirupsen/logrus"
)

// NoLoginHeader lets automated submitters skip the login requirement.
const NoLoginHeader = "X-NO-LOGIN"

// Client submits run results to a report server.
type Client struct {
	log     logrus.FieldLogger
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the report server at serverURL.
func NewClient(log logrus.FieldLogger, serverURL string, timeout time.Duration) *Client {
	return &Client{
		log:     log.WithField("component", "report-client"),
		baseURL: strings.TrimRight(serverURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SubmitURL returns the submission endpoint of a machine's batch.
func (c *Client) SubmitURL(db, batch, host string) string {
	return fmt.Sprintf("%s/%s/%s/%s/submit",
		c.baseURL, url.PathEscape(db), url.PathEscape(batch), url.PathEscape(host))
}

// Submit posts the result of one run. A non-2xx response is an error.
func (c *Client) Submit(ctx context.Context, db, batch, host, suite, run string, res *result.ChildResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	form := url.Values{
		"suite":   {suite},
		"runname": {run},
		"results": {string(data)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.SubmitURL(db, batch, host), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(NoLoginHeader, "1")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submitting %s: %w", run, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("submitting %s: server returned %s: %s", run, resp.Status, strings.TrimSpace(string(body)))
	}

	c.log.WithFields(logrus.Fields{
		"suite": suite,
		"run":   run,
	}).Debug("Submitted result")

	return nil
}
