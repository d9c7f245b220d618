// Package uwyo fetches upper-air sounding pages and the station catalog
// from the University of Wyoming weather server.
package uwyo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/upperair/soundings/internal/sounding"
)

const (
	defaultBaseURL     = "https://weather.uwyo.edu/wsgi/sounding"
	defaultStationsURL = "https://weather.uwyo.edu/wsgi/sounding_json"

	userAgent = "uwyo-sounding-etl/1.1"

	// datetimeLayout is the query-parameter format the endpoint expects.
	datetimeLayout = "2006-01-02 15:04:05"

	// Timeouts stay well below UI patience so one stalled request cannot
	// pin a worker from the bounded pool indefinitely.
	requestTimeout = 30 * time.Second
	connectTimeout = 20 * time.Second
)

// ErrNoData marks an instant the server has no sounding for (HTTP 404).
// It is an expected outcome, not a failure.
var ErrNoData = errors.New("no data for this instant")

// ErrMissingDataBlock marks a 2xx response without the expected <pre>
// table block.
var ErrMissingDataBlock = errors.New("response has no data block")

// StatusError is a non-2xx, non-404 response from the detail endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// IsTransport reports whether err is a connection-layer failure (refused,
// DNS, dial/request timeout) as opposed to a bad response. The session
// aborts on transport failures and records everything else per item.
func IsTransport(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue)
}

// Result is one successfully fetched and parsed sounding.
type Result struct {
	StationName string
	Table       sounding.Table
	Payload     string // serialized table text
}

// Client talks to the sounding endpoints over a shared instrumented
// transport.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	stationsURL string
	outputDir   string
	logger      *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the detail fetches at an alternate endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithStationsURL points catalog fetches at an alternate endpoint.
func WithStationsURL(u string) Option {
	return func(c *Client) { c.stationsURL = u }
}

// WithOutputDir makes every successful fetch also write its raw text block
// to a deterministically named file under dir.
func WithOutputDir(dir string) Option {
	return func(c *Client) { c.outputDir = dir }
}

// NewClient creates a sounding client.
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: otelhttp.NewTransport(&http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				MaxIdleConnsPerHost: 8,
			}),
		},
		baseURL:     defaultBaseURL,
		stationsURL: defaultStationsURL,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSounding retrieves and parses the sounding for one (station,
// instant) pair. A 404 returns ErrNoData; other non-2xx statuses return a
// *StatusError; a page without a <pre> block returns ErrMissingDataBlock.
func (c *Client) FetchSounding(ctx context.Context, stationID string, at time.Time) (Result, error) {
	params := url.Values{
		"datetime": {at.UTC().Format(datetimeLayout)},
		"id":       {stationID},
		"type":     {"TEXT:LIST"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("sounding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Result{}, ErrNoData
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &StatusError{Code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("parse response body: %w", err)
	}

	stationName := strings.TrimSpace(doc.Find("h3").First().Text())
	if stationName == "" {
		stationName = stationID
	}

	pre := doc.Find("pre").First()
	if pre.Length() == 0 {
		return Result{}, ErrMissingDataBlock
	}
	text := pre.Text()

	if c.outputDir != "" {
		if err := c.writeTextBlock(stationName, at, text); err != nil {
			// The database copy is authoritative; the flat file is a
			// convenience export.
			c.logger.Warn("write text block failed", "station", stationID, "error", err)
		}
	}

	tbl := sounding.Parse(text)
	return Result{
		StationName: stationName,
		Table:       tbl,
		Payload:     tbl.Serialize(),
	}, nil
}

func (c *Client) writeTextBlock(stationName string, at time.Time, text string) error {
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(OutputFilename(c.outputDir, stationName, at), []byte(text), 0o644)
}
