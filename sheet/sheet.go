// Package sheet downloads spreadsheet tabs as CSV and exposes their rows by
// header name. Google Sheets serves any tab of a link-shared document at
//
//	https://docs.google.com/spreadsheets/d/<id>/export?format=csv&gid=<gid>
//
// which is all the translation memory and glossary need.
package sheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
)

// DefaultBaseURL is the Google Sheets host.
const DefaultBaseURL = "https://docs.google.com"

var (
	// ErrNotPublic is returned when the export answers with an HTML page,
	// which Google does for documents that are not link-shared.
	ErrNotPublic = errors.New("spreadsheet is not publicly exported (got an HTML page instead of CSV)")
	// ErrMissingColumn is returned by Table.Pairs for unknown headers.
	ErrMissingColumn = errors.New("column not found")
	// ErrEmpty is returned when the CSV has no header row.
	ErrEmpty = errors.New("spreadsheet tab is empty")
)

// HTTPError is a non-2xx export response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("spreadsheet export returned status %d: %s", e.StatusCode, e.Body)
}

// Client fetches CSV exports.
type Client struct {
	http       *resty.Client
	maxRetries uint64
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host (tests, mirrors).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.http.SetBaseURL(strings.TrimRight(u, "/")) }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithRetries sets the retry count and the initial Fibonacci backoff.
func WithRetries(n uint64, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		c.backoff = base
	}
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(30 * time.Second).
			SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)),
		maxRetries: 4,
		backoff:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads one tab of a spreadsheet and parses it.
func (c *Client) Fetch(ctx context.Context, spreadsheetID, gid string) (*Table, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is empty")
	}

	b := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(c.backoff))

	var body []byte
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetPathParam("id", spreadsheetID).
			SetQueryParam("format", "csv").
			SetQueryParam("gid", gid).
			Get("/spreadsheets/d/{id}/export")
		if err != nil {
			return retry.RetryableError(fmt.Errorf("downloading spreadsheet: %w", err))
		}

		if code := resp.StatusCode(); code < http.StatusOK || code >= http.StatusMultipleChoices {
			herr := &HTTPError{StatusCode: code, Body: truncate(resp.String(), 200)}
			if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
				return retry.RetryableError(herr)
			}
			return herr
		}

		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if looksLikeHTML(body) {
		return nil, ErrNotPublic
	}
	return Parse(bytes.NewReader(body))
}

// ReadFile parses a local CSV file, for offline runs.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse reads CSV with a header row. Header names are trimmed, cells are
// kept verbatim since catalog lookups are exact. Short rows are padded so
// every row has one cell per header.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	t := &Table{Header: trimAll(records[0])}
	if len(t.Header) > 0 {
		t.Header[0] = strings.TrimPrefix(t.Header[0], "\ufeff")
	}
	for _, rec := range records[1:] {
		row := rec
		for len(row) < len(t.Header) {
			row = append(row, "")
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Table is a parsed tab.
type Table struct {
	Header []string
	Rows   [][]string
}

// Pair is one source/target row.
type Pair struct {
	Source string
	Target string
}

// Column returns the index of the header named name (case-insensitive), or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(h, strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// Pairs extracts the two named columns. Rows with either cell blank are
// skipped.
func (t *Table) Pairs(sourceCol, targetCol string) ([]Pair, error) {
	si := t.Column(sourceCol)
	if si < 0 {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrMissingColumn, sourceCol, strings.Join(t.Header, ", "))
	}
	ti := t.Column(targetCol)
	if ti < 0 {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrMissingColumn, targetCol, strings.Join(t.Header, ", "))
	}

	var pairs []Pair
	for _, row := range t.Rows {
		if strings.TrimSpace(row[si]) == "" || strings.TrimSpace(row[ti]) == "" {
			continue
		}
		pairs = append(pairs, Pair{Source: row[si], Target: row[ti]})
	}
	return pairs, nil
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func looksLikeHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 64 {
		head = head[:64]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
