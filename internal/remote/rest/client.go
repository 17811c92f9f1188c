// Package rest talks to a PostgREST-compatible backend (such as Supabase)
// over HTTPS: table CRUD under /rest/v1 and object storage under /storage/v1.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/farmsync/farmsync/internal/remote"
)

// DefaultTimeout bounds every request made with the default http.Client.
const DefaultTimeout = 30 * time.Second

// Client implements remote.Store against a PostgREST endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	pingTable  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a PostgREST client. baseURL is the project URL without
// the /rest/v1 suffix; apiKey is sent both as apikey and as the bearer token.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		pingTable: "animales",
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithHTTPClient sets a custom http.Client (for testing or custom timeouts).
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// WithLogger sets the logger used for request tracing at debug level.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithPingTable sets the table Ping probes. Defaults to "animales".
func (c *Client) WithPingTable(table string) *Client {
	c.pingTable = table
	return c
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "farmsync-client/1.0")
	req.Header.Set("Accept", "application/json")
}

func (c *Client) tableURL(table string, query url.Values) string {
	u := c.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func eq(v any) string {
	return "eq." + formatValue(v)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case nil:
		return "null"
	default:
		return fmt.Sprint(x)
	}
}

func (c *Client) Select(ctx context.Context, table string, filter remote.Filter) ([]remote.Row, error) {
	q := url.Values{"select": {"*"}}
	for col, v := range filter {
		if v == nil {
			q.Set(col, "is.null")
			continue
		}
		q.Set(col, eq(v))
	}
	var rows []remote.Row
	if err := c.do(ctx, "select", table, http.MethodGet, c.tableURL(table, q), nil, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	headers := map[string]string{"Prefer": "return=representation"}
	var rows []remote.Row
	if err := c.do(ctx, "insert", table, http.MethodPost, c.tableURL(table, nil), row, headers, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &remote.Error{Operation: "insert", Table: table, Message: "no row returned"}
	}
	return rows[0], nil
}

func (c *Client) Update(ctx context.Context, table string, id remote.ID, patch remote.Row) error {
	q := url.Values{id.Column: {eq(id.Value)}}
	headers := map[string]string{"Prefer": "return=representation"}
	var rows []remote.Row
	if err := c.do(ctx, "update", table, http.MethodPatch, c.tableURL(table, q), patch, headers, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return &remote.Error{Operation: "update", Table: table, StatusCode: http.StatusNotFound, Err: remote.ErrNotFound}
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, table string, row remote.Row, conflictKey string) (remote.Row, error) {
	q := url.Values{"on_conflict": {conflictKey}}
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=representation"}
	var rows []remote.Row
	if err := c.do(ctx, "upsert", table, http.MethodPost, c.tableURL(table, q), row, headers, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &remote.Error{Operation: "upsert", Table: table, Message: "no row returned"}
	}
	return rows[0], nil
}

func (c *Client) Delete(ctx context.Context, table string, id remote.ID) error {
	q := url.Values{id.Column: {eq(id.Value)}}
	return c.do(ctx, "delete", table, http.MethodDelete, c.tableURL(table, q), nil, nil, nil)
}

// Ping selects at most one row from the ping table.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{"select": {"*"}, "limit": {"1"}}
	var rows []remote.Row
	return c.do(ctx, "ping", c.pingTable, http.MethodGet, c.tableURL(c.pingTable, q), nil, nil, &rows)
}

// postgrestError is the JSON error body PostgREST returns.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (c *Client) do(ctx context.Context, op, table, method, u string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &remote.Error{Operation: op, Table: table, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &remote.Error{Operation: op, Table: table, Err: err}
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("remote request failed", "op", op, "table", table, "error", err)
		return &remote.Error{Operation: op, Table: table, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &remote.Error{Operation: op, Table: table, StatusCode: resp.StatusCode, Err: err}
	}
	c.logger.Debug("remote request",
		"op", op,
		"method", method,
		"table", table,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"body", truncate(respBody, 200))

	if resp.StatusCode >= 400 {
		return newError(op, table, resp.StatusCode, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &remote.Error{Operation: op, Table: table, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func newError(op, table string, status int, body []byte) *remote.Error {
	e := &remote.Error{Operation: op, Table: table, StatusCode: status}
	var pe postgrestError
	if err := json.Unmarshal(body, &pe); err == nil && (pe.Code != "" || pe.Message != "") {
		e.Code = pe.Code
		e.Message = pe.Message
		if pe.Details != "" {
			e.Message += ": " + pe.Details
		}
		return e
	}
	e.Message = truncate(body, 200)
	return e
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
