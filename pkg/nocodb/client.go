// Package nocodb is a small client for the NocoDB v2 REST API: record
// inserts plus the base and table metadata calls the lead importer needs.
package nocodb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/saldang/grezzi/internal/resilience"
)

const defaultBaseURL = "http://nocodb:8080"

// Client talks to a NocoDB instance.
type Client interface {
	InsertRecords(ctx context.Context, tableID string, records []map[string]string) error
	ListBases(ctx context.Context) ([]Base, error)
	ListTables(ctx context.Context, baseID string) ([]Table, error)
	CreateTable(ctx context.Context, baseID, name string) (*Table, error)
}

// Base is a NocoDB base (project).
type Base struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Table is a NocoDB table.
type Table struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	TableName string `json:"table_name,omitempty"`
}

// Column is a column definition of a table creation request. UIDT is the
// NocoDB UI data type.
type Column struct {
	Title string `json:"title"`
	UIDT  string `json:"uidt"`
	PV    bool   `json:"pv,omitempty"`
}

// LeadColumns is the layout of a table that receives cleaned leads.
var LeadColumns = []Column{
	{Title: "ID", UIDT: "ID", PV: true},
	{Title: "Created At", UIDT: "CreatedTime"},
	{Title: "Updated At", UIDT: "UpdatedTime"},
	{Title: "Source", UIDT: "SingleLineText"},
	{Title: "Email", UIDT: "Email"},
	{Title: "Cell", UIDT: "PhoneNumber"},
	{Title: "Name_or_Email", UIDT: "SingleLineText"},
	{Title: "Website", UIDT: "URL"},
	{Title: "Description", UIDT: "LongText"},
	{Title: "Name", UIDT: "SingleLineText"},
	{Title: "Meta Description", UIDT: "SingleLineText"},
	{Title: "Meta Keywords", UIDT: "SingleLineText"},
	{Title: "Domain-1", UIDT: "URL"},
	{Title: "Domain", UIDT: "URL"},
	{Title: "Country", UIDT: "SingleLineText"},
	{Title: "City", UIDT: "SingleLineText"},
	{Title: "Address", UIDT: "SingleLineText"},
	{Title: "Category-I", UIDT: "SingleLineText"},
	{Title: "Category-II", UIDT: "SingleLineText"},
}

type createTableRequest struct {
	Title     string   `json:"title"`
	TableName string   `json:"table_name"`
	Columns   []Column `json:"columns"`
}

type listResponse[T any] struct {
	List []T `json:"list"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default instance URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry sets the retry policy. Inserts and table creation keep its
// attempts and backoff but retry only requests that never arrived.
func WithRetry(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

// WithBatchSize splits InsertRecords into requests of at most n records.
// Zero sends everything in one request.
func WithBatchSize(n int) Option {
	return func(c *httpClient) {
		c.batchSize = n
	}
}

type httpClient struct {
	token     string
	baseURL   string
	batchSize int
	retry     resilience.Policy
	http      *http.Client
}

// NewClient creates a NocoDB client authenticated with an API token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		retry:   resilience.NewPolicy(3),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) InsertRecords(ctx context.Context, tableID string, records []map[string]string) error {
	if tableID == "" {
		return eris.New("nocodb: table id is required")
	}
	if len(records) == 0 {
		return nil
	}

	size := c.batchSize
	if size <= 0 {
		size = len(records)
	}
	// A resent insert duplicates rows, so only retry what never arrived.
	policy := c.retry
	policy.Retryable = resilience.IsUndelivered

	path := "/api/v2/tables/" + url.PathEscape(tableID) + "/records"
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		if err := c.send(ctx, policy, "insert records", http.MethodPost, path, records[start:end], nil); err != nil {
			return eris.Wrapf(err, "nocodb: insert records %d-%d into %s", start, end, tableID)
		}
	}
	return nil
}

func (c *httpClient) ListBases(ctx context.Context) ([]Base, error) {
	var out listResponse[Base]
	if err := c.call(ctx, "list bases", http.MethodGet, "/api/v2/meta/bases/", nil, &out); err != nil {
		return nil, eris.Wrap(err, "nocodb: list bases")
	}
	return out.List, nil
}

func (c *httpClient) ListTables(ctx context.Context, baseID string) ([]Table, error) {
	var out listResponse[Table]
	path := "/api/v2/meta/bases/" + url.PathEscape(baseID) + "/tables"
	if err := c.call(ctx, "list tables", http.MethodGet, path, nil, &out); err != nil {
		return nil, eris.Wrapf(err, "nocodb: list tables of %s", baseID)
	}
	return out.List, nil
}

func (c *httpClient) CreateTable(ctx context.Context, baseID, name string) (*Table, error) {
	if name == "" {
		return nil, eris.New("nocodb: table name is required")
	}
	req := createTableRequest{Title: name, TableName: name, Columns: LeadColumns}

	var out Table
	path := "/api/v2/meta/bases/" + url.PathEscape(baseID) + "/tables"
	policy := c.retry
	policy.Retryable = resilience.IsUndelivered
	if err := c.send(ctx, policy, "create table", http.MethodPost, path, req, &out); err != nil {
		return nil, eris.Wrapf(err, "nocodb: create table %s", name)
	}
	return &out, nil
}

// call sends one JSON request with the client's retry policy and decodes
// the response into out when it is non-nil.
func (c *httpClient) call(ctx context.Context, op, method, path string, in, out any) error {
	return c.send(ctx, c.retry, op, method, path, in, out)
}

func (c *httpClient) send(ctx context.Context, policy resilience.Policy, op, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return eris.Wrap(err, "marshal request")
		}
	}

	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetries("nocodb", op)
	}

	body, err := resilience.DoVal(ctx, policy, func(ctx context.Context) ([]byte, error) {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("xc-token", c.token)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &resilience.StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return eris.Wrap(err, "unmarshal response")
		}
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
