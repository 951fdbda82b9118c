// Package remote is a client for the Table API of the instance.
package remote

//go:generate mockery -name Client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/sidkik/nowsync/pkg/errors"
	"github.com/sidkik/nowsync/pkg/version"
)

const (
	// FieldID is the unique ID of every record.
	FieldID = "sys_id"

	// FieldScope references the application that a record belongs to.
	FieldScope = "sys_scope"

	// DefaultLimit is the number of records requested when ListOptions
	// doesn't set a limit.
	DefaultLimit = 10000
)

// systemFields are added to every request that restricts the returned
// fields.
var systemFields = []string{FieldID, "sys_updated_by", "sys_updated_on"}

// ListOptions filters the records returned by List.
type ListOptions struct {
	// Query is an encoded query, such as `active=true^name=foo`.
	Query  string
	Fields []string
	Limit  int

	// DisplayValue requests display values rather than raw values.
	DisplayValue bool
}

// Client reads and writes records on the instance.
type Client interface {
	List(ctx context.Context, table string, opts ListOptions) ([]Record, error)
	Get(ctx context.Context, table, id string, fields ...string) (Record, error)

	// Update only modifies the given fields of the record.
	Update(ctx context.Context, table, id string, fields map[string]string) (Record, error)
}

// Config configures the HTTP client.
type Config struct {
	InstanceURL   string
	Authorization string
	Timeout       time.Duration

	// MaxRetries is the number of times a failed read is retried.
	MaxRetries uint64
}

// newBackOff is overridden in tests to avoid waiting between retries.
var newBackOff = func() backoff.BackOff {
	return backoff.NewExponentialBackOff()
}

type client struct {
	baseURL    *url.URL
	auth       string
	maxRetries uint64
	httpClient *http.Client
}

// New creates a client for the instance described by `cfg`.
func New(cfg Config) (Client, error) {
	baseURL, err := url.Parse(strings.TrimRight(cfg.InstanceURL, "/"))
	if err != nil {
		return nil, errors.WithContext(err, "parse instance URL")
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, errors.NewFriendlyError("Invalid instance URL %q. "+
			"Expected a URL such as https://dev1234.service-now.com.", cfg.InstanceURL)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	// The instance hands out a session cookie on the first request. Sending
	// it back avoids re-authenticating on every call.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.WithContext(err, "create cookie jar")
	}

	return &client{
		baseURL:    baseURL,
		auth:       cfg.Authorization,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
	}, nil
}

func (c *client) List(ctx context.Context, table string, opts ListOptions) ([]Record, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := url.Values{}
	query.Set("sysparm_query", opts.Query)
	query.Set("sysparm_limit", strconv.Itoa(limit))
	query.Set("sysparm_display_value", strconv.FormatBool(opts.DisplayValue))
	if fields := injectSystemFields(opts.Fields); len(fields) > 0 {
		query.Set("sysparm_fields", strings.Join(fields, ","))
	}

	body, err := c.do(ctx, http.MethodGet, tablePath(table), query, nil)
	if err != nil {
		return nil, errors.WithContext(err, fmt.Sprintf("list %s", table))
	}

	records, err := parseResult(body)
	if err != nil {
		return nil, errors.WithContext(err, "parse response")
	}
	return records, nil
}

func (c *client) Get(ctx context.Context, table, id string, fields ...string) (Record, error) {
	query := url.Values{}
	query.Set("sysparm_display_value", "false")
	if fields := injectSystemFields(fields); len(fields) > 0 {
		query.Set("sysparm_fields", strings.Join(fields, ","))
	}

	body, err := c.do(ctx, http.MethodGet, tablePath(table, id), query, nil)
	if err != nil {
		return nil, errors.WithContext(err, fmt.Sprintf("get %s/%s", table, id))
	}
	return singleRecord(body)
}

func (c *client) Update(ctx context.Context, table, id string, fields map[string]string) (Record, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.WithContext(err, "marshal")
	}

	body, err := c.do(ctx, http.MethodPut, tablePath(table, id), nil, payload)
	if err != nil {
		return nil, errors.WithContext(err, fmt.Sprintf("update %s/%s", table, id))
	}
	return singleRecord(body)
}

func singleRecord(body []byte) (Record, error) {
	records, err := parseResult(body)
	if err != nil {
		return nil, errors.WithContext(err, "parse response")
	}
	if len(records) != 1 {
		return nil, errors.New("expected one record, got %d", len(records))
	}
	return records[0], nil
}

// do sends a request to the instance and returns the response body. Reads
// are retried on network errors and server errors. Writes are never retried
// because they might have been applied.
func (c *client) do(ctx context.Context, method, path string, query url.Values,
	payload []byte) ([]byte, error) {

	reqURL := *c.baseURL
	reqURL.Path += path
	reqURL.RawQuery = query.Encode()

	var body []byte
	attempt := func() error {
		var err error
		body, err = c.doOnce(ctx, method, reqURL.String(), payload)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		var remoteErr errors.RemoteError
		if errors.As(err, &remoteErr) && remoteErr.StatusCode < 500 {
			return backoff.Permanent(err)
		}

		log.WithError(err).WithField("url", reqURL.Path).Debug("Request failed")
		return err
	}

	if method != http.MethodGet {
		return body, attempt()
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), c.maxRetries), ctx)
	return body, backoff.Retry(attempt, policy)
}

func (c *client) doOnce(ctx context.Context, method, reqURL string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, errors.WithContext(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}

	log.WithField("method", method).WithField("url", reqURL).Debug("Sending request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithContext(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithContext(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.RemoteError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(respBody, "error.message").String(),
		}
	}
	return respBody, nil
}

// RecordURL returns the link that opens a record in the instance's UI.
func RecordURL(instanceURL, table, id string) string {
	return fmt.Sprintf("%s/nav_to.do?uri=%s.do?sys_id=%s",
		strings.TrimRight(instanceURL, "/"), table, id)
}

func tablePath(table string, id ...string) string {
	return strings.Join(append([]string{"/api/now/table", table}, id...), "/")
}

// injectSystemFields adds the system fields to a non-empty field list.
func injectSystemFields(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}

	injected := append([]string{}, fields...)
	for _, sysField := range systemFields {
		if !contains(injected, sysField) {
			injected = append(injected, sysField)
		}
	}
	return injected
}

func contains(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}
