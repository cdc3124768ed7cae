// Package remote implements the document-store client the sync engine pulls
// from and pushes to. The remote side is the source of truth; every failure is
// reported as a typed error and never mutates local state.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/famling-app/famling/backend/internal/sync"
)

const defaultRequestTimeout = 15 * time.Second

var (
	errMissingBaseURL    = errors.New("remote base url is required")
	errMissingCollection = errors.New("collection name is required")
)

// TokenSource supplies the bearer token for authenticated requests.
type TokenSource func(ctx context.Context) (string, error)

// ClientConfig configures the shared HTTP transport.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      TokenSource
	Logger     *zap.Logger
}

// Client is the shared transport collections are bound to.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *zap.Logger
}

// NewClient validates the configuration and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, token: cfg.Token, logger: logger}, nil
}

// Collection binds the shared transport to one entity collection, implementing
// the sync.RemoteStore contract for that entity's record type.
type Collection[T sync.Record[T]] struct {
	client *Client
	name   string
}

// NewCollection constructs a Collection for the named entity collection.
func NewCollection[T sync.Record[T]](client *Client, name string) (*Collection[T], error) {
	if client == nil {
		return nil, errMissingBaseURL
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, errMissingCollection
	}
	return &Collection[T]{client: client, name: trimmed}, nil
}

// FetchAll returns every remote record of the collection.
func (c *Collection[T]) FetchAll(ctx context.Context) ([]T, error) {
	return c.fetchList(ctx, "")
}

// FetchByOwner returns the remote records belonging to one owner.
func (c *Collection[T]) FetchByOwner(ctx context.Context, ownerID string) ([]T, error) {
	return c.fetchList(ctx, ownerID)
}

// FetchByID returns one remote record, reporting whether it exists.
func (c *Collection[T]) FetchByID(ctx context.Context, key sync.Key) (T, bool, error) {
	var record T
	status, body, err := c.client.do(ctx, http.MethodGet, c.recordPath(key), nil)
	if err != nil {
		return record, false, err
	}
	if status == http.StatusNotFound {
		return record, false, nil
	}
	if err := classifyStatus(c.op("fetch"), status); err != nil {
		return record, false, err
	}
	if err := json.Unmarshal(body, &record); err != nil {
		return record, false, sync.Transient(c.op("fetch"), err)
	}
	return record, true, nil
}

// Upsert writes one record to the remote collection. Upserts are idempotent.
func (c *Collection[T]) Upsert(ctx context.Context, record T) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return sync.Transient(c.op("upsert"), err)
	}
	status, _, err := c.client.do(ctx, http.MethodPut, c.recordPath(record.Key()), payload)
	if err != nil {
		return err
	}
	return classifyStatus(c.op("upsert"), status)
}

// Delete removes one record from the remote collection. A missing record is
// treated as already deleted.
func (c *Collection[T]) Delete(ctx context.Context, key sync.Key) error {
	status, _, err := c.client.do(ctx, http.MethodDelete, c.recordPath(key), nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	return classifyStatus(c.op("delete"), status)
}

func (c *Collection[T]) fetchList(ctx context.Context, ownerID string) ([]T, error) {
	path := "/v1/" + url.PathEscape(c.name)
	if ownerID != "" {
		path += "?owner_id=" + url.QueryEscape(ownerID)
	}
	status, body, err := c.client.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(c.op("fetch"), status); err != nil {
		return nil, err
	}
	var records []T
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, sync.Transient(c.op("fetch"), err)
	}
	return records, nil
}

func (c *Collection[T]) recordPath(key sync.Key) string {
	path := "/v1/" + url.PathEscape(c.name) + "/" + url.PathEscape(key.ID)
	if key.OwnerID != "" {
		path += "?owner_id=" + url.QueryEscape(key.OwnerID)
	}
	return path
}

func (c *Collection[T]) op(action string) string {
	return "remote." + c.name + "." + action
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, sync.Transient("remote.request", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return 0, nil, sync.Permission("remote.request", err)
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("remote request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return 0, nil, sync.Transient("remote.request", err)
	}
	defer response.Body.Close() //nolint:errcheck

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, sync.Transient("remote.request", err)
	}
	return response.StatusCode, responseBody, nil
}

// classifyStatus maps an HTTP status to the engine's error taxonomy:
// authorization failures are permission errors, everything else non-2xx is
// transient and retried on the next trigger.
func classifyStatus(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return sync.Permission(op, fmt.Errorf("remote returned status %d", status))
	default:
		return sync.Transient(op, fmt.Errorf("remote returned status %d", status))
	}
}
