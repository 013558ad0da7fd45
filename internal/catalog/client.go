package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lojinha-app/storefront/internal/buildinfo"
	"github.com/lojinha-app/storefront/internal/config"
	"github.com/lojinha-app/storefront/internal/logging"
	"github.com/lojinha-app/storefront/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	requestTimeout = 30 * time.Second
	// maxPages stops a pagination loop that keeps returning tokens.
	maxPages = 1000
)

var (
	// ErrProductNotFound is returned by GetProduct for unknown or deleted products.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrNotConfigured is returned when no API endpoint is configured.
	ErrNotConfigured = errors.New("catalog: api endpoint is not configured")
)

// TokenSource supplies the signed-in user's access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// ErrorItem is a single entry of a GraphQL errors array.
type ErrorItem struct {
	Message   string
	ErrorType string
	Path      []string
}

// GraphQLError carries the errors reported by the API.
type GraphQLError struct {
	StatusCode int
	Errors     []ErrorItem
}

func (e *GraphQLError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "catalog: graphql request failed"
	}
	messages := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		msg := item.Message
		if item.ErrorType != "" {
			msg = item.ErrorType + ": " + msg
		}
		messages = append(messages, msg)
	}
	return "catalog: " + strings.Join(messages, "; ")
}

// Client is the GraphQL API client.
type Client struct {
	endpoint         string
	realtimeEndpoint string
	apiKey           string
	pageSize         int
	tokens           TokenSource
	httpClient       *http.Client
}

// NewClient builds a client from the api section of cfg. tokens may be nil, in which
// case requests are authorised with the API key only.
func NewClient(cfg *config.Config, tokens TokenSource) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.API.Endpoint) == "" {
		return nil, ErrNotConfigured
	}
	pageSize := cfg.API.PageSize
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	return &Client{
		endpoint:         strings.TrimSpace(cfg.API.Endpoint),
		realtimeEndpoint: strings.TrimSpace(cfg.API.RealtimeEndpoint),
		apiKey:           cfg.API.APIKey,
		pageSize:         pageSize,
		tokens:           tokens,
		httpClient:       util.NewHTTPClient(cfg, requestTimeout),
	}, nil
}

// authHeaders returns the authorization headers of a request: the user's access token
// when signed in, otherwise the API key.
func (c *Client) authHeaders(ctx context.Context) (map[string]string, error) {
	var tokenErr error
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err == nil && token != "" {
			return map[string]string{"Authorization": token}, nil
		}
		tokenErr = err
	}
	if c.apiKey != "" {
		return map[string]string{"x-api-key": c.apiKey}, nil
	}
	if tokenErr != nil {
		return nil, fmt.Errorf("catalog: no credentials: %w", tokenErr)
	}
	return nil, fmt.Errorf("catalog: no credentials: sign in or configure api-key")
}

// execute runs a GraphQL operation and returns its data object.
func (c *Client) execute(ctx context.Context, operation, query string, variables map[string]any) (gjson.Result, error) {
	ctx, requestID := logging.EnsureRequestID(ctx)
	body, err := sjson.SetBytes([]byte(`{}`), "query", query)
	if err == nil && len(variables) > 0 {
		body, err = sjson.SetBytes(body, "variables", variables)
	}
	if err != nil {
		return gjson.Result{}, fmt.Errorf("catalog: build %s request: %w", operation, err)
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return gjson.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(string(body)))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("X-Request-Id", requestID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("catalog: %s: %w", operation, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("catalog: close response body: %v", errClose)
		}
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("catalog: %s: read response: %w", operation, err)
	}
	data, err := decodeBody(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("catalog: %s: %w", operation, err)
	}
	logging.Entry(ctx).WithFields(log.Fields{
		"operation": operation,
		"status":    resp.StatusCode,
	}).Debugf("graphql request finished in %s", time.Since(start).Round(time.Millisecond))

	parsed := gjson.ParseBytes(data)
	if gqlErr := parseGraphQLErrors(resp.StatusCode, parsed); gqlErr != nil {
		return gjson.Result{}, gqlErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("catalog: %s: unexpected status %d", operation, resp.StatusCode)
	}
	return parsed.Get("data"), nil
}

func parseGraphQLErrors(status int, parsed gjson.Result) *GraphQLError {
	errorsField := parsed.Get("errors")
	if !errorsField.IsArray() || len(errorsField.Array()) == 0 {
		return nil
	}
	out := &GraphQLError{StatusCode: status}
	errorsField.ForEach(func(_, item gjson.Result) bool {
		entry := ErrorItem{
			Message:   item.Get("message").String(),
			ErrorType: item.Get("errorType").String(),
		}
		item.Get("path").ForEach(func(_, p gjson.Result) bool {
			entry.Path = append(entry.Path, p.String())
			return true
		})
		out.Errors = append(out.Errors, entry)
		return true
	})
	return out
}

// ListProducts returns every product, following pagination. Soft-deleted products are skipped.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	nextToken := ""
	seen := make(map[string]struct{})
	for page := 0; page < maxPages; page++ {
		variables := map[string]any{"limit": c.pageSize}
		if nextToken != "" {
			variables["nextToken"] = nextToken
		}
		data, err := c.execute(ctx, "listProducts", listProductsQuery, variables)
		if err != nil {
			return nil, err
		}
		list := data.Get("listProducts")
		list.Get("items").ForEach(func(_, item gjson.Result) bool {
			if item.Type == gjson.Null {
				return true
			}
			if p := productFromResult(item); !p.Deleted {
				products = append(products, p)
			}
			return true
		})
		nextToken = list.Get("nextToken").String()
		if nextToken == "" {
			return products, nil
		}
		if _, dup := seen[nextToken]; dup {
			return nil, fmt.Errorf("catalog: listProducts returned a repeated page token")
		}
		seen[nextToken] = struct{}{}
	}
	return nil, fmt.Errorf("catalog: listProducts exceeded %d pages", maxPages)
}

// GetProduct returns a single product.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrProductNotFound
	}
	data, err := c.execute(ctx, "getProduct", getProductQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	item := data.Get("getProduct")
	if !item.Exists() || item.Type == gjson.Null {
		return nil, ErrProductNotFound
	}
	product := productFromResult(item)
	if product.Deleted {
		return nil, ErrProductNotFound
	}
	return &product, nil
}

// CreateProduct creates a product and returns it as stored.
func (c *Client) CreateProduct(ctx context.Context, input CreateProductInput) (*Product, error) {
	fields := map[string]any{
		"name":  input.Name,
		"price": input.Price,
	}
	if input.Description != "" {
		fields["description"] = input.Description
	}
	if input.Image != "" {
		fields["image"] = input.Image
	}
	if input.Category != "" {
		fields["category"] = input.Category
	}
	data, err := c.execute(ctx, "createProduct", createProductMutation, map[string]any{"input": fields})
	if err != nil {
		return nil, err
	}
	item := data.Get("createProduct")
	if !item.Exists() || item.Type == gjson.Null {
		return nil, fmt.Errorf("catalog: createProduct returned no product")
	}
	product := productFromResult(item)
	return &product, nil
}
