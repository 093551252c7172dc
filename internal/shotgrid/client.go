package shotgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	apiPrefix       = "/api/v1"
	searchMediaType = "application/vnd+shotgun.api3_array+json"
	defaultPageSize = 500
	// tokens are refreshed this long before the server-side expiry
	tokenSkew = 30 * time.Second
)

// Client talks to the ShotGrid REST API using script credentials.
type Client struct {
	site       string
	scriptName string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithPageSize changes how many records a search requests per page.
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// New creates a ShotGrid client for the given site.
func New(site, scriptName, apiKey string, opts ...Option) (*Client, error) {
	site = strings.TrimRight(strings.TrimSpace(site), "/")
	if site == "" {
		return nil, errors.New("shotgrid site url required")
	}
	if _, err := url.Parse(site); err != nil {
		return nil, fmt.Errorf("parse shotgrid site url: %w", err)
	}
	scriptName = strings.TrimSpace(scriptName)
	if scriptName == "" {
		return nil, errors.New("shotgrid script name required")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("shotgrid api key required")
	}
	client := &Client{
		site:       site,
		scriptName: scriptName,
		apiKey:     apiKey,
		pageSize:   defaultPageSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Site returns the base URL of the ShotGrid site.
func (c *Client) Site() string {
	return c.site
}

type tokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate exchanges the script credentials for an access token.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.scriptName)
	form.Set("client_secret", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.site+apiPrefix+"/auth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute auth request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	if payload.AccessToken == "" {
		return errors.New("shotgrid returned an empty access token")
	}
	c.token = payload.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return nil
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !c.now().Add(tokenSkew).Before(c.tokenExpiry) {
		if err := c.authenticateLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

// Find returns every record of entityType matching all filters.
func (c *Client) Find(ctx context.Context, entityType string, filters []Filter, fields []string) ([]Record, error) {
	var records []Record
	for page := 1; ; page++ {
		batch, err := c.search(ctx, entityType, filters, fields, page, c.pageSize)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
		if len(batch) < c.pageSize {
			return records, nil
		}
	}
}

// FindOne returns the first matching record, or nil when nothing matches.
func (c *Client) FindOne(ctx context.Context, entityType string, filters []Filter, fields []string) (*Record, error) {
	batch, err := c.search(ctx, entityType, filters, fields, 1, 1)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}
	return &batch[0], nil
}

func (c *Client) search(ctx context.Context, entityType string, filters []Filter, fields []string, page, size int) ([]Record, error) {
	endpoint, err := url.Parse(c.site + apiPrefix + "/entity/" + Collection(entityType) + "/_search")
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	params := url.Values{}
	if len(fields) > 0 {
		params.Set("fields", strings.Join(fields, ","))
	}
	params.Set("page[number]", strconv.Itoa(page))
	params.Set("page[size]", strconv.Itoa(size))
	endpoint.RawQuery = params.Encode()

	if filters == nil {
		filters = []Filter{}
	}
	body := map[string]any{"filters": filters}
	var payload struct {
		Data []Record `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint.String(), searchMediaType, body, &payload); err != nil {
		return nil, fmt.Errorf("search %s: %w", entityType, err)
	}
	return payload.Data, nil
}

// Create inserts a new entity and returns the created record.
func (c *Client) Create(ctx context.Context, entityType string, fields map[string]any) (Record, error) {
	endpoint := c.site + apiPrefix + "/entity/" + Collection(entityType)
	var payload struct {
		Data Record `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, "application/json", fields, &payload); err != nil {
		return Record{}, fmt.Errorf("create %s: %w", entityType, err)
	}
	return payload.Data, nil
}

// Update changes fields on an existing entity.
func (c *Client) Update(ctx context.Context, entityType string, id int, fields map[string]any) error {
	endpoint := c.site + apiPrefix + "/entity/" + Collection(entityType) + "/" + strconv.Itoa(id)
	if err := c.do(ctx, http.MethodPut, endpoint, "application/json", fields, nil); err != nil {
		return fmt.Errorf("update %s %d: %w", entityType, id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body any, out any) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Collection converts an entity type such as "HumanUser" into its REST
// collection name ("human_users").
func Collection(entityType string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(entityType) {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String() + "s"
}
