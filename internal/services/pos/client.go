package pos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"stocklink/internal/logger"
)

// Options tune pagination and rate-limit behavior.
type Options struct {
	PageSize         int
	MaxPages         int
	RateLimitBackoff time.Duration
	RateLimitRetries int
	PageDelay        time.Duration
}

func DefaultOptions() Options {
	return Options{
		PageSize:         100,
		MaxPages:         200,
		RateLimitBackoff: 5 * time.Second,
		RateLimitRetries: 60,
		PageDelay:        40 * time.Millisecond,
	}
}

// PageFunc receives incremental pagination progress.
type PageFunc func(pages, records int)

// progressEvery is how many pages pass between PageFunc calls.
const progressEvery = 2

type Client struct {
	baseURL     string
	accountID   string
	accessToken string
	opts        Options
	httpClient  *http.Client
	logger      *logger.Logger
}

func NewClient(baseURL, accountID, accessToken string, opts Options, logger *logger.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		accountID:   accountID,
		accessToken: accessToken,
		opts:        opts,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// pageEnvelope is the wire shape of one collection page.
type pageEnvelope struct {
	Data json.RawMessage `json:"data"`
	Next *string         `json:"next"`
}

// paginate walks a cursor-paginated collection and returns the raw data
// array of every page fetched. A 429 pauses and retries the same page up
// to RateLimitRetries times; any other non-2xx stops the walk and returns
// what has been accumulated so far, without error. Callers must tolerate
// partial results.
func (c *Client) paginate(ctx context.Context, resource string, filter url.Values, onPage PageFunc) ([]json.RawMessage, int, error) {
	pageURL := fmt.Sprintf("%s/accounts/%s/%s", c.baseURL, c.accountID, resource)

	q := url.Values{}
	for k, vs := range filter {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("limit", fmt.Sprintf("%d", c.opts.PageSize))
	pageURL = pageURL + "?" + q.Encode()

	var pages []json.RawMessage
	records := 0
	attempts := 0

	for pageCount := 0; pageCount < c.opts.MaxPages; {
		if err := ctx.Err(); err != nil {
			return pages, records, err
		}

		req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
		if err != nil {
			return pages, records, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error("POS request failed for %s: %v", resource, err)
			return pages, records, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			attempts++
			if attempts > c.opts.RateLimitRetries {
				c.logger.Error("POS rate limit persisted for %s after %d retries, returning partial results", resource, attempts-1)
				return pages, records, nil
			}
			c.logger.Debug("POS rate limited on %s, backing off %s", resource, c.opts.RateLimitBackoff)
			select {
			case <-ctx.Done():
				return pages, records, ctx.Err()
			case <-time.After(c.opts.RateLimitBackoff):
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			c.logger.Error("POS returned %d for %s, returning partial results (%d records)", resp.StatusCode, resource, records)
			return pages, records, nil
		}

		var envelope pageEnvelope
		err = json.NewDecoder(resp.Body).Decode(&envelope)
		resp.Body.Close()
		if err != nil {
			c.logger.Error("failed to decode %s page: %v", resource, err)
			return pages, records, nil
		}

		attempts = 0
		pageCount++
		if len(envelope.Data) > 0 {
			pages = append(pages, envelope.Data)
			records += countArray(envelope.Data)
		}

		if onPage != nil && pageCount%progressEvery == 0 {
			onPage(pageCount, records)
		}

		if envelope.Next == nil || *envelope.Next == "" {
			break
		}
		pageURL = *envelope.Next

		// Stay under burst limits between pages.
		select {
		case <-ctx.Done():
			return pages, records, ctx.Err()
		case <-time.After(c.opts.PageDelay):
		}
	}

	return pages, records, nil
}

func countArray(data json.RawMessage) int {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0
	}
	return len(raw)
}

// ListItems fetches every non-archived item on the account.
func (c *Client) ListItems(ctx context.Context, onPage PageFunc) ([]Item, error) {
	filter := url.Values{}
	filter.Set("archived", "false")
	return c.fetchItems(ctx, filter, onPage)
}

// ListItemsByCategory fetches the non-archived items of one category.
func (c *Client) ListItemsByCategory(ctx context.Context, categoryID string, onPage PageFunc) ([]Item, error) {
	filter := url.Values{}
	filter.Set("archived", "false")
	filter.Set("categoryID", categoryID)
	return c.fetchItems(ctx, filter, onPage)
}

func (c *Client) fetchItems(ctx context.Context, filter url.Values, onPage PageFunc) ([]Item, error) {
	pages, _, err := c.paginate(ctx, "items", filter, onPage)
	if err != nil {
		return nil, err
	}
	var items []Item
	for _, page := range pages {
		var batch []Item
		if err := json.Unmarshal(page, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode items page: %w", err)
		}
		items = append(items, batch...)
	}
	return items, nil
}

// ListInventory fetches per-location stock records for every item.
func (c *Client) ListInventory(ctx context.Context, onPage PageFunc) ([]InventoryRecord, error) {
	pages, _, err := c.paginate(ctx, "inventory", nil, onPage)
	if err != nil {
		return nil, err
	}
	var records []InventoryRecord
	for _, page := range pages {
		var batch []InventoryRecord
		if err := json.Unmarshal(page, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode inventory page: %w", err)
		}
		records = append(records, batch...)
	}
	return records, nil
}

// ListCategories fetches the account's category tree, flattened.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	pages, _, err := c.paginate(ctx, "categories", nil, nil)
	if err != nil {
		return nil, err
	}
	var categories []Category
	for _, page := range pages {
		var batch []Category
		if err := json.Unmarshal(page, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode categories page: %w", err)
		}
		categories = append(categories, batch...)
	}
	return categories, nil
}

// ListManufacturers fetches the account's manufacturers.
func (c *Client) ListManufacturers(ctx context.Context) ([]Manufacturer, error) {
	pages, _, err := c.paginate(ctx, "manufacturers", nil, nil)
	if err != nil {
		return nil, err
	}
	var manufacturers []Manufacturer
	for _, page := range pages {
		var batch []Manufacturer
		if err := json.Unmarshal(page, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode manufacturers page: %w", err)
		}
		manufacturers = append(manufacturers, batch...)
	}
	return manufacturers, nil
}
