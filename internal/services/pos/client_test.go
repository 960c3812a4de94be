package pos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocklink/internal/logger"
)

func testOptions() Options {
	return Options{
		PageSize:         2,
		MaxPages:         50,
		RateLimitBackoff: time.Millisecond,
		RateLimitRetries: 3,
		PageDelay:        time.Microsecond,
	}
}

func testLogger() *logger.Logger {
	return logger.New("error")
}

// fakePOS serves a paginated items collection with optional rate
// limiting and failures.
type fakePOS struct {
	mu          gosync.Mutex
	pages       [][]Item
	rateLimits  int // 429s to serve before the first page
	failAtPage  int // 1-based page index to serve a 500 at, 0 for never
	requests    int
	authHeaders []string
}

func (f *fakePOS) handler(serverURL func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))

		if f.rateLimits > 0 {
			f.rateLimits--
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &page)
		}
		if f.failAtPage > 0 && page == f.failAtPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if page > len(f.pages) {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var next *string
		if page < len(f.pages) {
			url := fmt.Sprintf("%s/accounts/acct-1/items?page=%d", serverURL(), page+1)
			next = &url
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": f.pages[page-1],
			"next": next,
		})
	}
}

func itemPages(counts ...int) [][]Item {
	var pages [][]Item
	n := 0
	for _, count := range counts {
		page := make([]Item, count)
		for i := range page {
			page[i] = Item{ID: fmt.Sprintf("item-%d", n), Description: fmt.Sprintf("Item %d", n)}
			n++
		}
		pages = append(pages, page)
	}
	return pages
}

func newFakePOS(pages [][]Item) (*fakePOS, *httptest.Server) {
	fake := &fakePOS{pages: pages}
	var server *httptest.Server
	server = httptest.NewServer(fake.handler(func() string { return server.URL }))
	return fake, server
}

func TestClientWalksAllPages(t *testing.T) {
	fake, server := newFakePOS(itemPages(2, 2, 1))
	defer server.Close()

	client := NewClient(server.URL, "acct-1", "secret-token", testOptions(), testLogger())
	items, err := client.ListItems(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, items, 5)
	assert.Equal(t, "item-0", items[0].ID)
	assert.Equal(t, "item-4", items[4].ID)
	assert.Equal(t, 3, fake.requests)
	for _, header := range fake.authHeaders {
		assert.Equal(t, "Bearer secret-token", header)
	}
}

func TestClientRetriesSamePageOnRateLimit(t *testing.T) {
	fake, server := newFakePOS(itemPages(2, 1))
	fake.rateLimits = 2
	defer server.Close()

	client := NewClient(server.URL, "acct-1", "token", testOptions(), testLogger())
	items, err := client.ListItems(context.Background(), nil)
	require.NoError(t, err)

	// Two 429s, then both pages.
	assert.Len(t, items, 3)
	assert.Equal(t, 4, fake.requests)
}

func TestClientGivesUpAfterRateLimitCeiling(t *testing.T) {
	fake, server := newFakePOS(itemPages(2))
	fake.rateLimits = 100
	defer server.Close()

	client := NewClient(server.URL, "acct-1", "token", testOptions(), testLogger())
	items, err := client.ListItems(context.Background(), nil)
	require.NoError(t, err)

	// Partial (empty) result rather than a hard fault.
	assert.Empty(t, items)
	assert.Equal(t, testOptions().RateLimitRetries+1, fake.requests)
}

func TestClientReturnsPartialResultsOnServerError(t *testing.T) {
	fake, server := newFakePOS(itemPages(2, 2, 2))
	fake.failAtPage = 3
	defer server.Close()

	client := NewClient(server.URL, "acct-1", "token", testOptions(), testLogger())
	items, err := client.ListItems(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, items, 4)
}

func TestClientHonorsPageCap(t *testing.T) {
	_, server := newFakePOS(itemPages(2, 2, 2))
	defer server.Close()

	opts := testOptions()
	opts.MaxPages = 2
	client := NewClient(server.URL, "acct-1", "token", opts, testLogger())
	items, err := client.ListItems(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, items, 4)
}

func TestClientReportsProgressEveryOtherPage(t *testing.T) {
	_, server := newFakePOS(itemPages(2, 2, 2, 1))
	defer server.Close()

	client := NewClient(server.URL, "acct-1", "token", testOptions(), testLogger())

	var pages []int
	var records []int
	items, err := client.ListItems(context.Background(), func(p, r int) {
		pages = append(pages, p)
		records = append(records, r)
	})
	require.NoError(t, err)
	require.Len(t, items, 7)

	assert.Equal(t, []int{2, 4}, pages)
	assert.Equal(t, []int{4, 7}, records)
}

func TestClientStopsOnCancelledContext(t *testing.T) {
	_, server := newFakePOS(itemPages(2, 2))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, "acct-1", "token", testOptions(), testLogger())
	_, err := client.ListItems(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientListInventoryAndCategories(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/accounts/acct-1/inventory":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []InventoryRecord{
					{ItemID: "1", LocationID: "0", QtyOnHand: 10},
					{ItemID: "2", LocationID: "A", QtyOnHand: 3},
				},
			})
		case "/accounts/acct-1/categories":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []Category{{ID: "c1", Name: "Bikes", FullPath: "Bikes/Mountain"}},
			})
		case "/accounts/acct-1/manufacturers":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []Manufacturer{{ID: "m1", Name: "Trek"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "acct-1", "token", testOptions(), testLogger())
	ctx := context.Background()

	inventory, err := client.ListInventory(ctx, nil)
	require.NoError(t, err)
	require.Len(t, inventory, 2)
	assert.Equal(t, 10, inventory[0].QtyOnHand)

	categories, err := client.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Bikes/Mountain", categories[0].FullPath)

	manufacturers, err := client.ListManufacturers(ctx)
	require.NoError(t, err)
	require.Len(t, manufacturers, 1)
	assert.Equal(t, "Trek", manufacturers[0].Name)
}
