package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blockso/blockso/internal/config"
)

func testCovalentClient(baseURL string) *CovalentClient {
	return NewCovalentClient(&config.CovalentConfig{
		APIKey:            "test-key",
		BaseURL:           baseURL,
		PageSize:          100,
		MaxPages:          10,
		RequestsPerSecond: 1000,
	}, 1)
}

func TestPageURL(t *testing.T) {
	client := testCovalentClient("https://api.covalenthq.com/v1")

	got := client.pageURL("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", 3)
	want := "https://api.covalenthq.com/v1/1/address/0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed/transactions_v2/" +
		"?key=test-key&quote-currency=USD&format=JSON&block-signed-at-asc=false&no-logs=false&page-number=3&page-size=100"
	if got != want {
		t.Errorf("pageURL() = %q, want %q", got, want)
	}
}

func TestFetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/1/address/0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed/transactions_v2/") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("page-number"); got != "0" {
			t.Errorf("page-number = %q, want 0", got)
		}
		if got := r.URL.Query().Get("block-signed-at-asc"); got != "false" {
			t.Errorf("block-signed-at-asc = %q, want false", got)
		}

		fmt.Fprint(w, `{
			"data": {
				"next_update_at": "2023-04-01T12:05:00Z",
				"items": [
					{
						"tx_hash": "0xaaa",
						"block_signed_at": "2023-04-01T12:00:00Z",
						"successful": true,
						"from_address": "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
						"to_address": "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359",
						"value": "1000000000000000000",
						"log_events": []
					}
				],
				"pagination": {"has_more": true}
			},
			"error": false
		}`)
	}))
	defer server.Close()

	client := testCovalentClient(server.URL)
	page, err := client.FetchPage(context.Background(), "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", 0)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if len(page.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(page.Items))
	}
	if page.Items[0].TxHash != "0xaaa" {
		t.Errorf("TxHash = %q, want 0xaaa", page.Items[0].TxHash)
	}
	if page.Items[0].ToAddress == nil || *page.Items[0].ToAddress != "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359" {
		t.Errorf("ToAddress = %v, want the receiver", page.Items[0].ToAddress)
	}
	if !page.HasMore {
		t.Error("HasMore = false, want true")
	}
	if page.NextUpdateAt.IsZero() {
		t.Error("NextUpdateAt was not parsed")
	}
}

func TestFetchPage_NullToAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"data": {
				"items": [
					{
						"tx_hash": "0xbbb",
						"block_signed_at": "2023-04-01T12:00:00Z",
						"successful": true,
						"from_address": "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
						"to_address": null,
						"value": "0",
						"log_events": []
					}
				],
				"pagination": {"has_more": false}
			},
			"error": false
		}`)
	}))
	defer server.Close()

	client := testCovalentClient(server.URL)
	page, err := client.FetchPage(context.Background(), "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", 0)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.Items[0].ToAddress != nil {
		t.Errorf("ToAddress = %v, want nil for contract creation", *page.Items[0].ToAddress)
	}
}

func TestFetchPage_RetriesOn429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data": {"items": [], "pagination": {"has_more": false}}, "error": false}`)
	}))
	defer server.Close()

	client := testCovalentClient(server.URL)
	page, err := client.FetchPage(context.Background(), "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", 0)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("made %d requests, want 2", calls)
	}
	if page.HasMore {
		t.Error("HasMore = true, want false")
	}
}

func TestFetchPage_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {}, "error": true, "error_message": "Invalid API key", "error_code": 401}`)
	}))
	defer server.Close()

	client := testCovalentClient(server.URL)
	_, err := client.FetchPage(context.Background(), "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", 0)
	if err == nil {
		t.Fatal("FetchPage() error = nil, want the provider error surfaced")
	}
	if !strings.Contains(err.Error(), "Invalid API key") {
		t.Errorf("error %q does not carry the provider message", err)
	}
}

func TestFetchPage_RequiresAPIKey(t *testing.T) {
	client := NewCovalentClient(&config.CovalentConfig{
		BaseURL:           "http://unused",
		PageSize:          100,
		RequestsPerSecond: 1000,
	}, 1)

	if _, err := client.FetchPage(context.Background(), "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", 0); err == nil {
		t.Fatal("FetchPage() error = nil without an API key")
	}
}

func TestTokenLogoURL(t *testing.T) {
	got := TokenLogoURL("0x6b175474e89094c44da98b954eedeac495271d0f")
	want := "https://logos.covalenthq.com/tokens/1/0x6b175474e89094c44da98b954eedeac495271d0f.png"
	if got != want {
		t.Errorf("TokenLogoURL() = %q, want %q", got, want)
	}
}
