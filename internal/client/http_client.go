// Package client implements the server cart surface over the storefront
// HTTP API. All calls run through a circuit breaker so a struggling server
// fails fast on the client instead of piling up requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/sony/gobreaker/v2"
)

type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func NewHTTPClient(baseURL string) *HTTPClient {
	settings := gobreaker.Settings{
		Name:    "storefront-api",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, userID int64, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprint(userID))
	}

	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("server error: %s", resp.Status)
		}
		return resp, nil
	})
}

func decodeError(resp *http.Response) error {
	var apiErr struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return fmt.Errorf("request failed (%s): %s", apiErr.Code, apiErr.Error)
}

func (c *HTTPClient) GetCart(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/cart", userID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var cart domain.Cart
	if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return cart.Items, nil
}

func (c *HTTPClient) AddItem(ctx context.Context, userID, productID, variantID int64, quantity int) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/cart/items", userID, map[string]interface{}{
		"product_id": productID,
		"variant_id": variantID,
		"quantity":   quantity,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return decodeError(resp)
	}
	return nil
}

func (c *HTTPClient) RemoveItem(ctx context.Context, userID, productID, variantID int64, quantity int) error {
	path := fmt.Sprintf("/api/v1/cart/items/%d?variant_id=%d&quantity=%d", productID, variantID, quantity)
	resp, err := c.do(ctx, http.MethodDelete, path, userID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	return nil
}

func (c *HTTPClient) Availability(ctx context.Context, productID, variantID int64) (int, error) {
	path := fmt.Sprintf("/api/v1/products/%d/availability?variant_id=%d", productID, variantID)
	resp, err := c.do(ctx, http.MethodGet, path, 0, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}

	var dto struct {
		Available int `json:"available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return 0, fmt.Errorf("decode availability: %w", err)
	}
	return dto.Available, nil
}
