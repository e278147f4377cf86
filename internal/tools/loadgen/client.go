package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e envelope) errorCode() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

type productView struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
}

type purchaseView struct {
	ProductID         uint `json:"product_id"`
	QuantityPurchased int  `json:"quantity_purchased"`
	NewStock          int  `json:"new_stock"`
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, hc *http.Client) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// do sends a JSON request and decodes the response envelope. Transport
// failures are returned as errors; HTTP error statuses are not.
func (c *apiClient) do(ctx context.Context, method, path string, body []byte, idempotencyKey string) (int, envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, envelope{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return resp.StatusCode, envelope{}, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return resp.StatusCode, env, nil
}

func (c *apiClient) listProducts(ctx context.Context) ([]productView, error) {
	status, env, err := c.do(ctx, http.MethodGet, "/api/v1/products", nil, "")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list products: status %d %s", status, env.errorCode())
	}
	var products []productView
	if err := json.Unmarshal(env.Data, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

func (c *apiClient) getProduct(ctx context.Context, id uint) (productView, error) {
	status, env, err := c.do(ctx, http.MethodGet, productPath(id), nil, "")
	if err != nil {
		return productView{}, err
	}
	if status != http.StatusOK {
		return productView{}, fmt.Errorf("get product %d: status %d %s", id, status, env.errorCode())
	}
	var p productView
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return productView{}, fmt.Errorf("decode product: %w", err)
	}
	return p, nil
}

func (c *apiClient) createProduct(ctx context.Context, name, category, price string, stock int) (productView, error) {
	body, err := json.Marshal(map[string]any{
		"name":     name,
		"category": category,
		"price":    json.Number(price),
		"stock":    stock,
	})
	if err != nil {
		return productView{}, err
	}
	status, env, err := c.do(ctx, http.MethodPost, "/api/v1/products", body, "")
	if err != nil {
		return productView{}, err
	}
	if status != http.StatusCreated {
		return productView{}, fmt.Errorf("create product: status %d %s", status, env.errorCode())
	}
	var out struct {
		Product productView `json:"product"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return productView{}, fmt.Errorf("decode created product: %w", err)
	}
	return out.Product, nil
}

func purchaseBody(quantity int) []byte {
	return []byte(`{"quantity":` + strconv.Itoa(quantity) + `}`)
}

func productPath(id uint) string {
	return "/api/v1/products/" + strconv.FormatUint(uint64(id), 10)
}

func purchasePath(id uint) string {
	return productPath(id) + "/purchase"
}
