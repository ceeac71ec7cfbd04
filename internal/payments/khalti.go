package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
)

const (
	defaultKhaltiTimeout = 10 * time.Second
	maxKhaltiResponse    = 1 << 20
)

// KhaltiLogger receives structured events from the client.
type KhaltiLogger func(ctx context.Context, event string, fields map[string]any)

// KhaltiConfig configures a KhaltiClient.
type KhaltiConfig struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     KhaltiLogger
}

// KhaltiClient implements Gateway against the Khalti ePayment v2 API.
type KhaltiClient struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
	http      *http.Client
	logger    KhaltiLogger
}

// NewKhaltiClient validates cfg and builds a client.
func NewKhaltiClient(cfg KhaltiConfig) (*KhaltiClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("payments: khalti base url is required")
	}
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errors.New("payments: khalti secret key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultKhaltiTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &KhaltiClient{baseURL: baseURL, secretKey: secret, timeout: timeout, http: client, logger: logger}, nil
}

type khaltiInitiatePayload struct {
	ReturnURL         string             `json:"return_url"`
	WebsiteURL        string             `json:"website_url"`
	Amount            int64              `json:"amount"`
	PurchaseOrderID   string             `json:"purchase_order_id"`
	PurchaseOrderName string             `json:"purchase_order_name"`
	CustomerInfo      khaltiCustomerInfo `json:"customer_info"`
}

type khaltiCustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type khaltiInitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
}

// Initiate creates a hosted payment and returns the redirect url.
func (c *KhaltiClient) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	if req.AmountMinor <= 0 {
		return InitiateResult{}, fmt.Errorf("%w: amount must be positive", ErrGateway)
	}
	payload := khaltiInitiatePayload{
		ReturnURL:         req.ReturnURL,
		WebsiteURL:        req.WebsiteURL,
		Amount:            req.AmountMinor,
		PurchaseOrderID:   req.PurchaseOrderID,
		PurchaseOrderName: req.PurchaseOrderName,
		CustomerInfo: khaltiCustomerInfo{
			Name:  req.Customer.Name,
			Phone: digitsOnly(req.Customer.Phone),
		},
	}

	var resp khaltiInitiateResponse
	if _, err := c.post(ctx, "/epayment/initiate/", payload, &resp); err != nil {
		c.logger(ctx, "khalti.initiate.failed", map[string]any{"purchaseOrderId": req.PurchaseOrderID, "error": err.Error()})
		return InitiateResult{}, err
	}
	if resp.Pidx == "" || resp.PaymentURL == "" {
		return InitiateResult{}, fmt.Errorf("%w: initiate response missing pidx or payment_url", ErrGateway)
	}

	result := InitiateResult{TransactionID: resp.Pidx, PaymentURL: resp.PaymentURL}
	if ts, err := time.Parse(time.RFC3339Nano, resp.ExpiresAt); err == nil {
		result.ExpiresAt = ts
	}
	c.logger(ctx, "khalti.initiate", map[string]any{"pidx": resp.Pidx, "purchaseOrderId": req.PurchaseOrderID, "amount": req.AmountMinor})
	return result, nil
}

type khaltiLookupResponse struct {
	Pidx        string  `json:"pidx"`
	TotalAmount float64 `json:"total_amount"`
	Status      string  `json:"status"`
}

// Lookup asks the gateway for the authoritative state of transactionID.
func (c *KhaltiClient) Lookup(ctx context.Context, transactionID string) (LookupResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return LookupResult{}, fmt.Errorf("%w: pidx is required", ErrGateway)
	}

	var resp khaltiLookupResponse
	raw, err := c.post(ctx, "/epayment/lookup/", map[string]string{"pidx": transactionID}, &resp)
	if err != nil {
		c.logger(ctx, "khalti.lookup.failed", map[string]any{"pidx": transactionID, "error": err.Error()})
		return LookupResult{}, err
	}

	var rawMap map[string]any
	_ = json.Unmarshal(raw, &rawMap)
	result := LookupResult{
		TransactionID:    resp.Pidx,
		Status:           LookupStatus(resp.Status),
		TotalAmountMinor: int64(resp.TotalAmount),
		Raw:              rawMap,
	}
	if result.TransactionID == "" {
		result.TransactionID = transactionID
	}
	c.logger(ctx, "khalti.lookup", map[string]any{"pidx": transactionID, "status": resp.Status, "amount": result.TotalAmountMinor})
	return result, nil
}

// post sends a JSON request bounded by the client timeout and decodes a 2xx body into out.
func (c *KhaltiClient) post(ctx context.Context, path string, payload, out any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrGateway, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGateway, err)
	}
	req.Header.Set("Authorization", "Key "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGateway, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxKhaltiResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrGateway, path, resp.StatusCode, errorDetail(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	return raw, nil
}

// errorDetail extracts Khalti's detail or error_key field, falling back to a clipped body.
func errorDetail(raw []byte) string {
	var body struct {
		Detail   string `json:"detail"`
		ErrorKey string `json:"error_key"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.ErrorKey != "" {
			return body.ErrorKey
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func digitsOnly(value string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, value)
}

var _ Gateway = (*KhaltiClient)(nil)
