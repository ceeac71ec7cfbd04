package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *KhaltiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewKhaltiClient(KhaltiConfig{BaseURL: srv.URL + "/api/v2/", SecretKey: "test-secret", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewKhaltiClientRequiresConfig(t *testing.T) {
	if _, err := NewKhaltiClient(KhaltiConfig{SecretKey: "x"}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
	if _, err := NewKhaltiClient(KhaltiConfig{BaseURL: "https://dev.khalti.com/api/v2"}); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}

func TestKhaltiInitiateSendsPayload(t *testing.T) {
	var got khaltiInitiatePayload
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/v2/epayment/initiate/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Key test-secret" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pidx":"pidx_123","payment_url":"https://pay.khalti.com/?pidx=pidx_123","expires_at":"2026-10-15T10:30:00+05:45","expires_in":1800}`))
	})

	result, err := client.Initiate(context.Background(), InitiateRequest{
		AmountMinor:       150000,
		ReturnURL:         "https://shop.example/return",
		WebsiteURL:        "https://shop.example",
		PurchaseOrderID:   "ORDER-1",
		PurchaseOrderName: "Order-1",
		Customer:          Customer{Name: "Sita", Phone: "+977 98-0000-0001"},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if result.TransactionID != "pidx_123" || !strings.Contains(result.PaymentURL, "pidx_123") {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.ExpiresAt.IsZero() {
		t.Fatalf("expected expiry to be parsed")
	}
	if got.Amount != 150000 || got.PurchaseOrderID != "ORDER-1" || got.ReturnURL != "https://shop.example/return" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if got.CustomerInfo.Phone != "9779800000001" {
		t.Fatalf("expected digits-only phone, got %q", got.CustomerInfo.Phone)
	}
}

func TestKhaltiInitiateRejectsNonPositiveAmount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("gateway should not be called")
	})
	_, err := client.Initiate(context.Background(), InitiateRequest{AmountMinor: 0})
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
}

func TestKhaltiInitiateWrapsErrorResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"return_url":["Enter a valid URL."],"error_key":"validation_error"}`))
	})
	_, err := client.Initiate(context.Background(), InitiateRequest{AmountMinor: 1000})
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if !strings.Contains(err.Error(), "validation_error") {
		t.Fatalf("expected error key in message, got %v", err)
	}
}

func TestKhaltiInitiateMissingFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pidx":""}`))
	})
	_, err := client.Initiate(context.Background(), InitiateRequest{AmountMinor: 1000})
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
}

func TestKhaltiLookup(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/epayment/lookup/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["pidx"] != "pidx_123" {
			t.Errorf("unexpected pidx %q", body["pidx"])
		}
		_, _ = w.Write([]byte(`{"pidx":"pidx_123","total_amount":150000,"status":"Completed","transaction_id":"txn_1","fee":0,"refunded":false}`))
	})

	result, err := client.Lookup(context.Background(), " pidx_123 ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !result.Completed() || result.TotalAmountMinor != 150000 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Raw["transaction_id"] != "txn_1" {
		t.Fatalf("expected raw payload to be kept, got %+v", result.Raw)
	}
}

func TestKhaltiLookupPendingStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pidx":"pidx_9","total_amount":1000,"status":"User canceled"}`))
	})
	result, err := client.Lookup(context.Background(), "pidx_9")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if result.Completed() || result.Status != LookupStatusUserCanceled {
		t.Fatalf("unexpected status %q", result.Status)
	}
}

func TestKhaltiLookupRequiresPidx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("gateway should not be called")
	})
	if _, err := client.Lookup(context.Background(), "  "); !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
}

func TestKhaltiLookupNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not found.","error_key":"validation_error"}`))
	})
	_, err := client.Lookup(context.Background(), "pidx_missing")
	if !errors.Is(err, ErrGateway) || !strings.Contains(err.Error(), "Not found.") {
		t.Fatalf("expected wrapped detail, got %v", err)
	}
}

func TestKhaltiTimeoutIsGatewayError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	client, err := NewKhaltiClient(KhaltiConfig{BaseURL: srv.URL, SecretKey: "k", Timeout: 20 * time.Millisecond, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Lookup(context.Background(), "pidx_slow")
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway on timeout, got %v", err)
	}
}
