// Package payments talks to the external payment gateway.
package payments

import (
	"context"
	"errors"
	"time"
)

// ErrGateway wraps every failure reaching or understanding the gateway.
var ErrGateway = errors.New("payments: gateway error")

// LookupStatus is the gateway's view of a payment.
type LookupStatus string

const (
	LookupStatusCompleted    LookupStatus = "Completed"
	LookupStatusPending      LookupStatus = "Pending"
	LookupStatusInitiated    LookupStatus = "Initiated"
	LookupStatusRefunded     LookupStatus = "Refunded"
	LookupStatusExpired      LookupStatus = "Expired"
	LookupStatusUserCanceled LookupStatus = "User canceled"
)

// Customer identifies the payer to the gateway.
type Customer struct {
	Name  string
	Phone string
}

// InitiateRequest starts a hosted payment. AmountMinor is in paisa.
type InitiateRequest struct {
	AmountMinor       int64
	ReturnURL         string
	WebsiteURL        string
	PurchaseOrderID   string
	PurchaseOrderName string
	Customer          Customer
}

// InitiateResult tells the client where to pay.
type InitiateResult struct {
	TransactionID string
	PaymentURL    string
	ExpiresAt     time.Time
}

// LookupResult is the authoritative payment state for a transaction.
type LookupResult struct {
	TransactionID    string
	Status           LookupStatus
	TotalAmountMinor int64
	Raw              map[string]any
}

// Completed reports whether the payment settled.
func (r LookupResult) Completed() bool {
	return r.Status == LookupStatusCompleted
}

// Gateway initiates and looks up hosted payments.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error)
	Lookup(ctx context.Context, transactionID string) (LookupResult, error)
}
