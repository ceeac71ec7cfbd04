package storage

import (
	"fmt"
	"strings"
	"time"
)

// ReceiptPathParams identify an archived gateway payload.
type ReceiptPathParams struct {
	Provider      string
	TransactionID string
	ReceivedAt    time.Time
}

// BuildReceiptPath composes payments/<provider>/<yyyy>/<mm>/<transaction>.json using the UTC month.
func BuildReceiptPath(params ReceiptPathParams) (string, error) {
	provider, err := validateSegment("provider", strings.ToLower(params.Provider))
	if err != nil {
		return "", err
	}
	txID, err := validateSegment("transactionID", params.TransactionID)
	if err != nil {
		return "", err
	}
	if params.ReceivedAt.IsZero() {
		return "", fmt.Errorf("storage: receivedAt is required")
	}
	at := params.ReceivedAt.UTC()
	return fmt.Sprintf("payments/%s/%04d/%02d/%s.json", provider, at.Year(), int(at.Month()), txID), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
