// Package storage archives payment artefacts in Cloud Storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"

	"github.com/easy-khana/api/internal/services"
)

// ObjectWriter stores a single object.
type ObjectWriter interface {
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte, metadata map[string]string) error
}

// GCSWriter writes objects through a Cloud Storage client.
type GCSWriter struct {
	client *gcs.Client
}

// NewGCSWriter wraps client.
func NewGCSWriter(client *gcs.Client) (*GCSWriter, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	return &GCSWriter{client: client}, nil
}

// WriteObject uploads data, failing if the object already exists.
func (w *GCSWriter) WriteObject(ctx context.Context, bucket, object, contentType string, data []byte, metadata map[string]string) error {
	handle := w.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true})
	writer := handle.NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = metadata
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

// ReceiptArchive keeps the raw gateway lookup payload of every verified payment.
type ReceiptArchive struct {
	writer ObjectWriter
	bucket string
}

// NewReceiptArchive constructs an archive writing to bucket.
func NewReceiptArchive(writer ObjectWriter, bucket string) (*ReceiptArchive, error) {
	if writer == nil {
		return nil, errors.New("receipt archive: writer is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("receipt archive: bucket is required")
	}
	return &ReceiptArchive{writer: writer, bucket: bucket}, nil
}

type receiptDocument struct {
	Provider      string         `json:"provider"`
	TransactionID string         `json:"transactionId"`
	OrderID       string         `json:"orderId"`
	OrderNumber   string         `json:"orderNumber"`
	ReceivedAt    string         `json:"receivedAt"`
	Payload       map[string]any `json:"payload"`
}

// ArchiveReceipt writes the receipt as JSON and returns the gs:// location.
func (a *ReceiptArchive) ArchiveReceipt(ctx context.Context, receipt services.GatewayReceipt) (string, error) {
	if a == nil {
		return "", errors.New("receipt archive: not initialised")
	}
	object, err := BuildReceiptPath(ReceiptPathParams{
		Provider:      receipt.Provider,
		TransactionID: receipt.TransactionID,
		ReceivedAt:    receipt.ReceivedAt,
	})
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(receiptDocument{
		Provider:      strings.ToLower(receipt.Provider),
		TransactionID: receipt.TransactionID,
		OrderID:       receipt.OrderID,
		OrderNumber:   receipt.OrderNumber,
		ReceivedAt:    receipt.ReceivedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Payload:       receipt.Payload,
	})
	if err != nil {
		return "", fmt.Errorf("receipt archive: marshal: %w", err)
	}
	metadata := map[string]string{"orderId": receipt.OrderID}
	if err := a.writer.WriteObject(ctx, a.bucket, object, "application/json", data, metadata); err != nil {
		return "", fmt.Errorf("receipt archive: write %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}

var _ services.ReceiptArchiver = (*ReceiptArchive)(nil)
