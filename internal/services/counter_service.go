package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/easy-khana/api/internal/repositories"
)

// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
var ErrCounterInvalidInput = errors.New("counter: invalid input")

const orderNumberPrefix = "EK"

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
}

type counterService struct {
	repo repositories.CounterRepository
}

// NewCounterService constructs a service that formats sequences from the counter repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	return &counterService{repo: deps.Repository}, nil
}

// NextOrderNumber allocates EK-YYYYMMDD-NNNN for the UTC day of day. The sequence restarts
// each day and widens past 9999 instead of wrapping.
func (s *counterService) NextOrderNumber(ctx context.Context, day time.Time) (string, error) {
	if day.IsZero() {
		return "", fmt.Errorf("%w: day is required", ErrCounterInvalidInput)
	}
	stamp := day.UTC().Format("20060102")

	seq, err := s.repo.Next(ctx, "orders:"+stamp)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) && counterErr.Code == repositories.CounterErrorInvalidInput {
			return "", fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
		}
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", orderNumberPrefix, stamp, seq), nil
}
