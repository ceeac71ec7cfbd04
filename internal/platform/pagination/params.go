// Package pagination parses page-number paging inputs from query strings.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/easy-khana/api/internal/domain"
)

const (
	// DefaultLimit is used when the client omits limit.
	DefaultLimit = 10
	// DefaultMaxLimit caps limit to prevent unbounded queries.
	DefaultMaxLimit = 100
)

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

var (
	ErrInvalidPage  = errors.New("pagination: invalid page")
	ErrInvalidLimit = errors.New("pagination: invalid limit")
)

// FromRequest parses page and limit from the request query.
func FromRequest(r *http.Request, opts Options) (domain.Pagination, error) {
	if r == nil {
		return domain.Pagination{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse reads page (1-based) and limit; over-large limits are clamped rather than rejected.
func Parse(values url.Values, opts Options) (domain.Pagination, error) {
	if values == nil {
		values = url.Values{}
	}

	page := 1
	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Pagination{}, fmt.Errorf("%w: must be an integer", ErrInvalidPage)
		}
		if value <= 0 {
			return domain.Pagination{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPage)
		}
		page = value
	}

	limit, err := parseLimit(values.Get("limit"), opts)
	if err != nil {
		return domain.Pagination{}, err
	}
	return domain.Pagination{Page: page, Limit: limit}, nil
}

func parseLimit(raw string, opts Options) (int, error) {
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}

	if strings.TrimSpace(raw) == "" {
		return defaultLimit, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidLimit)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidLimit)
	}
	if value > maxLimit {
		value = maxLimit
	}
	return value, nil
}

// Offset returns the number of items to skip for p.
func Offset(p domain.Pagination) int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}
