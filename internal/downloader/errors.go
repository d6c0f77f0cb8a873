package downloader

import (
	"context"
	"errors"
	"net/http"

	"github.com/lvcoi/ytdl-web/internal/provider"
)

// ErrorCategory groups failures by what the caller can do about them.
type ErrorCategory int

const (
	CategoryUnknown ErrorCategory = iota
	CategoryInvalidURL
	CategoryUnsupported
	CategoryNetwork
	CategoryFilesystem
	CategoryProvider
	CategoryRestricted
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryInvalidURL:
		return "invalid_url"
	case CategoryUnsupported:
		return "unsupported"
	case CategoryNetwork:
		return "network"
	case CategoryFilesystem:
		return "filesystem"
	case CategoryProvider:
		return "provider"
	case CategoryRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// CategorizedError attaches a category to an error.
type CategorizedError struct {
	Category ErrorCategory
	Err      error
}

func (e CategorizedError) Error() string {
	if e.Err == nil {
		return e.Category.String()
	}
	return e.Err.Error()
}

func (e CategorizedError) Unwrap() error { return e.Err }

func wrapCategory(category ErrorCategory, err error) error {
	if err == nil {
		return nil
	}
	var existing CategorizedError
	if errors.As(err, &existing) {
		return err
	}
	return CategorizedError{Category: category, Err: err}
}

// CategoryOf returns the category recorded on err, or infers one from the
// provider sentinels it wraps.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	var failed *provider.AllStrategiesFailedError
	switch {
	case errors.Is(err, provider.ErrBotCheck):
		return CategoryRestricted
	case errors.Is(err, provider.ErrNoMatchingFormat):
		return CategoryUnsupported
	case errors.As(err, &failed):
		return CategoryProvider
	case errors.Is(err, provider.ErrUnsupportedURL):
		return CategoryUnsupported
	}
	return CategoryUnknown
}

// ExitCode maps an error to the CLI process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	switch CategoryOf(err) {
	case CategoryInvalidURL:
		return 2
	case CategoryUnsupported:
		return 3
	case CategoryNetwork:
		return 4
	case CategoryFilesystem:
		return 5
	case CategoryProvider:
		return 6
	case CategoryRestricted:
		return 7
	default:
		return 1
	}
}

// HTTPStatus maps an error to the status the web layer responds with.
func HTTPStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch CategoryOf(err) {
	case CategoryInvalidURL:
		return http.StatusBadRequest
	case CategoryUnsupported:
		return http.StatusUnprocessableEntity
	case CategoryNetwork, CategoryProvider, CategoryRestricted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
