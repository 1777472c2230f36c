package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scottbass3/regscope/internal/cancel"
)

var (
	ErrRequestFailed       = errors.New("registry request failed")
	ErrOAuthExchangeFailed = errors.New("oauth token exchange failed")
	ErrCatalogFetchFailed  = errors.New("catalog fetch failed")
	ErrManifestUnreadable  = errors.New("manifest is unreadable")
	ErrManifestNotFound    = errors.New("manifest not found")
	ErrForeignRegistry     = errors.New("registry belongs to another provider")
	ErrInvalidMode         = errors.New("operation not supported in this registry mode")
	ErrUnknownRegistry     = errors.New("unknown registry")

	// ErrCanceled marks operations abandoned because the caller's context
	// was canceled.
	ErrCanceled = cancel.ErrCanceled
)

// RequestFailedError is returned for non-2xx registry responses.
type RequestFailedError struct {
	Method     string
	URL        string
	Status     int
	StatusText string
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("%s %s failed: %d %s", e.Method, e.URL, e.Status, e.StatusText)
}

func (e *RequestFailedError) Unwrap() error {
	return ErrRequestFailed
}

type OAuthExchangeFailedError struct {
	Realm      string
	Status     int
	StatusText string
}

func (e *OAuthExchangeFailedError) Error() string {
	return fmt.Sprintf("token request to %s failed: %d %s", e.Realm, e.Status, e.StatusText)
}

func (e *OAuthExchangeFailedError) Unwrap() error {
	return ErrOAuthExchangeFailed
}

// APIError is an entry of the error array returned by V2 registries.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

type CatalogFetchFailedError struct {
	Status     int
	StatusText string
	Errors     []APIError
}

func (e *CatalogFetchFailedError) Error() string {
	msg := fmt.Sprintf("catalog request failed: %d %s", e.Status, e.StatusText)
	if len(e.Errors) == 0 {
		return msg
	}
	parts := make([]string, 0, len(e.Errors))
	for _, apiErr := range e.Errors {
		parts = append(parts, strings.TrimSpace(apiErr.Code+" "+apiErr.Message))
	}
	return msg + ": " + strings.Join(parts, "; ")
}

func (e *CatalogFetchFailedError) Unwrap() error {
	return ErrCatalogFetchFailed
}
