// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Limit      int `json:"limit"`
}

// NewListResponse creates a list response, never with a nil item slice.
func NewListResponse[T any](items []T, limit int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, TotalCount: len(items), Limit: limit}
}

// AcceptedResponse is returned for requests handed to background processing.
type AcceptedResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// ErrorResponse for error details.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}
