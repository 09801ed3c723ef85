package models

// Response is the envelope every provider API endpoint returns on success
type Response[T any] struct {
	RequestID  string `json:"request_id"`
	Data       T      `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ErrorBody is the payload of a failed provider API call
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope of a failed provider API call
type ErrorResponse struct {
	RequestID string    `json:"request_id"`
	Error     ErrorBody `json:"error"`
}

// Provider API error types
const (
	ErrorTypeUnauthorized       = "unauthorized"
	ErrorTypeNotFound           = "not_found_error"
	ErrorTypeRateLimit          = "rate_limit_error"
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeInvalidFormat      = "invalid_format"
	ErrorTypeUnselectableFolder = "unselectable_folder"
	ErrorTypeInternal           = "internal_error"
)

// ReadStatusUpdate is the body of a message update call
type ReadStatusUpdate struct {
	Unread bool `json:"unread"`
}
