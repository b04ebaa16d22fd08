package http

import "github.com/fyrsmithlabs/ragd/internal/search"

// UserIDHeader carries the caller's identity, set by the fronting
// authentication proxy.
const UserIDHeader = "X-User-ID"

// SelectRequest is the request body for POST /api/v1/documents/select.
type SelectRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

// SelectResponse is the response body for POST /api/v1/documents/select.
type SelectResponse struct {
	Toggled int `json:"toggled"`
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Answer string `json:"answer"`
}

// SearchResponse is the response body for GET /api/v1/documents/search.
type SearchResponse struct {
	Query string       `json:"query"`
	Hits  []search.Hit `json:"hits"`
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
