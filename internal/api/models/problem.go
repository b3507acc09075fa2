package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC7807 error document, served as application/problem+json.
// Only HTTP callers see these; the weather message format has no error text.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID is the request ID, echoed so callers can quote it.
	TraceID string `json:"traceId"`

	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError points at one offending request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://gateway.genericweather.dev/problems/"

// Problem types.
const (
	ProblemTypeValidation           = problemBase + "validation-error"
	ProblemTypeNotFound             = problemBase + "not-found"
	ProblemTypeMethodNotAllowed     = problemBase + "method-not-allowed"
	ProblemTypeUnsupportedMediaType = problemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests      = problemBase + "too-many-requests"
	ProblemTypeTLSRequired          = problemBase + "tls-required"
	ProblemTypeInternal             = problemBase + "internal-error"
	ProblemTypeUnavailable          = problemBase + "service-unavailable"
	ProblemTypeReplyTimeout         = problemBase + "reply-timeout"

	// ProblemTypeBlank is used for statuses without a dedicated type.
	ProblemTypeBlank = "about:blank"
)

type problemKind struct {
	typ   string
	title string
}

var problemKinds = map[int]problemKind{
	http.StatusBadRequest:           {ProblemTypeValidation, "Validation error"},
	http.StatusForbidden:            {ProblemTypeTLSRequired, "TLS required"},
	http.StatusNotFound:             {ProblemTypeNotFound, "Not found"},
	http.StatusMethodNotAllowed:     {ProblemTypeMethodNotAllowed, "Method not allowed"},
	http.StatusUnsupportedMediaType: {ProblemTypeUnsupportedMediaType, "Unsupported media type"},
	http.StatusTooManyRequests:      {ProblemTypeTooManyRequests, "Too many requests"},
	http.StatusInternalServerError:  {ProblemTypeInternal, "Internal server error"},
	http.StatusServiceUnavailable:   {ProblemTypeUnavailable, "Service unavailable"},
	http.StatusGatewayTimeout:       {ProblemTypeReplyTimeout, "Reply timeout"},
}

// NewProblem creates a Problem with an explicit type and title.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// ProblemForStatus creates the gateway's problem for status. Statuses without
// a dedicated type get about:blank and the standard status text.
func ProblemForStatus(status int, traceID, detail string) *Problem {
	kind, ok := problemKinds[status]
	if !ok {
		kind = problemKind{typ: ProblemTypeBlank, title: http.StatusText(status)}
	}
	return NewProblem(kind.typ, kind.title, status, traceID).WithDetail(detail)
}

// WithDetail sets the occurrence specific explanation.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance sets the request URI.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors attaches field errors.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write writes the Problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return ProblemForStatus(http.StatusBadRequest, traceID, detail).WithErrors(errors)
}

// NewNotFound creates a 404 problem.
func NewNotFound(traceID, detail string) *Problem {
	return ProblemForStatus(http.StatusNotFound, traceID, detail)
}

// NewMethodNotAllowed creates a 405 problem.
func NewMethodNotAllowed(traceID, detail string) *Problem {
	return ProblemForStatus(http.StatusMethodNotAllowed, traceID, detail)
}

// NewUnsupportedMediaType creates a 415 problem.
func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return ProblemForStatus(http.StatusUnsupportedMediaType, traceID, detail)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return ProblemForStatus(http.StatusTooManyRequests, traceID, detail)
}

// NewTLSRequired creates the 403 problem for plain HTTP requests.
func NewTLSRequired(traceID string) *Problem {
	return ProblemForStatus(http.StatusForbidden, traceID, "HTTPS is required")
}

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return ProblemForStatus(http.StatusInternalServerError, traceID, detail)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return ProblemForStatus(http.StatusServiceUnavailable, traceID, detail)
}

// NewGatewayTimeout creates the 504 problem for a request whose terminal
// reply did not arrive in time.
func NewGatewayTimeout(traceID, detail string) *Problem {
	return ProblemForStatus(http.StatusGatewayTimeout, traceID, detail)
}
