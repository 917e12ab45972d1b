package types

import (
	"time"

	"github.com/google/uuid"
)

// ServiceID represents a unique service identifier
type ServiceID string

// CorrelationID represents a unique request correlation identifier
type CorrelationID uuid.UUID

// String returns the string representation of CorrelationID
func (c CorrelationID) String() string {
	return uuid.UUID(c).String()
}

// ParseCorrelationID parses a correlation ID, generating a new one when the
// input is empty or malformed
func ParseCorrelationID(s string) CorrelationID {
	id, err := uuid.Parse(s)
	if err != nil {
		return NewCorrelationID()
	}
	return CorrelationID(id)
}

// Severity levels for classified threats
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns the ordinal position of the severity, low = 0.
// Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether s is as severe as other or more
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// IsValid reports whether s is one of the known severity levels
func (s Severity) IsValid() bool {
	return s.Rank() >= 0
}

// RequestContext contains common request context information
type RequestContext struct {
	CorrelationID CorrelationID `json:"correlation_id"`
	ServiceID     ServiceID     `json:"service_id"`
	Source        string        `json:"source,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	IPAddress     string        `json:"ip_address,omitempty"`
	UserAgent     string        `json:"user_agent,omitempty"`
}

// APIResponse represents a standard API response structure
type APIResponse struct {
	Success bool                   `json:"success"`
	Data    interface{}            `json:"data,omitempty"`
	Error   *APIError              `json:"error,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// APIError represents a standard API error structure
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ServiceInfo represents information about a service
type ServiceInfo struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Environment string    `json:"environment"`
	StartTime   time.Time `json:"start_time"`
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.New())
}

// NewRequestContext creates a new request context
func NewRequestContext(serviceID ServiceID, source string) *RequestContext {
	return &RequestContext{
		CorrelationID: NewCorrelationID(),
		ServiceID:     serviceID,
		Source:        source,
		Timestamp:     time.Now().UTC(),
	}
}

// WithClient adds client information to the request context
func (rc *RequestContext) WithClient(ipAddress, userAgent string) *RequestContext {
	rc.IPAddress = ipAddress
	rc.UserAgent = userAgent
	return rc
}
