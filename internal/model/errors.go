package model

import (
	"fmt"
	"strings"
)

// ConfigurationError reports missing or unreadable credential material or
// taxpayer configuration. It is always raised before any network call.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error on %s: %s (%v)", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error on %s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(field, message string, cause error) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message, Cause: cause}
}

// ValidationError reports caller-supplied invoice data that fails a
// required-field or business rule. It is always raised before any network call.
type ValidationError struct {
	Field   string
	Value   interface{}
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed on %s: %s (value=%v, rule=%s)", e.Field, e.Message, e.Value, e.Rule)
	}
	return fmt.Sprintf("validation failed on %s: %s (rule=%s)", e.Field, e.Message, e.Rule)
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, rule, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Rule: rule, Message: message}
}

// TransportError reports a network failure, a non-success HTTP status, or a
// timeout while talking to AFIP. Retryable by the caller.
type TransportError struct {
	Endpoint string
	Status   int
	Message  string
	Cause    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("transport error calling %s: %s (status=%d)", e.Endpoint, e.Message, e.Status)
	case e.Cause != nil:
		return fmt.Sprintf("transport error calling %s: %s (%v)", e.Endpoint, e.Message, e.Cause)
	default:
		return fmt.Sprintf("transport error calling %s: %s", e.Endpoint, e.Message)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a new transport error
func NewTransportError(endpoint string, status int, message string, cause error) *TransportError {
	return &TransportError{Endpoint: endpoint, Status: status, Message: message, Cause: cause}
}

// ProtocolFault reports a malformed SOAP response, a structural parse
// failure, or an authority-level fault that is not a plain rejection.
type ProtocolFault struct {
	Code    string
	Message string
	Cause   error
}

func (e *ProtocolFault) Error() string {
	switch {
	case e.Code != "" && e.Cause != nil:
		return fmt.Sprintf("protocol fault [%s]: %s (%v)", e.Code, e.Message, e.Cause)
	case e.Code != "":
		return fmt.Sprintf("protocol fault [%s]: %s", e.Code, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("protocol fault: %s (%v)", e.Message, e.Cause)
	default:
		return fmt.Sprintf("protocol fault: %s", e.Message)
	}
}

func (e *ProtocolFault) Unwrap() error {
	return e.Cause
}

// NewProtocolFault creates a new protocol fault
func NewProtocolFault(code, message string, cause error) *ProtocolFault {
	return &ProtocolFault{Code: code, Message: message, Cause: cause}
}

// Observation is one code/message pair attached to an AFIP rejection.
type Observation struct {
	Code    int
	Message string
}

// RejectionError reports an explicit rejection by AFIP. Every observation
// the authority returned is preserved; none are dropped or summarized.
type RejectionError struct {
	Observations []Observation
}

func (e *RejectionError) Error() string {
	if len(e.Observations) == 0 {
		return "voucher rejected by AFIP"
	}
	parts := make([]string, len(e.Observations))
	for i, obs := range e.Observations {
		parts[i] = fmt.Sprintf("[%d] %s", obs.Code, obs.Message)
	}
	return "voucher rejected by AFIP: " + strings.Join(parts, "; ")
}

// NewRejectionError creates a rejection error carrying all observations.
func NewRejectionError(observations []Observation) *RejectionError {
	return &RejectionError{Observations: observations}
}
