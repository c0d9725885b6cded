package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeFetch represents network and page-load errors
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeBlocked represents anti-bot walls and captcha pages
	ErrorTypeBlocked ErrorType = "blocked"
	// ErrorTypeParse represents HTML extraction errors
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeStore represents database errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeValidation represents record validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeBusy means a run was requested while another was active
	ErrorTypeBusy ErrorType = "busy"
)

// ScrapeError represents a pipeline-specific error
type ScrapeError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is worth retrying
func (e *ScrapeError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeFetch:
		return true
	case ErrorTypeBlocked:
		return true
	default:
		return false
	}
}

// New creates a new ScrapeError
func New(errType ErrorType, source, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewFetch creates a new fetch error
func NewFetch(source, message string, err error) *ScrapeError {
	return New(ErrorTypeFetch, source, message, err)
}

// NewBlocked creates a new anti-bot error
func NewBlocked(source, message string) *ScrapeError {
	return New(ErrorTypeBlocked, source, message, nil)
}

// NewParse creates a new parse error
func NewParse(source, message string, err error) *ScrapeError {
	return New(ErrorTypeParse, source, message, err)
}

// NewStore creates a new database error
func NewStore(source, message string, err error) *ScrapeError {
	return New(ErrorTypeStore, source, message, err)
}

// NewValidation creates a new validation error
func NewValidation(source, message string) *ScrapeError {
	return New(ErrorTypeValidation, source, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// NewBusy creates an error for a run requested while one is active
func NewBusy(runID string) *ScrapeError {
	return New(ErrorTypeBusy, runID, "a run is already in progress", nil)
}

// Parse failure reasons carried in ScrapeError.Message
const (
	ReasonMissingRequiredField = "missing required field"
	ReasonMalformedDocument    = "malformed document"
)

// NewMissingField creates a parse error for an absent required field
func NewMissingField(source, field string) *ScrapeError {
	return NewParse(source, ReasonMissingRequiredField+": "+field, nil)
}

// NewMalformedDocument creates a parse error for an unusable document
func NewMalformedDocument(source string, err error) *ScrapeError {
	return NewParse(source, ReasonMalformedDocument, err)
}

// IsType reports whether err is a ScrapeError of the given type
func IsType(err error, t ErrorType) bool {
	var se *ScrapeError
	for err != nil {
		if e, ok := err.(*ScrapeError); ok {
			se = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return se != nil && se.Type == t
}
