// Package errors defines the structured error type shared by atlas packages.
//
// Loaders return *AtlasError for failures a user can fix (a malformed catalog,
// an unsupported boundary file) so that the CLI can print the offending path
// and callers can branch on the category with errors.Is / errors.As.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeFormat     ErrorType = "format"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodeConfigParse        = "ERR_CONFIG_PARSE"
	ErrCodeMissingAttribution = "ERR_MISSING_ATTRIBUTION"
	ErrCodeUnknownBasemap     = "ERR_UNKNOWN_BASEMAP"
	ErrCodeFileNotFound       = "ERR_FILE_NOT_FOUND"
	ErrCodeFileRead           = "ERR_FILE_READ"
	ErrCodeFileWrite          = "ERR_FILE_WRITE"
	ErrCodeUnsupportedFormat  = "ERR_UNSUPPORTED_FORMAT"
	ErrCodeUnsupportedCRS     = "ERR_UNSUPPORTED_CRS"
	ErrCodePathTraversal      = "ERR_PATH_TRAVERSAL"
	ErrCodeTemplateInvalid    = "ERR_TEMPLATE_INVALID"
)

// AtlasError is a structured error type with context.
type AtlasError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	FilePath string
	Context  map[string]interface{}
}

// Error implements the error interface.
func (e *AtlasError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *AtlasError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *AtlasError with the same type and code.
func (e *AtlasError) Is(target error) bool {
	var t *AtlasError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *AtlasError) WithContext(key string, value interface{}) *AtlasError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the file the error is about.
func (e *AtlasError) WithPath(path string) *AtlasError {
	e.FilePath = path

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *AtlasError {
	return &AtlasError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *AtlasError {
	return &AtlasError{Type: ErrorTypeConfig, Code: code, Message: message}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *AtlasError {
	return &AtlasError{Type: ErrorTypeIO, Code: code, Message: message, Cause: cause}
}

// NewFormatError creates an error for files whose content cannot be decoded.
func NewFormatError(code, message string, cause error) *AtlasError {
	return &AtlasError{Type: ErrorTypeFormat, Code: code, Message: message, Cause: cause}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *AtlasError {
	return &AtlasError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsValidationError reports whether err is a validation error.
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsFormatError reports whether err is a format error.
func IsFormatError(err error) bool {
	return hasType(err, ErrorTypeFormat)
}

func hasType(err error, t ErrorType) bool {
	var ae *AtlasError
	if errors.As(err, &ae) {
		return ae.Type == t
	}

	return false
}
