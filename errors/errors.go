package errors

import (
	"fmt"
)

// Error categories for structured error handling
const (
	CategoryConfig     = "config"
	CategoryDatabase   = "database"
	CategoryCatalog    = "catalog"
	CategoryAuth       = "auth"
	CategoryDiscovery  = "discovery"
	CategoryServer     = "server"
	CategoryValidation = "validation"
)

// TuneturnError represents a structured error with category and context
type TuneturnError struct {
	Category string
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
}

func (e *TuneturnError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

func (e *TuneturnError) Unwrap() error {
	return e.Cause
}

func (e *TuneturnError) WithContext(key string, value interface{}) *TuneturnError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new TuneturnError
func New(category, code, message string) *TuneturnError {
	return &TuneturnError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with TuneturnError
func Wrap(err error, category, code, message string) *TuneturnError {
	return &TuneturnError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    err,
		Context:  make(map[string]interface{}),
	}
}

// Config errors
var (
	ErrInvalidPort         = New(CategoryConfig, "INVALID_PORT", "invalid port number")
	ErrInvalidLogLevel     = New(CategoryConfig, "INVALID_LOG_LEVEL", "invalid log level")
	ErrInvalidDatabasePath = New(CategoryConfig, "INVALID_DATABASE_PATH", "invalid database path")
	ErrInvalidRatio        = New(CategoryConfig, "INVALID_RATIO", "ratio must be between 0 and 1")
	ErrInvalidWeights      = New(CategoryConfig, "INVALID_WEIGHTS", "invalid scoring weights")
)

// Database errors
var (
	ErrDatabaseConnection = New(CategoryDatabase, "CONNECTION_FAILED", "database connection failed")
	ErrDatabaseQuery      = New(CategoryDatabase, "QUERY_FAILED", "database query failed")
	ErrDatabaseMigration  = New(CategoryDatabase, "MIGRATION_FAILED", "database migration failed")
	ErrTransactionFailed  = New(CategoryDatabase, "TRANSACTION_FAILED", "database transaction failed")
)

// Catalog errors
var (
	ErrCatalogRequest     = New(CategoryCatalog, "REQUEST_FAILED", "catalog request failed")
	ErrCatalogDecode      = New(CategoryCatalog, "DECODE_FAILED", "catalog response decode failed")
	ErrCatalogUnavailable = New(CategoryCatalog, "UNAVAILABLE", "catalog unavailable")
	ErrConnectorDisabled  = New(CategoryCatalog, "CONNECTOR_DISABLED", "connector disabled after auth failure")
	ErrCatalogUnsupported = New(CategoryCatalog, "OPERATION_UNSUPPORTED", "catalog does not support this operation")
)

// Auth errors
var (
	ErrCatalogAuth = New(CategoryAuth, "CATALOG_AUTH_FAILED", "catalog authentication failed")
)

// Discovery errors
var (
	ErrEmptyPool         = New(CategoryDiscovery, "EMPTY_POOL", "all strategies yielded no candidates")
	ErrNoActiveListeners = New(CategoryDiscovery, "NO_ACTIVE_LISTENERS", "session has no active listeners")
	ErrNothingToPlay     = New(CategoryDiscovery, "NOTHING_TO_PLAY", "no eligible candidates remain")
)

// Server errors
var (
	ErrServerStart    = New(CategoryServer, "START_FAILED", "server failed to start")
	ErrServerShutdown = New(CategoryServer, "SHUTDOWN_FAILED", "server shutdown failed")
)

// Validation errors
var (
	ErrValidationFailed = New(CategoryValidation, "VALIDATION_FAILED", "validation failed")
	ErrInvalidInput     = New(CategoryValidation, "INVALID_INPUT", "invalid input")
	ErrMissingParameter = New(CategoryValidation, "MISSING_PARAMETER", "missing required parameter")
)

// Helper functions for common error patterns
func IsCategory(err error, category string) bool {
	var tErr *TuneturnError
	if !As(err, &tErr) {
		return false
	}
	return tErr.Category == category
}

func GetErrorCode(err error) string {
	var tErr *TuneturnError
	if !As(err, &tErr) {
		return ""
	}
	return tErr.Code
}

func GetErrorContext(err error) map[string]interface{} {
	var tErr *TuneturnError
	if !As(err, &tErr) {
		return nil
	}
	return tErr.Context
}

// IsCode reports whether err or any wrapped cause carries the given error code.
func IsCode(err error, code string) bool {
	for err != nil {
		tErr, ok := err.(*TuneturnError)
		if !ok {
			return false
		}
		if tErr.Code == code {
			return true
		}
		err = tErr.Cause
	}
	return false
}

// As is a wrapper around errors.As
func As(err error, target interface{}) bool {
	if err == nil {
		return false
	}
	// Simple type assertion for our use case
	if tErr, ok := err.(*TuneturnError); ok {
		if targetPtr, ok := target.(**TuneturnError); ok {
			*targetPtr = tErr
			return true
		}
	}
	return false
}
