package dealmatcher

import "fmt"

// MatchError represents a matching attempt error
type MatchError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is a MatchError with the same code, so the
// sentinels below work with errors.Is.
func (e *MatchError) Is(target error) bool {
	t, ok := target.(*MatchError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Error codes
const (
	ErrCodeDealNotFound             = "deal_not_found"
	ErrCodeDealAlreadyMatched       = "deal_already_matched"
	ErrCodeInconsistentIndexerState = "inconsistent_indexer_state"
	ErrCodeEffectorDataMissing      = "effector_data_missing"
	ErrCodeInvalidRequest           = "invalid_request"
)

// Sentinels for errors.Is.
var (
	ErrDealNotFound             = &MatchError{Code: ErrCodeDealNotFound}
	ErrDealAlreadyMatched       = &MatchError{Code: ErrCodeDealAlreadyMatched}
	ErrInconsistentIndexerState = &MatchError{Code: ErrCodeInconsistentIndexerState}
	ErrEffectorDataMissing      = &MatchError{Code: ErrCodeEffectorDataMissing}
	ErrInvalidRequest           = &MatchError{Code: ErrCodeInvalidRequest}
)

// NewMatchError creates a new match error
func NewMatchError(code, message string, details map[string]interface{}) *MatchError {
	return &MatchError{
		Code:    code,
		Message: message,
		Details: details,
	}
}
