package widgets

import "fmt"

// Code classifies widget failures.
type Code string

const (
	CodeInvalidMetadata    Code = "INVALID_METADATA"
	CodeUnsupportedType    Code = "UNSUPPORTED_TYPE"
	CodeStorageError       Code = "STORAGE_ERROR"
	CodePatternMismatch    Code = "PATTERN_MISMATCH"
	CodeElementNotFound    Code = "ELEMENT_NOT_FOUND"
	CodeDuplicateID        Code = "DUPLICATE_ID"
	CodeSerializationError Code = "SERIALIZATION_ERROR"
)

// Error is returned by widget validation and storage operations.
type Error struct {
	Code       Code
	Message    string
	ElementID  string
	WidgetType Type
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ElementID != "" {
		msg += fmt.Sprintf(" (element %s", e.ElementID)
		if e.WidgetType != "" {
			msg += fmt.Sprintf(", type %s", e.WidgetType)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same code, so callers can test with
// errors.Is(err, &widgets.Error{Code: widgets.CodeElementNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, msg, elementID string, t Type) *Error {
	return &Error{Code: code, Message: msg, ElementID: elementID, WidgetType: t}
}
