package message

import "errors"

// ErrConversionFailed is returned by ContentAs/PropertyAs when the stored
// dynamic value cannot be adapted into the caller's target type. The
// message text is fixed per the specification's wire contract so callers
// can match on it directly, mirroring pkg/mq's fixed sentinel errors in
// the teacher repo.
var ErrConversionFailed = errors.New("Failed to convert value to the specified type")

// ConversionError wraps ErrConversionFailed with the field that failed
// to convert, following the teacher's pattern of a sentinel error paired
// with a richer struct error (see pkg/mq.MQError / errors.Is compat).
type ConversionError struct {
	Field string
	Cause error
}

func (e *ConversionError) Error() string {
	return ErrConversionFailed.Error()
}

func (e *ConversionError) Unwrap() error {
	return ErrConversionFailed
}
