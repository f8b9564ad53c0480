package ailink

import "encoding/json"

// maxRawBytes bounds the payload kept on a RawResponseError.
const maxRawBytes = 2048

// RawResponseError wraps a decode failure with the model's raw output so it
// can be logged. It unwraps to ErrMalformed.
type RawResponseError struct {
	Err error
	Raw json.RawMessage
}

func newRawResponseError(err error, raw string) *RawResponseError {
	b := []byte(raw)
	if len(b) > maxRawBytes {
		b = b[:maxRawBytes]
	}
	return &RawResponseError{Err: err, Raw: json.RawMessage(b)}
}

func (e *RawResponseError) Error() string {
	if e == nil || e.Err == nil {
		return ErrMalformed.Error()
	}
	return ErrMalformed.Error() + ": " + e.Err.Error()
}

func (e *RawResponseError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return []error{ErrMalformed, e.Err}
}
