package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// errorBodyLimit caps how much of an error response body is read when
// classifying it.
const errorBodyLimit = 1 << 20

var (
	// ErrUnauthorized marks a 401 from any endpoint. For application
	// calls it is the signal that a credential refresh should be
	// attempted before giving up.
	ErrUnauthorized = errors.New("transport: unauthorized")

	// ErrRefreshInvalid marks a 401 from the refresh endpoint itself:
	// the refresh credential is gone and no retry can bring the session
	// back.
	ErrRefreshInvalid = errors.New("transport: refresh credential rejected")
)

// FieldError is one entry of a structured validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the field-level detail a validating backend
// returns alongside its generic message. Error prefers the first structured
// detail, falling back to the generic message.
type ValidationError struct {
	Status  int
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 && e.Fields[0].Message != "" {
		return e.Fields[0].Message
	}
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// PasswordChangeRequiredError reports a backend that refuses to extend the
// session until the account password is rotated (HTTP 428). It must never
// be treated as a retryable refresh failure. Username identifies the
// account so a password-change prompt can be prefilled.
type PasswordChangeRequiredError struct {
	Username string
}

func (e *PasswordChangeRequiredError) Error() string {
	if e.Username != "" {
		return "password change required for " + e.Username
	}
	return "password change required"
}

// StatusError is the fallback classification for non-2xx responses that
// carry no richer shape.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return "backend returned " + strconv.Itoa(e.Status) + ": " + msg
}

// errorBody is the wire shape backends use for failures.
type errorBody struct {
	Code     string       `json:"error"`
	Message  string       `json:"message"`
	Username string       `json:"username"`
	Details  []FieldError `json:"details"`
}

// DecodeError classifies a non-2xx response into the error taxonomy and
// consumes the response body. Field-level details win over the generic
// message; 401 and 428 map to their dedicated errors regardless of body
// shape.
func DecodeError(resp *http.Response) error {
	var body errorBody
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if readErr == nil && len(raw) > 0 {
		// Tolerate non-JSON bodies; classification then rests on the
		// status code alone.
		_ = json.Unmarshal(raw, &body)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if body.Message != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, body.Message)
		}
		return ErrUnauthorized
	case http.StatusPreconditionRequired:
		return &PasswordChangeRequiredError{Username: body.Username}
	}

	if len(body.Details) > 0 {
		return &ValidationError{
			Status:  resp.StatusCode,
			Message: body.Message,
			Fields:  body.Details,
		}
	}
	return &StatusError{
		Status:  resp.StatusCode,
		Code:    body.Code,
		Message: body.Message,
	}
}
