// Package api implements the authenticated request pipeline shared by every
// admin domain call: request construction, response normalization into
// Envelope values, error classification, and single-flight token refresh.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"
)

// ErrorKind is the closed taxonomy of pipeline failures.
type ErrorKind string

// Error kinds surfaced as ErrorInfo.Code.
const (
	KindNetwork    ErrorKind = "NetworkError"
	KindUnauth     ErrorKind = "Unauthorized"
	KindForbidden  ErrorKind = "Forbidden"
	KindNotFound   ErrorKind = "NotFound"
	KindValidation ErrorKind = "ValidationError"
	KindServer     ErrorKind = "ServerError"
	KindParse      ErrorKind = "ParseError"
)

// Sentinel errors, one per kind. Use errors.Is(err, api.ErrNotFound) to check.
var (
	ErrNetwork      = errors.New("api: network error")
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrValidation   = errors.New("api: validation failed")
	ErrServerError  = errors.New("api: server error")
	ErrParse        = errors.New("api: unparseable response")

	// ErrNotLoggedIn is wrapped by the Unauthorized short-circuit when an
	// authenticated call is attempted with an empty token store.
	ErrNotLoggedIn = errors.New("api: not logged in")

	// ErrSessionExpired is wrapped by the terminal Unauthorized error that
	// every caller of a failed refresh cycle receives.
	ErrSessionExpired = errors.New("api: session expired")
)

var kindSentinels = map[ErrorKind]error{
	KindNetwork:    ErrNetwork,
	KindUnauth:     ErrUnauthorized,
	KindForbidden:  ErrForbidden,
	KindNotFound:   ErrNotFound,
	KindValidation: ErrValidation,
	KindServer:     ErrServerError,
	KindParse:      ErrParse,
}

// ErrorInfo describes a failed pipeline call. It implements error so callers
// that prefer Go error handling can use errors.Is / errors.As on it.
type ErrorInfo struct {
	Code      ErrorKind `json:"code"`
	Message   string    `json:"message"`
	Details   []string  `json:"details,omitempty"`
	Status    int       `json:"status,omitempty"`
	RequestID string    `json:"request_id,omitempty"`

	// Err is an optional underlying cause (transport error, ErrSessionExpired).
	Err error `json:"-"`
}

func (e *ErrorInfo) Error() string {
	msg := fmt.Sprintf("api: %s", e.Code)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	if len(e.Details) > 0 {
		msg += " [" + strings.Join(e.Details, "; ") + "]"
	}

	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ErrorInfo) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Code]; ok {
		errs = append(errs, s)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// Outcome is the raw result of a transport call, as seen by Classify.
// Err is set only when no response was obtained.
type Outcome struct {
	Status      int
	ContentType string
	Body        []byte
	Err         error
}

// Classify maps a transport outcome to an ErrorInfo. The boolean reports
// whether the outcome is a failure; for successful outcomes the returned
// ErrorInfo is the zero value. Classify is pure and never panics.
func Classify(o Outcome) (ErrorInfo, bool) {
	if o.Err != nil {
		return ErrorInfo{Code: KindNetwork, Message: o.Err.Error(), Err: o.Err}, true
	}

	fields := bodyFields(o.Body)

	switch {
	case o.Status == http.StatusUnauthorized:
		return statusError(KindUnauth, o.Status, fields), true
	case o.Status == http.StatusForbidden:
		return statusError(KindForbidden, o.Status, fields), true
	case o.Status == http.StatusNotFound:
		return statusError(KindNotFound, o.Status, fields), true
	case o.Status == http.StatusUnprocessableEntity && fields.errors != nil:
		info := statusError(KindValidation, o.Status, fields)
		info.Details = flattenFieldErrors(fields.errors)

		return info, true
	case o.Status >= http.StatusOK && o.Status < http.StatusMultipleChoices:
		if len(o.Body) > 0 && isJSONContentType(o.ContentType) && !json.Valid(o.Body) {
			return ErrorInfo{
				Code:    KindParse,
				Message: "response body is not valid JSON",
				Status:  o.Status,
			}, true
		}

		return ErrorInfo{}, false
	default:
		// Any other >= 400, and stray 1xx/3xx that net/http did not follow.
		return statusError(KindServer, o.Status, fields), true
	}
}

// errorBody is the subset of a JSON error body the classifier understands.
type errorBody struct {
	message string
	errors  map[string]json.RawMessage
}

func bodyFields(body []byte) errorBody {
	var parsed struct {
		Message json.RawMessage            `json:"message"`
		Error   json.RawMessage            `json:"error"`
		Errors  map[string]json.RawMessage `json:"errors"`
	}

	if len(body) == 0 || json.Unmarshal(body, &parsed) != nil {
		return errorBody{}
	}

	msg := rawString(parsed.Message)
	if msg == "" {
		msg = rawString(parsed.Error)
	}

	return errorBody{message: msg, errors: parsed.Errors}
}

func statusError(kind ErrorKind, status int, fields errorBody) ErrorInfo {
	msg := fields.message
	if msg == "" {
		msg = http.StatusText(status)
	}

	if msg == "" {
		msg = fmt.Sprintf("unexpected HTTP status %d", status)
	}

	return ErrorInfo{Code: kind, Message: msg, Status: status}
}

// flattenFieldErrors turns {"email": ["taken", "too long"], "name": "required"}
// into ["email: taken", "email: too long", "name: required"], sorted by field.
func flattenFieldErrors(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	details := make([]string, 0, len(keys))

	for _, k := range keys {
		var many []string
		if json.Unmarshal(m[k], &many) == nil {
			for _, msg := range many {
				details = append(details, k+": "+msg)
			}

			continue
		}

		if msg := rawString(m[k]); msg != "" {
			details = append(details, k+": "+msg)
			continue
		}

		details = append(details, k+": "+string(m[k]))
	}

	return details
}

// rawString decodes a JSON string, returning "" for anything else.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}

	return s
}

func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}

	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.Contains(ct, "json")
	}

	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
