package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// Kind classifies a failure. Handlers map kinds to status codes and never
// inspect messages.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindUnauthorized      Kind = "unauthorized"
	KindUnknownProperty   Kind = "unknown_property"
	KindInvalidValue      Kind = "invalid_value"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindStoreFailure      Kind = "store_failure"
	KindRateLimited       Kind = "rate_limited"
)

var kindStatus = map[Kind]int{
	KindMissingCredential: http.StatusUnauthorized,
	KindUnauthorized:      http.StatusForbidden,
	KindUnknownProperty:   http.StatusBadRequest,
	KindInvalidValue:      http.StatusBadRequest,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindStoreFailure:      http.StatusInternalServerError,
	KindRateLimited:       http.StatusTooManyRequests,
}

type AppError struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError of the same kind, so callers can write
// errors.Is(err, errors.NotFound("")).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string, err error) *AppError {
	code, ok := kindStatus[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	return &AppError{Kind: kind, Code: code, Message: message, Err: err}
}

func MissingCredential(message string) *AppError {
	return New(KindMissingCredential, message, nil)
}

func Unauthorized(message string) *AppError {
	return New(KindUnauthorized, message, nil)
}

func UnknownProperty(message string) *AppError {
	return New(KindUnknownProperty, message, nil)
}

func InvalidValue(message string, err error) *AppError {
	return New(KindInvalidValue, message, err)
}

func NotFound(message string) *AppError {
	return New(KindNotFound, message, nil)
}

func Conflict(message string) *AppError {
	return New(KindConflict, message, nil)
}

func StoreFailure(message string, err error) *AppError {
	return New(KindStoreFailure, message, err)
}

func RateLimited(message string) *AppError {
	return New(KindRateLimited, message, nil)
}

// KindOf returns the kind of the first AppError in err's chain.
// Anything unclassified is a store failure.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStoreFailure
}

// Sentinels for errors.Is checks.
var (
	ErrMissingCredential = MissingCredential("")
	ErrUnauthorized      = Unauthorized("")
	ErrUnknownProperty   = UnknownProperty("")
	ErrInvalidValue      = InvalidValue("", nil)
	ErrNotFound          = NotFound("")
	ErrConflict          = Conflict("")
	ErrStoreFailure      = StoreFailure("", nil)
)

// WriteError renders err as {"error","code","kind"}. Store failure details
// stay in the logs.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = StoreFailure("internal error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code)
	payload := map[string]any{
		"error": appErr.Message,
		"code":  appErr.Code,
		"kind":  appErr.Kind,
	}
	_ = json.NewEncoder(w).Encode(payload)
}
