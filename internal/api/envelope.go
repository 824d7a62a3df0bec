package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// CallKind tells the pipeline how a call relates to the session lifecycle.
type CallKind int

const (
	// CallStandard is an ordinary domain call, eligible for refresh-and-retry.
	CallStandard CallKind = iota
	// CallLogin may run without a stored token even when RequiresAuth is set.
	CallLogin
	// CallRefresh is the token refresh call itself; never refreshed.
	CallRefresh
	// CallLogout ends the session; never refreshed.
	CallLogout
)

func (k CallKind) String() string {
	switch k {
	case CallStandard:
		return "standard"
	case CallLogin:
		return "login"
	case CallRefresh:
		return "refresh"
	case CallLogout:
		return "logout"
	default:
		return fmt.Sprintf("CallKind(%d)", int(k))
	}
}

// Descriptor describes one logical API call. Descriptors are values: the
// pipeline copies Headers and encodes Body once, so the caller may reuse or
// mutate its own copy after Execute returns.
type Descriptor struct {
	Endpoint     string
	Method       string
	Body         any
	Headers      map[string]string
	RequiresAuth bool
	Kind         CallKind
}

// refreshEligible reports whether an Unauthorized answer to this call may
// be resolved by the refresh coordinator.
func (d Descriptor) refreshEligible() bool {
	return d.RequiresAuth && d.Kind == CallStandard
}

// Envelope is the normalized result of every pipeline call. Error is non-nil
// exactly when Success is false; Data is meaningful only on success.
type Envelope[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data,omitempty"`
	Status  int        `json:"status"`
	Message string     `json:"message,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// Err returns the envelope's error as a Go error, or nil on success.
func (e Envelope[T]) Err() error {
	if e.Error == nil {
		return nil
	}

	return e.Error
}

// failure builds an unsuccessful envelope from an ErrorInfo.
func failure[T any](info ErrorInfo) Envelope[T] {
	return Envelope[T]{Status: info.Status, Message: info.Message, Error: &info}
}

// Executor runs a descriptor through the pipeline. *Client implements it;
// refreshers receive it so the refresh call shares the same transport.
type Executor interface {
	Execute(ctx context.Context, d Descriptor) Envelope[json.RawMessage]
}

// Call executes d and decodes the payload into T.
func Call[T any](ctx context.Context, exec Executor, d Descriptor) Envelope[T] {
	return Decode[T](exec.Execute(ctx, d))
}

// Decode converts a raw envelope into a typed one. A payload that does not
// fit T turns a successful envelope into a ParseError.
func Decode[T any](raw Envelope[json.RawMessage]) Envelope[T] {
	out := Envelope[T]{
		Success: raw.Success,
		Status:  raw.Status,
		Message: raw.Message,
		Error:   raw.Error,
	}

	if !raw.Success || len(raw.Data) == 0 || string(raw.Data) == "null" {
		return out
	}

	if err := json.Unmarshal(raw.Data, &out.Data); err != nil {
		return failure[T](ErrorInfo{
			Code:    KindParse,
			Message: fmt.Sprintf("decoding %T payload: %v", out.Data, err),
			Status:  raw.Status,
			Err:     err,
		})
	}

	return out
}
