// Package backend talks to the remote conversational service.
//
// The service exposes three operations scoped to a conversation id (read the
// history, send a message and get a reply, clear the conversation) plus a
// health probe. Every failure is reported as an error of one of three
// classes, see Kind.
package backend

import (
	"context"
	"fmt"

	"github.com/go-go-golems/palaver/pkg/conversation"
	"github.com/pkg/errors"
)

// Backend is the remote side of a conversation.
type Backend interface {
	// History returns the stored messages. A nil slice with a nil error means
	// the service answered without a message list.
	History(ctx context.Context, conversationID string) ([]conversation.Message, error)
	// Send submits text and returns the assistant's reply.
	Send(ctx context.Context, conversationID string, text string) (string, error)
	// Clear drops the stored conversation.
	Clear(ctx context.Context, conversationID string) error
}

// HealthChecker is implemented by backends that expose a health probe.
type HealthChecker interface {
	Health(ctx context.Context) (*HealthStatus, error)
}

type HealthStatus struct {
	Status        string `json:"status" yaml:"status"`
	APIConfigured bool   `json:"api_configured" yaml:"api_configured"`
	Mode          string `json:"mode" yaml:"mode"`
}

var (
	ErrTransport         = errors.New("transport failure")
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
	KindMalformed ErrorKind = "malformed"
	KindUnknown   ErrorKind = "unknown"
)

// Kind classifies err for diagnostics. Callers do not branch on it.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return KindStatus
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindUnknown
	}
}

// transportError keeps the underlying cause while matching ErrTransport.
type transportError struct {
	op    string
	cause error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.op, ErrTransport, e.cause)
}

func (e *transportError) Unwrap() []error {
	return []error{ErrTransport, e.cause}
}

func newTransportError(op string, cause error) error {
	return &transportError{op: op, cause: cause}
}
