// Package fault classifies the recoverable failures of the triage pipeline.
//
// Every failure is caught at the operation boundary (one message, one contact,
// one group) and never aborts a batch loop. The Kind decides how it is
// reported in the activity log.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the taxonomy of pipeline failures.
type Kind string

const (
	KindUnknown        Kind = "unknown"
	KindTransport      Kind = "transport"       // network failure or non-2xx status
	KindGatewayPayload Kind = "gateway_payload" // response received but not collection-shaped
	KindModel          Kind = "model"           // language-model call failed or returned an API error
	KindParse          Kind = "parse"           // model output was not valid structured data
	KindConfig         Kind = "config"          // credential or URL missing
)

// Error tags an underlying error with a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a tagged error from a format string.
func Newf(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the outermost tagged error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
