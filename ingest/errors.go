package ingest

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the failures that abort a run.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig is a missing or malformed configuration value.
	KindConfig
	// KindStore is an unreadable or missing marker or record object.
	KindStore
	// KindTransform is a crosswalk that failed to compile or to apply.
	KindTransform
	// KindProtocol is an upload that did not return HTTP 200 with a JSON
	// reply, or a rejection when rejections are fatal.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config error"
	case KindStore:
		return "store error"
	case KindTransform:
		return "transform error"
	case KindProtocol:
		return "protocol error"
	default:
		return "unknown error"
	}
}

// ErrRejected is wrapped into the KindProtocol error raised for a rejected
// record when rejections stop the run.
var ErrRejected = stderrors.New("import rejected")

// Error is a fatal run error. Op names the step that failed and Key the
// object being processed, if any.
type Error struct {
	Kind Kind
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err and records the current stack; print the result with
// %+v to get the trace.
func Wrap(kind Kind, op string, err error) error {
	return wrapKey(kind, op, "", err)
}

func wrapKey(kind Kind, op, key string, err error) error {
	return errors.WithStack(&Error{Kind: kind, Op: op, Key: key, Err: err})
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
