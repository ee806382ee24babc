package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a plugin or backend failure so it can be logged, counted and
// alerted on without stopping the engine.
type Kind int

const (
	// KindUnclassified covers plugin runtime errors, recovered panics and
	// downloader I/O failures that business code re-raised.
	KindUnclassified Kind = iota
	// KindContractViolation: a callback did not return a lazy Stream.
	KindContractViolation
	// KindTypeMismatch: a yielded or required value is not an expected kind.
	KindTypeMismatch
	// KindArityError: a callback could not be invoked with the supplied arguments.
	KindArityError
	// KindUnknownCallback: a callback name does not resolve on the target plugin.
	KindUnknownCallback
	// KindUnknownParameter: a way, db_type or web_type outside the supported set.
	KindUnknownParameter
	// KindMissingParameter: a required backend parameter is absent.
	KindMissingParameter
	// KindValidationFailure: a configuration or seed-shape invariant is violated.
	KindValidationFailure
)

// Kinds lists every Kind, used to pre-initialize labelled metrics.
var Kinds = []Kind{
	KindUnclassified,
	KindContractViolation,
	KindTypeMismatch,
	KindArityError,
	KindUnknownCallback,
	KindUnknownParameter,
	KindMissingParameter,
	KindValidationFailure,
}

func (k Kind) String() string {
	switch k {
	case KindContractViolation:
		return "contract_violation"
	case KindTypeMismatch:
		return "type_mismatch"
	case KindArityError:
		return "arity_error"
	case KindUnknownCallback:
		return "unknown_callback"
	case KindUnknownParameter:
		return "unknown_parameter"
	case KindMissingParameter:
		return "missing_parameter"
	case KindValidationFailure:
		return "validation_failure"
	default:
		return "unclassified"
	}
}

// Sentinels usable with errors.Is against any *Error of the same Kind.
var (
	ErrContractViolation = errors.New("callback must return a lazy stream")
	ErrTypeMismatch      = errors.New("unexpected value type")
	ErrArityError        = errors.New("callback cannot be invoked with the supplied arguments")
	ErrUnknownCallback   = errors.New("callback not found on plugin")
	ErrUnknownParameter  = errors.New("unsupported parameter value")
	ErrMissingParameter  = errors.New("required parameter missing")
	ErrValidationFailure = errors.New("validation failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindContractViolation:
		return ErrContractViolation
	case KindTypeMismatch:
		return ErrTypeMismatch
	case KindArityError:
		return ErrArityError
	case KindUnknownCallback:
		return ErrUnknownCallback
	case KindUnknownParameter:
		return ErrUnknownParameter
	case KindMissingParameter:
		return ErrMissingParameter
	case KindValidationFailure:
		return ErrValidationFailure
	default:
		return nil
	}
}

// Error is a classified failure scoped to one business and one operation.
type Error struct {
	Kind     Kind
	Business string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Business != "" {
		msg = "[" + e.Business + "] " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the Kind sentinel so callers can write errors.Is(err, ErrUnknownCallback).
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// Errorf builds a classified error for op.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(err error, kind Kind, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Missing reports an absent backend parameter.
func Missing(op string, names ...string) *Error {
	return Errorf(KindMissingParameter, op, "%v", names)
}

// Unsupported reports a parameter value outside the allowed set.
func Unsupported(op, param string, got any, allowed ...string) *Error {
	return Errorf(KindUnknownParameter, op, "%s=%v, expected one of %v", param, got, allowed)
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnclassified
}

// IsClassified reports whether err carries a Kind other than KindUnclassified.
func IsClassified(err error) bool {
	return KindOf(err) != KindUnclassified
}

// WithBusiness stamps business onto a classified error, wrapping plain errors as
// KindUnclassified.
func WithBusiness(err error, business string) *Error {
	var de *Error
	if errors.As(err, &de) {
		cp := *de
		if cp.Business == "" {
			cp.Business = business
		}
		return &cp
	}
	return &Error{Kind: KindUnclassified, Business: business, Err: err}
}
