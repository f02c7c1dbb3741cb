package model

import "errors"

type (
	// Error is the structured failure surfaced by buffers, statistics and triggers.
	Error struct {
		Message string
		Kind    Kind

		// Name identifies the buffer or trigger the error belongs to.
		Name string

		PropertyName  string
		PropertyValue any

		NestedError error
	}

	Kind int
)

const (
	SourceUnavailable Kind = iota
	ConfigurationInvalid
	ExportFailed
)

func (k Kind) String() string {
	switch k {
	case SourceUnavailable:
		return "source unavailable"
	case ConfigurationInvalid:
		return "configuration invalid"
	case ExportFailed:
		return "export failed"
	default:
		return "unknown"
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Name != "" {
		msg = e.Name + ": " + msg
	}
	if e.NestedError != nil {
		msg += ": " + e.NestedError.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.NestedError
}

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func NewSourceError(name string, err error) *Error {
	return &Error{
		Message:     "source unavailable",
		Kind:        SourceUnavailable,
		Name:        name,
		NestedError: err,
	}
}

func NewConfigError(msg, property string, value any) *Error {
	return &Error{
		Message:       msg,
		Kind:          ConfigurationInvalid,
		PropertyName:  property,
		PropertyValue: value,
	}
}

func NewExportError(trigger string, err error) *Error {
	return &Error{
		Message:     "chain export failed",
		Kind:        ExportFailed,
		Name:        trigger,
		NestedError: err,
	}
}
