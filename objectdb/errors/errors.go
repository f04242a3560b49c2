package errors

import (
	stderrors "errors"
	"fmt"
)

type Kind string

const (
	KindSchema           Kind = "schema"
	KindUnknownAttribute Kind = "unknown_attribute"
	KindUnknownType      Kind = "unknown_type"
	KindUnknownIndex     Kind = "unknown_index"
	KindTypeMismatch     Kind = "type_mismatch"
	KindVersionMismatch  Kind = "version_mismatch"
	KindQueryRejected    Kind = "query_rejected"
	KindNotFound         Kind = "not_found"
	KindSQL              Kind = "sql"
	KindIO               Kind = "io"
)

type Error struct {
	Kind    Kind
	Message string
	Name    string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Name != "" {
		base = fmt.Sprintf("%s (name=%s)", base, e.Name)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap attaches kind and message to cause. A cause that already carries an
// *Error is returned unchanged so the innermost classification wins.
func Wrap(kind Kind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if stderrors.As(cause, &e) {
		return cause
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Schema(format string, args ...any) *Error {
	return Newf(KindSchema, format, args...)
}

func UnknownAttribute(typeName, attr string) *Error {
	return &Error{Kind: KindUnknownAttribute, Message: fmt.Sprintf("attribute not registered for type %q", typeName), Name: attr}
}

func UnknownType(name string) *Error {
	return &Error{Kind: KindUnknownType, Message: "object type not registered", Name: name}
}

func UnknownIndex(name string) *Error {
	return &Error{Kind: KindUnknownIndex, Message: "inverted index not registered", Name: name}
}

func TypeMismatch(attr, format string, args ...any) *Error {
	return &Error{Kind: KindTypeMismatch, Message: fmt.Sprintf(format, args...), Name: attr}
}

func VersionMismatch(have, want string) *Error {
	return Newf(KindVersionMismatch, "stored version %s, engine version %s", have, want)
}

func QueryRejected(format string, args ...any) *Error {
	return Newf(KindQueryRejected, format, args...)
}

func NotFound(typeName string, id int64) *Error {
	return Newf(KindNotFound, "object %s:%d not found", typeName, id)
}

// IsKind reports whether any error in err's chain is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
