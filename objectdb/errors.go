package objectdb

import (
	oderrors "github.com/ministore/objectdb/objectdb/errors"
)

type (
	Error     = oderrors.Error
	ErrorKind = oderrors.Kind
)

const (
	ErrSchema           = oderrors.KindSchema
	ErrUnknownAttribute = oderrors.KindUnknownAttribute
	ErrUnknownType      = oderrors.KindUnknownType
	ErrUnknownIndex     = oderrors.KindUnknownIndex
	ErrTypeMismatch     = oderrors.KindTypeMismatch
	ErrVersionMismatch  = oderrors.KindVersionMismatch
	ErrQueryRejected    = oderrors.KindQueryRejected
	ErrNotFound         = oderrors.KindNotFound
	ErrSQL              = oderrors.KindSQL
	ErrIO               = oderrors.KindIO
)

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return oderrors.IsKind(err, kind)
}

// wrapSQL tags store failures with ErrSQL unless they already carry a kind.
func wrapSQL(msg string, err error) error {
	return oderrors.Wrap(oderrors.KindSQL, msg, err)
}
