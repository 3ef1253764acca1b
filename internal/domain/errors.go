package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is on any error returned by this module.
var (
	ErrExtraction           = errors.New("extraction error")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidQuery         = errors.New("invalid query")
	ErrExternalService      = errors.New("external service error")
	ErrCacheCorruption      = errors.New("cache corruption")
	ErrStorage              = errors.New("storage error")
	ErrNotFound             = errors.New("not found")
)

// Error carries an error kind, the operation that failed and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the first known error kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrInvalidQuery,
		ErrInvalidConfiguration,
		ErrExternalService,
		ErrExtraction,
		ErrCacheCorruption,
		ErrStorage,
		ErrNotFound,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Describe is a caller-safe summary of err: its kind only, without operation names,
// paths or causes.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if kind := KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal error"
}
