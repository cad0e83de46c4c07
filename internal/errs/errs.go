package errs

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindServer Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "server_error"
	}
}

// Error is the domain error returned by services. Fields carries per-field
// validation messages.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Code is the machine-readable code placed in the response envelope.
func (e *Error) Code() string { return e.Kind.String() }

var (
	ErrTaskNotFound         = &Error{Kind: KindNotFound, Message: "task not found"}
	ErrUserNotFound         = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrCategoryNotFound     = &Error{Kind: KindNotFound, Message: "category not found"}
	ErrDepartmentNotFound   = &Error{Kind: KindNotFound, Message: "department not found"}
	ErrCommentNotFound      = &Error{Kind: KindNotFound, Message: "comment not found"}
	ErrNotificationNotFound = &Error{Kind: KindNotFound, Message: "notification not found"}

	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
	ErrInvalidCredentials = &Error{Kind: KindUnauthenticated, Message: "invalid email or password"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrDuplicateEmail     = &Error{Kind: KindConflict, Message: "email already in use"}
)

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Invalid reports a single invalid field.
func Invalid(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: map[string]string{field: msg}}
}

// FieldErrors reports several invalid fields at once. It returns nil when fields is empty.
func FieldErrors(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, KindServer otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

// IsDuplicate reports whether err is a unique constraint violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// FromDB maps a store error to a domain error: record-not-found becomes notFound,
// duplicate keys become conflicts, anything else is returned unchanged.
func FromDB(err error, notFound *Error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if notFound != nil {
			return notFound
		}
		return &Error{Kind: KindNotFound, Message: "record not found", Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Message: "duplicate key violation", Err: err}
	default:
		return err
	}
}
