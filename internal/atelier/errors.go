package atelier

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates that the referenced record does not exist.
	ErrNotFound = errors.New("atelier: record not found")
	// ErrValidation indicates that input was rejected before any write.
	ErrValidation = errors.New("atelier: invalid input")
	// ErrConflict indicates that the operation would break a cross-record invariant.
	ErrConflict = errors.New("atelier: conflicting state")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceError carries a stable operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Violations maps a field name to the rule it broke.
type Violations map[string]string

// Empty reports whether no rule was broken.
func (v Violations) Empty() bool { return len(v) == 0 }

func (v Violations) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func (v Violations) nonNegative(field string, value int64) {
	if value < 0 {
		v[field] = "must_not_be_negative"
	}
}

func (v Violations) positive(field string, value int64) {
	if value <= 0 {
		v[field] = "must_be_positive"
	}
}

func (v Violations) err() error {
	if v.Empty() {
		return nil
	}
	return &ValidationError{Violations: v}
}

// ValidationError lists the fields rejected by a service.
type ValidationError struct {
	Violations Violations
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for field := range e.Violations {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+" "+e.Violations[field])
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
