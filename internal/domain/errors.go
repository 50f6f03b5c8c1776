package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrConfiguration indicates invalid parameters; raised before any I/O.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound indicates a missing source document or collection.
	ErrNotFound = errors.New("not found")

	// ErrEmbedding indicates the embedding provider failed.
	ErrEmbedding = errors.New("embedding error")

	// ErrStore indicates the persistent vector index failed.
	ErrStore = errors.New("store error")
)

// Error carries an error kind together with the failing operation.
type Error struct {
	Kind error
	Op   string
	Err  error

	// Temporary marks failures a caller may reasonably retry,
	// such as a provider rate limit.
	Temporary bool
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

// ConfigurationError builds an ErrConfiguration error.
func ConfigurationError(op, format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

// NotFoundError builds an ErrNotFound error.
func NotFoundError(op string, err error) error {
	return &Error{Kind: ErrNotFound, Op: op, Err: err}
}

// EmbeddingError wraps a provider failure.
func EmbeddingError(op string, err error, temporary bool) error {
	return &Error{Kind: ErrEmbedding, Op: op, Err: err, Temporary: temporary}
}

// StoreError wraps an index failure. Errors that already carry a kind are
// returned unchanged.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: ErrStore, Op: op, Err: err}
}

// IsTemporary reports whether err is marked as worth retrying.
func IsTemporary(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Temporary
	}
	return false
}

// KindOf returns the error kind of err, or nil when it has none.
func KindOf(err error) error {
	for _, kind := range []error{ErrConfiguration, ErrNotFound, ErrEmbedding, ErrStore} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
