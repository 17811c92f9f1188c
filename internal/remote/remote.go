// Package remote defines the contract for the authoritative remote store:
// row CRUD against named tables plus binary object storage.
//
// Implementations live in subpackages: rest (PostgREST over HTTPS and its
// storage API), pg (direct Postgres), s3 (S3-compatible object storage),
// and memory (in-process, for tests and demos).
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Row is a single record keyed by column name.
type Row = map[string]any

// Filter selects rows whose columns equal the given values.
// A nil or empty Filter selects every row.
type Filter map[string]any

// ID targets one row by its primary key column.
type ID struct {
	Column string
	Value  int64
}

// Store executes CRUD operations against the remote relational backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Select returns all rows of table matching filter.
	Select(ctx context.Context, table string, filter Filter) ([]Row, error)

	// Insert creates a row and returns it as stored, including generated keys.
	Insert(ctx context.Context, table string, row Row) (Row, error)

	// Update applies patch to the row identified by id.
	// Returns an error satisfying IsNotFound if no row matched.
	Update(ctx context.Context, table string, id ID, patch Row) error

	// Upsert inserts row, or overwrites the existing row whose conflictKey
	// column equals row[conflictKey]. Returns the stored row.
	Upsert(ctx context.Context, table string, row Row, conflictKey string) (Row, error)

	// Delete removes the row identified by id. Deleting a missing row is not an error.
	Delete(ctx context.Context, table string, id ID) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// ObjectStore stores binary blobs under slash-separated paths and serves
// them from public URLs.
type ObjectStore interface {
	// Upload writes r to path and returns its public URL.
	Upload(ctx context.Context, path string, r io.Reader, contentType string) (string, error)

	// Delete removes the object at path.
	Delete(ctx context.Context, path string) error

	// PublicURL returns the URL an object at path is served from.
	// PublicURL("") is the common prefix of every object URL.
	PublicURL(path string) string
}

// ErrNotFound is wrapped by errors for operations that target a missing row.
var ErrNotFound = errors.New("remote: not found")

// Error describes a failed remote operation.
// Extractable via errors.As(). Supports Unwrap().
type Error struct {
	Operation  string
	Table      string
	StatusCode int
	// Code is the backend error code (PostgREST/Postgres SQLSTATE), if any.
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	target := e.Operation
	if e.Table != "" {
		target += " " + e.Table
	}
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("remote: %s failed (status %d): %s", target, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("remote: %s failed (status %d)", target, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("remote: %s failed: %v", target, e.Err)
	default:
		return fmt.Sprintf("remote: %s failed: %s", target, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	return re.Code == uniqueViolation || re.StatusCode == 409
}

// IsNotFound reports whether err indicates a missing row.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var re *Error
	return errors.As(err, &re) && re.StatusCode == 404
}

// Conflict builds the error implementations return on a unique violation.
func Conflict(op, table, message string) *Error {
	return &Error{Operation: op, Table: table, StatusCode: 409, Code: uniqueViolation, Message: message}
}
