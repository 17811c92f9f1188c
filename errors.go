package farmsync

import (
	"errors"
	"fmt"

	"github.com/farmsync/farmsync/internal/photos"
)

// Common errors returned by the farmsync client.
var (
	// ErrNotFound is returned when a record does not exist locally.
	ErrNotFound = errors.New("record not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrOffline is returned when a remote operation is attempted without a remote configured.
	ErrOffline = errors.New("operation unavailable in offline mode")

	// ErrSyncInProgress is returned when a sync pass is already running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrParentNotSynced is returned when a dependent record's animal has no remote counterpart yet.
	ErrParentNotSynced = errors.New("parent animal not synced")

	// ErrDuplicateIDInterno is returned when an animal's id_interno is already in use.
	ErrDuplicateIDInterno = errors.New("id_interno already exists")

	// ErrPhotoTooLarge is returned when a photo exceeds the upload limit.
	ErrPhotoTooLarge = photos.ErrTooLarge
)

// ValidationError is returned when configuration or record validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// RecordError is returned when a record fails validation.
// Extractable via errors.As().
type RecordError struct {
	Entity  EntityKind
	Field   string
	Message string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Entity, e.Field, e.Message)
}

// SyncError describes a single record that failed to sync.
// Extractable via errors.As(). Supports Unwrap().
type SyncError struct {
	Operation string
	Entity    EntityKind
	LocalID   int64
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync: %s %s #%d failed: %v", e.Operation, e.Entity, e.LocalID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
