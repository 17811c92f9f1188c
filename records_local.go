package farmsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/farmsync/farmsync/internal/photos"
	"github.com/farmsync/farmsync/internal/remote"
	"github.com/google/uuid"
)

// LocalRecords stores records in the local database. Every mutation marks
// the row pending for the next upload pass.
type LocalRecords[T any, P recordPtr[T]] struct {
	store  *Store
	remote remote.Store
	cache  *photos.Cache
	spec   tableSpec
}

// NewLocalRecords creates a local record service. rs may be nil, in which
// case deleting an already uploaded record fails with ErrOffline. cache may
// be nil when photos are not managed.
func NewLocalRecords[T any, P recordPtr[T]](store *Store, rs remote.Store, cache *photos.Cache) *LocalRecords[T, P] {
	return &LocalRecords[T, P]{store: store, remote: rs, cache: cache, spec: specOf[T, P]()}
}

func (r *LocalRecords[T, P]) query(ctx context.Context, where string, args ...any) ([]T, error) {
	q := fmt.Sprintf("SELECT %s FROM %s", r.spec.selectList(), r.spec.local)
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY " + r.spec.idColumn
	rows, err := r.store.GetAll(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("records: list %s: %w", r.spec.kind, err)
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeRecord[T, P](r.spec, row))
	}
	return out, nil
}

// GetAll returns every record of this type.
func (r *LocalRecords[T, P]) GetAll(ctx context.Context) ([]T, error) {
	return r.query(ctx, "")
}

// Get returns the record with local id.
func (r *LocalRecords[T, P]) Get(ctx context.Context, id int64) (*T, error) {
	recs, err := r.query(ctx, r.spec.idColumn+" = ?", id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// ForAnimal returns the records referencing the animal with local id.
func (r *LocalRecords[T, P]) ForAnimal(ctx context.Context, animalID int64) ([]T, error) {
	return r.query(ctx, "id_animal = ?", animalID)
}

// Insert stores rec as a new pending record and returns it with its local id.
func (r *LocalRecords[T, P]) Insert(ctx context.Context, rec *T) (*T, error) {
	out, err := prepare[T, P](rec)
	if err != nil {
		return nil, err
	}
	p := P(&out)
	if err := r.cachePhoto(p, ""); err != nil {
		return nil, err
	}

	fields := p.fields()
	cols := append([]string(nil), r.spec.columns...)
	args := make([]any, 0, len(cols)+1)
	for _, c := range cols {
		args = append(args, fields[c])
	}
	if r.spec.dependent {
		cols = append(cols, "sync_key")
		args = append(args, uuid.NewString())
	}

	q := fmt.Sprintf("INSERT INTO %s (%s, sync_status) VALUES (%s, 'pending')",
		r.spec.local, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := r.store.Run(ctx, q, args...)
	if err != nil {
		return nil, r.mapError("insert", err)
	}
	return r.Get(ctx, res.LastInsertID)
}

// Update overwrites the data fields of an existing record and marks it
// pending. Remote id and sync key are never changed.
func (r *LocalRecords[T, P]) Update(ctx context.Context, rec *T) (*T, error) {
	out, err := prepare[T, P](rec)
	if err != nil {
		return nil, err
	}
	p := P(&out)
	id := p.Meta().LocalID

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previousPhoto := photoOf(P(current))
	if err := r.cachePhoto(p, previousPhoto); err != nil {
		return nil, err
	}

	fields := p.fields()
	sets := make([]string, 0, len(r.spec.columns))
	args := make([]any, 0, len(r.spec.columns)+1)
	for _, c := range r.spec.columns {
		sets = append(sets, c+" = ?")
		args = append(args, fields[c])
	}
	args = append(args, id)

	q := fmt.Sprintf("UPDATE %s SET %s, sync_status = 'pending', revision = revision + 1 WHERE %s = ?",
		r.spec.local, strings.Join(sets, ", "), r.spec.idColumn)
	res, err := r.store.Run(ctx, q, args...)
	if err != nil {
		return nil, r.mapError("update", err)
	}
	if res.Changes == 0 {
		return nil, ErrNotFound
	}

	if newPhoto := photoOf(p); r.cache != nil && previousPhoto != newPhoto && r.cache.Owns(previousPhoto) {
		r.cache.Delete(previousPhoto)
	}
	return r.Get(ctx, id)
}

// Delete removes a record. A record that was already uploaded is deleted
// remotely first; if that fails the local row is kept.
func (r *LocalRecords[T, P]) Delete(ctx context.Context, id int64) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	p := P(current)

	if rid := p.Meta().RemoteID; rid != nil {
		if r.remote == nil {
			return ErrOffline
		}
		err := r.remote.Delete(ctx, r.spec.remote(), remote.ID{Column: r.spec.idColumn, Value: *rid})
		if err != nil && !remote.IsNotFound(err) {
			return &SyncError{Operation: "delete", Entity: r.spec.kind, LocalID: id, Err: err}
		}
	}

	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.spec.local, r.spec.idColumn)
	if _, err := r.store.Run(ctx, q, id); err != nil {
		return r.mapError("delete", err)
	}

	if photo := photoOf(p); r.cache != nil && r.cache.Owns(photo) {
		r.cache.Delete(photo)
	}
	return nil
}

// cachePhoto copies an animal photo picked from outside the app into the
// photo cache. References already local or remote are kept as they are.
func (r *LocalRecords[T, P]) cachePhoto(p P, previous string) error {
	a, ok := any(p).(*Animal)
	if !ok || a.Photo == "" || a.Photo == previous || r.cache == nil {
		return nil
	}
	if r.cache.Owns(a.Photo) || r.cache.IsRemote(a.Photo) ||
		strings.HasPrefix(a.Photo, "http://") || strings.HasPrefix(a.Photo, "https://") {
		return nil
	}
	ref, err := r.cache.Save(a.Photo)
	if err != nil {
		return fmt.Errorf("records: cache photo: %w", err)
	}
	a.Photo = ref
	return nil
}

func (r *LocalRecords[T, P]) mapError(op string, err error) error {
	if errors.Is(err, ErrStoreClosed) {
		return err
	}
	msg := err.Error()
	switch {
	case isUniqueViolation(err) && r.spec.kind == KindAnimal:
		return ErrDuplicateIDInterno
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return &RecordError{Entity: r.spec.kind, Field: "id_animal", Message: "references a missing animal"}
	case strings.Contains(msg, "CHECK constraint failed"):
		return &RecordError{Entity: r.spec.kind, Field: "record", Message: msg}
	}
	return fmt.Errorf("records: %s %s: %w", op, r.spec.kind, err)
}

func photoOf(rec Record) string {
	if a, ok := rec.(*Animal); ok {
		return a.Photo
	}
	return ""
}
