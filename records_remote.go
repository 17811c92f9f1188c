package farmsync

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/farmsync/farmsync/internal/photos"
	"github.com/farmsync/farmsync/internal/remote"
	"github.com/google/uuid"
)

// RemoteRecords reads and writes the remote store directly. Records are
// always synced and their LocalID equals their RemoteID.
type RemoteRecords[T any, P recordPtr[T]] struct {
	remote  remote.Store
	objects remote.ObjectStore
	spec    tableSpec
}

// NewRemoteRecords creates a direct-mode record service. objects may be nil,
// in which case animal photos that are not already URLs are dropped.
func NewRemoteRecords[T any, P recordPtr[T]](rs remote.Store, objects remote.ObjectStore) *RemoteRecords[T, P] {
	return &RemoteRecords[T, P]{remote: rs, objects: objects, spec: specOf[T, P]()}
}

func (r *RemoteRecords[T, P]) decode(row Row) T {
	rec := decodeRecord[T, P](r.spec, row)
	m := P(&rec).Meta()
	id := m.LocalID
	m.RemoteID = &id
	m.SyncStatus = SyncSynced
	return rec
}

func (r *RemoteRecords[T, P]) list(ctx context.Context, filter remote.Filter) ([]T, error) {
	rows, err := r.remote.Select(ctx, r.spec.remote(), filter)
	if err != nil {
		return nil, fmt.Errorf("records: list %s: %w", r.spec.kind, err)
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.decode(row))
	}
	return out, nil
}

// GetAll returns every remote record of this type.
func (r *RemoteRecords[T, P]) GetAll(ctx context.Context) ([]T, error) {
	return r.list(ctx, nil)
}

// Get returns the record with remote id.
func (r *RemoteRecords[T, P]) Get(ctx context.Context, id int64) (*T, error) {
	recs, err := r.list(ctx, remote.Filter{r.spec.idColumn: id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// ForAnimal returns the records referencing the animal with remote id.
func (r *RemoteRecords[T, P]) ForAnimal(ctx context.Context, animalID int64) ([]T, error) {
	return r.list(ctx, remote.Filter{"id_animal": animalID})
}

// Insert creates rec remotely.
func (r *RemoteRecords[T, P]) Insert(ctx context.Context, rec *T) (*T, error) {
	out, err := prepare[T, P](rec)
	if err != nil {
		return nil, err
	}
	p := P(&out)
	pendingPhoto := r.takeLocalPhoto(p)

	row := p.fields()
	if r.spec.dependent {
		row["sync_key"] = uuid.NewString()
	}
	created, err := r.remote.Insert(ctx, r.spec.remote(), row)
	if err != nil {
		if remote.IsConflict(err) && r.spec.kind == KindAnimal {
			return nil, ErrDuplicateIDInterno
		}
		return nil, fmt.Errorf("records: insert %s: %w", r.spec.kind, err)
	}
	result := r.decode(created)

	if pendingPhoto != "" {
		id := P(&result).Meta().LocalID
		if err := r.attachPhoto(ctx, id, pendingPhoto); err != nil {
			return nil, err
		}
		return r.Get(ctx, id)
	}
	return &result, nil
}

// Update overwrites the data fields of the remote record rec.LocalID.
func (r *RemoteRecords[T, P]) Update(ctx context.Context, rec *T) (*T, error) {
	out, err := prepare[T, P](rec)
	if err != nil {
		return nil, err
	}
	p := P(&out)
	id := p.Meta().LocalID
	pendingPhoto := r.takeLocalPhoto(p)

	patch := p.fields()
	if pendingPhoto != "" {
		// The old photo is kept until the new one is uploaded.
		delete(patch, "photo")
	}
	if err := r.remote.Update(ctx, r.spec.remote(), remote.ID{Column: r.spec.idColumn, Value: id}, patch); err != nil {
		if remote.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("records: update %s: %w", r.spec.kind, err)
	}
	if pendingPhoto != "" {
		if err := r.attachPhoto(ctx, id, pendingPhoto); err != nil {
			return nil, err
		}
	}
	return r.Get(ctx, id)
}

// Delete removes the remote record.
func (r *RemoteRecords[T, P]) Delete(ctx context.Context, id int64) error {
	err := r.remote.Delete(ctx, r.spec.remote(), remote.ID{Column: r.spec.idColumn, Value: id})
	if remote.IsNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("records: delete %s: %w", r.spec.kind, err)
	}
	return nil
}

// takeLocalPhoto clears an animal photo that refers to a file on disk and
// returns the file path.
func (r *RemoteRecords[T, P]) takeLocalPhoto(p P) string {
	a, ok := any(p).(*Animal)
	if !ok || a.Photo == "" {
		return ""
	}
	if strings.HasPrefix(a.Photo, "http://") || strings.HasPrefix(a.Photo, "https://") {
		return ""
	}
	path := strings.TrimPrefix(a.Photo, "file://")
	a.Photo = ""
	if r.objects == nil {
		return ""
	}
	return path
}

func (r *RemoteRecords[T, P]) attachPhoto(ctx context.Context, id int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("records: open photo: %w", err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > photos.MaxPhotoSize {
		return ErrPhotoTooLarge
	}
	url, err := r.objects.Upload(ctx, photos.ObjectPath(id, path), f, photos.ContentType(path))
	if err != nil {
		return fmt.Errorf("records: upload photo: %w", err)
	}
	err = r.remote.Update(ctx, r.spec.remote(), remote.ID{Column: r.spec.idColumn, Value: id}, Row{"photo": url})
	if err != nil {
		return fmt.Errorf("records: attach photo: %w", err)
	}
	return nil
}
