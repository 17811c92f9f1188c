package farmsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/farmsync/farmsync/internal/photos"
	"github.com/farmsync/farmsync/internal/remote"
)

// DefaultRowTimeout bounds the remote calls made for one record.
const DefaultRowTimeout = 30 * time.Second

// Syncer moves records between the local store and the remote store. At
// most one pass runs per Store, across every Syncer sharing it; a pass
// started while another is running fails with ErrSyncInProgress.
type Syncer struct {
	store      *Store
	remote     remote.Store
	objects    remote.ObjectStore
	cache      *photos.Cache
	logger     *slog.Logger
	metrics    *Metrics
	rowTimeout time.Duration
}

// NewSyncer creates a syncer. objects and cache may be nil, in which case
// animal photos are not uploaded.
func NewSyncer(store *Store, rs remote.Store, objects remote.ObjectStore, cache *photos.Cache) *Syncer {
	return &Syncer{
		store:      store,
		remote:     rs,
		objects:    objects,
		cache:      cache,
		logger:     slog.New(slog.DiscardHandler),
		rowTimeout: DefaultRowTimeout,
	}
}

// WithLogger sets the logger for pass summaries and row failures.
func (s *Syncer) WithLogger(l *slog.Logger) *Syncer {
	if l != nil {
		s.logger = l
	}
	return s
}

// WithMetrics sets the metrics sink.
func (s *Syncer) WithMetrics(m *Metrics) *Syncer {
	s.metrics = m
	return s
}

// WithRowTimeout sets the per-record timeout for remote calls.
func (s *Syncer) WithRowTimeout(d time.Duration) *Syncer {
	if d > 0 {
		s.rowTimeout = d
	}
	return s
}

// Syncing reports whether a pass is running.
func (s *Syncer) Syncing() bool { return s.store.syncing.Load() }

func (s *Syncer) acquire() bool { return s.store.syncing.CompareAndSwap(false, true) }

func (s *Syncer) release() { s.store.syncing.Store(false) }

// SyncAll uploads every pending record. Per-record failures are counted in
// the report; only local store failures are returned as errors.
func (s *Syncer) SyncAll(ctx context.Context) (*UploadReport, error) {
	if !s.acquire() {
		return nil, ErrSyncInProgress
	}
	defer s.release()
	return s.upload(context.WithoutCancel(ctx))
}

// DownloadAll merges the remote store into the local store.
func (s *Syncer) DownloadAll(ctx context.Context) (*DownloadReport, error) {
	if !s.acquire() {
		return nil, ErrSyncInProgress
	}
	defer s.release()
	return s.download(context.WithoutCancel(ctx))
}

// Sync runs an upload pass followed by a download pass.
func (s *Syncer) Sync(ctx context.Context) (*SyncReport, error) {
	if !s.acquire() {
		return nil, ErrSyncInProgress
	}
	defer s.release()

	ctx = context.WithoutCancel(ctx)
	up, err := s.upload(ctx)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	down, err := s.download(ctx)
	if err != nil {
		return &SyncReport{Upload: up}, fmt.Errorf("download: %w", err)
	}
	return &SyncReport{Upload: up, Download: down}, nil
}

func (s *Syncer) upload(ctx context.Context) (_ *UploadReport, err error) {
	start := time.Now()
	report := &UploadReport{Details: make(map[EntityKind]EntityResult, len(syncTables))}
	defer func() {
		s.metrics.observePass(directionUpload, start, err, report.TotalFailed)
	}()

	parents := newParentResolver(s.store, s.remote)
	for _, t := range syncTables {
		rows, err := s.store.GetAll(ctx, fmt.Sprintf(
			"SELECT %s FROM %s WHERE sync_status = 'pending' ORDER BY %s", t.selectList(), t.local, t.idColumn))
		if err != nil {
			return nil, fmt.Errorf("sync: list pending %s: %w", t.kind, err)
		}

		var res EntityResult
		for _, row := range rows {
			rowCtx, cancel := context.WithTimeout(ctx, s.rowTimeout)
			err := s.pushRow(rowCtx, t, row, parents)
			cancel()

			if errors.Is(err, ErrStoreClosed) {
				return nil, err
			}
			if err != nil {
				res.Failed++
				localID, _ := asInt(row[t.idColumn])
				s.logger.Warn("upload failed",
					"error", &SyncError{Operation: "upload", Entity: t.kind, LocalID: localID, Err: err})
				s.metrics.observeRow(t.kind, directionUpload, "failed")
				continue
			}
			res.Synced++
			s.metrics.observeRow(t.kind, directionUpload, "synced")
		}

		report.Details[t.kind] = res
		report.TotalSynced += res.Synced
		report.TotalFailed += res.Failed
	}
	report.Success = report.TotalFailed == 0

	if pending, err := s.store.PendingCount(ctx); err == nil {
		s.metrics.setPending(pending)
	}
	if err := s.store.SetLastSync(ctx, time.Now()); err != nil {
		return nil, err
	}
	s.logger.Info("upload complete",
		"synced", report.TotalSynced,
		"failed", report.TotalFailed,
		"duration", time.Since(start).Round(time.Millisecond))
	return report, nil
}

// pushRow writes one pending row to the remote store and marks it synced.
func (s *Syncer) pushRow(ctx context.Context, t tableSpec, row Row, parents *parentResolver) error {
	localID, _ := asInt(row[t.idColumn])
	revision, _ := asInt(row["revision"])
	knownRemote := asIntPtr(row["remote_id"])

	data := t.data(row)
	data["local_id"] = localID

	var photo photoUpload
	if t.kind == KindAnimal {
		photo = s.preparePhoto(ctx, localID, row, data)
	} else {
		parentID, err := parents.resolve(ctx, asLocalParent(row))
		if err != nil {
			return err
		}
		data["id_animal"] = parentID
		if key := asString(row["sync_key"]); key != "" {
			data["sync_key"] = key
		}
	}

	remoteID, err := s.push(ctx, t, data, knownRemote)
	if err != nil {
		return err
	}

	if err := s.markSynced(ctx, t, localID, remoteID, revision, photo.clear); err != nil {
		return err
	}
	if photo.replaced != "" && photo.replaced != photo.url {
		s.deleteRemotePhoto(ctx, photo.replaced)
	}
	return nil
}

func asLocalParent(row Row) int64 {
	id, _ := asInt(row["id_animal"])
	return id
}

func (s *Syncer) push(ctx context.Context, t tableSpec, data Row, knownRemote *int64) (int64, error) {
	if knownRemote != nil {
		err := s.remote.Update(ctx, t.remote(), remote.ID{Column: t.idColumn, Value: *knownRemote}, data)
		if err != nil {
			return 0, err
		}
		return *knownRemote, nil
	}

	var (
		created Row
		err     error
	)
	if t.dependent && data["sync_key"] == nil {
		created, err = s.remote.Insert(ctx, t.remote(), data)
	} else {
		created, err = s.remote.Upsert(ctx, t.remote(), data, t.conflictKey())
	}
	if err != nil {
		return 0, err
	}
	id, ok := asInt(created[t.idColumn])
	if !ok {
		return 0, fmt.Errorf("remote %s returned no %s", t.kind, t.idColumn)
	}
	return id, nil
}

// markSynced records the remote id and clears pending, unless the row was
// edited after it was read for this push.
func (s *Syncer) markSynced(ctx context.Context, t tableSpec, localID, remoteID, revision int64, clearPhoto bool) error {
	q := fmt.Sprintf(`UPDATE %s SET
		remote_id = COALESCE(remote_id, ?),
		sync_status = CASE WHEN revision = ? THEN 'synced' ELSE sync_status END`, t.local)
	args := []any{remoteID, revision}
	if clearPhoto {
		q += ", photo = CASE WHEN revision = ? THEN NULL ELSE photo END"
		args = append(args, revision)
	}
	q += fmt.Sprintf(" WHERE %s = ?", t.idColumn)
	args = append(args, localID)

	if _, err := s.store.Run(ctx, q, args...); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

type photoUpload struct {
	url string
	// clear drops the local photo reference after a successful push.
	clear bool
	// replaced is the previous remote photo, deleted after a successful push.
	replaced string
}

// preparePhoto uploads a local-pending animal photo and rewrites data's
// photo column. An upload failure sends the row without a photo.
func (s *Syncer) preparePhoto(ctx context.Context, localID int64, row Row, data Row) photoUpload {
	ref := asString(row["photo"])
	if ref == "" || s.cache == nil {
		return photoUpload{}
	}
	if !s.cache.IsLocal(ref) {
		// An earlier pass may have uploaded ref and then failed to push the
		// row, leaving the remote copy on the photo ref replaces.
		if s.objects == nil || !s.ownsObject(ref) {
			return photoUpload{}
		}
		return photoUpload{url: ref, replaced: s.currentRemotePhoto(ctx, row)}
	}
	if s.objects == nil {
		data["photo"] = nil
		return photoUpload{}
	}

	previous := s.currentRemotePhoto(ctx, row)

	url, err := s.uploadPhoto(ctx, localID, ref)
	if err != nil {
		s.logger.Warn("photo upload failed, saving record without photo",
			"animal", localID, "error", err)
		data["photo"] = nil
		return photoUpload{clear: true}
	}
	data["photo"] = url

	if _, err := s.store.Run(ctx, "UPDATE Animales SET photo = ? WHERE id_animal = ? AND photo = ?",
		url, localID, ref); err != nil {
		s.logger.Warn("persist photo url failed", "animal", localID, "error", err)
	}
	s.cache.Delete(ref)
	return photoUpload{url: url, replaced: previous}
}

func (s *Syncer) uploadPhoto(ctx context.Context, localID int64, ref string) (string, error) {
	f, err := s.cache.Open(ref)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.objects.Upload(ctx, photos.ObjectPath(localID, ref), f, photos.ContentType(ref))
}

// currentRemotePhoto returns the photo URL the remote copy of row holds, if
// any. Lookup failures are ignored.
func (s *Syncer) currentRemotePhoto(ctx context.Context, row Row) string {
	filter := remote.Filter{"id_interno": asString(row["id_interno"])}
	if rid, ok := asInt(row["remote_id"]); ok {
		filter = remote.Filter{animalTable.idColumn: rid}
	}
	rows, err := s.remote.Select(ctx, animalTable.remote(), filter)
	if err != nil || len(rows) == 0 {
		return ""
	}
	return asString(rows[0]["photo"])
}

// ownsObject reports whether url points into the configured object store.
func (s *Syncer) ownsObject(url string) bool {
	base := s.objects.PublicURL("")
	return base != "" && strings.HasPrefix(url, base)
}

func (s *Syncer) deleteRemotePhoto(ctx context.Context, url string) {
	if !s.ownsObject(url) {
		return
	}
	path := strings.TrimPrefix(url, s.objects.PublicURL(""))
	if err := s.objects.Delete(ctx, path); err != nil && !remote.IsNotFound(err) {
		s.logger.Warn("delete replaced photo failed", "path", path, "error", err)
	}
}
