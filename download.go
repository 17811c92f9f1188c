package farmsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/farmsync/farmsync/internal/remote"
)

// download fetches every remote table and merges it into the local store.
// Local rows with pending edits are left untouched.
func (s *Syncer) download(ctx context.Context) (_ *DownloadReport, err error) {
	start := time.Now()
	report := &DownloadReport{Details: make(map[EntityKind]DownloadResult, len(syncTables))}
	defer func() {
		s.metrics.observePass(directionDownload, start, err, report.TotalFailed)
	}()

	animals := newAnimalIndex(s.store, s.remote)
	for _, t := range syncTables {
		var res DownloadResult

		fetchCtx, cancel := context.WithTimeout(ctx, s.rowTimeout)
		rows, err := s.remote.Select(fetchCtx, t.remote(), nil)
		cancel()
		if err != nil {
			res.Failed = 1
			s.logger.Warn("download fetch failed", "entity", t.kind, "error", err)
			s.metrics.observeRow(t.kind, directionDownload, "failed")
			report.Details[t.kind] = res
			report.TotalFailed += res.Failed
			continue
		}

		for _, row := range rows {
			rowCtx, cancel := context.WithTimeout(ctx, s.rowTimeout)
			var merged bool
			if t.dependent {
				merged, err = s.mergeDependent(rowCtx, t, row, animals)
			} else {
				merged, err = s.mergeAnimal(rowCtx, row, animals)
			}
			cancel()

			if errors.Is(err, ErrStoreClosed) {
				return nil, err
			}
			if err != nil {
				res.Failed++
				remoteID, _ := asInt(row[t.idColumn])
				s.logger.Warn("download failed",
					"error", &SyncError{Operation: "download", Entity: t.kind, LocalID: remoteID, Err: err})
				s.metrics.observeRow(t.kind, directionDownload, "failed")
				continue
			}
			if merged {
				res.Downloaded++
				s.metrics.observeRow(t.kind, directionDownload, "downloaded")
			} else {
				s.metrics.observeRow(t.kind, directionDownload, "skipped")
			}
		}

		report.Details[t.kind] = res
		report.TotalDownloaded += res.Downloaded
		report.TotalFailed += res.Failed
	}
	report.Success = report.TotalFailed == 0

	if err := s.store.SetLastSync(ctx, time.Now()); err != nil {
		return nil, err
	}
	s.logger.Info("download complete",
		"downloaded", report.TotalDownloaded,
		"failed", report.TotalFailed,
		"duration", time.Since(start).Round(time.Millisecond))
	return report, nil
}

// localValues converts a remote row's data columns for local storage.
func localValues(t tableSpec, row Row) Row {
	out := make(Row, len(t.columns))
	for _, c := range t.columns {
		out[c] = plain(row[c])
	}
	return out
}

// mergeAnimal applies one remote animal. It returns false when the local
// copy has pending edits.
func (s *Syncer) mergeAnimal(ctx context.Context, row Row, animals *animalIndex) (bool, error) {
	remoteID, ok := asInt(row[animalTable.idColumn])
	if !ok {
		return false, fmt.Errorf("remote animal has no %s", animalTable.idColumn)
	}
	tag := asString(row["id_interno"])
	if tag == "" {
		return false, fmt.Errorf("remote animal %d has no id_interno", remoteID)
	}
	animals.remember(remoteID, tag)

	local, err := s.store.GetFirst(ctx,
		"SELECT id_animal, sync_status, remote_id FROM Animales WHERE remote_id = ? OR id_interno = ? ORDER BY remote_id = ? DESC LIMIT 1",
		remoteID, tag, remoteID)
	if err != nil {
		return false, err
	}
	values := localValues(animalTable, row)

	if local == nil {
		_, err := s.insertSynced(ctx, animalTable, values, remoteID, "")
		return err == nil, err
	}

	localID, _ := asInt(local["id_animal"])
	if linked, ok := asInt(local["remote_id"]); ok && linked != remoteID {
		if err := s.relinkAnimal(ctx, localID, tag, linked, remoteID); err != nil {
			return false, err
		}
	}
	if SyncStatus(asString(local["sync_status"])) == SyncPending {
		return false, s.linkRemote(ctx, animalTable, localID, remoteID, "")
	}
	return s.overwriteSynced(ctx, animalTable, localID, values, remoteID, "")
}

// relinkAnimal moves a local animal whose remote row is gone onto the
// remote row now carrying its id_interno. A link to a remote row that still
// exists is kept and reported.
func (s *Syncer) relinkAnimal(ctx context.Context, localID int64, tag string, linked, remoteID int64) error {
	rows, err := s.remote.Select(ctx, animalTable.remote(), remote.Filter{animalTable.idColumn: linked})
	if err != nil {
		return fmt.Errorf("check remote animal %d: %w", linked, err)
	}
	if len(rows) > 0 {
		s.logger.Warn("animal linked to a different remote row",
			"id_interno", tag, "remote_id", linked, "matched", remoteID)
		return nil
	}
	if _, err := s.store.Run(ctx, "UPDATE Animales SET remote_id = ? WHERE id_animal = ?", remoteID, localID); err != nil {
		return fmt.Errorf("relink animal: %w", err)
	}
	s.logger.Info("relinked animal", "id_interno", tag, "from", linked, "to", remoteID)
	return nil
}

// mergeDependent applies one remote event row. Local copies are matched by
// remote id, then sync key, then by parent and the table's match columns
// among rows that carry neither.
func (s *Syncer) mergeDependent(ctx context.Context, t tableSpec, row Row, animals *animalIndex) (bool, error) {
	remoteID, ok := asInt(row[t.idColumn])
	if !ok {
		return false, fmt.Errorf("remote %s row has no %s", t.kind, t.idColumn)
	}
	parentRemote, ok := asInt(row["id_animal"])
	if !ok {
		return false, fmt.Errorf("remote %s %d has no id_animal", t.kind, remoteID)
	}
	parent, err := animals.localID(ctx, parentRemote)
	if err != nil {
		return false, fmt.Errorf("resolve animal: %w", err)
	}

	values := localValues(t, row)
	values["id_animal"] = parent
	syncKey := asString(row["sync_key"])

	local, err := s.findDependent(ctx, t, remoteID, syncKey, values)
	if err != nil {
		return false, err
	}
	if local == nil {
		_, err := s.insertSynced(ctx, t, values, remoteID, syncKey)
		return err == nil, err
	}

	localID, _ := asInt(local[t.idColumn])
	if SyncStatus(asString(local["sync_status"])) == SyncPending {
		return false, s.linkRemote(ctx, t, localID, remoteID, syncKey)
	}
	return s.overwriteSynced(ctx, t, localID, values, remoteID, syncKey)
}

func (s *Syncer) findDependent(ctx context.Context, t tableSpec, remoteID int64, syncKey string, values Row) (Row, error) {
	cols := t.idColumn + ", sync_status"

	row, err := s.store.GetFirst(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE remote_id = ?", cols, t.local), remoteID)
	if err != nil || row != nil {
		return row, err
	}

	if syncKey != "" {
		row, err = s.store.GetFirst(ctx,
			fmt.Sprintf("SELECT %s FROM %s WHERE sync_key = ?", cols, t.local), syncKey)
		if err != nil || row != nil {
			return row, err
		}
	}

	conds := []string{"id_animal = ?", "remote_id IS NULL", "sync_key IS NULL"}
	args := []any{values["id_animal"]}
	for _, c := range t.matchColumns {
		conds = append(conds, c+" IS ?")
		args = append(args, values[c])
	}
	return s.store.GetFirst(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT 1",
		cols, t.local, strings.Join(conds, " AND "), t.idColumn), args...)
}

func (s *Syncer) insertSynced(ctx context.Context, t tableSpec, values Row, remoteID int64, syncKey string) (int64, error) {
	cols := append([]string(nil), t.columns...)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		args = append(args, values[c])
	}
	cols = append(cols, "remote_id")
	args = append(args, remoteID)
	if t.dependent {
		cols = append(cols, "sync_key")
		args = append(args, nullable(syncKey))
	}

	res, err := s.store.Run(ctx, fmt.Sprintf("INSERT INTO %s (%s, sync_status) VALUES (%s, 'synced')",
		t.local, strings.Join(cols, ", "), placeholders(len(cols))), args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", t.kind, err)
	}
	return res.LastInsertID, nil
}

// overwriteSynced replaces a synced local row with the remote values. A row
// edited locally since it was read is left alone.
func (s *Syncer) overwriteSynced(ctx context.Context, t tableSpec, localID int64, values Row, remoteID int64, syncKey string) (bool, error) {
	sets := make([]string, 0, len(t.columns)+2)
	args := make([]any, 0, len(t.columns)+4)
	for _, c := range t.columns {
		sets = append(sets, c+" = ?")
		args = append(args, values[c])
	}
	sets = append(sets, "remote_id = COALESCE(remote_id, ?)")
	args = append(args, remoteID)
	if t.dependent {
		sets = append(sets, "sync_key = COALESCE(sync_key, ?)")
		args = append(args, nullable(syncKey))
	}
	args = append(args, localID)

	res, err := s.store.Run(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? AND sync_status = 'synced'",
		t.local, strings.Join(sets, ", "), t.idColumn), args...)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", t.kind, err)
	}
	return res.Changes > 0, nil
}

// linkRemote records the remote identity of a pending local row without
// touching its data, so the next upload updates instead of inserting.
func (s *Syncer) linkRemote(ctx context.Context, t tableSpec, localID, remoteID int64, syncKey string) error {
	q := fmt.Sprintf("UPDATE %s SET remote_id = COALESCE(remote_id, ?)", t.local)
	args := []any{remoteID}
	if t.dependent {
		q += ", sync_key = COALESCE(sync_key, ?)"
		args = append(args, nullable(syncKey))
	}
	q += fmt.Sprintf(" WHERE %s = ?", t.idColumn)
	args = append(args, localID)

	if _, err := s.store.Run(ctx, q, args...); err != nil {
		return fmt.Errorf("link %s: %w", t.kind, err)
	}
	return nil
}
