package farmsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExportVersion is the current version of the backup format.
const ExportVersion = "1.0"

// ImportStrategy defines how rows already present locally are handled.
type ImportStrategy string

const (
	// ImportSkip keeps existing rows untouched (default).
	ImportSkip ImportStrategy = "skip"
	// ImportReplace overwrites existing rows with the imported values.
	ImportReplace ImportStrategy = "replace"
)

// ImportResult summarizes an import operation.
type ImportResult struct {
	Total    int      `json:"total"`
	Created  int      `json:"created"`
	Replaced int      `json:"replaced"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// backupAnimalKey replaces id_animal in exported event rows. Local ids do
// not survive a move between databases; tags do.
const backupAnimalKey = "animal"

var errDryRun = errors.New("dry run")

// ExportJSON writes every record as a JSON backup document. Animals come
// first so an import can resolve event rows to their animals.
func (s *Store) ExportJSON(ctx context.Context, farm string, w io.Writer) error {
	header := fmt.Sprintf(`{"version":%s,"exported_at":%s,"farm":%s,"tables":{`,
		jsonString(ExportVersion),
		jsonString(time.Now().UTC().Format(time.RFC3339)),
		jsonString(farm),
	)
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	tags := map[int64]string{}
	enc := json.NewEncoder(w)
	for i, t := range syncTables {
		rows, err := s.GetAll(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", t.selectList(), t.local, t.idColumn))
		if err != nil {
			return fmt.Errorf("export %s: %w", t.kind, err)
		}

		sep := ","
		if i == 0 {
			sep = ""
		}
		if _, err := io.WriteString(w, sep+jsonString(string(t.kind))+":["); err != nil {
			return fmt.Errorf("write %s: %w", t.kind, err)
		}
		for j, row := range rows {
			out := t.data(row)
			out["sync_status"] = row["sync_status"]
			out["remote_id"] = row["remote_id"]
			if t.dependent {
				id, _ := asInt(row["id_animal"])
				delete(out, "id_animal")
				out[backupAnimalKey] = tags[id]
				out["sync_key"] = row["sync_key"]
			} else {
				id, _ := asInt(row[t.idColumn])
				tags[id] = asString(row["id_interno"])
			}

			if j > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return fmt.Errorf("write separator: %w", err)
				}
			}
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode %s: %w", t.kind, err)
			}
		}
		if _, err := io.WriteString(w, "]"); err != nil {
			return fmt.Errorf("write %s: %w", t.kind, err)
		}
	}

	// Close JSON structure
	if _, err := io.WriteString(w, "}}"); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}
	return nil
}

// ImportJSON reads a backup written by ExportJSON. Animals are matched by
// id_interno and events by sync key. The import runs in one transaction;
// dryRun reports what would happen and rolls it back.
func (s *Store) ImportJSON(ctx context.Context, r io.Reader, strategy ImportStrategy, dryRun bool) (*ImportResult, error) {
	if strategy == "" {
		strategy = ImportSkip
	}
	if strategy != ImportSkip && strategy != ImportReplace {
		return nil, fmt.Errorf("unknown import strategy %q", strategy)
	}

	result := &ImportResult{}
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		imp := &importer{tx: tx, strategy: strategy, result: result}
		if err := imp.run(ctx, r); err != nil {
			return err
		}
		if dryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return result, err
	}
	return result, nil
}

type importer struct {
	tx       *sql.Tx
	strategy ImportStrategy
	result   *ImportResult
}

func (imp *importer) run(ctx context.Context, r io.Reader) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	var version string
	for dec.More() {
		token, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read field name: %w", err)
		}
		field, ok := token.(string)
		if !ok {
			return fmt.Errorf("expected field name, got %v", token)
		}

		switch field {
		case "version":
			if err := dec.Decode(&version); err != nil {
				return fmt.Errorf("decode version: %w", err)
			}
			if version != ExportVersion {
				return fmt.Errorf("unsupported export version %q (expected %q)", version, ExportVersion)
			}
		case "tables":
			if version == "" {
				return fmt.Errorf("missing version field before tables")
			}
			if err := imp.tables(ctx, dec); err != nil {
				return err
			}
		default:
			var discard any
			if err := dec.Decode(&discard); err != nil {
				return fmt.Errorf("decode %s: %w", field, err)
			}
		}
	}

	if version == "" {
		return fmt.Errorf("missing version field in export file")
	}
	return nil
}

func (imp *importer) tables(ctx context.Context, dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		token, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read table name: %w", err)
		}
		name, _ := token.(string)
		t, ok := tableFor(EntityKind(name))
		if !ok {
			return fmt.Errorf("unknown table %q", name)
		}

		if err := expectDelim(dec, '['); err != nil {
			return err
		}
		for dec.More() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var row Row
			if err := dec.Decode(&row); err != nil {
				return fmt.Errorf("decode %s row: %w", t.kind, err)
			}
			imp.result.Total++
			if err := imp.row(ctx, t, row); err != nil {
				imp.result.Errors = append(imp.result.Errors, fmt.Sprintf("%s: %v", t.kind, err))
			}
		}
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("read end of %s: %w", t.kind, err)
		}
	}
	_, err := dec.Token()
	return err
}

func (imp *importer) row(ctx context.Context, t tableSpec, row Row) error {
	values := localValues(t, row)
	// Only a successful remote write clears pending.
	status := string(SyncPending)

	var (
		lookup string
		key    any
	)
	if t.dependent {
		tag := asString(row[backupAnimalKey])
		var parent int64
		err := imp.tx.QueryRowContext(ctx, "SELECT id_animal FROM Animales WHERE id_interno = ?", tag).Scan(&parent)
		if err != nil {
			return fmt.Errorf("animal %q: %w", tag, ErrNotFound)
		}
		values["id_animal"] = parent
		if k := asString(row["sync_key"]); k != "" {
			lookup, key = "sync_key = ?", k
		}
	} else {
		tag := asString(values["id_interno"])
		if tag == "" {
			return fmt.Errorf("id_interno is required")
		}
		lookup, key = "id_interno = ?", tag
	}

	var existing int64
	found := false
	if lookup != "" {
		err := imp.tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT %s FROM %s WHERE %s", t.idColumn, t.local, lookup), key).Scan(&existing)
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
	}

	if found && imp.strategy == ImportSkip {
		imp.result.Skipped++
		return nil
	}

	cols := append([]string(nil), t.columns...)
	args := make([]any, 0, len(cols)+3)
	for _, c := range cols {
		args = append(args, values[c])
	}
	remoteID := asIntPtr(row["remote_id"])

	if found {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = c + " = ?"
		}
		args = append(args, status, nullInt(remoteID), existing)
		_, err := imp.tx.ExecContext(ctx, fmt.Sprintf(
			"UPDATE %s SET %s, sync_status = ?, remote_id = COALESCE(remote_id, ?), revision = revision + 1 WHERE %s = ?",
			t.local, strings.Join(sets, ", "), t.idColumn), args...)
		if err != nil {
			return err
		}
		imp.result.Replaced++
		return nil
	}

	cols = append(cols, "sync_status", "remote_id")
	args = append(args, status, nullInt(remoteID))
	if t.dependent {
		if key == nil {
			key = uuid.NewString()
		}
		cols = append(cols, "sync_key")
		args = append(args, key)
	}
	_, err := imp.tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.local, strings.Join(cols, ", "), placeholders(len(cols))), args...)
	if err != nil {
		return err
	}
	imp.result.Created++
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	token, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read %q: %w", want, err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, token)
	}
	return nil
}

// jsonString returns a JSON-encoded string.
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
