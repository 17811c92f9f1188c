// Package memory implements remote.Store and remote.ObjectStore in process.
// It backs tests and offline demos; rows live only as long as the value.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/farmsync/farmsync/internal/remote"
)

// Call records one operation issued against a Store.
type Call struct {
	Op    string
	Table string
	// ID is the targeted primary key for update and delete.
	ID  int64
	Row remote.Row
}

type table struct {
	name   string
	pk     string
	unique []string
	rows   map[int64]remote.Row
	nextID int64
}

// Store is an in-memory remote.Store.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
	calls  []Call

	// Hook, when set, runs before every operation with the operation name
	// ("select", "insert", "update", "upsert", "delete", "ping"), the table,
	// and the row or patch involved. A non-nil error fails the operation.
	Hook func(op, table string, row remote.Row) error
}

// NewStore returns an empty Store with no tables defined.
func NewStore() *Store {
	return &Store{tables: make(map[string]*table)}
}

// Define declares a table with its primary key column and any columns that
// must be unique. Redefining a table clears it.
func (s *Store) Define(name, pk string, unique ...string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &table{name: name, pk: pk, unique: unique, rows: make(map[int64]remote.Row), nextID: 1}
	return s
}

// Seed inserts rows verbatim, keeping any primary key they carry.
func (s *Store) Seed(name string, rows ...remote.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table("seed", name)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := t.insert(clone(r)); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns a snapshot of a table's rows ordered by primary key.
func (s *Store) Rows(name string) []remote.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return nil
	}
	return t.sorted(nil)
}

// Calls returns the operations issued so far, oldest first.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// ResetCalls clears the call log.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

func (s *Store) record(op, name string, id int64, row remote.Row) error {
	s.calls = append(s.calls, Call{Op: op, Table: name, ID: id, Row: clone(row)})
	if s.Hook != nil {
		return s.Hook(op, name, row)
	}
	return nil
}

func (s *Store) table(op, name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, &remote.Error{Operation: op, Table: name, StatusCode: 404, Code: "42P01", Message: "relation does not exist"}
	}
	return t, nil
}

func (s *Store) Select(ctx context.Context, name string, filter remote.Filter) ([]remote.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("select", name, 0, remote.Row(filter)); err != nil {
		return nil, err
	}
	t, err := s.table("select", name)
	if err != nil {
		return nil, err
	}
	return t.sorted(filter), nil
}

func (s *Store) Insert(ctx context.Context, name string, row remote.Row) (remote.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("insert", name, 0, row); err != nil {
		return nil, err
	}
	t, err := s.table("insert", name)
	if err != nil {
		return nil, err
	}
	r := clone(row)
	delete(r, t.pk)
	return t.insert(r)
}

func (s *Store) Update(ctx context.Context, name string, id remote.ID, patch remote.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("update", name, id.Value, patch); err != nil {
		return err
	}
	t, err := s.table("update", name)
	if err != nil {
		return err
	}
	if id.Column != t.pk {
		return &remote.Error{Operation: "update", Table: name, StatusCode: 400, Message: "id column " + id.Column + " is not the primary key"}
	}
	existing, ok := t.rows[id.Value]
	if !ok {
		return &remote.Error{Operation: "update", Table: name, StatusCode: 404, Err: remote.ErrNotFound}
	}
	merged := clone(existing)
	for k, v := range patch {
		if k == t.pk {
			continue
		}
		merged[k] = v
	}
	if err := t.checkUnique(merged, id.Value); err != nil {
		return err
	}
	t.rows[id.Value] = merged
	return nil
}

func (s *Store) Upsert(ctx context.Context, name string, row remote.Row, conflictKey string) (remote.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("upsert", name, 0, row); err != nil {
		return nil, err
	}
	t, err := s.table("upsert", name)
	if err != nil {
		return nil, err
	}
	key, ok := row[conflictKey]
	if !ok || key == nil {
		return nil, &remote.Error{Operation: "upsert", Table: name, StatusCode: 400, Message: "missing conflict key " + conflictKey}
	}
	for id, existing := range t.rows {
		if !Equal(existing[conflictKey], key) {
			continue
		}
		merged := clone(existing)
		for k, v := range row {
			if k == t.pk {
				continue
			}
			merged[k] = v
		}
		if err := t.checkUnique(merged, id); err != nil {
			return nil, err
		}
		t.rows[id] = merged
		return clone(merged), nil
	}
	r := clone(row)
	delete(r, t.pk)
	return t.insert(r)
}

func (s *Store) Delete(ctx context.Context, name string, id remote.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("delete", name, id.Value, nil); err != nil {
		return err
	}
	t, err := s.table("delete", name)
	if err != nil {
		return err
	}
	delete(t.rows, id.Value)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("ping", "", 0, nil)
}

func (t *table) insert(r remote.Row) (remote.Row, error) {
	id, ok := asInt(r[t.pk])
	if !ok {
		id = t.nextID
		r[t.pk] = id
	} else if _, taken := t.rows[id]; taken {
		return nil, remote.Conflict("insert", t.name, fmt.Sprintf("duplicate key %s=%d", t.pk, id))
	}
	r[t.pk] = id
	if err := t.checkUnique(r, id); err != nil {
		return nil, err
	}
	if id >= t.nextID {
		t.nextID = id + 1
	}
	t.rows[id] = r
	return clone(r), nil
}

func (t *table) checkUnique(r remote.Row, self int64) error {
	for _, col := range t.unique {
		v, ok := r[col]
		if !ok || v == nil {
			continue
		}
		for id, other := range t.rows {
			if id != self && Equal(other[col], v) {
				return remote.Conflict("write", t.name, fmt.Sprintf("duplicate key value violates unique constraint on %s", col))
			}
		}
	}
	return nil
}

func (t *table) sorted(filter remote.Filter) []remote.Row {
	ids := make([]int64, 0, len(t.rows))
	for id, r := range t.rows {
		if matches(r, filter) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]remote.Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(t.rows[id]))
	}
	return out
}

func matches(r remote.Row, filter remote.Filter) bool {
	for k, v := range filter {
		if !Equal(r[k], v) {
			return false
		}
	}
	return true
}

func clone(r remote.Row) remote.Row {
	if r == nil {
		return nil
	}
	out := make(remote.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Equal compares two column values, treating all numeric types alike.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := asFloat(a); ok {
		y, ok := asFloat(b)
		return ok && x == y
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asInt(v any) (int64, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Objects is an in-memory remote.ObjectStore.
type Objects struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
	types   map[string]string

	// Hook, when set, runs before every upload and delete. A non-nil error
	// fails the operation.
	Hook func(op, path string) error
}

// NewObjects returns an empty object store whose public URLs start with baseURL.
func NewObjects(baseURL string) *Objects {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Objects{baseURL: baseURL, objects: make(map[string][]byte), types: make(map[string]string)}
}

func (o *Objects) Upload(ctx context.Context, path string, r io.Reader, contentType string) (string, error) {
	if o.Hook != nil {
		if err := o.Hook("upload", path); err != nil {
			return "", err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.objects[path]; exists {
		return "", &remote.Error{Operation: "upload", StatusCode: 409, Message: "object already exists: " + path}
	}
	o.objects[path] = data
	o.types[path] = contentType
	return o.PublicURL(path), nil
}

func (o *Objects) Delete(ctx context.Context, path string) error {
	if o.Hook != nil {
		if err := o.Hook("delete", path); err != nil {
			return err
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, path)
	delete(o.types, path)
	return nil
}

func (o *Objects) PublicURL(path string) string {
	return o.baseURL + strings.TrimPrefix(path, "/")
}

// Object returns the stored bytes and content type at path.
func (o *Objects) Object(path string) ([]byte, string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[path]
	return data, o.types[path], ok
}

// Len returns the number of stored objects.
func (o *Objects) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.objects)
}
