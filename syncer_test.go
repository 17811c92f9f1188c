package farmsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/farmsync/farmsync/internal/photos"
	"github.com/farmsync/farmsync/internal/remote"
	"github.com/farmsync/farmsync/internal/remote/memory"
)

type syncFixture struct {
	store   *Store
	remote  *memory.Store
	objects *memory.Objects
	cache   *photos.Cache
	syncer  *Syncer
	records Records
}

func newRemoteStore() *memory.Store {
	rs := memory.NewStore()
	for _, t := range syncTables {
		if t.dependent {
			rs.Define(t.remote(), t.idColumn, "sync_key")
		} else {
			rs.Define(t.remote(), t.idColumn, "id_interno")
		}
	}
	return rs
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	store := newTestStore(t)
	rs := newRemoteStore()
	objects := memory.NewObjects("https://files.test/")
	cache := photos.New(filepath.Join(t.TempDir(), "photos"), objects.PublicURL(""))

	return &syncFixture{
		store:   store,
		remote:  rs,
		objects: objects,
		cache:   cache,
		syncer:  NewSyncer(store, rs, objects, cache),
		records: Records{
			Animals:          NewLocalRecords[Animal](store, rs, cache),
			BreedingServices: NewLocalRecords[BreedingService](store, rs, cache),
			Diagnostics:      NewLocalRecords[Diagnostic](store, rs, cache),
			Births:           NewLocalRecords[Birth](store, rs, cache),
			Milkings:         NewLocalRecords[Milking](store, rs, cache),
			Treatments:       NewLocalRecords[Treatment](store, rs, cache),
			DryOffs:          NewLocalRecords[DryOff](store, rs, cache),
		},
	}
}

func (f *syncFixture) addAnimal(t *testing.T, tag, name string) *Animal {
	t.Helper()
	a, err := f.records.Animals.Insert(context.Background(), &Animal{InternalID: tag, Name: name})
	if err != nil {
		t.Fatalf("Insert animal %s: %v", tag, err)
	}
	return a
}

func (f *syncFixture) localRow(t *testing.T, query string, args ...any) Row {
	t.Helper()
	row, err := f.store.GetFirst(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("GetFirst(%q): %v", query, err)
	}
	if row == nil {
		t.Fatalf("GetFirst(%q) returned no row", query)
	}
	return row
}

func writePhoto(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("jpeg bytes"), 0644); err != nil {
		t.Fatalf("write photo: %v", err)
	}
	return p
}

func TestSyncAll_UploadsNewAnimal(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAnimal(t, "V-001", "Bessie")

	report, err := f.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if !report.Success || report.TotalSynced != 1 || report.TotalFailed != 0 {
		t.Errorf("report = %+v, want 1 synced and success", report)
	}

	row := f.localRow(t, "SELECT sync_status, remote_id FROM Animales WHERE id_interno = 'V-001'")
	if row["sync_status"] != "synced" {
		t.Errorf("sync_status = %v, want synced", row["sync_status"])
	}
	if row["remote_id"] == nil {
		t.Error("remote_id is nil after upload")
	}

	remoteRows := f.remote.Rows("animales")
	if len(remoteRows) != 1 {
		t.Fatalf("remote has %d animals, want 1", len(remoteRows))
	}
	if remoteRows[0]["id_interno"] != "V-001" || remoteRows[0]["nombre"] != "Bessie" {
		t.Errorf("remote row = %v", remoteRows[0])
	}
	if rid, _ := asInt(row["remote_id"]); !memory.Equal(remoteRows[0]["id_animal"], rid) {
		t.Errorf("local remote_id %d does not match remote id %v", rid, remoteRows[0]["id_animal"])
	}
}

func TestSyncAll_UpdatesKnownRemoteRow(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.remote.Seed("animales", Row{"id_animal": int64(55), "id_interno": "V-003", "nombre": "Old"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	res, err := f.store.Run(ctx,
		"INSERT INTO Animales (id_interno, nombre, sync_status, remote_id) VALUES ('V-003', 'Old', 'synced', 55)")
	if err != nil {
		t.Fatalf("insert synced animal: %v", err)
	}

	a, err := f.records.Animals.Get(ctx, res.LastInsertID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	a.Name = "New"
	if _, err := f.records.Animals.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if row := f.localRow(t, "SELECT sync_status FROM Animales"); row["sync_status"] != "pending" {
		t.Fatalf("sync_status after edit = %v, want pending", row["sync_status"])
	}

	f.remote.ResetCalls()
	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}

	var updates int
	for _, c := range f.remote.Calls() {
		switch c.Op {
		case "insert", "upsert":
			t.Errorf("unexpected %s on %s", c.Op, c.Table)
		case "update":
			updates++
			if c.ID != 55 {
				t.Errorf("update targeted id %d, want 55", c.ID)
			}
		}
	}
	if updates != 1 {
		t.Errorf("updates = %d, want 1", updates)
	}

	rows := f.remote.Rows("animales")
	if len(rows) != 1 || rows[0]["nombre"] != "New" {
		t.Errorf("remote rows = %v, want one row named New", rows)
	}
	if row := f.localRow(t, "SELECT sync_status FROM Animales"); row["sync_status"] != "synced" {
		t.Errorf("sync_status = %v, want synced", row["sync_status"])
	}
}

func TestSyncAll_SecondPassIsNoop(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a := f.addAnimal(t, "V-001", "Bessie")
	if _, err := f.records.Milkings.Insert(ctx, &Milking{AnimalID: a.LocalID, Date: "2024-05-01"}); err != nil {
		t.Fatalf("Insert milking: %v", err)
	}

	first, err := f.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("first SyncAll: %v", err)
	}
	if first.TotalSynced != 2 {
		t.Fatalf("first TotalSynced = %d, want 2", first.TotalSynced)
	}

	second, err := f.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("second SyncAll: %v", err)
	}
	if second.TotalSynced != 0 || second.TotalFailed != 0 {
		t.Errorf("second report = %+v, want nothing synced", second)
	}
	if n := len(f.remote.Rows("animales")); n != 1 {
		t.Errorf("remote animals = %d, want 1", n)
	}
	if n := len(f.remote.Rows("ordenas")); n != 1 {
		t.Errorf("remote milkings = %d, want 1", n)
	}
}

func TestSyncAll_UploadsParentBeforeDependents(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a := f.addAnimal(t, "V-001", "Bessie")
	svc, err := f.records.BreedingServices.Insert(ctx, &BreedingService{AnimalID: a.LocalID, Date: "15/03/2024", Type: "IA"})
	if err != nil {
		t.Fatalf("Insert service: %v", err)
	}

	report, err := f.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if got := report.Details[KindBreedingService]; got.Synced != 1 || got.Failed != 0 {
		t.Errorf("service result = %+v, want 1 synced", got)
	}

	animalRows := f.remote.Rows("animales")
	serviceRows := f.remote.Rows("servicios")
	if len(animalRows) != 1 || len(serviceRows) != 1 {
		t.Fatalf("remote animals=%d services=%d, want 1 each", len(animalRows), len(serviceRows))
	}
	if !memory.Equal(serviceRows[0]["id_animal"], animalRows[0]["id_animal"]) {
		t.Errorf("remote service id_animal = %v, want %v", serviceRows[0]["id_animal"], animalRows[0]["id_animal"])
	}
	if serviceRows[0]["fecha_servicio"] != "2024-03-15" {
		t.Errorf("fecha_servicio = %v, want 2024-03-15", serviceRows[0]["fecha_servicio"])
	}
	if serviceRows[0]["sync_key"] != svc.SyncKey || svc.SyncKey == "" {
		t.Errorf("remote sync_key = %v, want %q", serviceRows[0]["sync_key"], svc.SyncKey)
	}
}

func TestSyncAll_IsolatesRowFailures(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAnimal(t, "V-001", "One")
	dup := f.addAnimal(t, "V-DUP", "Two")
	f.addAnimal(t, "V-003", "Three")
	if _, err := f.records.Births.Insert(ctx, &Birth{AnimalID: dup.LocalID, Date: "2024-01-10"}); err != nil {
		t.Fatalf("Insert birth: %v", err)
	}

	f.remote.Hook = func(op, table string, row remote.Row) error {
		if op == "upsert" && table == "animales" && row["id_interno"] == "V-DUP" {
			return remote.Conflict(op, table, "duplicate key value violates unique constraint")
		}
		return nil
	}

	report, err := f.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if got := report.Details[KindAnimal]; got.Synced != 2 || got.Failed != 1 {
		t.Errorf("animal result = %+v, want 2 synced 1 failed", got)
	}
	if got := report.Details[KindBirth]; got.Failed != 1 {
		t.Errorf("birth result = %+v, want 1 failed", got)
	}
	if report.Success {
		t.Error("Success = true with failures")
	}

	for tag, want := range map[string]string{"V-001": "synced", "V-DUP": "pending", "V-003": "synced"} {
		row := f.localRow(t, "SELECT sync_status FROM Animales WHERE id_interno = ?", tag)
		if row["sync_status"] != want {
			t.Errorf("%s sync_status = %v, want %s", tag, row["sync_status"], want)
		}
	}
	if row := f.localRow(t, "SELECT sync_status FROM Partos"); row["sync_status"] != "pending" {
		t.Errorf("birth sync_status = %v, want pending", row["sync_status"])
	}

	// The failed rows go through on the next pass.
	f.remote.Hook = nil
	report, err = f.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("retry SyncAll: %v", err)
	}
	if report.TotalSynced != 2 || report.TotalFailed != 0 {
		t.Errorf("retry report = %+v, want 2 synced", report)
	}
}

func TestSyncAll_DependentOfUnsyncedParentFails(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	a := f.addAnimal(t, "V-001", "Bessie")
	if _, err := f.records.Treatments.Insert(ctx, &Treatment{AnimalID: a.LocalID, StartDate: "2024-02-01"}); err != nil {
		t.Fatalf("Insert treatment: %v", err)
	}

	f.remote.Hook = func(op, table string, row remote.Row) error {
		if op == "upsert" && table == "animales" {
			return errors.New("network down")
		}
		return nil
	}
	report, err := f.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if got := report.Details[KindTreatment]; got.Failed != 1 {
		t.Errorf("treatment result = %+v, want 1 failed", got)
	}
	if n := len(f.remote.Rows("tratamientos")); n != 0 {
		t.Errorf("remote treatments = %d, want 0", n)
	}
}

func TestSyncAll_ResolvesParentByInternalID(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	// The animal exists remotely but the local copy was never linked.
	if err := f.remote.Seed("animales", Row{"id_animal": int64(9), "id_interno": "V-009"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	res, err := f.store.Run(ctx, "INSERT INTO Animales (id_interno, sync_status) VALUES ('V-009', 'synced')")
	if err != nil {
		t.Fatalf("insert animal: %v", err)
	}
	if _, err := f.records.Diagnostics.Insert(ctx, &Diagnostic{AnimalID: res.LastInsertID, Date: "2024-04-01", Result: "Positivo"}); err != nil {
		t.Fatalf("Insert diagnostic: %v", err)
	}

	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	rows := f.remote.Rows("diagnosticos")
	if len(rows) != 1 || !memory.Equal(rows[0]["id_animal"], 9) {
		t.Fatalf("remote diagnostics = %v, want one row for animal 9", rows)
	}
	if row := f.localRow(t, "SELECT remote_id FROM Animales"); !memory.Equal(row["remote_id"], 9) {
		t.Errorf("animal remote_id = %v, want 9", row["remote_id"])
	}
}

func TestSyncAll_EditDuringPushStaysPending(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAnimal(t, "V-001", "Bessie")

	f.remote.Hook = func(op, table string, row remote.Row) error {
		if op == "upsert" && table == "animales" {
			_, err := f.store.Run(ctx,
				"UPDATE Animales SET nombre = 'Edited', sync_status = 'pending', revision = revision + 1 WHERE id_interno = 'V-001'")
			return err
		}
		return nil
	}

	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	row := f.localRow(t, "SELECT nombre, sync_status, remote_id FROM Animales")
	if row["sync_status"] != "pending" {
		t.Errorf("sync_status = %v, want pending after concurrent edit", row["sync_status"])
	}
	if row["remote_id"] == nil {
		t.Error("remote_id not recorded")
	}

	f.remote.Hook = nil
	f.remote.ResetCalls()
	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("second SyncAll: %v", err)
	}
	rows := f.remote.Rows("animales")
	if len(rows) != 1 || rows[0]["nombre"] != "Edited" {
		t.Errorf("remote rows = %v, want one row named Edited", rows)
	}
	for _, c := range f.remote.Calls() {
		if c.Op == "upsert" || c.Op == "insert" {
			t.Errorf("second pass issued %s, want update", c.Op)
		}
	}
}

func TestSyncAll_RejectsConcurrentPass(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	f.store.syncing.Store(true)
	if _, err := f.syncer.SyncAll(ctx); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("SyncAll = %v, want ErrSyncInProgress", err)
	}
	if _, err := f.syncer.DownloadAll(ctx); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("DownloadAll = %v, want ErrSyncInProgress", err)
	}
	if !f.syncer.Syncing() {
		t.Error("Syncing() = false while a pass holds the guard")
	}

	f.store.syncing.Store(false)
	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Errorf("SyncAll after release: %v", err)
	}
	if f.syncer.Syncing() {
		t.Error("Syncing() = true after pass finished")
	}
}

func TestSyncAll_UploadsPhoto(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	a, err := f.records.Animals.Insert(ctx, &Animal{InternalID: "V-001", Photo: writePhoto(t, "cow.jpg")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	cached := a.Photo
	if !f.cache.Owns(cached) {
		t.Fatalf("photo %q was not copied into the cache", cached)
	}

	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}

	row := f.localRow(t, "SELECT photo, sync_status FROM Animales")
	url := asString(row["photo"])
	if !strings.HasPrefix(url, "https://files.test/animals/") {
		t.Errorf("local photo = %q, want public URL", url)
	}
	if row["sync_status"] != "synced" {
		t.Errorf("sync_status = %v, want synced", row["sync_status"])
	}
	if rows := f.remote.Rows("animales"); rows[0]["photo"] != url {
		t.Errorf("remote photo = %v, want %q", rows[0]["photo"], url)
	}
	if f.objects.Len() != 1 {
		t.Errorf("objects = %d, want 1", f.objects.Len())
	}
	if _, err := os.Stat(cached); !os.IsNotExist(err) {
		t.Errorf("cached photo still present after upload: %v", err)
	}
}

func TestSyncAll_PhotoFailureDegrades(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if _, err := f.records.Animals.Insert(ctx, &Animal{InternalID: "V-001", Photo: writePhoto(t, "cow.jpg")}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	f.objects.Hook = func(op, path string) error {
		return errors.New("connection reset")
	}

	report, err := f.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if report.TotalSynced != 1 || report.TotalFailed != 0 {
		t.Errorf("report = %+v, want 1 synced", report)
	}

	row := f.localRow(t, "SELECT photo, sync_status FROM Animales")
	if row["sync_status"] != "synced" {
		t.Errorf("sync_status = %v, want synced", row["sync_status"])
	}
	if row["photo"] != nil {
		t.Errorf("local photo = %v, want NULL", row["photo"])
	}
	if rows := f.remote.Rows("animales"); rows[0]["photo"] != nil {
		t.Errorf("remote photo = %v, want nil", rows[0]["photo"])
	}
}

func TestSyncAll_ReplacedPhotoIsDeleted(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	a, err := f.records.Animals.Insert(ctx, &Animal{InternalID: "V-001", Photo: writePhoto(t, "first.jpg")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("first SyncAll: %v", err)
	}
	a, err = f.records.Animals.Get(ctx, a.LocalID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	firstURL := a.Photo

	a.Photo = writePhoto(t, "second.png")
	if _, err := f.records.Animals.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("second SyncAll: %v", err)
	}

	a, _ = f.records.Animals.Get(ctx, a.LocalID)
	if a.Photo == firstURL || !strings.HasSuffix(a.Photo, ".png") {
		t.Errorf("photo = %q, want new png URL", a.Photo)
	}
	if _, _, ok := f.objects.Object(strings.TrimPrefix(firstURL, "https://files.test/")); ok {
		t.Error("replaced photo still in object store")
	}
	if f.objects.Len() != 1 {
		t.Errorf("objects = %d, want 1", f.objects.Len())
	}
}

func TestSyncAll_ReplacedPhotoDeletedAfterRetriedPush(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	a, err := f.records.Animals.Insert(ctx, &Animal{InternalID: "V-001", Photo: writePhoto(t, "first.jpg")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("first SyncAll: %v", err)
	}
	a, _ = f.records.Animals.Get(ctx, a.LocalID)
	firstURL := a.Photo

	a.Photo = writePhoto(t, "second.png")
	if _, err := f.records.Animals.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	f.remote.Hook = func(op, table string, row remote.Row) error {
		if op == "update" {
			return errors.New("timeout")
		}
		return nil
	}
	report, err := f.syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("failing SyncAll: %v", err)
	}
	if report.TotalFailed != 1 {
		t.Fatalf("report = %+v, want 1 failed", report)
	}
	row := f.localRow(t, "SELECT photo, sync_status FROM Animales")
	if row["sync_status"] != "pending" || !strings.HasSuffix(asString(row["photo"]), ".png") {
		t.Fatalf("after failed push row = %v, want pending with uploaded png", row)
	}
	if _, _, ok := f.objects.Object(strings.TrimPrefix(firstURL, "https://files.test/")); !ok {
		t.Fatal("replaced photo deleted before the row was pushed")
	}

	f.remote.Hook = nil
	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("retry SyncAll: %v", err)
	}
	if _, _, ok := f.objects.Object(strings.TrimPrefix(firstURL, "https://files.test/")); ok {
		t.Error("replaced photo still in object store after retry")
	}
	if f.objects.Len() != 1 {
		t.Errorf("objects = %d, want 1", f.objects.Len())
	}
	if rows := f.remote.Rows("animales"); rows[0]["photo"] != row["photo"] {
		t.Errorf("remote photo = %v, want %v", rows[0]["photo"], row["photo"])
	}
}

func TestSyncAll_WithoutObjectStoreKeepsLocalPhoto(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.syncer = NewSyncer(f.store, f.remote, nil, f.cache)

	a, err := f.records.Animals.Insert(ctx, &Animal{InternalID: "V-001", Photo: writePhoto(t, "cow.jpg")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if row := f.localRow(t, "SELECT photo FROM Animales"); row["photo"] != a.Photo {
		t.Errorf("local photo = %v, want %q kept", row["photo"], a.Photo)
	}
	if rows := f.remote.Rows("animales"); rows[0]["photo"] != nil {
		t.Errorf("remote photo = %v, want nil", rows[0]["photo"])
	}
}

func TestSyncAll_RecordsLastSync(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if _, err := f.syncer.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	last, err := f.store.LastSync(ctx)
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if last.IsZero() {
		t.Error("LastSync is zero after a pass")
	}
}

func TestSync_UploadsThenDownloads(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.addAnimal(t, "V-001", "Local")
	if err := f.remote.Seed("animales", Row{"id_animal": int64(40), "id_interno": "V-040", "nombre": "Remote"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	report, err := f.syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Upload.TotalSynced != 1 {
		t.Errorf("uploaded %d, want 1", report.Upload.TotalSynced)
	}
	if report.Download.Details[KindAnimal].Downloaded != 2 {
		t.Errorf("downloaded animals = %d, want 2", report.Download.Details[KindAnimal].Downloaded)
	}

	all, err := f.records.Animals.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("local animals = %d, want 2", len(all))
	}
	for _, a := range all {
		if a.SyncStatus != SyncSynced || a.RemoteID == nil {
			t.Errorf("animal %s = %+v, want synced with remote id", a.InternalID, a.SyncMeta)
		}
	}
}

func TestSyncAll_OnePassPerDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	same, err := Open(path)
	if err != nil {
		t.Fatalf("Open again: %v", err)
	}

	rs := newRemoteStore()
	animals := NewLocalRecords[Animal](store, rs, nil)
	if _, err := animals.Insert(context.Background(), &Animal{InternalID: "V-001"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	rs.Hook = func(op, table string, row remote.Row) error {
		if op == "upsert" {
			close(started)
			<-release
		}
		return nil
	}

	first := NewSyncer(store, rs, nil, nil)
	second := NewSyncer(same, rs, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := first.SyncAll(context.Background())
		done <- err
	}()
	<-started

	if !second.Syncing() {
		t.Error("second syncer does not see the running pass")
	}
	if _, err := second.SyncAll(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("second SyncAll = %v, want ErrSyncInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first SyncAll: %v", err)
	}

	upserts := 0
	for _, c := range rs.Calls() {
		if c.Op == "upsert" {
			upserts++
		}
	}
	if upserts != 1 {
		t.Errorf("upserts = %d, want 1", upserts)
	}
}
