package farmsync_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/farmsync/farmsync"
	"github.com/farmsync/farmsync/internal/remote/memory"
)

func newRemote() *memory.Store {
	rs := memory.NewStore()
	for _, kind := range farmsync.SyncOrder() {
		unique := "sync_key"
		if kind == farmsync.KindAnimal {
			unique = "id_interno"
		}
		rs.Define(string(kind), farmsync.RemoteIDColumn(kind), unique)
	}
	return rs
}

func testConfig(t *testing.T) farmsync.Config {
	t.Helper()
	dir := t.TempDir()
	return farmsync.Config{
		Farm:      "test",
		LocalPath: filepath.Join(dir, "test.db"),
		PhotoDir:  filepath.Join(dir, "photos"),
	}
}

func TestNew_ValidConfig(t *testing.T) {
	client, err := farmsync.New(testConfig(t))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer client.Close()

	if client.Store() == nil {
		t.Error("Store() = nil in offline mode")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote = farmsync.BackendREST
	cfg.URL = "https://project.supabase.co"

	_, err := farmsync.New(cfg)
	var ve *farmsync.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("New() returned %v, want *ValidationError", err)
	}
	if ve.Field != "APIKey" {
		t.Errorf("ValidationError.Field = %q, want %q", ve.Field, "APIKey")
	}
}

func TestNew_StoreInitError_WrapsWithClientPrefix(t *testing.T) {
	// A regular file where the database directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)
	cfg.LocalPath = filepath.Join(blocker, "test.db")

	_, err := farmsync.New(cfg)
	if err == nil {
		t.Fatal("New() returned nil error for invalid path")
	}
	if !strings.HasPrefix(err.Error(), "client:") {
		t.Errorf("error should have 'client:' prefix, got: %q", err.Error())
	}
}

func TestClient_OfflineWithoutRemote(t *testing.T) {
	client, err := farmsync.New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	if _, err := client.Animals().Insert(ctx, &farmsync.Animal{InternalID: "V-001"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := client.Sync(ctx); !errors.Is(err, farmsync.ErrOffline) {
		t.Errorf("Sync() = %v, want ErrOffline", err)
	}
	if err := client.TestConnection(ctx); !errors.Is(err, farmsync.ErrOffline) {
		t.Errorf("TestConnection() = %v, want ErrOffline", err)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != farmsync.StateOffline || status.Pending != 1 {
		t.Errorf("Status = %+v, want offline with 1 pending", status)
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entities[farmsync.KindAnimal].Total != 1 || stats.Pending != 1 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestClient_SyncWithRemote(t *testing.T) {
	rs := newRemote()
	objects := memory.NewObjects("https://files.test")
	client, err := farmsync.NewWithBackends(testConfig(t), rs, objects)
	if err != nil {
		t.Fatalf("NewWithBackends: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	a, err := client.Animals().Insert(ctx, &farmsync.Animal{InternalID: "V-001", Name: "Bessie"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := client.Records().Milkings.Insert(ctx, &farmsync.Milking{AnimalID: a.LocalID, Date: "2024-05-01"}); err != nil {
		t.Fatalf("Insert milking: %v", err)
	}

	report, err := client.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Upload.TotalSynced != 2 || !report.Download.Success {
		t.Errorf("report = %+v / %+v", report.Upload, report.Download)
	}
	if n := len(rs.Rows("ordenas")); n != 1 {
		t.Errorf("remote milkings = %d, want 1", n)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != farmsync.StateSynced {
		t.Errorf("Status = %+v, want synced", status)
	}
	if err := client.TestConnection(ctx); err != nil {
		t.Errorf("TestConnection: %v", err)
	}
}

func TestClient_SetConnectedUploadsPending(t *testing.T) {
	rs := newRemote()
	client, err := farmsync.NewWithBackends(testConfig(t), rs, nil)
	if err != nil {
		t.Fatalf("NewWithBackends: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	if _, err := client.Animals().Insert(ctx, &farmsync.Animal{InternalID: "V-001"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	client.SetConnected(ctx, true)

	if n := len(rs.Rows("animales")); n != 1 {
		t.Errorf("remote animals = %d, want 1 after reconnect", n)
	}
}

func TestClient_BackgroundSync(t *testing.T) {
	rs := newRemote()
	cfg := testConfig(t)
	cfg.AutoSync = true
	cfg.ProbeInterval = 20 * time.Millisecond
	cfg.SyncInterval = 20 * time.Millisecond

	client, err := farmsync.NewWithBackends(cfg, rs, nil)
	if err != nil {
		t.Fatalf("NewWithBackends: %v", err)
	}
	defer client.Close()

	if _, err := client.Animals().Insert(context.Background(), &farmsync.Animal{InternalID: "V-001"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(rs.Rows("animales")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("background sync did not upload the pending animal")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClient_DirectMode(t *testing.T) {
	rs := newRemote()
	cfg := testConfig(t)
	cfg.Mode = farmsync.ModeDirect

	client, err := farmsync.NewWithBackends(cfg, rs, nil)
	if err != nil {
		t.Fatalf("NewWithBackends: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	a, err := client.Animals().Insert(ctx, &farmsync.Animal{InternalID: "V-001"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if a.SyncStatus != farmsync.SyncSynced {
		t.Errorf("SyncStatus = %q, want synced", a.SyncStatus)
	}
	if client.Store() != nil {
		t.Error("Store() != nil in direct mode")
	}
	if n := len(rs.Rows("animales")); n != 1 {
		t.Errorf("remote animals = %d, want 1", n)
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entities[farmsync.KindAnimal].Total != 1 || stats.Pending != 0 {
		t.Errorf("Stats = %+v", stats)
	}
	if _, err := client.SyncPush(ctx); !errors.Is(err, farmsync.ErrOffline) {
		t.Errorf("SyncPush in direct mode = %v, want ErrOffline", err)
	}
}

func TestClient_DirectModeRequiresRemote(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = farmsync.ModeDirect

	_, err := farmsync.NewWithBackends(cfg, nil, nil)
	var ve *farmsync.ValidationError
	if !errors.As(err, &ve) || ve.Field != "Mode" {
		t.Errorf("NewWithBackends = %v, want Mode ValidationError", err)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	client, err := farmsync.NewWithBackends(testConfig(t), newRemote(), nil)
	if err != nil {
		t.Fatalf("NewWithBackends: %v", err)
	}
	defer client.Close()

	h := client.HealthCheck(context.Background())
	if !h.Healthy || !h.StoreOK || !h.RemoteReachable {
		t.Errorf("HealthCheck = %+v, want all healthy", h)
	}
}

func TestClient_CleanupPhotos(t *testing.T) {
	cfg := testConfig(t)
	client, err := farmsync.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "cow.jpg")
	if err := os.WriteFile(src, []byte("jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	a, err := client.Animals().Insert(ctx, &farmsync.Animal{InternalID: "V-001", Photo: src})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	orphan := filepath.Join(cfg.PhotoDir, "photo_orphan.jpg")
	if err := os.WriteFile(orphan, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := client.CleanupPhotos(ctx)
	if err != nil {
		t.Fatalf("CleanupPhotos: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d photos, want 1", n)
	}
	if _, err := os.Stat(a.Photo); err != nil {
		t.Errorf("referenced photo removed: %v", err)
	}
}

func TestClient_ConcurrentAccess(t *testing.T) {
	client, err := farmsync.New(testConfig(t))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	const numGoroutines = 10
	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := client.Animals().Insert(ctx, &farmsync.Animal{InternalID: fmt.Sprintf("V-%03d", id)})
			if err != nil {
				t.Errorf("goroutine %d: Insert() error: %v", id, err)
			}
		}(i)
	}
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, err := client.Animals().GetAll(ctx); err != nil {
				t.Errorf("goroutine %d: GetAll() error: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	all, err := client.Animals().GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != numGoroutines {
		t.Errorf("animals = %d, want %d", len(all), numGoroutines)
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client, err := farmsync.New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := client.Animals().GetAll(context.Background()); !errors.Is(err, farmsync.ErrStoreClosed) {
		t.Errorf("GetAll after Close = %v, want ErrStoreClosed", err)
	}
}
