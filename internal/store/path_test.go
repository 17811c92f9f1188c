package store_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/farmsync/farmsync/internal/store"
)

func TestFarmDBPath(t *testing.T) {
	got := store.FarmDBPath("rancho-norte")
	want := filepath.Join(store.DefaultRoot(), "farms", "rancho-norte", "farmsync.db")
	if got != want {
		t.Errorf("FarmDBPath = %q, want %q", got, want)
	}
}

func TestFarmPhotoDir(t *testing.T) {
	got := store.FarmPhotoDir("default")
	if !strings.HasSuffix(got, filepath.Join("farms", "default", "animal_photos")) {
		t.Errorf("FarmPhotoDir = %q, want suffix farms/default/animal_photos", got)
	}
}

func TestListFarms(t *testing.T) {
	root := t.TempDir()

	for _, farm := range []string{"zeta", "alpha"} {
		dir := store.FarmDir(root, farm)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, store.DBFileName), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	// Directory without a database is not a farm.
	if err := os.MkdirAll(store.FarmDir(root, "empty"), 0755); err != nil {
		t.Fatal(err)
	}

	farms, err := store.ListFarms(root)
	if err != nil {
		t.Fatalf("ListFarms: %v", err)
	}
	if want := []string{"alpha", "zeta"}; !reflect.DeepEqual(farms, want) {
		t.Errorf("ListFarms = %v, want %v", farms, want)
	}
}

func TestListFarms_MissingRoot(t *testing.T) {
	farms, err := store.ListFarms(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ListFarms: %v", err)
	}
	if len(farms) != 0 {
		t.Errorf("ListFarms = %v, want empty", farms)
	}
}
