package store

import (
	"os"
	"path/filepath"
	"sort"
)

// DBFileName is the name of every farm's database file.
const DBFileName = "farmsync.db"

// DefaultRoot returns the root directory for all farm data.
// Defaults to ~/.farmsync, falls back to ./.farmsync if home dir unavailable.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".farmsync")
	}
	return filepath.Join(home, ".farmsync")
}

// FarmDir returns the directory holding a farm's database and photos.
func FarmDir(root, farmID string) string {
	return filepath.Join(root, "farms", farmID)
}

// FarmDBPath returns the full path to a farm's database file.
// Example: FarmDBPath("rancho-norte") -> ~/.farmsync/farms/rancho-norte/farmsync.db
func FarmDBPath(farmID string) string {
	return filepath.Join(FarmDir(DefaultRoot(), farmID), DBFileName)
}

// FarmPhotoDir returns the durable photo cache directory for a farm.
func FarmPhotoDir(farmID string) string {
	return filepath.Join(FarmDir(DefaultRoot(), farmID), "animal_photos")
}

// ListFarms returns the IDs of farms that have a database under root,
// sorted by name.
func ListFarms(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, "farms"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var farms []string
	for _, e := range entries {
		if !e.IsDir() || ValidateFarmID(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, "farms", e.Name(), DBFileName)); err != nil {
			continue
		}
		farms = append(farms, e.Name())
	}
	sort.Strings(farms)
	return farms, nil
}
