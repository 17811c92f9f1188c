package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LegacyDBPath returns the pre-farm database location: ./data/farmsync.db
// relative to the current directory.
func LegacyDBPath() string {
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, "data", DBFileName)
}

// MigrationResult contains the result of a legacy database adoption.
type MigrationResult struct {
	// Migrated is true if a database was copied.
	Migrated bool
	// SourcePath is the legacy database that was copied (empty if not migrated).
	SourcePath string
	// DestPath is the new default farm database (empty if not migrated).
	DestPath string
}

// MigrateLegacyDatabase copies a legacy single-farm database into the
// default farm slot under root.
//
// Nothing happens when the default farm already has a database or when
// no legacy file exists. sourcePath overrides LegacyDBPath when set.
func MigrateLegacyDatabase(sourcePath, root string) (MigrationResult, error) {
	destPath := filepath.Join(FarmDir(root, DefaultFarm), DBFileName)
	if _, err := os.Stat(destPath); err == nil {
		return MigrationResult{}, nil
	}

	if sourcePath == "" {
		sourcePath = LegacyDBPath()
	}
	if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
		return MigrationResult{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return MigrationResult{}, fmt.Errorf("create default farm directory: %w", err)
	}
	if err := copyFile(sourcePath, destPath); err != nil {
		return MigrationResult{}, fmt.Errorf("copy database: %w", err)
	}

	return MigrationResult{Migrated: true, SourcePath: sourcePath, DestPath: destPath}, nil
}

// copyFile copies src to dst and fsyncs it. A partial dst is removed on failure.
func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.Create(dst)
	if err != nil {
		return err
	}

	success := false
	defer func() {
		dest.Close()
		if !success {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(dest, source); err != nil {
		return err
	}
	if err := dest.Sync(); err != nil {
		return err
	}

	success = true
	return nil
}
