// Package store locates and validates the per-farm local databases.
//
// Each farm (ranch, herd owner) gets its own SQLite file so records from
// different operations never share a sync queue.
package store

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultFarm is the farm used when none is configured.
const DefaultFarm = "default"

// ErrInvalidFarmID indicates the farm ID format is invalid.
var ErrInvalidFarmID = errors.New("invalid farm ID: must be lowercase alphanumeric with hyphens, 1-64 characters")

// farmIDRegex: lowercase alphanumerics and single hyphens, no leading or
// trailing hyphen.
var farmIDRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)

// ValidateFarmID validates a farm ID.
func ValidateFarmID(id string) error {
	if id == "" || len(id) > 64 {
		return ErrInvalidFarmID
	}
	if strings.Contains(id, "--") {
		return ErrInvalidFarmID
	}
	if !farmIDRegex.MatchString(id) {
		return ErrInvalidFarmID
	}
	return nil
}

// ResolveFarm determines the farm ID to use.
// Priority: explicit > FARMSYNC_FARM env > "default".
func ResolveFarm(explicit string) (string, error) {
	if explicit != "" {
		if err := ValidateFarmID(explicit); err != nil {
			return "", fmt.Errorf("invalid farm ID %q: %w", explicit, err)
		}
		return explicit, nil
	}

	if env := os.Getenv("FARMSYNC_FARM"); env != "" {
		if err := ValidateFarmID(env); err != nil {
			return "", fmt.Errorf("invalid FARMSYNC_FARM %q: %w", env, err)
		}
		return env, nil
	}

	return DefaultFarm, nil
}
