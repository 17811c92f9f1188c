// Package photos keeps animal photos in a durable app-owned directory until
// they are uploaded, and classifies photo references as local or remote.
package photos

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// MaxPhotoSize is the largest photo accepted for upload.
const MaxPhotoSize = 5 << 20

const fileScheme = "file://"

// storagePublicMarker appears in every public URL served by a
// Supabase-style storage API.
const storagePublicMarker = "/storage/v1/object/public/"

// ErrTooLarge is returned when a photo exceeds MaxPhotoSize.
var ErrTooLarge = errors.New("photo exceeds maximum size")

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Cache manages the local photo directory.
type Cache struct {
	dir        string
	remoteBase string
}

// New returns a Cache rooted at dir. remoteBase is the public URL prefix of
// the object store; references under it are remote-resolved.
func New(dir, remoteBase string) *Cache {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Cache{dir: filepath.Clean(dir), remoteBase: remoteBase}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Init creates the cache directory if needed.
func (c *Cache) Init() error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("photos: create directory: %w", err)
	}
	return nil
}

// Save copies sourceRef (a path or file:// URI) into the cache under a new
// unique name and returns the cached file's path.
func (c *Cache) Save(sourceRef string) (string, error) {
	if err := c.Init(); err != nil {
		return "", err
	}
	src, err := os.Open(localPath(sourceRef))
	if err != nil {
		return "", fmt.Errorf("photos: open source: %w", err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(localPath(sourceRef)))
	if _, ok := contentTypes[ext]; !ok {
		ext = ".jpg"
	}
	dst := filepath.Join(c.dir, "photo_"+ulid.Make().String()+ext)

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("photos: create file: %w", err)
	}
	success := false
	defer func() {
		out.Close()
		if !success {
			_ = os.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("photos: copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		return "", fmt.Errorf("photos: sync: %w", err)
	}
	success = true
	return dst, nil
}

// IsLocal reports whether ref points at a file not yet hosted remotely.
func (c *Cache) IsLocal(ref string) bool {
	if ref == "" {
		return false
	}
	return strings.HasPrefix(ref, fileScheme) || strings.HasPrefix(ref, c.dir+string(filepath.Separator))
}

// IsRemote reports whether ref is a URL on the remote object store.
func (c *Cache) IsRemote(ref string) bool {
	if ref == "" {
		return false
	}
	if c.remoteBase != "" && strings.HasPrefix(ref, c.remoteBase) {
		return true
	}
	return (strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")) &&
		strings.Contains(ref, storagePublicMarker)
}

// Owns reports whether ref is a file inside the cache directory.
func (c *Cache) Owns(ref string) bool {
	_, ok := c.owned(ref)
	return ok
}

// Delete removes a cached photo. It returns false if ref is not a cached
// file or could not be removed.
func (c *Cache) Delete(ref string) bool {
	p, ok := c.owned(ref)
	if !ok {
		return false
	}
	return os.Remove(p) == nil
}

// Size returns the size in bytes of a local photo.
func (c *Cache) Size(ref string) (int64, error) {
	info, err := os.Stat(localPath(ref))
	if err != nil {
		return 0, fmt.Errorf("photos: stat: %w", err)
	}
	return info.Size(), nil
}

// Open opens a local photo for upload, refusing files over MaxPhotoSize.
func (c *Cache) Open(ref string) (*os.File, error) {
	f, err := os.Open(localPath(ref))
	if err != nil {
		return nil, fmt.Errorf("photos: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("photos: stat: %w", err)
	}
	if info.Size() > MaxPhotoSize {
		f.Close()
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	return f, nil
}

// List returns the paths of every cached photo.
func (c *Cache) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("photos: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, filepath.Join(c.dir, e.Name()))
		}
	}
	return out, nil
}

// CleanupOrphans deletes cached photos not present in referenced and
// returns how many were removed.
func (c *Cache) CleanupOrphans(referenced []string) (int, error) {
	keep := make(map[string]bool, len(referenced))
	for _, ref := range referenced {
		keep[filepath.Clean(localPath(ref))] = true
	}
	files, err := c.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if keep[f] {
			continue
		}
		if os.Remove(f) == nil {
			removed++
		}
	}
	return removed, nil
}

// ObjectPath returns the object store path for a photo of the given animal.
func ObjectPath(animalID int64, ref string) string {
	return path.Join("animals", strconv.FormatInt(animalID, 10), filepath.Base(localPath(ref)))
}

// ContentType returns the MIME type for ref's extension, defaulting to JPEG.
func ContentType(ref string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(ref))]; ok {
		return ct
	}
	return "image/jpeg"
}

func (c *Cache) owned(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	p := filepath.Clean(localPath(ref))
	if !strings.HasPrefix(p, c.dir+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}

func localPath(ref string) string {
	return strings.TrimPrefix(ref, fileScheme)
}
