// Package storage manages the local content directory that resolved files are written to.
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrStorageUnavailable is returned when the content directory cannot be used.
var ErrStorageUnavailable = errors.New("storage unavailable")

// DefaultExtension is the content file extension used when none is configured.
const DefaultExtension = "mp3"

// Dir is the content directory.
type Dir struct {
	root string
	ext  string
}

// NewDir creates a content directory rooted at root.
func NewDir(root, ext string) *Dir {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = DefaultExtension
	}
	return &Dir{root: root, ext: ext}
}

// Root returns the directory path.
func (d *Dir) Root() string {
	return d.root
}

// Extension returns the content file extension without the dot.
func (d *Dir) Extension() string {
	return d.ext
}

// Ensure creates the directory when missing and checks that it is writable.
func (d *Dir) Ensure() error {
	if d.root == "" {
		return errors.Wrap(ErrStorageUnavailable, "content directory is not configured")
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to create %s", d.root), ErrStorageUnavailable)
	}

	probe, err := os.CreateTemp(d.root, ".probe-*")
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s is not writable", d.root), ErrStorageUnavailable)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// PathFor returns where the content for artist and title is stored.
func (d *Dir) PathFor(artist, title string) string {
	return filepath.Join(d.root, CacheKey(artist, title)+"."+d.ext)
}

// Contains reports whether path lies directly inside the directory.
func (d *Dir) Contains(path string) bool {
	return filepath.Dir(filepath.Clean(path)) == filepath.Clean(d.root)
}

// CacheKey derives the file name stem for a track: "artist_title" with every
// character outside [A-Za-z0-9_-] replaced by an underscore.
func CacheKey(artist, title string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, artist+"_"+title)
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
