// Package uploads stores ID photos under a single root directory.
//
// Incoming multipart files are staged under <root>/.incoming with a unique
// name, then moved to their stable name <slug>-<sequence><ext> once the
// submission that owns them has committed. Persisted paths are relative to
// the root.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "formvault/pkg/domain-errors"
)

const incomingDir = ".incoming"

// Relocator owns the storage root.
type Relocator struct {
	root string
}

// New creates the root and staging directories if needed.
func New(root string) (*Relocator, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, incomingDir), 0o750); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &Relocator{root: abs}, nil
}

// Root is the absolute storage root.
func (r *Relocator) Root() string {
	return r.root
}

// FinalName is the stable file name for the sequence-th submission of slug.
func FinalName(slug string, sequence int, ext string) string {
	if slug == "" {
		slug = "submission"
	}
	return slug + "-" + strconv.Itoa(sequence) + ext
}

// Stage writes an incoming upload to a unique temporary path and returns it.
func (r *Relocator) Stage(src io.Reader, originalName string) (string, error) {
	tmp := filepath.Join(r.root, incomingDir, uuid.NewString()+stagedExt(originalName))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeFileMove, "failed to stage upload")
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", dErrors.Wrap(err, dErrors.CodeFileMove, "failed to stage upload")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", dErrors.Wrap(err, dErrors.CodeFileMove, "failed to stage upload")
	}
	return tmp, nil
}

// stagedExt keeps a short alphanumeric extension of the client's file name so
// staged files stay recognizable; the rest of the name is never used.
func stagedExt(originalName string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(originalName, "\\", "/")))
	if len(ext) < 2 || len(ext) > 11 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

// Exists reports whether a stored file with this relative name exists.
func (r *Relocator) Exists(name string) bool {
	path, err := r.resolve(name)
	if err != nil {
		return false
	}
	_, err = os.Lstat(path)
	return err == nil
}

// Relocate moves tempPath to FinalName(slug, sequence, ext) under the root and
// returns the relative name. It never overwrites an existing file.
func (r *Relocator) Relocate(tempPath, slug string, sequence int, ext string) (string, error) {
	name := FinalName(slug, sequence, ext)
	dst, err := r.resolve(name)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeFileMove, "invalid destination")
	}
	if _, err := os.Stat(tempPath); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeFileMove, "uploaded file is missing")
	}

	// A hard link fails on an existing destination, which a rename would
	// silently replace.
	if err := os.Link(tempPath, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", dErrors.Wrap(err, dErrors.CodeFileMove, "destination already exists")
		}
		if _, statErr := os.Lstat(dst); statErr == nil {
			return "", dErrors.Wrap(fs.ErrExist, dErrors.CodeFileMove, "destination already exists")
		}
		if err := os.Rename(tempPath, dst); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeFileMove, "failed to move upload")
		}
		return name, nil
	}
	// The photo is in place; a leftover staged link is harmless.
	_ = os.Remove(tempPath)
	return name, nil
}

// Discard removes a staged upload. Missing files are ignored.
func (r *Relocator) Discard(tempPath string) {
	if tempPath == "" {
		return
	}
	_ = os.Remove(tempPath)
}

// Open opens a stored file by relative name.
func (r *Relocator) Open(name string) (*os.File, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Remove deletes a stored file by relative name.
func (r *Relocator) Remove(name string) error {
	path, err := r.resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Purge deletes stored files that live does not report as referenced. Staged
// uploads belong to requests still in flight and are left alone. live runs
// after the directory is listed, so a file that was moved into place before
// the listing always has its submission visible to live.
func (r *Relocator) Purge(live func() (map[string]bool, error)) (int, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return 0, err
	}
	keep, err := live()
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || keep[e.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(r.root, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// resolve maps a relative name onto the root, rejecting anything that would
// escape it.
func (r *Relocator) resolve(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid stored file name %q", name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid stored file name %q", name)
	}
	return filepath.Join(r.root, clean), nil
}
