// Package staging manages the scratch directory that holds the generated
// preview artifacts: the synthesized entry module, the bundled script, the
// HTML document and the icon asset.
//
// The directory is created fresh at startup and never deleted; cleaning up
// temporary storage is left to the operating system.
package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Daw588/lavender/internal/errors"
)

// Artifact names
const (
	EntryModule = "entry.js"
	Bundle      = "out.js"
	Document    = "index.html"
	Icon        = "svelte.svg"
)

// Area is a staging directory. All writes fully replace prior content.
type Area struct {
	dir string
}

// New creates an Area rooted at dir. No I/O happens until Prepare.
func New(dir string) *Area {
	return &Area{dir: filepath.Clean(dir)}
}

// Dir returns the staging directory path.
func (a *Area) Dir() string {
	return a.dir
}

// PathOf returns the path of the named artifact.
func (a *Area) PathOf(name string) string {
	return filepath.Join(a.dir, name)
}

// Prepare ensures the staging directory exists and is empty.
func (a *Area) Prepare() error {
	info, err := os.Stat(a.dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(a.dir, 0755); err != nil {
			return errors.NewIOError(errors.ErrCodeStagingPrepare, "creating staging directory", err).
				WithContext("dir", a.dir)
		}
		return nil
	case err != nil:
		return errors.NewIOError(errors.ErrCodeStagingPrepare, "inspecting staging directory", err).
			WithContext("dir", a.dir)
	case !info.IsDir():
		return errors.NewIOError(errors.ErrCodeStagingPrepare, "staging path exists and is not a directory", nil).
			WithContext("dir", a.dir)
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeStagingPrepare, "listing staging directory", err).
			WithContext("dir", a.dir)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(a.dir, entry.Name())); err != nil {
			return errors.NewIOError(errors.ErrCodeStagingPrepare, "clearing staging directory", err).
				WithContext("entry", entry.Name())
		}
	}

	return nil
}

// WriteArtifact replaces the named artifact. Content is written to a temp file
// in the same directory and renamed into place, so readers never observe a
// partial document.
func (a *Area) WriteArtifact(name string, content []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(a.dir, "."+name+".tmp-*")
	if err != nil {
		return errors.NewIOError(errors.ErrCodeStagingWrite, "creating temp file for "+name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIOError(errors.ErrCodeStagingWrite, "writing "+name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError(errors.ErrCodeStagingWrite, "closing "+name, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError(errors.ErrCodeStagingWrite, "setting permissions on "+name, err)
	}
	if err := os.Rename(tmpName, a.PathOf(name)); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError(errors.ErrCodeStagingWrite, "replacing "+name, err)
	}

	return nil
}

// ReadArtifact returns the current content of the named artifact.
func (a *Area) ReadArtifact(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.PathOf(name))
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeStagingRead, "reading "+name, err)
	}
	return data, nil
}

// CopyAsset writes a static asset once at startup.
func (a *Area) CopyAsset(name string, content []byte) error {
	return a.WriteArtifact(name, content)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return errors.NewIOError(errors.ErrCodeStagingWrite, fmt.Sprintf("invalid artifact name %q", name), nil)
	}
	return nil
}
