package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/acheong08/mjs-registry/pkg/models"
)

// SourceExt is the extension of every module source file in the store
const SourceExt = ".mjs"

// ModuleStore gives read-only access to the module store layout:
//
//	<root>/<scope>/<name>/<version>.mjs
type ModuleStore struct {
	fs billy.Filesystem
}

// NewModuleStore wraps a filesystem rooted at the module store
func NewModuleStore(fs billy.Filesystem) *ModuleStore {
	return &ModuleStore{fs: fs}
}

// PackageDir returns the store-relative directory of a package
func (s *ModuleStore) PackageDir(pkg models.PackageID) string {
	return s.fs.Join(pkg.Scope, pkg.Name)
}

// SourcePath returns the store-relative path of a version's source file
func (s *ModuleStore) SourcePath(pv models.PackageVersion) string {
	return s.fs.Join(pv.Scope, pv.Name, pv.Version+SourceExt)
}

// Versions lists the valid versions present in a package directory, ascending.
// Entries that are not regular .mjs files or whose stem is not a valid version
// are ignored. A missing directory is a NotFoundError.
func (s *ModuleStore) Versions(ctx context.Context, p models.PackageID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := s.fs.ReadDir(s.PackageDir(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Package: p.FullName()}
		}
		return nil, fmt.Errorf("failed to list versions of %s: %w", p, err)
	}

	var versions []string
	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}
		name := entry.Name()
		if path.Ext(name) != SourceExt {
			continue
		}
		version := strings.TrimSuffix(name, SourceExt)
		if IsValidVersion(version) {
			versions = append(versions, version)
		}
	}

	models.SortVersions(versions)
	return versions, nil
}

// Stat returns the modification time of a version's source file
func (s *ModuleStore) Stat(ctx context.Context, pv models.PackageVersion) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	fi, err := s.fs.Stat(s.SourcePath(pv))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, &NotFoundError{Package: pv.FullName(), Version: pv.Version}
		}
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", pv, err)
	}
	if !fi.Mode().IsRegular() {
		return time.Time{}, &NotFoundError{Package: pv.FullName(), Version: pv.Version, Reason: "not a regular file"}
	}
	return fi.ModTime(), nil
}

// ReadSource reads a version's module source
func (s *ModuleStore) ReadSource(ctx context.Context, pv models.PackageVersion) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := util.ReadFile(s.fs, s.SourcePath(pv))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Package: pv.FullName(), Version: pv.Version}
		}
		return nil, fmt.Errorf("failed to read %s: %w", pv, err)
	}
	return data, nil
}
