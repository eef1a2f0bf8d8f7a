// Package artifact materializes version archives on first request and keeps
// them in a flat cache directory. Entries are immutable once written and are
// never refreshed when the source module changes.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	billy "github.com/go-git/go-billy/v5"
	"golang.org/x/sync/singleflight"

	"github.com/acheong08/mjs-registry/internal/parser"
	"github.com/acheong08/mjs-registry/internal/registry"
	"github.com/acheong08/mjs-registry/pkg/models"
)

const (
	descriptorEntry = "package/package.json"
	moduleEntry     = "package/index.mjs"
	tempPrefix      = ".tmp-"
)

// CacheWriteError reports a failure to persist an archive. The cache entry is
// left absent so a later request can retry.
type CacheWriteError struct {
	Key string
	Op  string
	Err error
}

func (e *CacheWriteError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheWriteError) Unwrap() error {
	return e.Err
}

// BuildResult describes one archive build, successful or not
type BuildResult struct {
	Package  models.PackageVersion
	Size     int64
	Duration time.Duration
	Err      error
}

// BuildObserver is an optional callback invoked after every archive build
type BuildObserver func(BuildResult)

// Artifact is an open cached archive
type Artifact struct {
	io.ReadCloser
	Size    int64
	ModTime time.Time
}

// Cache returns version archives, building and persisting them on a miss
type Cache struct {
	store    *registry.ModuleStore
	fs       billy.Filesystem
	inferrer parser.Inferrer
	group    singleflight.Group
	observer BuildObserver
	logger   *log.Logger
}

// NewCache creates a cache that reads sources from store and keeps archives in fs
func NewCache(store *registry.ModuleStore, fs billy.Filesystem, inferrer parser.Inferrer, logger *log.Logger) *Cache {
	return &Cache{
		store:    store,
		fs:       fs,
		inferrer: inferrer,
		logger:   logger.WithPrefix("artifact"),
	}
}

// SetObserver sets an optional callback for build results
func (c *Cache) SetObserver(fn BuildObserver) {
	c.observer = fn
}

// Path returns the cache-relative file name of a version's archive
func (c *Cache) Path(pv models.PackageVersion) string {
	return pv.CacheKey()
}

// Open returns the archive for pv, building it first if it is not cached.
// Concurrent callers for the same version share a single build; callers for
// different versions never wait on each other. The caller must close the
// returned artifact.
func (c *Cache) Open(ctx context.Context, pv models.PackageVersion) (*Artifact, error) {
	if !registry.IsValidScope(pv.Scope) || !registry.IsValidName(pv.Name) || !registry.IsValidVersion(pv.Version) {
		return nil, &registry.NotFoundError{Package: pv.FullName(), Version: pv.Version, Reason: "invalid identity"}
	}

	art, err := c.openCached(pv)
	if err == nil {
		return art, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key := c.Path(pv)
	// The build must outlive a cancelled caller: other callers may be waiting on it.
	_, err, shared := c.group.Do(key, func() (any, error) {
		return nil, c.build(context.WithoutCancel(ctx), pv)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined in-flight build", "package", pv)
	}

	art, err = c.openCached(pv)
	if err != nil {
		return nil, fmt.Errorf("failed to open built archive %s: %w", key, err)
	}
	return art, nil
}

// Warm builds the archive for pv if absent and returns its cache path
func (c *Cache) Warm(ctx context.Context, pv models.PackageVersion) (string, error) {
	art, err := c.Open(ctx, pv)
	if err != nil {
		return "", err
	}
	if err := art.Close(); err != nil {
		return "", err
	}
	return c.Path(pv), nil
}

// openCached opens an existing cache entry without touching the module store
func (c *Cache) openCached(pv models.PackageVersion) (*Artifact, error) {
	key := c.Path(pv)
	fi, err := c.fs.Stat(key)
	if err != nil {
		return nil, err
	}
	f, err := c.fs.Open(key)
	if err != nil {
		return nil, err
	}
	return &Artifact{ReadCloser: f, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (c *Cache) build(ctx context.Context, pv models.PackageVersion) (err error) {
	key := c.Path(pv)

	// A build that finished between our miss and acquiring the key already did the work.
	if _, statErr := c.fs.Stat(key); statErr == nil {
		return nil
	}

	start := time.Now()
	var size int64
	defer func() {
		res := BuildResult{Package: pv, Size: size, Duration: time.Since(start), Err: err}
		if err != nil {
			c.logger.Warn("archive build failed", "package", pv, "err", err)
		} else {
			c.logger.Info("archive built", "package", pv, "bytes", size, "duration", res.Duration)
		}
		if c.observer != nil {
			c.observer(res)
		}
	}()

	data, err := c.render(ctx, pv)
	if err != nil {
		return err
	}
	size = int64(len(data))

	return c.persist(key, data)
}

// render produces the archive bytes for a version from its source module
func (c *Cache) render(ctx context.Context, pv models.PackageVersion) ([]byte, error) {
	source, err := c.store.ReadSource(ctx, pv)
	if err != nil {
		return nil, err
	}

	deps, err := c.inferrer.Infer(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to infer dependencies of %s: %w", pv, err)
	}

	descriptor, err := parser.NewPackageJSON(pv, deps).Marshal()
	if err != nil {
		return nil, err
	}

	return Tarball([]Entry{
		{Name: descriptorEntry, Content: descriptor},
		{Name: moduleEntry, Content: source},
	})
}

// persist writes data to a temporary file beside the entry and renames it into
// place, so readers only ever observe a complete archive.
func (c *Cache) persist(key string, data []byte) error {
	tmp, err := c.fs.TempFile("", tempPrefix+key+"-")
	if err != nil {
		return &CacheWriteError{Key: key, Op: "create", Err: err}
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = c.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &CacheWriteError{Key: key, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &CacheWriteError{Key: key, Op: "close", Err: err}
	}
	if ch, ok := c.fs.(billy.Change); ok {
		if err := ch.Chmod(tmpName, 0o644); err != nil {
			return &CacheWriteError{Key: key, Op: "chmod", Err: err}
		}
	}
	if err := c.fs.Rename(tmpName, key); err != nil {
		return &CacheWriteError{Key: key, Op: "rename", Err: err}
	}

	committed = true
	return nil
}
