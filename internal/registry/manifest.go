package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/acheong08/mjs-registry/internal/parser"
	"github.com/acheong08/mjs-registry/pkg/models"
)

// TimeFormat matches the ISO-8601 form npm uses in manifest "time" fields
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Builder synthesizes package manifests from the module store.
// Manifests are rebuilt on every call; nothing is cached.
type Builder struct {
	Store       *ModuleStore
	Inferrer    parser.Inferrer
	Concurrency int
	logger      *log.Logger
}

// NewBuilder creates a manifest builder
func NewBuilder(store *ModuleStore, inferrer parser.Inferrer, logger *log.Logger) *Builder {
	return &Builder{
		Store:       store,
		Inferrer:    inferrer,
		Concurrency: 8,
		logger:      logger.WithPrefix("manifest"),
	}
}

// versionInfo is what a single version contributes to the manifest
type versionInfo struct {
	modified time.Time
	deps     map[string]string
}

// Build assembles the manifest for pkg. origin is "{scheme}://{host}" and
// prefixes every tarball URL. A missing package directory, or one without any
// valid versions, yields a NotFoundError.
func (b *Builder) Build(ctx context.Context, pkg models.PackageID, origin string) (*models.Manifest, error) {
	if !IsValidScope(pkg.Scope) || !IsValidName(pkg.Name) {
		return nil, &NotFoundError{Package: pkg.FullName(), Reason: "invalid identity"}
	}

	versions, err := b.Store.Versions(ctx, pkg)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, &NotFoundError{Package: pkg.FullName(), Reason: "no valid versions"}
	}

	infos := make([]versionInfo, len(versions))

	g, gctx := errgroup.WithContext(ctx)
	if b.Concurrency > 0 {
		g.SetLimit(b.Concurrency)
	}
	for i, version := range versions {
		pv := models.PackageVersion{PackageID: pkg, Version: version}
		g.Go(func() error {
			info, err := b.readVersion(gctx, pv)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest := models.NewManifest(pkg)
	for i, version := range versions {
		manifest.AddVersion(&models.VersionRecord{
			ID:      pkg.FullName() + "@" + version,
			Name:    pkg.FullName(),
			Version: version,
			Dist: models.Dist{
				Tarball: TarballURL(origin, models.PackageVersion{PackageID: pkg, Version: version}),
			},
			Dependencies: infos[i].deps,
		})
		manifest.Time[version] = formatTime(infos[i].modified)
	}

	// versions is ascending: first is the earliest, last is the latest
	manifest.DistTags["latest"] = versions[len(versions)-1]
	manifest.Time["created"] = formatTime(infos[0].modified)
	manifest.Time["modified"] = formatTime(infos[len(infos)-1].modified)

	b.logger.Debug("built manifest", "package", pkg, "versions", len(versions))
	return manifest, nil
}

func (b *Builder) readVersion(ctx context.Context, pv models.PackageVersion) (versionInfo, error) {
	modified, err := b.Store.Stat(ctx, pv)
	if err != nil {
		return versionInfo{}, err
	}

	source, err := b.Store.ReadSource(ctx, pv)
	if err != nil {
		return versionInfo{}, err
	}

	deps, err := b.Inferrer.Infer(ctx, source)
	if err != nil {
		return versionInfo{}, fmt.Errorf("failed to infer dependencies of %s: %w", pv, err)
	}

	return versionInfo{modified: modified, deps: deps}, nil
}

// TarballURL constructs the download URL for a version archive:
// {origin}/{scope}/{name}/{version}.tgz
func TarballURL(origin string, pv models.PackageVersion) string {
	return fmt.Sprintf("%s/%s/%s/%s.tgz", strings.TrimSuffix(origin, "/"), pv.Scope, pv.Name, pv.Version)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
