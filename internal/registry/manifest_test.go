package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acheong08/mjs-registry/internal/parser"
	"github.com/acheong08/mjs-registry/pkg/models"
)

var testPkg = models.PackageID{Scope: "@std", Name: "fs"}

type countingInferrer struct {
	inner parser.Inferrer
	calls atomic.Int32
}

func (c *countingInferrer) Infer(ctx context.Context, source []byte) (map[string]string, error) {
	c.calls.Add(1)
	return c.inner.Infer(ctx, source)
}

func newTestBuilder(t *testing.T, files map[string]string) (*Builder, *countingInferrer) {
	t.Helper()
	fs := memfs.New()
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
	inferrer := &countingInferrer{inner: parser.NewImportInferrer(nil)}
	return NewBuilder(NewModuleStore(fs), inferrer, log.New(os.Stderr)), inferrer
}

func TestBuildManifest(t *testing.T) {
	builder, inferrer := newTestBuilder(t, map[string]string{
		"@std/fs/1.0.0.mjs": `import x from "@scope/dep@1.2.3";`,
		"@std/fs/1.1.0.mjs": `import y from "lib"; import z from "node:fs";`,
		"@std/fs/0.1.0.mjs": `export default 1;`,
	})

	manifest, err := builder.Build(context.Background(), testPkg, "http://localhost:8080")
	require.NoError(t, err)

	assert.Equal(t, "@std/fs", manifest.Name)
	assert.Equal(t, "1.1.0", manifest.DistTags["latest"])
	assert.Equal(t, []string{"0.1.0", "1.0.0", "1.1.0"}, manifest.VersionList())
	assert.Equal(t, int32(3), inferrer.calls.Load())

	v100 := manifest.Versions["1.0.0"]
	require.NotNil(t, v100)
	assert.Equal(t, "@std/fs@1.0.0", v100.ID)
	assert.Equal(t, "http://localhost:8080/@std/fs/1.0.0.tgz", v100.Dist.Tarball)
	assert.Equal(t, map[string]string{"@scope/dep": "1.2.3"}, v100.Dependencies)

	assert.Equal(t, map[string]string{"lib": "latest"}, manifest.Versions["1.1.0"].Dependencies)
	assert.Empty(t, manifest.Versions["0.1.0"].Dependencies)

	for _, key := range []string{"created", "modified", "0.1.0", "1.0.0", "1.1.0"} {
		ts, ok := manifest.Time[key]
		require.True(t, ok, key)
		_, err := time.Parse(TimeFormat, ts)
		assert.NoError(t, err, key)
	}
}

func TestBuildManifestIgnoresInvalidEntries(t *testing.T) {
	builder, _ := newTestBuilder(t, map[string]string{
		"@std/fs/1.0.0.mjs":        `export const a = 1;`,
		"@std/fs/1.2.mjs":          `export const b = 1;`,
		"@std/fs/2.0.0.js":         `export const c = 1;`,
		"@std/fs/README.md":        `# fs`,
		"@std/fs/3.0.0.mjs/nested": `not a file entry`,
	})

	manifest, err := builder.Build(context.Background(), testPkg, "http://example.test")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0"}, manifest.VersionList())
	assert.Equal(t, "1.0.0", manifest.DistTags["latest"])
}

func TestBuildManifestNotFound(t *testing.T) {
	builder, _ := newTestBuilder(t, map[string]string{
		"@std/empty/notes.txt": "nothing here",
	})

	tests := []struct {
		name string
		pkg  models.PackageID
	}{
		{"missing directory", models.PackageID{Scope: "@std", Name: "missing"}},
		{"no valid versions", models.PackageID{Scope: "@std", Name: "empty"}},
		{"invalid scope", models.PackageID{Scope: "std", Name: "fs"}},
		{"invalid name", models.PackageID{Scope: "@std", Name: "bar_one"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manifest, err := builder.Build(context.Background(), tt.pkg, "http://example.test")
			assert.Nil(t, manifest)
			assert.True(t, errors.Is(err, ErrNotFound), "expected not found, got %v", err)
		})
	}
}

func TestBuildManifestParseError(t *testing.T) {
	builder, _ := newTestBuilder(t, map[string]string{
		"@std/fs/1.0.0.mjs": `export const = ;`,
	})

	_, err := builder.Build(context.Background(), testPkg, "http://example.test")
	var perr *parser.ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestBuildManifestTimes(t *testing.T) {
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "@std", "fs")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))

	stamps := map[string]time.Time{
		"0.9.0":  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2.0.0":  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		"10.0.0": time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}
	for version, ts := range stamps {
		path := filepath.Join(pkgDir, version+".mjs")
		require.NoError(t, os.WriteFile(path, []byte("export {};"), 0o644))
		require.NoError(t, os.Chtimes(path, ts, ts))
	}

	builder := NewBuilder(NewModuleStore(osfs.New(dir)), parser.NewImportInferrer(nil), log.New(os.Stderr))
	manifest, err := builder.Build(context.Background(), testPkg, "https://registry.example")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0", manifest.DistTags["latest"])
	assert.Equal(t, "2024-01-01T00:00:00.000Z", manifest.Time["created"])
	assert.Equal(t, "2024-03-01T12:30:00.000Z", manifest.Time["modified"])
	assert.Equal(t, "2024-06-01T00:00:00.000Z", manifest.Time["2.0.0"])
}

func TestTarballURL(t *testing.T) {
	pv := models.PackageVersion{PackageID: testPkg, Version: "1.0.0"}
	assert.Equal(t, "https://r.example/@std/fs/1.0.0.tgz", TarballURL("https://r.example/", pv))
	assert.Equal(t, "http://localhost:8080/@std/fs/1.0.0.tgz", TarballURL("http://localhost:8080", pv))
}
