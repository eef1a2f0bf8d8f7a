package models

// Manifest is the registry document returned for GET /{scope}%2f{name}
type Manifest struct {
	ID       string                    `json:"_id"`
	Name     string                    `json:"name"`
	DistTags map[string]string         `json:"dist-tags"`
	Versions map[string]*VersionRecord `json:"versions"`
	Time     map[string]string         `json:"time"`
}

// VersionRecord describes one installable version within a manifest
type VersionRecord struct {
	ID           string            `json:"_id"`     // "@std/path-utils@1.2.3"
	Name         string            `json:"name"`    // "@std/path-utils"
	Version      string            `json:"version"` // "1.2.3"
	Dist         Dist              `json:"dist"`
	Dependencies map[string]string `json:"dependencies"` // specifier -> version tag
}

// Dist points an installing client at the version archive
type Dist struct {
	Tarball string `json:"tarball"`
}

// NewManifest creates an empty manifest for a package
func NewManifest(pkg PackageID) *Manifest {
	return &Manifest{
		ID:       pkg.FullName(),
		Name:     pkg.FullName(),
		DistTags: make(map[string]string),
		Versions: make(map[string]*VersionRecord),
		Time:     make(map[string]string),
	}
}

// AddVersion adds a version record to the manifest
func (m *Manifest) AddVersion(rec *VersionRecord) {
	m.Versions[rec.Version] = rec
}

// VersionList returns the manifest versions in ascending order
func (m *Manifest) VersionList() []string {
	versions := make([]string, 0, len(m.Versions))
	for v := range m.Versions {
		versions = append(versions, v)
	}
	SortVersions(versions)
	return versions
}
