package models

import "strings"

// PackageID identifies a package in the module store
type PackageID struct {
	Scope string `json:"scope"` // "@std"
	Name  string `json:"name"`  // "path-utils"
}

// FullName returns the npm package name, e.g. "@std/path-utils"
func (p PackageID) FullName() string {
	return p.Scope + "/" + p.Name
}

// Escaped returns the name as it appears in a manifest request path ("@std%2fpath-utils")
func (p PackageID) Escaped() string {
	return p.Scope + "%2f" + p.Name
}

func (p PackageID) String() string {
	return p.FullName()
}

// PackageVersion identifies a single module source file and its archive
type PackageVersion struct {
	PackageID
	Version string `json:"version"` // "1.2.3"
}

// ID returns "name@version", the form used in manifests and logs
func (p PackageVersion) ID() string {
	return p.FullName() + "@" + p.Version
}

// CacheKey maps the identity onto a flat file name: "@std__path-utils-1.2.3.tgz".
// Scope and name syntax guarantee the mapping is unambiguous.
func (p PackageVersion) CacheKey() string {
	return p.Scope + "__" + p.Name + "-" + p.Version + ".tgz"
}

func (p PackageVersion) String() string {
	return p.ID()
}

// SplitFullName splits "@scope/name" into its identity. It does not validate.
func SplitFullName(fullName string) (PackageID, bool) {
	scope, name, ok := strings.Cut(fullName, "/")
	if !ok {
		return PackageID{}, false
	}
	return PackageID{Scope: scope, Name: name}, true
}

// SplitVersioned splits "@scope/name@1.2.3" into its identity. It does not validate.
func SplitVersioned(spec string) (PackageVersion, bool) {
	idx := strings.LastIndex(spec, "@")
	if idx <= 0 {
		return PackageVersion{}, false
	}
	id, ok := SplitFullName(spec[:idx])
	if !ok {
		return PackageVersion{}, false
	}
	return PackageVersion{PackageID: id, Version: spec[idx+1:]}, true
}
