package registry

import "regexp"

var (
	scopePattern   = regexp.MustCompile(`^@[a-z]+$`)
	namePattern    = regexp.MustCompile(`^[a-z-]+$`)
	versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)
)

// IsValidScope reports whether s is a scope such as "@std"
func IsValidScope(s string) bool {
	return s != "" && scopePattern.MatchString(s)
}

// IsValidName reports whether s is a package name such as "path-utils"
func IsValidName(s string) bool {
	return s != "" && namePattern.MatchString(s)
}

// IsValidVersion reports whether s is an "x.y.z" version with numeric fields
func IsValidVersion(s string) bool {
	return s != "" && versionPattern.MatchString(s)
}
