package models

import (
	"slices"
	"strings"
)

// CompareVersions orders two "x.y.z" strings numerically, field by field.
// Fields are compared as decimal digit strings so arbitrarily wide numbers
// neither overflow nor sort lexically ("10.0.0" > "9.0.0", "01.0.0" == "1.0.0").
// Both arguments are expected to be valid versions.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareNumeric(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return len(as) - len(bs)
}

// SortVersions sorts versions ascending in place
func SortVersions(versions []string) {
	slices.SortStableFunc(versions, CompareVersions)
}

// MaxVersion returns the highest version, or "" for an empty slice
func MaxVersion(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	return slices.MaxFunc(versions, CompareVersions)
}

func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
