package parser

import (
	"encoding/json"
	"fmt"

	"github.com/acheong08/mjs-registry/pkg/models"
)

// EntryModule is the archive-relative path of the single module in every package
const EntryModule = "./index.mjs"

// PackageJSON is the descriptor placed at package/package.json inside an archive
type PackageJSON struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Type         string            `json:"type"`
	Exports      string            `json:"exports"`
	Dependencies map[string]string `json:"dependencies"`
}

// NewPackageJSON synthesizes the descriptor for a module version
func NewPackageJSON(pv models.PackageVersion, deps map[string]string) *PackageJSON {
	if deps == nil {
		deps = make(map[string]string)
	}
	return &PackageJSON{
		Name:         pv.FullName(),
		Version:      pv.Version,
		Type:         "module",
		Exports:      EntryModule,
		Dependencies: deps,
	}
}

// ParsePackageJSON decodes a descriptor
func ParsePackageJSON(data []byte) (*PackageJSON, error) {
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}
	return &pkg, nil
}

// Marshal encodes the descriptor. Map keys are sorted by encoding/json, so
// output is stable for identical input.
func (p *PackageJSON) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal package.json: %w", err)
	}
	return append(data, '\n'), nil
}
