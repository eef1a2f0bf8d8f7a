package parser

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferDependencies(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected map[string]string
	}{
		{
			name:     "pinned scoped import",
			source:   `import x from "@scope/dep@1.2.3";`,
			expected: map[string]string{"@scope/dep": "1.2.3"},
		},
		{
			name:     "bare import",
			source:   `import y from "lib";`,
			expected: map[string]string{"lib": "latest"},
		},
		{
			name:     "builtin skipped",
			source:   `import z from "node:fs";`,
			expected: map[string]string{},
		},
		{
			name: "mixed",
			source: `import { a } from '@std/fs@2.0.0';
import * as b from "lodash-es";
import "side-effect";
import fs from "node:fs";

export const c = a + b;
`,
			expected: map[string]string{
				"@std/fs":     "2.0.0",
				"lodash-es":   "latest",
				"side-effect": "latest",
			},
		},
		{
			name:     "unscoped pinned",
			source:   `import d from "dep@3.1.0";`,
			expected: map[string]string{"dep": "3.1.0"},
		},
		{
			name:     "no imports",
			source:   `export default function hello() { return "hi"; }`,
			expected: map[string]string{},
		},
	}

	inferrer := NewImportInferrer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, err := inferrer.Infer(context.Background(), []byte(tt.source))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, deps)
		})
	}
}

func TestImportsDeclarationOrder(t *testing.T) {
	src := []byte(`import b from "b";
import a from "a";
function f() {}
import c from "c";
`)
	specs, err := Imports(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, slices.Collect(specs))
}

func TestImportsParseError(t *testing.T) {
	_, err := Imports([]byte(`import from from from;`))
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Error(), "1:")

	_, err = NewImportInferrer(nil).Infer(context.Background(), []byte(`export const = ;`))
	assert.True(t, errors.As(err, &perr))
}

func TestImportsRejectsHTMLComments(t *testing.T) {
	_, err := Imports([]byte("import a from \"a\";\n<!-- x\n"))
	var perr *ParseError
	require.True(t, errors.As(err, &perr), "expected parse error, got %v", err)
	assert.Equal(t, uint32(1), perr.Line)
	assert.Contains(t, perr.Message, "HTML-like comment")

	specs, err := Imports([]byte("// <!-- only a line comment\nimport a from \"a\";\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, slices.Collect(specs))
}

func TestSplitSpecifier(t *testing.T) {
	tests := []struct {
		spec string
		name string
		tag  string
	}{
		{"@scope/dep@1.2.3", "@scope/dep", "1.2.3"},
		{"@scope/dep", "@scope/dep", "latest"},
		{"lib", "lib", "latest"},
		{"lib@next", "lib", "next"},
		{"lib@", "lib", "latest"},
		{"@", "@", "latest"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			name, tag := SplitSpecifier(tt.spec)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.tag, tag)
		})
	}
}

func TestReservedPrefixes(t *testing.T) {
	inferrer := NewImportInferrer([]string{"node:", "bun:"})
	deps, err := inferrer.Infer(context.Background(), []byte(`import a from "bun:sqlite";
import b from "node:path";
import c from "kept";
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"kept": "latest"}, deps)
}
