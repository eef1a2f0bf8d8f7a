package parser

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// DefaultReservedPrefixes are specifier prefixes naming host built-ins rather than packages
var DefaultReservedPrefixes = []string{"node:"}

// LatestTag is the version tag used when a specifier does not pin a version
const LatestTag = "latest"

// ParseError reports module source that is not a valid ES module
type ParseError struct {
	Line    uint32 // 0-indexed
	Column  uint32 // 0-indexed
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line+1, e.Column+1, e.Message)
}

// Inferrer maps module source to its dependency declarations
type Inferrer interface {
	Infer(ctx context.Context, source []byte) (map[string]string, error)
}

// ImportInferrer infers dependencies from the import declarations of a module
type ImportInferrer struct {
	ReservedPrefixes []string
}

// NewImportInferrer creates an inferrer that skips the given reserved prefixes.
// A nil slice selects DefaultReservedPrefixes.
func NewImportInferrer(reserved []string) *ImportInferrer {
	if reserved == nil {
		reserved = DefaultReservedPrefixes
	}
	return &ImportInferrer{ReservedPrefixes: reserved}
}

// Infer returns a specifier -> version tag mapping for every package imported by source
func (ii *ImportInferrer) Infer(ctx context.Context, source []byte) (map[string]string, error) {
	specs, err := ImportsCtx(ctx, source)
	if err != nil {
		return nil, err
	}

	deps := make(map[string]string)
	for spec := range specs {
		if ii.reserved(spec) {
			continue
		}
		name, tag := SplitSpecifier(spec)
		deps[name] = tag
	}
	return deps, nil
}

func (ii *ImportInferrer) reserved(spec string) bool {
	for _, prefix := range ii.ReservedPrefixes {
		if strings.HasPrefix(spec, prefix) {
			return true
		}
	}
	return false
}

// SplitSpecifier splits "@scope/dep@1.2.3" into ("@scope/dep", "1.2.3").
// The leading scope sigil is never treated as a separator. Specifiers
// without a version, or with an empty one, map to LatestTag.
func SplitSpecifier(spec string) (name, tag string) {
	if len(spec) > 1 {
		if idx := strings.Index(spec[1:], "@"); idx >= 0 {
			name, tag = spec[:idx+1], spec[idx+2:]
			if tag == "" {
				tag = LatestTag
			}
			return name, tag
		}
	}
	return spec, LatestTag
}

// Imports parses source as an ES module and returns the specifiers of its
// top-level import declarations in declaration order.
func Imports(source []byte) (iter.Seq[string], error) {
	return ImportsCtx(context.Background(), source)
}

// ImportsCtx is Imports with a context bounding the parse
func ImportsCtx(ctx context.Context, source []byte) (iter.Seq[string], error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(javascript.GetLanguage())

	tree, err := p.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse module: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, &ParseError{Message: "empty syntax tree"}
	}
	if root.HasError() {
		return nil, firstError(root)
	}
	// The grammar parses scripts; HTML-like comments are illegal in module code.
	if perr := findHTMLComment(root); perr != nil {
		return nil, perr
	}

	// Collect eagerly so the tree can be released; callers still consume a sequence.
	var specs []string
	count := int(root.NamedChildCount())
	for i := 0; i < count; i++ {
		child := root.NamedChild(i)
		if child == nil || child.Type() != "import_statement" {
			continue
		}
		src := child.ChildByFieldName("source")
		if src == nil {
			continue
		}
		specs = append(specs, unquote(src.Content(source)))
	}
	return slices.Values(specs), nil
}

// firstError does a depth-first search for the first ERROR or MISSING node
func firstError(node *sitter.Node) *ParseError {
	if node.IsError() || node.IsMissing() {
		return &ParseError{
			Line:    node.StartPoint().Row,
			Column:  node.StartPoint().Column,
			Message: "syntax error",
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if child.HasError() || child.IsError() || child.IsMissing() {
			if perr := firstError(child); perr != nil {
				return perr
			}
		}
	}
	if node.Parent() == nil {
		return &ParseError{Message: "syntax tree contains errors"}
	}
	return nil
}

func findHTMLComment(node *sitter.Node) *ParseError {
	if node.Type() == "html_comment" {
		return &ParseError{
			Line:    node.StartPoint().Row,
			Column:  node.StartPoint().Column,
			Message: "HTML-like comment is not allowed in module code",
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child != nil {
			if perr := findHTMLComment(child); perr != nil {
				return perr
			}
		}
	}
	return nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}
