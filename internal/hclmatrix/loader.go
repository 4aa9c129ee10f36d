// Package hclmatrix loads experiment matrix documents written in HCL.
//
// A document declares one or more matrix blocks:
//
//	matrix "sweep" {
//	  parameters {
//	    alpha = [0.1, 0.2]
//	    depth = [2, 4, 8]
//	  }
//	  exclude {
//	    alpha = 0.2
//	    depth = 8
//	  }
//	  settings {
//	    epochs = 10
//	  }
//	  dependencies = ["base"]
//	}
//
// Parameter declaration order is significant: it fixes the enumeration order
// of the generated configurations, so the loader preserves source order
// instead of the decoder's map order.
package hclmatrix

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/memogrid/internal/ctxlog"
	"github.com/vk/memogrid/internal/matrix"
)

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "matrix", LabelNames: []string{"id"}},
	},
}

var matrixSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "dependencies"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "parameters"},
		{Type: "exclude"},
		{Type: "settings"},
		{Type: "runtime"},
	},
}

// Load parses every .hcl file reachable from the given paths and returns the
// declared matrices in file order, then declaration order within each file.
func Load(ctx context.Context, paths ...string) ([]*matrix.Matrix, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	var matrices []*matrix.Matrix

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		decoded, err := decodeFile(hclFile.Body)
		if err != nil {
			return nil, fmt.Errorf("in %s: %w", file, err)
		}
		matrices = append(matrices, decoded...)
	}

	logger.Debug("HCL loading complete.", "matrices", len(matrices))
	return matrices, nil
}

func decodeFile(body hcl.Body) ([]*matrix.Matrix, error) {
	content, diags := body.Content(rootSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode document: %w", diags)
	}

	matrices := make([]*matrix.Matrix, 0, len(content.Blocks))
	for _, block := range content.Blocks {
		m, err := decodeMatrix(block)
		if err != nil {
			return nil, err
		}
		matrices = append(matrices, m)
	}
	return matrices, nil
}

func decodeMatrix(block *hcl.Block) (*matrix.Matrix, error) {
	id := block.Labels[0]
	content, diags := block.Body.Content(matrixSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode matrix %q: %w", id, diags)
	}

	m := &matrix.Matrix{ID: id}

	if attr, ok := content.Attributes["dependencies"]; ok {
		deps, err := decodeStringList(attr.Expr)
		if err != nil {
			return nil, fmt.Errorf("matrix %q: dependencies: %w", id, err)
		}
		m.Dependencies = deps
	}

	for _, inner := range content.Blocks {
		switch inner.Type {
		case "parameters":
			params, err := decodeParameters(inner.Body)
			if err != nil {
				return nil, fmt.Errorf("matrix %q: %w", id, err)
			}
			m.Parameters = append(m.Parameters, params...)
		case "exclude":
			excl, err := decodeAttributeMap(inner.Body)
			if err != nil {
				return nil, fmt.Errorf("matrix %q: exclude: %w", id, err)
			}
			m.Exclude = append(m.Exclude, excl)
		case "settings":
			settings, err := decodeAttributeMap(inner.Body)
			if err != nil {
				return nil, fmt.Errorf("matrix %q: settings: %w", id, err)
			}
			m.Settings = settings
		case "runtime":
			runtime, err := decodeAttributeMap(inner.Body)
			if err != nil {
				return nil, fmt.Errorf("matrix %q: runtime: %w", id, err)
			}
			m.Runtime = runtime
		}
	}

	return m, nil
}

// decodeParameters reads a parameters block as an ordered list. JustAttributes
// hands back a map, so source byte offsets re-establish declaration order.
func decodeParameters(body hcl.Body) ([]matrix.Parameter, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to read parameters: %w", diags)
	}

	ordered := make([]*hcl.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		ordered = append(ordered, attr)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Range.Start.Byte < ordered[j].Range.Start.Byte
	})

	params := make([]matrix.Parameter, 0, len(ordered))
	for _, attr := range ordered {
		values, err := decodeValueList(attr.Expr)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", attr.Name, err)
		}
		params = append(params, matrix.Parameter{Name: attr.Name, Values: values})
	}
	return params, nil
}

func decodeAttributeMap(body hcl.Body) (map[string]any, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to read attributes: %w", diags)
	}

	out := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %w", name, diags)
		}
		native, err := ctyToNative(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = native
	}
	return out, nil
}

// findHCLFiles walks all given paths and returns a flat list of .hcl files.
func findHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			add(path)
			continue
		}
		err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return allFiles, nil
}
