package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

const defaultZoomMax = 20

type (
	// LayerFile is the root of a layers.hcl document.
	LayerFile struct {
		Layers []*LayerBlock `hcl:"layer,block"`
	}

	LayerBlock struct {
		ID            string         `hcl:"id,label"`
		Kind          string         `hcl:"kind"`
		Visible       *bool          `hcl:"visible,optional"`
		Opacity       *float64       `hcl:"opacity,optional"`
		MergeFeatures bool           `hcl:"merge_features,optional"`
		MergeZoom     int            `hcl:"merge_zoom,optional"`
		Source        *SourceBlock   `hcl:"source,block"`
		Strategy      *StrategyBlock `hcl:"strategy,block"`
	}

	SourceBlock struct {
		Type     string    `hcl:"type,label"`
		URL      string    `hcl:"url,optional"`
		Path     string    `hcl:"path,optional"`
		Format   string    `hcl:"format"`
		Name     string    `hcl:"name,optional"`
		CRS      string    `hcl:"crs,optional"`
		ZoomMin  int       `hcl:"zoom_min,optional"`
		ZoomMax  *int      `hcl:"zoom_max,optional"`
		TMS      bool      `hcl:"tms,optional"`
		TileSize int       `hcl:"tile_size,optional"`
		Extent   []float64 `hcl:"extent,optional"`
	}

	StrategyBlock struct {
		Type      string `hcl:"type,label"`
		Increment int    `hcl:"increment,optional"`
		Groups    []int  `hcl:"groups,optional"`
	}
)

// LoadLayers reads and decodes the layer definitions file at path.
func LoadLayers(path string) ([]*LayerBlock, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layers file %s: %w", path, err)
	}
	return ParseLayers(src, path)
}

// ParseLayers decodes layer definitions from HCL source. The `env` object
// exposes process environment variables to expressions.
func ParseLayers(src []byte, filename string) ([]*LayerBlock, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var root LayerFile
	diags = gohcl.DecodeBody(file.Body, evalContext(), &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	seen := make(map[string]struct{}, len(root.Layers))
	for _, l := range root.Layers {
		if _, dup := seen[l.ID]; dup {
			return nil, fmt.Errorf("duplicate layer id %q in %s", l.ID, filename)
		}
		seen[l.ID] = struct{}{}

		switch l.Kind {
		case "color", "elevation", "geometry":
		default:
			return nil, fmt.Errorf("layer %q: unknown kind %q", l.ID, l.Kind)
		}
		if l.Source == nil {
			return nil, fmt.Errorf("layer %q: source block is required", l.ID)
		}
		if l.Source.ZoomMax == nil {
			zoomMax := defaultZoomMax
			l.Source.ZoomMax = &zoomMax
		}
		if l.Source.Extent != nil && len(l.Source.Extent) != 4 {
			return nil, fmt.Errorf("layer %q: extent must be [west, south, east, north]", l.ID)
		}
	}

	return root.Layers, nil
}

func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntaxIdent(name) {
			continue
		}
		vars[name] = cty.StringVal(value)
	}

	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": env,
		},
	}
}

// hclsyntaxIdent reports whether name can be used as an attribute name.
func hclsyntaxIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}
