// Package domain holds the value types shared by the tile update pipeline:
// layer identity and kinds, zoom ranges, artifacts and the error taxonomy.
package domain

import "fmt"

// EmptyLevel marks a material slot that holds no data yet. A slot at this
// level always needs a refresh.
const EmptyLevel = -1

type LayerID string

// LayerKind is the closed set of layer variants.
type LayerKind int

const (
	ColorLayer LayerKind = iota
	ElevationLayer
	GeometryLayer
)

func (k LayerKind) String() string {
	switch k {
	case ColorLayer:
		return "color"
	case ElevationLayer:
		return "elevation"
	case GeometryLayer:
		return "geometry"
	}
	return fmt.Sprintf("LayerKind(%d)", int(k))
}

// ParseLayerKind maps a textual kind to its LayerKind.
func ParseLayerKind(s string) (LayerKind, error) {
	switch s {
	case "color":
		return ColorLayer, nil
	case "elevation":
		return ElevationLayer, nil
	case "geometry":
		return GeometryLayer, nil
	}
	return 0, fmt.Errorf("unknown layer kind %q", s)
}

// ResourceKind identifies what a command produces. The scheduler routes a
// command to the executor registered for its resource kind.
type ResourceKind int

const (
	ResourceTexture ResourceKind = iota
	ResourceElevation
	ResourceFeatures
	ResourceSubdivision
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceTexture:
		return "texture"
	case ResourceElevation:
		return "elevation"
	case ResourceFeatures:
		return "features"
	case ResourceSubdivision:
		return "subdivision"
	}
	return fmt.Sprintf("ResourceKind(%d)", int(k))
}

type ZoomRange struct {
	Min int
	Max int
}

func (z ZoomRange) Contains(level int) bool {
	return level >= z.Min && level <= z.Max
}

// Clamp returns level limited to the range.
func (z ZoomRange) Clamp(level int) int {
	if level < z.Min {
		return z.Min
	}
	if level > z.Max {
		return z.Max
	}
	return level
}

// Pitch locates a sub-rectangle inside an artifact, in normalized artifact
// coordinates: x' = OffsetX + x*ScaleX, y' = OffsetY + y*ScaleY.
type Pitch struct {
	OffsetX float64
	OffsetY float64
	ScaleX  float64
	ScaleY  float64
}

// IdentityPitch covers the whole artifact.
var IdentityPitch = Pitch{ScaleX: 1, ScaleY: 1}
