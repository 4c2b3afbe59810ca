package layer

import (
	"fmt"
	"math"
	"slices"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/config"
)

// Strategy picks the next level to fetch for a tile that currently holds
// data at current (or domain.EmptyLevel) and would ideally show target.
type Strategy interface {
	Next(current, target int, zoom domain.ZoomRange) int
	Name() string
}

// MinNetworkTraffic fetches the target level directly.
type MinNetworkTraffic struct{}

func (MinNetworkTraffic) Name() string { return "min_network_traffic" }

func (MinNetworkTraffic) Next(_, target int, _ domain.ZoomRange) int { return target }

// Group fetches only at the configured levels: the deepest group level not
// past the target.
type Group struct {
	Levels []int
}

func (Group) Name() string { return "group" }

func (g Group) Next(_, target int, zoom domain.ZoomRange) int {
	if len(g.Levels) == 0 {
		return target
	}
	next := g.Levels[0]
	for _, l := range g.Levels {
		if l <= target {
			next = l
		}
	}
	return next
}

// Progressive climbs Increment levels per fetch.
type Progressive struct {
	Increment int
}

func (Progressive) Name() string { return "progressive" }

func (p Progressive) Next(current, target int, zoom domain.ZoomRange) int {
	if current == domain.EmptyLevel {
		return min(zoom.Min, target)
	}
	inc := max(p.Increment, 1)
	return min(current+inc, target)
}

// Dichotomy halves the distance between the current and target levels.
type Dichotomy struct{}

func (Dichotomy) Name() string { return "dichotomy" }

func (Dichotomy) Next(current, target int, zoom domain.ZoomRange) int {
	if current == domain.EmptyLevel {
		return min(zoom.Min, target)
	}
	return min(int(math.Ceil(float64(current+target)/2)), target)
}

// StrategyFromConfig maps a strategy block to a Strategy. A nil block
// selects MinNetworkTraffic.
func StrategyFromConfig(b *config.StrategyBlock) (Strategy, error) {
	if b == nil {
		return MinNetworkTraffic{}, nil
	}
	switch b.Type {
	case "min_network_traffic":
		return MinNetworkTraffic{}, nil
	case "group":
		if len(b.Groups) == 0 {
			return nil, fmt.Errorf("group strategy needs at least one level")
		}
		levels := slices.Clone(b.Groups)
		slices.Sort(levels)
		return Group{Levels: levels}, nil
	case "progressive":
		return Progressive{Increment: b.Increment}, nil
	case "dichotomy":
		return Dichotomy{}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q", b.Type)
}
