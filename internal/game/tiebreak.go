package game

import (
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/rickgao/sketchduel/internal/model"
)

// AnimationKey derives the deterministic animation key for a tied set.
// Order does not matter.
func AnimationKey(words []string) uint64 {
	sorted := slices.Clone(words)
	slices.Sort(sorted)
	return xxhash.Sum64String(strings.Join(sorted, "\x00"))
}

func newTiebreak(words []string) *model.Tiebreak {
	sorted := slices.Clone(words)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return &model.Tiebreak{
		TiedWords:    sorted,
		AnimationKey: AnimationKey(sorted),
	}
}
