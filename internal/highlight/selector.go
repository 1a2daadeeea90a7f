package highlight

import (
	"fmt"
	"math"
	"sort"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
)

const DefaultTopN = 5

// SelectTop returns the frame indexes of the n highest scores, best first.
// Equal scores are ordered by ascending frame index.
func SelectTop(scores map[int]float64, n int) ([]int, error) {
	if n <= 0 || len(scores) == 0 {
		return []int{}, nil
	}

	ids := make([]int, 0, len(scores))
	for id, score := range scores {
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return nil, fmt.Errorf("frame %d: %w", id, entity.ErrInvalidScore)
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		a, b := scores[ids[i]], scores[ids[j]]
		if a != b {
			return a > b
		}
		return ids[i] < ids[j]
	})

	if n < len(ids) {
		ids = ids[:n]
	}
	return ids, nil
}
