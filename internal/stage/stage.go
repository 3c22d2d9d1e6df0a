// Package stage resolves cumulative EXP against the ordered stage catalog.
package stage

import (
	"errors"
	"fmt"

	"routinepet/internal/domain"
)

var (
	// ErrNoStages is returned when the catalog is empty.
	ErrNoStages = errors.New("no stage data")
	// ErrDuplicateThreshold marks a catalog with two stages sharing a minimum EXP.
	ErrDuplicateThreshold = errors.New("duplicate stage threshold")
)

// Resolution is the stage a given EXP value belongs to.
type Resolution struct {
	Current domain.Stage
	Next    *domain.Stage
}

// NextThreshold returns the minimum EXP of the next stage, nil at the terminal stage.
func (r Resolution) NextThreshold() *int {
	if r.Next == nil {
		return nil
	}
	v := r.Next.MinTotalExp
	return &v
}

// Snapshot renders the resolution for a pet holding totalExp.
func (r Resolution) Snapshot(totalExp int) domain.PetSnapshot {
	return domain.PetSnapshot{
		TotalExp:        totalExp,
		StageID:         r.Current.ID,
		StageName:       r.Current.Name,
		CurrentStageMin: r.Current.MinTotalExp,
		NextStageMin:    r.NextThreshold(),
	}
}

// Resolve picks the stage with the greatest minimum not above exp, and the
// stage with the smallest minimum strictly above it. The catalog does not
// need to be sorted. An exp below every minimum resolves to the baseline.
func Resolve(catalog []domain.Stage, exp int) (Resolution, error) {
	if len(catalog) == 0 {
		return Resolution{}, ErrNoStages
	}
	if err := checkUnique(catalog); err != nil {
		return Resolution{}, err
	}
	var (
		current *domain.Stage
		next    *domain.Stage
		lowest  = &catalog[0]
	)
	for i := range catalog {
		s := &catalog[i]
		if s.MinTotalExp < lowest.MinTotalExp {
			lowest = s
		}
		if s.MinTotalExp <= exp {
			if current == nil || s.MinTotalExp > current.MinTotalExp {
				current = s
			}
			continue
		}
		if next == nil || s.MinTotalExp < next.MinTotalExp {
			next = s
		}
	}
	if current == nil {
		current = lowest
		next = above(catalog, lowest.MinTotalExp)
	}
	res := Resolution{Current: *current}
	if next != nil {
		n := *next
		res.Next = &n
	}
	return res, nil
}

// Baseline resolves the lowest stage of the catalog, the reset target.
func Baseline(catalog []domain.Stage) (Resolution, error) {
	if len(catalog) == 0 {
		return Resolution{}, ErrNoStages
	}
	lowest := catalog[0].MinTotalExp
	for _, s := range catalog[1:] {
		if s.MinTotalExp < lowest {
			lowest = s.MinTotalExp
		}
	}
	return Resolve(catalog, lowest)
}

func above(catalog []domain.Stage, min int) *domain.Stage {
	var next *domain.Stage
	for i := range catalog {
		s := &catalog[i]
		if s.MinTotalExp > min && (next == nil || s.MinTotalExp < next.MinTotalExp) {
			next = s
		}
	}
	return next
}

func checkUnique(catalog []domain.Stage) error {
	seen := make(map[int]int64, len(catalog))
	for _, s := range catalog {
		if other, ok := seen[s.MinTotalExp]; ok {
			return fmt.Errorf("%w: stages %d and %d both start at %d", ErrDuplicateThreshold, other, s.ID, s.MinTotalExp)
		}
		seen[s.MinTotalExp] = s.ID
	}
	return nil
}
