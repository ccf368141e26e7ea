package optimizer

import (
	"math/rand"
	"sort"

	"github.com/metrofleet/induction/internal/domain"
)

// Individual is one (subset, running order) candidate in the
// population: Order holds the trainsets selected for IN_SERVICE, in
// running-order sequence; it is always a permutation of a subset whose
// size falls within [minTrainsets, maxTrainsets] once feasible.
type Individual struct {
	Order      []string
	Objectives map[string]float64
	Fitness    float64
	Feasible   bool
	Front      int
	Crowding   float64
}

func (ind Individual) subsetSet() map[string]struct{} {
	s := make(map[string]struct{}, len(ind.Order))
	for _, id := range ind.Order {
		s[id] = struct{}{}
	}
	return s
}

func (ind Individual) clone() Individual {
	order := append([]string(nil), ind.Order...)
	objectives := make(map[string]float64, len(ind.Objectives))
	for k, v := range ind.Objectives {
		objectives[k] = v
	}
	return Individual{Order: order, Objectives: objectives, Fitness: ind.Fitness, Feasible: ind.Feasible}
}

// randomIndividual samples a uniformly random subset of eligible within
// [minSize, maxSize] and shuffles it into a running order.
func randomIndividual(eligible []string, minSize, maxSize int, rng *rand.Rand) Individual {
	size := minSize
	if maxSize > minSize {
		size = minSize + rng.Intn(maxSize-minSize+1)
	}
	if size > len(eligible) {
		size = len(eligible)
	}

	shuffled := append([]string(nil), eligible...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	order := append([]string(nil), shuffled[:size]...)
	return Individual{Order: order}
}

// uniformSubsetCrossover builds a child by including each trainset id
// present in either parent with independent 50% probability, clamping
// the resulting subset back within [minSize, maxSize] by trimming or
// topping up from the union, then reshuffling into a running order.
func uniformSubsetCrossover(a, b Individual, minSize, maxSize int, rng *rand.Rand) Individual {
	union := make(map[string]struct{}, len(a.Order)+len(b.Order))
	for _, id := range a.Order {
		union[id] = struct{}{}
	}
	for _, id := range b.Order {
		union[id] = struct{}{}
	}

	// Draw in sorted id order so a fixed seed yields the same child.
	ids := make([]string, 0, len(union))
	for id := range union {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var picked []string
	for _, id := range ids {
		if rng.Float64() < 0.5 {
			picked = append(picked, id)
		}
	}
	sort.Strings(picked)

	if len(picked) < minSize {
		var remaining []string
		pickedSet := make(map[string]struct{}, len(picked))
		for _, id := range picked {
			pickedSet[id] = struct{}{}
		}
		for id := range union {
			if _, ok := pickedSet[id]; !ok {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		rng.Shuffle(len(remaining), func(i, j int) { remaining[i], remaining[j] = remaining[j], remaining[i] })
		for _, id := range remaining {
			if len(picked) >= minSize {
				break
			}
			picked = append(picked, id)
		}
	}

	if len(picked) > maxSize {
		rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
		picked = picked[:maxSize]
	}

	rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	return Individual{Order: picked}
}

// mutate flips membership of one random eligible trainset: if it is in
// the subset it is removed (unless that would breach minSize), else it
// is appended (unless that would breach maxSize). Applied with
// probability rate per individual, per §4.4.
func mutate(ind Individual, eligible []string, minSize, maxSize int, rate float64, rng *rand.Rand) Individual {
	if rng.Float64() >= rate || len(eligible) == 0 {
		return ind
	}

	out := ind.clone()
	candidate := eligible[rng.Intn(len(eligible))]
	present := ind.subsetSet()

	if _, ok := present[candidate]; ok {
		if len(out.Order) > minSize {
			out.Order = removeID(out.Order, candidate)
		}
		return out
	}

	if len(out.Order) < maxSize {
		pos := rng.Intn(len(out.Order) + 1)
		out.Order = insertAt(out.Order, pos, candidate)
	}
	return out
}

func removeID(order []string, id string) []string {
	out := make([]string, 0, len(order))
	for _, v := range order {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func insertAt(order []string, pos int, id string) []string {
	out := make([]string, 0, len(order)+1)
	out = append(out, order[:pos]...)
	out = append(out, id)
	out = append(out, order[pos:]...)
	return out
}

// toSolution converts an individual into the domain Solution shape,
// assigning IN_SERVICE to every trainset in Order and STANDBY to every
// other eligible trainset.
func (ind Individual) toSolution(eligible []string) domain.Solution {
	assignments := make(map[string]domain.EntryDecision, len(eligible))
	selected := ind.subsetSet()
	for _, id := range eligible {
		if _, ok := selected[id]; ok {
			assignments[id] = domain.EntryInService
		} else {
			assignments[id] = domain.EntryStandby
		}
	}
	return domain.Solution{
		Assignments: assignments,
		Order:       append([]string(nil), ind.Order...),
		Objectives:  ind.Objectives,
		Fitness:     ind.Fitness,
	}
}
