package reflow

import (
	"fmt"

	"github.com/example/autoplanner/internal/timeutil"
)

// propagate enforces arc consistency over the given domains: values with no
// support under any arc are removed until a fixed point. Revised domains
// are fresh slices so the caller's snapshot stays intact for backtracking.
// Returns the conflicts of the wiped-out variable on failure.
func (s *solver) propagate(domains [][]timeutil.DateTime) (bool, []Conflict) {
	queue := make([]int, len(s.arcs))
	for i := range s.arcs {
		queue[i] = i
	}
	queued := make([]bool, len(s.arcs))
	for i := range queued {
		queued[i] = true
	}

	// culprits tracks, per variable, the arcs that removed values during
	// this propagation; they form the conflict set on wipeout.
	culprits := make(map[int][]int)

	for len(queue) > 0 {
		arcIdx := queue[0]
		queue = queue[1:]
		queued[arcIdx] = false
		arc := s.arcs[arcIdx]

		revised := false
		kept := make([]timeutil.DateTime, 0, len(domains[arc.x]))
		for _, xv := range domains[arc.x] {
			supported := false
			for _, yv := range domains[arc.y] {
				if arc.ok(xv, yv) {
					supported = true
					break
				}
			}
			if supported {
				kept = append(kept, xv)
			} else {
				revised = true
			}
		}
		if !revised {
			continue
		}
		domains[arc.x] = kept
		culprits[arc.x] = append(culprits[arc.x], arcIdx)

		if len(kept) == 0 {
			return false, s.wipeoutConflicts(arc.x, culprits[arc.x])
		}
		for _, dependent := range s.incoming[arc.x] {
			if !queued[dependent] {
				queue = append(queue, dependent)
				queued[dependent] = true
			}
		}
	}
	return true, nil
}

// wipeoutConflicts converts the arcs that emptied a variable's domain into
// a deduplicated conflict list.
func (s *solver) wipeoutConflicts(varIdx int, arcIdxs []int) []Conflict {
	var conflicts []Conflict
	seen := make(map[string]bool)
	for _, arcIdx := range arcIdxs {
		arc := s.arcs[arcIdx]
		if seen[arc.desc] {
			continue
		}
		seen[arc.desc] = true
		conflicts = append(conflicts, Conflict{
			InstanceRefs: []InstanceRef{s.vars[arc.x].inst.Ref, s.vars[arc.y].inst.Ref},
			Type:         arc.kind,
			Description:  arc.desc,
		})
	}
	if len(conflicts) == 0 {
		conflicts = append(conflicts, Conflict{
			InstanceRefs: []InstanceRef{s.vars[varIdx].inst.Ref},
			Type:         ConflictIntraDay,
			Description:  fmt.Sprintf("no viable start remains for %s", s.vars[varIdx].inst.Ref),
		})
	}
	return conflicts
}

// search runs backtracking over the current domains. Variables are chosen
// by minimum remaining values, candidates by least-constraining value with
// a workload tie-break. On success the chosen starts are stored in
// s.solution.
func (s *solver) search(domains [][]timeutil.DateTime, depth int) bool {
	target := -1
	best := -1
	for i := range s.vars {
		if s.isChosen[i] {
			continue
		}
		size := len(domains[i])
		if target < 0 || size < best {
			target = i
			best = size
		}
	}
	if target < 0 {
		if conflicts := s.verifyComplete(domains); len(conflicts) > 0 {
			s.lastWipeout = conflicts
			return false
		}
		s.solution = make([]timeutil.DateTime, len(s.vars))
		for i := range s.vars {
			s.solution[i] = domains[i][0]
		}
		return true
	}

	if s.nodes >= s.eng.NodeBudget {
		s.budget = true
		return false
	}
	s.nodes++

	for _, value := range s.orderValues(target, domains) {
		next := make([][]timeutil.DateTime, len(domains))
		copy(next, domains)
		next[target] = []timeutil.DateTime{value}

		s.chosen[target] = value
		s.isChosen[target] = true
		if depth+1 > s.deepest {
			s.deepest = depth + 1
			s.bestPartial = s.snapshotChosen()
		}

		ok, conflicts := s.propagate(next)
		if !ok {
			s.lastWipeout = conflicts
		} else if s.search(next, depth+1) {
			return true
		}
		s.isChosen[target] = false
		if s.budget {
			return false
		}
	}
	return false
}

func (s *solver) snapshotChosen() []Assignment {
	var out []Assignment
	for i, v := range s.vars {
		if !s.isChosen[i] {
			continue
		}
		out = append(out, Assignment{
			Ref:   v.inst.Ref,
			Start: s.chosen[i],
			End:   s.chosen[i].AddMinutes(v.inst.DurationMinutes),
		})
	}
	return out
}

// orderValues ranks a variable's candidates: least constraining first,
// then lowest workload variance, then chronologically.
func (s *solver) orderValues(varIdx int, domains [][]timeutil.DateTime) []timeutil.DateTime {
	candidates := domains[varIdx]
	if len(candidates) == 1 {
		return candidates
	}

	type ranked struct {
		value      timeutil.DateTime
		eliminated int
		variance   float64
		position   int
	}
	rankings := make([]ranked, len(candidates))
	for pos, value := range candidates {
		eliminated := 0
		for _, arcIdx := range s.incoming[varIdx] {
			arc := s.arcs[arcIdx]
			if s.isChosen[arc.x] {
				continue
			}
			for _, xv := range domains[arc.x] {
				if !arc.ok(xv, value) {
					eliminated++
				}
			}
		}
		rankings[pos] = ranked{
			value:      value,
			eliminated: eliminated,
			variance:   s.workloadVariance(varIdx, value),
			position:   pos,
		}
	}
	stableSortBy(rankings, func(a, b ranked) bool {
		if a.eliminated != b.eliminated {
			return a.eliminated < b.eliminated
		}
		if a.variance != b.variance {
			return a.variance < b.variance
		}
		return a.position < b.position
	})
	ordered := make([]timeutil.DateTime, len(rankings))
	for i, r := range rankings {
		ordered[i] = r.value
	}
	return ordered
}

// workloadVariance scores the evenness of per-day scheduled minutes over
// the chosen variables plus one candidate: lower is more even.
func (s *solver) workloadVariance(varIdx int, candidate timeutil.DateTime) float64 {
	perDay := make(map[timeutil.Date]int)
	for i, v := range s.vars {
		if v.inst.AllDay {
			continue
		}
		switch {
		case i == varIdx:
			perDay[candidate.Date] += v.inst.DurationMinutes
		case s.isChosen[i]:
			perDay[s.chosen[i].Date] += v.inst.DurationMinutes
		}
	}
	if len(perDay) == 0 {
		return 0
	}
	total := 0
	for _, minutes := range perDay {
		total += minutes
	}
	mean := float64(total) / float64(len(perDay))
	variance := 0.0
	for _, minutes := range perDay {
		d := float64(minutes) - mean
		variance += d * d
	}
	return variance / float64(len(perDay))
}

// verifyComplete checks the constraints the binary arcs cannot express
// against a fully assigned set: the quantified same-day and adjacency
// relations.
func (s *solver) verifyComplete(domains [][]timeutil.DateTime) []Conflict {
	starts := make([]timeutil.DateTime, len(s.vars))
	for i := range s.vars {
		starts[i] = domains[i][0]
	}

	var conflicts []Conflict
	for _, rel := range s.relations {
		sourceVars := s.relationVars(rel.SourceSeries)
		destVars := s.relationVars(rel.DestSeries)
		if len(sourceVars) == 0 || len(destVars) == 0 {
			continue
		}
		switch rel.Type {
		case RelationMustBeOnSameDay:
			conflicts = append(conflicts, s.verifySameDay(rel, sourceVars, destVars, starts)...)
		case RelationMustBeNextTo, RelationCantBeNextTo:
			conflicts = append(conflicts, s.verifyAdjacency(rel, sourceVars, destVars, starts)...)
		}
	}
	return conflicts
}

// verifySameDay requires every source instance to share its day with some
// dest instance and vice versa.
func (s *solver) verifySameDay(rel Relation, sourceVars, destVars []int, starts []timeutil.DateTime) []Conflict {
	var conflicts []Conflict
	check := func(from, against []int) {
		for _, i := range from {
			matched := false
			for _, j := range against {
				if i != j && starts[i].Date == starts[j].Date {
					matched = true
					break
				}
			}
			if !matched {
				conflicts = append(conflicts, Conflict{
					InstanceRefs: []InstanceRef{s.vars[i].inst.Ref},
					Type:         ConflictDay,
					Description:  fmt.Sprintf("%s has no counterpart on %s", s.vars[i].inst.Ref, starts[i].Date),
				})
			}
		}
	}
	check(sourceVars, destVars)
	check(destVars, sourceVars)
	return conflicts
}

// verifyAdjacency enforces mustBeNextTo/cantBeNextTo: adjacency means the
// pair shares a day with no third timed instance inside the gap.
func (s *solver) verifyAdjacency(rel Relation, sourceVars, destVars []int, starts []timeutil.DateTime) []Conflict {
	var conflicts []Conflict
	for _, si := range sourceVars {
		for _, di := range destVars {
			if si == di || s.vars[si].inst.AllDay || s.vars[di].inst.AllDay {
				continue
			}
			if starts[si].Date != starts[di].Date {
				continue
			}
			adj := s.assignedAdjacent(si, di, starts)
			if rel.Type == RelationMustBeNextTo && !adj {
				conflicts = append(conflicts, Conflict{
					InstanceRefs: []InstanceRef{s.vars[si].inst.Ref, s.vars[di].inst.Ref},
					Type:         ConflictIntraDay,
					Description: fmt.Sprintf("%s and %s are not adjacent at %s and %s",
						s.vars[si].inst.Ref, s.vars[di].inst.Ref, starts[si], starts[di]),
				})
			}
			if rel.Type == RelationCantBeNextTo && adj {
				conflicts = append(conflicts, Conflict{
					InstanceRefs: []InstanceRef{s.vars[si].inst.Ref, s.vars[di].inst.Ref},
					Type:         ConflictIntraDay,
					Description: fmt.Sprintf("%s and %s must not be adjacent at %s and %s",
						s.vars[si].inst.Ref, s.vars[di].inst.Ref, starts[si], starts[di]),
				})
			}
		}
	}
	return conflicts
}

func (s *solver) assignedAdjacent(si, di int, starts []timeutil.DateTime) bool {
	first, second := si, di
	if starts[second].Before(starts[first]) {
		first, second = second, first
	}
	gapStart := starts[first].AddMinutes(s.vars[first].inst.DurationMinutes)
	gapEnd := starts[second]
	if gapEnd.Before(gapStart) {
		return false
	}
	for k := range s.vars {
		if k == si || k == di || s.vars[k].inst.AllDay {
			continue
		}
		kStart := starts[k]
		kEnd := kStart.AddMinutes(s.vars[k].inst.DurationMinutes)
		if kStart.Before(gapEnd) && kEnd.After(gapStart) {
			return false
		}
	}
	return true
}

// stableSortBy is insertion sort: candidate lists are short and stability
// keeps ordering deterministic.
func stableSortBy[T any](items []T, less func(a, b T) bool) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && less(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
