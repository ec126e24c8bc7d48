package reflow

import (
	"fmt"
	"sort"

	"github.com/example/autoplanner/internal/timeutil"
)

// Default engine tuning. The step is the minute resolution of generated
// domains; the node budget bounds backtracking so pathological inputs
// terminate with BudgetExhausted instead of looping.
const (
	DefaultStepMinutes = 1
	DefaultNodeBudget  = 200_000
)

// Engine solves instance placement. The zero value is not usable; construct
// with NewEngine.
type Engine struct {
	StepMinutes int
	NodeBudget  int
}

// NewEngine returns an engine with the default step and budget.
func NewEngine() *Engine {
	return &Engine{StepMinutes: DefaultStepMinutes, NodeBudget: DefaultNodeBudget}
}

// variable is one instance under search.
type variable struct {
	inst  Instance
	index int
	// singleton marks a domain that started with exactly one candidate.
	singleton bool
}

// binary is one directed arc: values of x must have a support in y.
type binary struct {
	x, y int
	kind ConflictType
	desc string
	ok   func(xv, yv timeutil.DateTime) bool
}

type solver struct {
	eng       *Engine
	vars      []*variable
	domains   [][]timeutil.DateTime
	arcs      []*binary
	incoming  [][]int // arc indices whose y is the given variable
	relations []Relation
	chains    []Chain
	bySeries  map[string][]int

	chosen   []timeutil.DateTime
	isChosen []bool
	nodes    int
	budget   bool

	// deepest and bestPartial track the furthest consistent frontier the
	// search reached, reported on failure.
	deepest     int
	bestPartial []Assignment

	lastWipeout []Conflict
	solution    []timeutil.DateTime
}

// Solve computes a complete consistent assignment or a structured failure.
// Output is deterministic for identical inputs: variables are ordered by
// (seriesID, date, scheduled start) and every heuristic breaks ties on that
// order.
func (e *Engine) Solve(input Input) Result {
	s := &solver{eng: e, relations: input.Relations, chains: input.Chains}

	instances := make([]Instance, len(input.Instances))
	copy(instances, input.Instances)
	sort.Slice(instances, func(i, j int) bool {
		a, b := instances[i], instances[j]
		if a.Ref.SeriesID != b.Ref.SeriesID {
			return a.Ref.SeriesID < b.Ref.SeriesID
		}
		if c := a.Ref.Date.Compare(b.Ref.Date); c != 0 {
			return c < 0
		}
		return a.Start.Before(b.Start)
	})

	s.bySeries = make(map[string][]int)
	for i, inst := range instances {
		v := &variable{inst: inst, index: i}
		s.vars = append(s.vars, v)
		s.bySeries[inst.Ref.SeriesID] = append(s.bySeries[inst.Ref.SeriesID], i)
	}

	if conflicts := s.buildDomains(); len(conflicts) > 0 {
		return failure(conflicts, nil, false)
	}
	s.buildArcs()

	s.chosen = make([]timeutil.DateTime, len(s.vars))
	s.isChosen = make([]bool, len(s.vars))

	if ok, conflicts := s.propagate(s.domains); !ok {
		return failure(conflicts, nil, false)
	}

	if s.search(s.domains, 0) {
		return s.successResult()
	}

	conflicts := s.lastWipeout
	if len(conflicts) == 0 {
		conflicts = []Conflict{{
			Type:        ConflictIntraDay,
			Description: "no assignment satisfies the combined constraints",
		}}
	}
	return failure(conflicts, s.bestPartial, s.budget)
}

func failure(conflicts []Conflict, partial []Assignment, budget bool) Result {
	return Result{Conflicts: conflicts, PartialAssignment: partial, BudgetExhausted: budget}
}

// buildDomains generates candidate starts per instance and applies unary
// chain bounds from completed parents. Returns conflicts when a domain is
// empty from the outset.
func (s *solver) buildDomains() []Conflict {
	step := s.eng.StepMinutes
	if step < 1 {
		step = DefaultStepMinutes
	}
	s.domains = make([][]timeutil.DateTime, len(s.vars))

	for i, v := range s.vars {
		inst := v.inst
		var domain []timeutil.DateTime
		switch {
		case inst.AllDay:
			domain = []timeutil.DateTime{inst.Start.Date.At(timeutil.TimeOfDay{})}
		case inst.Fixed || inst.Wiggle == nil:
			domain = []timeutil.DateTime{inst.Start}
		default:
			w := inst.Wiggle
			for dayOffset := -w.DaysBefore; dayOffset <= w.DaysAfter; dayOffset++ {
				day := inst.Start.Date.AddDays(dayOffset)
				if w.Earliest == nil || w.Latest == nil {
					domain = append(domain, day.At(inst.Start.Time))
					continue
				}
				for m := w.Earliest.MinutesFromMidnight(); m <= w.Latest.MinutesFromMidnight(); m += step {
					domain = append(domain, day.At(timeutil.FromMinutes(m)))
				}
			}
		}
		v.singleton = len(domain) == 1
		s.domains[i] = domain
	}

	// Unary chain bounds: a completed parent fixes the child's window.
	var conflicts []Conflict
	for _, chain := range s.chains {
		for _, childIdx := range s.bySeries[chain.ChildSeriesID] {
			child := s.vars[childIdx]
			end, ok := chain.CompletedEnds[child.inst.Ref.Date]
			if !ok {
				continue
			}
			earliest := end.AddMinutes(chain.TargetDistanceMinutes - chain.EarlyWobbleMinutes)
			latest := end.AddMinutes(chain.TargetDistanceMinutes + chain.LateWobbleMinutes)
			kept := s.domains[childIdx][:0]
			for _, candidate := range s.domains[childIdx] {
				if !candidate.Before(earliest) && !candidate.After(latest) {
					kept = append(kept, candidate)
				}
			}
			s.domains[childIdx] = kept
			if len(kept) == 0 {
				conflicts = append(conflicts, Conflict{
					InstanceRefs: []InstanceRef{child.inst.Ref},
					Type:         ConflictChainBounds,
					Description: fmt.Sprintf("no start for %s inside chain window [%s, %s]",
						child.inst.Ref, earliest, latest),
				})
			}
		}
	}
	return conflicts
}

// buildArcs materializes the binary constraint graph: pairwise overlap,
// chain windows, and the pairwise relational constraints.
func (s *solver) buildArcs() {
	add := func(x, y int, kind ConflictType, desc string, ok func(xv, yv timeutil.DateTime) bool) {
		s.arcs = append(s.arcs, &binary{x: x, y: y, kind: kind, desc: desc, ok: ok})
	}

	// No two timed instances may overlap in [start, end).
	for i := range s.vars {
		if s.vars[i].inst.AllDay {
			continue
		}
		for j := i + 1; j < len(s.vars); j++ {
			if s.vars[j].inst.AllDay {
				continue
			}
			durI := s.vars[i].inst.DurationMinutes
			durJ := s.vars[j].inst.DurationMinutes
			kind := ConflictIntraDay
			if s.vars[i].singleton && s.vars[j].singleton {
				kind = ConflictFixedOverlap
			}
			desc := fmt.Sprintf("%s and %s overlap", s.vars[i].inst.Ref, s.vars[j].inst.Ref)
			noOverlap := func(durX, durY int) func(xv, yv timeutil.DateTime) bool {
				return func(xv, yv timeutil.DateTime) bool {
					return !xv.AddMinutes(durX).After(yv) || !yv.AddMinutes(durY).After(xv)
				}
			}
			add(i, j, kind, desc, noOverlap(durI, durJ))
			add(j, i, kind, desc, noOverlap(durJ, durI))
		}
	}

	// Chain windows between parent and child instances of the same date.
	for _, chain := range s.chains {
		for _, parentIdx := range s.bySeries[chain.ParentSeriesID] {
			parent := s.vars[parentIdx]
			if _, completed := chain.CompletedEnds[parent.inst.Ref.Date]; completed {
				continue // already applied as a unary bound
			}
			for _, childIdx := range s.bySeries[chain.ChildSeriesID] {
				child := s.vars[childIdx]
				if child.inst.Ref.Date != parent.inst.Ref.Date {
					continue
				}
				dur := parent.inst.DurationMinutes
				lo := chain.TargetDistanceMinutes - chain.EarlyWobbleMinutes
				hi := chain.TargetDistanceMinutes + chain.LateWobbleMinutes
				desc := fmt.Sprintf("%s must start %d..%d minutes after %s ends",
					child.inst.Ref, lo, hi, parent.inst.Ref)
				inWindow := func(childStart, parentStart timeutil.DateTime) bool {
					end := parentStart.AddMinutes(dur)
					return !childStart.Before(end.AddMinutes(lo)) && !childStart.After(end.AddMinutes(hi))
				}
				add(childIdx, parentIdx, ConflictChainBounds, desc, inWindow)
				add(parentIdx, childIdx, ConflictChainBounds, desc,
					func(parentStart, childStart timeutil.DateTime) bool {
						return inWindow(childStart, parentStart)
					})
			}
		}
	}

	// Pairwise relational constraints. Same-day quantified types stay
	// n-ary and are verified on complete assignments instead.
	for _, rel := range s.relations {
		sourceVars := s.relationVars(rel.SourceSeries)
		destVars := s.relationVars(rel.DestSeries)
		if len(sourceVars) == 0 || len(destVars) == 0 {
			continue
		}
		for _, si := range sourceVars {
			for _, di := range destVars {
				if si == di {
					continue
				}
				src, dst := s.vars[si], s.vars[di]
				switch rel.Type {
				case RelationCantBeOnSameDay:
					desc := fmt.Sprintf("%s and %s cannot share a day", src.inst.Ref, dst.inst.Ref)
					add(si, di, ConflictDay, desc, func(a, b timeutil.DateTime) bool { return a.Date != b.Date })
					add(di, si, ConflictDay, desc, func(a, b timeutil.DateTime) bool { return a.Date != b.Date })
				case RelationMustBeBefore:
					s.addOrderedArc(si, di, rel, fmt.Sprintf("%s at %s must end before %s at %s starts",
						src.inst.Ref, src.inst.Start, dst.inst.Ref, dst.inst.Start))
				case RelationMustBeAfter:
					s.addOrderedArc(di, si, rel, fmt.Sprintf("%s at %s must end before %s at %s starts",
						dst.inst.Ref, dst.inst.Start, src.inst.Ref, src.inst.Start))
				case RelationMustBeWithin:
					if src.inst.AllDay || dst.inst.AllDay {
						continue
					}
					srcDur := src.inst.DurationMinutes
					within := rel.WithinMinutes
					desc := fmt.Sprintf("%s must start within %d minutes of %s ending", dst.inst.Ref, within, src.inst.Ref)
					check := func(srcStart, dstStart timeutil.DateTime) bool {
						if srcStart.Date != dstStart.Date {
							return true
						}
						return srcStart.AddMinutes(srcDur).MinutesBetween(dstStart) <= within
					}
					add(si, di, ConflictIntraDay, desc, check)
					add(di, si, ConflictIntraDay, desc,
						func(dstStart, srcStart timeutil.DateTime) bool { return check(srcStart, dstStart) })
				}
			}
		}
	}

	s.incoming = make([][]int, len(s.vars))
	for idx, arc := range s.arcs {
		s.incoming[arc.y] = append(s.incoming[arc.y], idx)
	}
}

// addOrderedArc encodes "earlier must end before later starts" for pairs
// sharing a day.
func (s *solver) addOrderedArc(earlierIdx, laterIdx int, rel Relation, desc string) {
	earlier, later := s.vars[earlierIdx], s.vars[laterIdx]
	if earlier.inst.AllDay || later.inst.AllDay {
		return
	}
	dur := earlier.inst.DurationMinutes
	check := func(earlierStart, laterStart timeutil.DateTime) bool {
		if earlierStart.Date != laterStart.Date {
			return true
		}
		return !earlierStart.AddMinutes(dur).After(laterStart)
	}
	s.arcs = append(s.arcs, &binary{x: earlierIdx, y: laterIdx, kind: ConflictIntraDay, desc: desc, ok: check})
	s.arcs = append(s.arcs, &binary{x: laterIdx, y: earlierIdx, kind: ConflictIntraDay, desc: desc,
		ok: func(laterStart, earlierStart timeutil.DateTime) bool { return check(earlierStart, laterStart) }})
}

// relationVars expands series ids to variable indices in stable order.
func (s *solver) relationVars(seriesIDs []string) []int {
	ids := make([]string, len(seriesIDs))
	copy(ids, seriesIDs)
	sort.Strings(ids)
	var out []int
	for _, id := range ids {
		out = append(out, s.bySeries[id]...)
	}
	sort.Ints(out)
	return out
}

func (s *solver) successResult() Result {
	assignments := make([]Assignment, len(s.vars))
	for i, v := range s.vars {
		start := s.solution[i]
		assignments[i] = Assignment{
			Ref:   v.inst.Ref,
			Start: start,
			End:   start.AddMinutes(v.inst.DurationMinutes),
		}
	}
	return Result{Solved: true, Assignments: assignments}
}

